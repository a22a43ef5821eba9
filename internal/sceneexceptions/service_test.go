package sceneexceptions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneward/sceneward/internal/testutil"
)

const exceptionList = `{
	"100": [{"Foo Bar": -1}, {"Foo Season Two": 2}],
	"200": [{"Baz": 1}],
	"junk": [{"Ignored": -1}]
}`

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *clockwork.FakeClock) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(tdb.Cache, Config{URL: server.URL, RefreshInterval: 24 * time.Hour}, clock, tdb.Logger)
	return svc, clock
}

func TestService_RefreshAll(t *testing.T) {
	var hits atomic.Int32
	svc, clock := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(exceptionList))
	})
	ctx := context.Background()

	require.NoError(t, svc.RefreshAll(ctx))

	names, err := svc.Exceptions(ctx, 100, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo Bar"}, names)

	seasons, err := svc.Seasons(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, seasons)

	all, err := svc.All(ctx, 200)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, Exception{ShowID: 200, Name: "Baz", Season: 1}, all[0])

	// Within the refresh interval the list is not fetched again.
	clock.Advance(time.Hour)
	require.NoError(t, svc.RefreshAll(ctx))
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(24 * time.Hour)
	require.NoError(t, svc.RefreshAll(ctx))
	assert.Equal(t, int32(2), hits.Load())
}

func TestService_RefreshKeepsCustom(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(exceptionList))
	})
	ctx := context.Background()

	require.NoError(t, svc.AddCustom(ctx, 100, "My Foo", -1))
	require.NoError(t, svc.RefreshAll(ctx))

	names, err := svc.Exceptions(ctx, 100, -1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"My Foo", "Foo Bar"}, names)
}

func TestService_RefreshFailure(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := svc.RefreshAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefresh)

	seasons, err := svc.Seasons(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, seasons)
}

func TestService_RefreshBacksOffAfterFailure(t *testing.T) {
	var hits atomic.Int32
	svc, clock := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	assert.ErrorIs(t, svc.RefreshAll(ctx), ErrRefresh)
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(time.Minute)
	require.NoError(t, svc.RefreshAll(ctx))
	assert.Equal(t, int32(1), hits.Load())

	// RefreshNow ignores the backoff.
	assert.ErrorIs(t, svc.RefreshNow(ctx), ErrRefresh)
	assert.Equal(t, int32(2), hits.Load())

	clock.Advance(DefaultRetryBackoff)
	assert.ErrorIs(t, svc.RefreshAll(ctx), ErrRefresh)
	assert.Equal(t, int32(3), hits.Load())
}

func TestService_RefreshSuccessClearsBackoff(t *testing.T) {
	var (
		hits    atomic.Int32
		healthy atomic.Bool
	)
	svc, clock := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(exceptionList))
	})
	ctx := context.Background()

	require.Error(t, svc.RefreshAll(ctx))
	healthy.Store(true)
	require.NoError(t, svc.RefreshNow(ctx))
	assert.Equal(t, int32(2), hits.Load())
	assert.True(t, svc.failedAt.IsZero())

	// After the refresh interval the next refresh fetches straight away.
	clock.Advance(25 * time.Hour)
	require.NoError(t, svc.RefreshAll(ctx))
	assert.Equal(t, int32(3), hits.Load())
}

func TestService_NoURL(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	svc := NewService(tdb.Cache, Config{}, nil, tdb.Logger)
	assert.NoError(t, svc.RefreshAll(context.Background()))
}
