package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sceneward/sceneward/internal/api/ratelimit"
	"github.com/sceneward/sceneward/internal/config"
	"github.com/sceneward/sceneward/internal/failedsnatch"
	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/metrics"
	"github.com/sceneward/sceneward/internal/namecache"
	"github.com/sceneward/sceneward/internal/scheduler"
	"github.com/sceneward/sceneward/internal/sceneexceptions"
	"github.com/sceneward/sceneward/internal/searchqueue"
	"github.com/sceneward/sceneward/internal/testutil"
)

type testServer struct {
	*Server
	reconciler *failedsnatch.Reconciler
	cache      *namecache.Cache
}

func setupTestServer(t *testing.T, limiter *ratelimit.TriggerLimiter) *testServer {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	ctx := context.Background()
	clock := clockwork.NewRealClock()
	m := metrics.New(nil)

	shows := tv.NewService(tdb.Conn, tdb.Logger)
	require.NoError(t, shows.AddShow(ctx, tv.Show{ID: 100, Name: "Foo"}))

	exceptions := sceneexceptions.NewService(tdb.Cache, sceneexceptions.Config{}, clock, tdb.Logger)
	cache := namecache.New(namecache.NewSQLStore(tdb.Cache), exceptions, shows, tdb.Logger, namecache.WithMetrics(m))
	cache.Put(ctx, "Foo", 100)

	hist := history.NewService(tdb.Conn, clock, tdb.Logger)
	queue := searchqueue.New(m, tdb.Logger)
	reconciler := failedsnatch.NewReconciler(hist, shows, queue, config.Default(), clock, m, tdb.Logger)

	sched, err := scheduler.New(tdb.Logger)
	require.NoError(t, err)
	require.NoError(t, sched.RegisterTask(&scheduler.TaskConfig{
		ID:       "failed-snatch",
		Name:     "Failed Snatch Search",
		Interval: time.Hour,
		Func:     reconciler.RunScheduled,
	}))
	t.Cleanup(func() { _ = sched.Stop() })

	server := NewServer(Deps{
		Reconciler: reconciler,
		NameCache:  cache,
		History:    hist,
		Scheduler:  sched,
		Metrics:    m,
		Limiter:    limiter,
	}, tdb.Logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return &testServer{Server: server, reconciler: reconciler, cache: cache}
}

func (ts *testServer) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestGetStatus(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, config.Version, resp.Version)
	assert.Equal(t, 1, resp.NameCache)
	require.NotNil(t, resp.FailedSnatch)
	assert.False(t, resp.FailedSnatch.Running)
}

func TestNameCacheLookup(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/namecache/Foo")
	require.Equal(t, http.StatusOK, rec.Code)

	var hit namecache.LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hit))
	assert.True(t, hit.Found)
	assert.Equal(t, int64(100), hit.ShowID)

	rec = ts.do(http.MethodGet, "/api/v1/namecache/Fooo")
	require.Equal(t, http.StatusOK, rec.Code)

	var miss namecache.LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &miss))
	assert.False(t, miss.Found)
	assert.Equal(t, "foo", miss.Closest)
}

func TestFailedSnatchRun(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/v1/failedsnatch/run")
	require.Equal(t, http.StatusAccepted, rec.Code)

	// forced, so the disabled default does not stop it
	assert.Eventually(t, func() bool {
		st := ts.reconciler.LastStatus()
		return !st.Running && !st.LastRun.IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, ts.reconciler.LastStatus().Error)
}

func TestShutdownStopsTriggeredWork(t *testing.T) {
	ts := setupTestServer(t, nil)

	require.Equal(t, http.StatusAccepted, ts.do(http.MethodPost, "/api/v1/namecache/rebuild").Code)
	require.Equal(t, http.StatusAccepted, ts.do(http.MethodPost, "/api/v1/failedsnatch/run").Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.Shutdown(ctx))

	// Everything started above has returned.
	assert.False(t, ts.reconciler.LastStatus().Running)

	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodPost, "/api/v1/namecache/rebuild").Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodPost, "/api/v1/failedsnatch/run").Code)
}

func TestTasks(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/tasks")
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []scheduler.TaskInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "failed-snatch", tasks[0].ID)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/tasks/failed-snatch").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/tasks/nope").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/api/v1/tasks/nope/run").Code)
}

func TestHistoryList(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/history")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	ts := setupTestServer(t, nil)

	// A lookup registers a sample for the lookup counter.
	ts.do(http.MethodGet, "/api/v1/namecache/Foo")

	rec := ts.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sceneward_name_cache_lookups_total"))
}

func TestTriggerLimit(t *testing.T) {
	ts := setupTestServer(t, ratelimit.NewTriggerLimiter(clockwork.NewFakeClock()).WithLimit(1, time.Minute))

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/api/v1/tasks/nope/run").Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodPost, "/api/v1/tasks/nope/run").Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/tasks").Code)
}
