package namecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rebuildRequest(h *Handlers) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e.Group("/namecache"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/namecache/rebuild", nil))
	return rec
}

func TestHandlers_RebuildRunsInBackground(t *testing.T) {
	c, _ := newTestCache(t, nil, fakeShows{{ID: 1, Name: "Foo"}})
	var wg sync.WaitGroup

	rec := rebuildRequest(NewHandlers(context.Background(), &wg, c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	wg.Wait()
	id, ok := c.Get("foo")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestHandlers_RebuildRefusedAfterCancel(t *testing.T) {
	c, _ := newTestCache(t, nil, fakeShows{{ID: 1, Name: "Foo"}})
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := rebuildRequest(NewHandlers(ctx, &wg, c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	wg.Wait()
	assert.Equal(t, 0, c.Len())
}

func TestCache_RebuildAllStopsWhenCancelled(t *testing.T) {
	shows := fakeShows{{ID: 1, Name: "Foo"}, {ID: 2, Name: "Bar"}}
	exceptions := &fakeExceptions{}
	c, _ := newTestCache(t, exceptions, shows)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.RebuildAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, exceptions.refreshes)
}
