package btn

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveSearch(t *testing.T, c *Client, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	NewHandlers(c).RegisterRoutes(e.Group("/api/v1/btn"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlers_Search(t *testing.T) {
	srv := &rpcServer{respond: func(rpcRequest) string { return torrentsResponse }}
	c := newTestClient(t, srv, fooLibrary(false), fakeExceptions{}, &fakeNames{names: map[string]int64{"foo": 100}})

	rec := serveSearch(t, c, "/api/v1/btn/search?mode=Episode&showId=100&season=1&episode=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var results []Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "Foo.S01E02.720p.HDTV.x264-GRP", results[0].Title)
}

func TestHandlers_SearchErrors(t *testing.T) {
	srv := &rpcServer{respond: func(rpcRequest) string { return torrentsResponse }}
	c := newTestClient(t, srv, fooLibrary(false), fakeExceptions{}, &fakeNames{names: map[string]int64{}})

	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/btn/search?mode=Bogus", http.StatusBadRequest},
		{"/api/v1/btn/search?mode=Season&season=1", http.StatusBadRequest},
		{"/api/v1/btn/search?mode=Season&showId=999&season=1", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := serveSearch(t, c, tt.target)
		assert.Equal(t, tt.want, rec.Code, tt.target)
	}

	noKey := New(Config{URL: "http://127.0.0.1:0"}, fooLibrary(false), nil, nil, nil, zerolog.Nop())
	assert.Equal(t, http.StatusServiceUnavailable, serveSearch(t, noKey, "/api/v1/btn/search").Code)
}
