package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newLimitedEcho(l *TriggerLimiter) *echo.Echo {
	e := echo.New()
	e.Use(l.Middleware())
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/x", ok)
	e.POST("/x", ok)
	return e
}

func do(e *echo.Echo, method string) int {
	req := httptest.NewRequest(method, "/x", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestTriggerLimiter_BlocksAfterLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newLimitedEcho(NewTriggerLimiter(clock).WithLimit(2, time.Minute))

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost))
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodPost))

	// reads are never limited
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet))
}

func TestTriggerLimiter_WindowResets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newLimitedEcho(NewTriggerLimiter(clock).WithLimit(1, time.Minute))

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodPost))

	clock.Advance(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost))
}

func TestTriggerLimiter_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewTriggerLimiter(clock)
	l.allow("10.0.0.2")

	clock.Advance(2 * time.Minute)
	l.Cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.buckets)
}
