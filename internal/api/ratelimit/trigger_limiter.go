// Package ratelimit throttles manual triggers on the admin API.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

const (
	DefaultTriggersPerMinute = 10
	DefaultWindow            = time.Minute
)

type ipBucket struct {
	count     int64
	resetTime time.Time
}

// TriggerLimiter allows a fixed number of state-changing requests per client
// IP within a window. Safe methods pass through untouched.
type TriggerLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	clock   clockwork.Clock

	limit  int64
	window time.Duration
}

func NewTriggerLimiter(clock clockwork.Clock) *TriggerLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TriggerLimiter{
		buckets: make(map[string]*ipBucket),
		clock:   clock,
		limit:   DefaultTriggersPerMinute,
		window:  DefaultWindow,
	}
}

// WithLimit overrides the per-window request count.
func (l *TriggerLimiter) WithLimit(limit int64, window time.Duration) *TriggerLimiter {
	l.limit = limit
	l.window = window
	return l
}

func (l *TriggerLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			if !l.allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
			}

			return next(c)
		}
	}
}

func (l *TriggerLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	bucket, exists := l.buckets[ip]
	if !exists || now.After(bucket.resetTime) {
		l.buckets[ip] = &ipBucket{
			count:     1,
			resetTime: now.Add(l.window),
		}
		return true
	}

	if bucket.count >= l.limit {
		return false
	}

	bucket.count++
	return true
}

// Cleanup drops expired buckets.
func (l *TriggerLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for ip, bucket := range l.buckets {
		if now.After(bucket.resetTime) {
			delete(l.buckets, ip)
		}
	}
}

// StartCleanup runs Cleanup every interval until stop is closed.
func (l *TriggerLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := l.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				l.Cleanup()
			}
		}
	}()
}
