// Package api serves the admin HTTP surface: manual triggers, name cache
// lookups, history, task state and metrics.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/api/handlers"
	apimw "github.com/sceneward/sceneward/internal/api/middleware"
	"github.com/sceneward/sceneward/internal/api/ratelimit"
	"github.com/sceneward/sceneward/internal/config"
	"github.com/sceneward/sceneward/internal/failedsnatch"
	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/metrics"
	"github.com/sceneward/sceneward/internal/namecache"
	"github.com/sceneward/sceneward/internal/provider/btn"
	"github.com/sceneward/sceneward/internal/scheduler"
)

// Deps are the services the server exposes. BTN may be nil.
type Deps struct {
	Reconciler *failedsnatch.Reconciler
	NameCache  *namecache.Cache
	History    *history.Service
	Scheduler  *scheduler.Scheduler
	Metrics    *metrics.Service
	BTN        *btn.Client
	Limiter    *ratelimit.TriggerLimiter
}

// Server handles HTTP requests for the admin API.
type Server struct {
	echo      *echo.Echo
	logger    zerolog.Logger
	deps      Deps
	startTime time.Time

	// Lifetime of work started by trigger endpoints.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewTriggerLimiter(nil)
	}

	s := &Server{
		echo:      e,
		logger:    logger.With().Str("component", "api").Logger(),
		deps:      deps,
		startTime: time.Now(),
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		Skipper: func(c echo.Context) bool {
			// scraped every few seconds
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	api := s.echo.Group("/api/v1", s.deps.Limiter.Middleware())
	api.GET("/status", s.getStatus)

	if s.deps.Reconciler != nil {
		failedsnatch.NewHandlers(s.bgCtx, &s.bg, s.deps.Reconciler).RegisterRoutes(api.Group("/failedsnatch"))
	}
	if s.deps.NameCache != nil {
		namecache.NewHandlers(s.bgCtx, &s.bg, s.deps.NameCache).RegisterRoutes(api.Group("/namecache"))
	}
	if s.deps.History != nil {
		history.NewHandlers(s.deps.History).RegisterRoutes(api.Group("/history"))
	}
	if s.deps.Scheduler != nil {
		handlers.NewSchedulerHandler(s.deps.Scheduler).RegisterRoutes(api.Group("/tasks"))
	}
	if s.deps.BTN != nil {
		btn.NewHandlers(s.deps.BTN).RegisterRoutes(api.Group("/btn"))
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server, then cancels triggered background
// work and waits for it to return or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	err := s.echo.Shutdown(ctx)
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("background work still running at shutdown")
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Version      string               `json:"version"`
	StartTime    string               `json:"startTime"`
	NameCache    int                  `json:"nameCacheSize"`
	FailedSnatch *failedsnatch.Status `json:"failedSnatch,omitempty"`
}

func (s *Server) getStatus(c echo.Context) error {
	resp := statusResponse{
		Version:   config.Version,
		StartTime: s.startTime.Format(time.RFC3339),
	}
	if s.deps.NameCache != nil {
		resp.NameCache = s.deps.NameCache.Len()
	}
	if s.deps.Reconciler != nil {
		st := s.deps.Reconciler.LastStatus()
		resp.FailedSnatch = &st
	}
	return c.JSON(http.StatusOK, resp)
}
