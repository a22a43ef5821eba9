package failedsnatch

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for the failed snatch search.
type Handlers struct {
	reconciler *Reconciler
	ctx        context.Context
	wg         *sync.WaitGroup
}

// NewHandlers creates the handlers. Passes started over HTTP run under ctx
// and are tracked by wg.
func NewHandlers(ctx context.Context, wg *sync.WaitGroup, r *Reconciler) *Handlers {
	return &Handlers{reconciler: r, ctx: ctx, wg: wg}
}

// RegisterRoutes registers failed snatch routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/status", h.GetStatus)
	g.POST("/run", h.Run)
}

// GetStatus returns the last pass status.
// GET /api/v1/failedsnatch/status
func (h *Handlers) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.reconciler.LastStatus())
}

// Run starts a forced pass in the background.
// POST /api/v1/failedsnatch/run
func (h *Handlers) Run(c echo.Context) error {
	if h.ctx.Err() != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
	}
	if h.reconciler.IsRunning() {
		return echo.NewHTTPError(http.StatusConflict, "failed snatch search already running")
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = h.reconciler.Run(h.ctx, true)
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"message": "Failed snatch search started"})
}
