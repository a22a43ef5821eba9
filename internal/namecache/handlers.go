package namecache

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/sceneward/sceneward/internal/scenename"
)

// LookupResponse is returned by the lookup endpoint.
type LookupResponse struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	ShowID  int64  `json:"showId"`
	Found   bool   `json:"found"`
	Closest string `json:"closest,omitempty"`
}

// Handlers provides HTTP handlers for the name cache.
type Handlers struct {
	cache *Cache
	ctx   context.Context
	wg    *sync.WaitGroup
}

// NewHandlers creates the handlers. Rebuilds started over HTTP run under ctx
// and are tracked by wg.
func NewHandlers(ctx context.Context, wg *sync.WaitGroup, cache *Cache) *Handlers {
	return &Handlers{cache: cache, ctx: ctx, wg: wg}
}

// RegisterRoutes registers name cache routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/:name", h.Lookup)
	g.POST("/rebuild", h.Rebuild)
}

// Lookup resolves a release series name.
// GET /api/v1/namecache/:name
func (h *Handlers) Lookup(c echo.Context) error {
	name := c.Param("name")
	resp := LookupResponse{Name: name, Key: scenename.FullSanitize(name)}

	resp.ShowID, resp.Found = h.cache.Get(name)
	if !resp.Found {
		resp.Closest, _, _ = h.cache.Closest(name)
	}
	return c.JSON(http.StatusOK, resp)
}

// Rebuild starts a rebuild of every show in the background.
// POST /api/v1/namecache/rebuild
func (h *Handlers) Rebuild(c echo.Context) error {
	if h.ctx.Err() != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.cache.RebuildAll(h.ctx); err != nil {
			h.cache.logger.Error().Err(err).Msg("Name cache rebuild failed")
		}
	}()
	return c.NoContent(http.StatusAccepted)
}
