package history

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const defaultListLimit = 100

// Handlers provides HTTP handlers for history operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new history handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers history routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/trim", h.Trim)
	g.DELETE("", h.Clear)
}

// List returns history entries, compacted unless ?compact=false.
// GET /api/v1/history
func (h *Handlers) List(c echo.Context) error {
	limit := defaultListLimit
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	ctx := c.Request().Context()
	if c.QueryParam("compact") == "false" {
		entries, err := h.service.List(ctx, limit)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, entries)
	}

	compact, err := h.service.Compact(ctx, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, compact)
}

// Trim removes entries older than the retention period.
// POST /api/v1/history/trim
func (h *Handlers) Trim(c echo.Context) error {
	if err := h.service.Trim(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// Clear deletes all history entries.
// DELETE /api/v1/history
func (h *Handlers) Clear(c echo.Context) error {
	if err := h.service.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
