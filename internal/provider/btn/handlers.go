package btn

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sceneward/sceneward/internal/library/tv"
)

// Handlers exposes manual searches for diagnosing name resolution.
type Handlers struct {
	client *Client
}

func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// RegisterRoutes registers BTN routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/search", h.Search)
}

type searchQuery struct {
	Mode    string `query:"mode"`
	ShowID  int64  `query:"showId"`
	Season  int    `query:"season"`
	Episode int    `query:"episode"`
}

// Search runs one search and returns the parsed results.
// GET /api/v1/btn/search?mode=Episode&showId=100&season=1&episode=2
func (h *Handlers) Search(c echo.Context) error {
	var q searchQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	req := SearchRequest{Mode: Mode(q.Mode), ShowID: q.ShowID, Season: q.Season, Episode: q.Episode}
	switch req.Mode {
	case "":
		req.Mode = ModeRSS
	case ModeRSS:
	case ModeSeason, ModeEpisode:
		if req.ShowID <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "showId is required")
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be RSS, Season or Episode")
	}

	results, err := h.client.Search(c.Request().Context(), req)
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, tv.ErrShowNotFound), errors.Is(err, tv.ErrEpisodeNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if results == nil {
		results = []Result{}
	}
	return c.JSON(http.StatusOK, results)
}
