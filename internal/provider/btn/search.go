package btn

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/sceneward/sceneward/internal/scenename"
)

// Mode is the kind of search being made.
type Mode string

const (
	ModeRSS     Mode = "RSS"
	ModeSeason  Mode = "Season"
	ModeEpisode Mode = "Episode"
)

// SearchRequest describes one search. ShowID, Season and Episode are
// ignored in RSS mode.
type SearchRequest struct {
	Mode    Mode
	ShowID  int64
	Season  int
	Episode int
}

// Result is one parsed search result.
type Result struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Size     int64  `json:"size"`
	Seeders  int    `json:"seeders"`
	Leechers int    `json:"leechers"`
	Series   string `json:"series,omitempty"`
	// ShowID is the show the series name resolved to; Resolved is false
	// when the name cache has no entry for it.
	ShowID   int64 `json:"showId"`
	Resolved bool  `json:"resolved"`
}

// Search queries the API and returns parsed results. Failed calls are
// logged and skipped so one bad query does not lose the others.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	if c.cfg.APIKey == "" {
		c.logger.Warn().Msg("Missing/Invalid API key. Check your settings")
		return nil, ErrMissingAPIKey
	}

	c.logger.Debug().Str("mode", string(req.Mode)).Msg("Search mode")

	var searches []map[string]any
	if req.Mode == ModeRSS {
		searches = []map[string]any{{"age": rssMaxAge}}
	} else {
		var err error
		searches, err = c.searchParams(ctx, req, false)
		if err != nil {
			return nil, err
		}
	}

	var results []Result
	for _, params := range searches {
		if req.Mode != ModeRSS {
			c.logger.Debug().Interface("params", params).Msg("Search string")
		}

		resp, err := c.getTorrents(ctx, params, 0)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			c.logCallError(err)
			continue
		}
		if resp.Results == 0 || len(resp.Torrents) == 0 {
			c.logger.Debug().Msg("No data returned from provider")
			continue
		}

		results = append(results, c.parse(ctx, resp.Torrents, req)...)
	}
	return results, nil
}

func (c *Client) logCallError(err error) {
	var rpcErr *RPCError
	switch {
	case errors.As(err, &rpcErr) && rpcErr.Code == CodeAuthentication:
		c.logger.Warn().Msg("Incorrect authentication credentials")
	case errors.As(err, &rpcErr) && rpcErr.Code == CodeRateLimit:
		c.logger.Warn().Msg("You have exceeded the limit of 150 calls per hour")
	case errors.As(err, &rpcErr) && rpcErr.Unavailable():
		c.logger.Warn().Int("code", rpcErr.Code).Str("message", rpcErr.Message).Msg("Provider is currently unavailable")
	case errors.As(err, &rpcErr):
		c.logger.Error().Err(err).Msg("JSON-RPC protocol error while accessing provider")
	default:
		c.logger.Warn().Err(err).Msg("Error while accessing provider")
	}
}

// parse turns torrents into results, in a stable order, and resolves each
// series name through the name cache.
func (c *Client) parse(ctx context.Context, torrents map[string]Torrent, req SearchRequest) []Result {
	ids := make([]string, 0, len(torrents))
	for id := range torrents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []Result
	for _, id := range ids {
		row := torrents[id]

		title, link := processTitleAndURL(row)
		if title == "" || link == "" {
			c.logger.Debug().Str("title", title).Msg("Download URL is missing from response for release")
			continue
		}

		result := Result{
			Title:    title,
			Link:     link,
			Size:     int64(row.Size),
			Seeders:  int(max(row.Seeders, 0)),
			Leechers: int(max(row.Leechers, 0)),
			Series:   row.Series,
		}
		c.resolve(ctx, &result, req)

		c.logger.Debug().Str("title", title).Msg("Found result")
		results = append(results, result)
	}
	return results
}

// resolve maps the result's series name to a show. A miss during a
// show-scoped search teaches the cache the new alias.
func (c *Client) resolve(ctx context.Context, result *Result, req SearchRequest) {
	if result.Series == "" || c.names == nil {
		return
	}

	if id, ok := c.names.Get(result.Series); ok {
		result.ShowID, result.Resolved = id, true
		return
	}

	if req.Mode != ModeRSS && req.ShowID != 0 {
		c.names.Put(ctx, result.Series, req.ShowID)
		result.ShowID, result.Resolved = req.ShowID, true
		c.logger.Debug().Str("series", result.Series).Int64("showId", req.ShowID).Msg("Cached new series alias")
		return
	}

	if key, id, ok := c.names.Closest(result.Series); ok {
		c.logger.Debug().
			Str("series", result.Series).
			Str("closest", key).
			Int64("closestShowId", id).
			Msg("Series not in name cache")
	}
}

// processTitleAndURL returns the release name, or a dotted title built from
// the release attributes, and the download URL.
func processTitleAndURL(row Torrent) (string, string) {
	title := row.ReleaseName
	if title == "" {
		var parts []string
		for _, p := range []string{row.Series, row.GroupName, row.Resolution, row.Source, row.Codec} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		title = strings.ReplaceAll(strings.Join(parts, "."), " ", ".")
	}

	return title, strings.ReplaceAll(row.DownloadURL, `\/`, "/")
}

// searchParams builds the parameter sets for a season or episode search:
// one for the show's own name and one per scene exception. Air-by-date
// shows also get the season-numbered variants.
func (c *Client) searchParams(ctx context.Context, req SearchRequest, seasonNumbering bool) ([]map[string]any, error) {
	show, err := c.library.FindShow(ctx, req.ShowID)
	if err != nil {
		return nil, fmt.Errorf("btn search: %w", err)
	}
	ep, err := c.library.GetEpisode(ctx, req.ShowID, req.Season, req.Episode)
	if err != nil {
		return nil, fmt.Errorf("btn search: %w", err)
	}

	var name string
	switch {
	case !seasonNumbering && show.AirByDate && req.Mode == ModeSeason:
		name = ep.AirDate.Format("2006")
	case !seasonNumbering && show.AirByDate:
		name = ep.AirDate.Format("2006.01.02")
	case req.Mode == ModeSeason && req.Season != 0:
		name = fmt.Sprintf("Season %d", ep.Season)
	case req.Mode == ModeSeason:
		name = "Season " + episodeNum(ep.Season, ep.Episode)
	default:
		name = episodeNum(ep.Season, ep.Episode)
	}

	params := map[string]any{
		"category": string(req.Mode),
		"name":     name,
		"tvdb":     show.ID,
		"series":   show.Name,
	}
	searches := []map[string]any{params}

	exceptions, err := c.exceptions.All(ctx, req.ShowID)
	if err != nil {
		c.logger.Warn().Err(err).Int64("showId", req.ShowID).Msg("Failed to load scene exceptions")
	}
	for _, e := range exceptions {
		seriesParams := maps.Clone(params)
		seriesParams["series"] = scenename.Sanitize(e.Name)
		searches = append(searches, seriesParams)
	}

	if show.AirByDate && !seasonNumbering {
		more, err := c.searchParams(ctx, req, true)
		if err != nil {
			return nil, err
		}
		searches = append(searches, more...)
	}
	return searches, nil
}

func episodeNum(season, episode int) string {
	return fmt.Sprintf("S%02dE%02d", season, episode)
}
