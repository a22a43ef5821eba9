package failedsnatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/history"
	"github.com/sceneward/sceneward/internal/library/quality"
	"github.com/sceneward/sceneward/internal/library/tv"
	"github.com/sceneward/sceneward/internal/searchqueue"
)

// RetryHistory records retried releases.
type RetryHistory interface {
	LastSnatch(ctx context.Context, key history.EpisodeKey) (*history.Entry, error)
	LogFailed(ctx context.Context, entry *history.FailedEntry) error
}

// EpisodeUpdater changes episode state.
type EpisodeUpdater interface {
	GetEpisode(ctx context.Context, showID int64, season, episode int) (*tv.Episode, error)
	SetEpisodeStatus(ctx context.Context, showID int64, season, episode int, status quality.Status, q quality.Quality) error
}

// RetryHandler consumes retry items: it records the abandoned release in
// failed history and marks the episode wanted again so the next search
// picks it up.
type RetryHandler struct {
	history  RetryHistory
	episodes EpisodeUpdater
	logger   zerolog.Logger
}

func NewRetryHandler(h RetryHistory, episodes EpisodeUpdater, logger zerolog.Logger) *RetryHandler {
	return &RetryHandler{
		history:  h,
		episodes: episodes,
		logger:   logger.With().Str("component", "failedsnatch").Logger(),
	}
}

// Handle processes one retry item. Episodes whose state forbids the change
// are skipped without error.
func (h *RetryHandler) Handle(ctx context.Context, item searchqueue.RetryItem) error {
	key := history.EpisodeKey{ShowID: item.ShowID, Season: item.Season, Episode: item.Episode}

	ep, err := h.episodes.GetEpisode(ctx, item.ShowID, item.Season, item.Episode)
	if err != nil {
		return fmt.Errorf("retry %s: %w", item, err)
	}

	last, err := h.history.LastSnatch(ctx, key)
	if err != nil {
		return fmt.Errorf("retry %s: %w", item, err)
	}
	if last != nil {
		err := h.history.LogFailed(ctx, &history.FailedEntry{
			ShowID:   item.ShowID,
			Season:   item.Season,
			Episode:  item.Episode,
			Release:  last.Resource,
			Size:     -1,
			Provider: last.Provider,
		})
		if err != nil {
			h.logger.Warn().Err(err).Stringer("item", item).Msg("Failed to record failed release")
		}
	}

	_, q := ep.SplitStatus()
	err = h.episodes.SetEpisodeStatus(ctx, item.ShowID, item.Season, item.Episode, quality.StatusWanted, q)
	if errors.Is(err, tv.ErrInvalidTransition) {
		h.logger.Warn().Err(err).Stringer("item", item).Msg("Skipping retry")
		return nil
	}
	if err != nil {
		return fmt.Errorf("retry %s: %w", item, err)
	}

	h.logger.Info().
		Stringer("item", item).
		Bool("forced", item.Forced).
		Msg("Episode marked wanted for retry search")
	return nil
}
