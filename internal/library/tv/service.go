package tv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/library/quality"
)

// Service provides access to shows and episodes in the main database.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new TV library service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "tv").Logger(),
	}
}

// AddShow inserts a show or updates its name and flags.
func (s *Service) AddShow(ctx context.Context, show Show) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shows (indexer_id, name, paused, air_by_date) VALUES (?, ?, ?, ?)
		ON CONFLICT(indexer_id) DO UPDATE SET name = excluded.name, paused = excluded.paused, air_by_date = excluded.air_by_date`,
		show.ID, show.Name, show.Paused, show.AirByDate)
	if err != nil {
		return fmt.Errorf("failed to save show %d: %w", show.ID, err)
	}
	return nil
}

// FindShow returns the show with the given indexer identifier.
func (s *Service) FindShow(ctx context.Context, id int64) (*Show, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT indexer_id, name, paused, air_by_date FROM shows WHERE indexer_id = ?`, id)

	var show Show
	if err := row.Scan(&show.ID, &show.Name, &show.Paused, &show.AirByDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, fmt.Errorf("failed to get show: %w", err)
	}
	return &show, nil
}

// ListShows returns every show ordered by name.
func (s *Service) ListShows(ctx context.Context) ([]*Show, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT indexer_id, name, paused, air_by_date FROM shows ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shows: %w", err)
	}
	defer rows.Close()

	var shows []*Show
	for rows.Next() {
		var show Show
		if err := rows.Scan(&show.ID, &show.Name, &show.Paused, &show.AirByDate); err != nil {
			return nil, fmt.Errorf("failed to scan show: %w", err)
		}
		shows = append(shows, &show)
	}
	return shows, rows.Err()
}

// SetPaused pauses or resumes a show.
func (s *Service) SetPaused(ctx context.Context, id int64, paused bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE shows SET paused = ? WHERE indexer_id = ?`, paused, id)
	if err != nil {
		return fmt.Errorf("failed to update show: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrShowNotFound
	}
	return nil
}

// AddEpisode inserts or replaces an episode.
func (s *Service) AddEpisode(ctx context.Context, ep Episode) error {
	var airDate int64
	if !ep.AirDate.IsZero() {
		airDate = ep.AirDate.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (show_id, season, episode, name, status, airdate) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(show_id, season, episode) DO UPDATE SET
			name = excluded.name, status = excluded.status, airdate = excluded.airdate`,
		ep.ShowID, ep.Season, ep.Episode, ep.Name, ep.Status, airDate)
	if err != nil {
		return fmt.Errorf("failed to save episode S%02dE%02d of show %d: %w", ep.Season, ep.Episode, ep.ShowID, err)
	}
	return nil
}

// GetEpisode returns a single episode by its numbering.
func (s *Service) GetEpisode(ctx context.Context, showID int64, season, episode int) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT show_id, season, episode, name, status, airdate
		FROM episodes WHERE show_id = ? AND season = ? AND episode = ?`,
		showID, season, episode)

	var (
		ep      Episode
		airDate int64
	)
	if err := row.Scan(&ep.ShowID, &ep.Season, &ep.Episode, &ep.Name, &ep.Status, &airDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEpisodeNotFound
		}
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	if airDate > 0 {
		ep.AirDate = time.Unix(airDate, 0)
	}
	return &ep, nil
}

// SetEpisodeStatus changes an episode's status. Unaired episodes cannot be
// moved to another status and return ErrInvalidTransition.
func (s *Service) SetEpisodeStatus(ctx context.Context, showID int64, season, episode int, status quality.Status, q quality.Quality) error {
	ep, err := s.GetEpisode(ctx, showID, season, episode)
	if err != nil {
		return err
	}

	current, _ := ep.SplitStatus()
	if current == quality.StatusUnaired && status != quality.StatusUnaired {
		return fmt.Errorf("%w: episode S%02dE%02d of show %d is unaired", ErrInvalidTransition, season, episode, showID)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE episodes SET status = ? WHERE show_id = ? AND season = ? AND episode = ?`,
		quality.Composite(status, q), showID, season, episode)
	if err != nil {
		return fmt.Errorf("failed to update episode status: %w", err)
	}

	s.logger.Debug().
		Int64("showId", showID).
		Int("season", season).
		Int("episode", episode).
		Str("from", current.String()).
		Str("to", status.String()).
		Msg("Episode status changed")

	return nil
}
