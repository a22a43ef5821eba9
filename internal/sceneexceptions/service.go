// Package sceneexceptions keeps the list of alternate release names
// ("scene exceptions") for shows, fetched from a remote list and stored in
// the cache database.
package sceneexceptions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ErrRefresh is returned when the remote exception list cannot be fetched.
var ErrRefresh = errors.New("scene exception refresh failed")

const (
	lastUpdateKey = "scene_exceptions"

	// How long RefreshAll waits after a failed fetch before trying again.
	DefaultRetryBackoff = 15 * time.Minute
)

// Exception is one alternate name. Season -1 applies to the whole show.
type Exception struct {
	ShowID int64  `json:"showId"`
	Name   string `json:"name"`
	Season int    `json:"season"`
	Custom bool   `json:"custom"`
}

// Config holds the settings the service needs.
type Config struct {
	URL             string
	RefreshInterval time.Duration
	Timeout         time.Duration
	RetryBackoff    time.Duration
}

// Service fetches and queries scene exceptions.
type Service struct {
	db     *sql.DB
	cfg    Config
	client *http.Client
	clock  clockwork.Clock
	logger zerolog.Logger

	refreshMu sync.Mutex
	failedAt  time.Time
}

// NewService creates a new scene exception service on the cache database.
func NewService(db *sql.DB, cfg Config, clock clockwork.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Service{
		db:     db,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		clock:  clock,
		logger: logger.With().Str("component", "sceneexceptions").Logger(),
	}
}

// RefreshAll downloads the exception list and replaces the stored
// non-custom exceptions for every show it names. It does nothing when no
// URL is configured, the last refresh is within the refresh interval, or
// the last fetch failed less than the retry backoff ago.
func (s *Service) RefreshAll(ctx context.Context) error {
	return s.refresh(ctx, true)
}

// RefreshNow is RefreshAll without the retry backoff. Startup retries use it.
func (s *Service) RefreshNow(ctx context.Context) error {
	return s.refresh(ctx, false)
}

func (s *Service) refresh(ctx context.Context, backoff bool) error {
	if s.cfg.URL == "" {
		return nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	now := s.clock.Now()
	if backoff && !s.failedAt.IsZero() && now.Sub(s.failedAt) < s.cfg.RetryBackoff {
		s.logger.Debug().Time("failedAt", s.failedAt).Msg("Scene exception fetch failed recently, skipping refresh")
		return nil
	}

	last, err := s.lastRefresh(ctx)
	if err != nil {
		return err
	}
	if !last.IsZero() && now.Sub(last) < s.cfg.RefreshInterval {
		return nil
	}

	s.logger.Debug().Str("url", s.cfg.URL).Msg("Refreshing scene exceptions")

	byShow, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.failedAt = now
		}
		return fmt.Errorf("%w: %w", ErrRefresh, err)
	}
	s.failedAt = time.Time{}

	if err := s.replace(ctx, byShow); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO last_update (provider, time) VALUES (?, ?)
		 ON CONFLICT(provider) DO UPDATE SET time = excluded.time`,
		lastUpdateKey, now.Unix()); err != nil {
		return fmt.Errorf("failed to record scene exception refresh: %w", err)
	}

	s.logger.Info().Int("shows", len(byShow)).Msg("Refreshed scene exceptions")
	return nil
}

// Seasons returns the distinct seasons, other than -1, that have exceptions.
func (s *Service) Seasons(ctx context.Context, showID int64) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT season FROM scene_exceptions WHERE indexer_id = ? AND season != -1 ORDER BY season`,
		showID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exception seasons: %w", err)
	}
	defer rows.Close()

	var seasons []int
	for rows.Next() {
		var season int
		if err := rows.Scan(&season); err != nil {
			return nil, err
		}
		seasons = append(seasons, season)
	}
	return seasons, rows.Err()
}

// Exceptions returns the exception names for a show and season.
func (s *Service) Exceptions(ctx context.Context, showID int64, season int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM scene_exceptions WHERE indexer_id = ? AND season = ? ORDER BY rowid`,
		showID, season)
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// All returns every exception for a show.
func (s *Service) All(ctx context.Context, showID int64) ([]Exception, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT indexer_id, name, season, custom FROM scene_exceptions WHERE indexer_id = ? ORDER BY season, rowid`,
		showID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}
	defer rows.Close()

	var out []Exception
	for rows.Next() {
		var e Exception
		if err := rows.Scan(&e.ShowID, &e.Name, &e.Season, &e.Custom); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddCustom stores a user-defined exception. Custom exceptions survive
// refreshes.
func (s *Service) AddCustom(ctx context.Context, showID int64, name string, season int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scene_exceptions (indexer_id, name, season, custom) VALUES (?, ?, ?, 1)
		 ON CONFLICT(indexer_id, name, season) DO UPDATE SET custom = 1`,
		showID, name, season)
	if err != nil {
		return fmt.Errorf("failed to add custom exception: %w", err)
	}
	return nil
}

func (s *Service) lastRefresh(ctx context.Context) (time.Time, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT time FROM last_update WHERE provider = ?`, lastUpdateKey).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last refresh: %w", err)
	}
	return time.Unix(ts, 0), nil
}

// fetch reads a JSON object keyed by show identifier whose values are
// lists of single-entry {name: season} objects.
func (s *Service) fetch(ctx context.Context) (map[int64][]Exception, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload map[string][]map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid exception list: %w", err)
	}

	byShow := make(map[int64][]Exception, len(payload))
	for key, entries := range payload {
		showID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.logger.Debug().Str("key", key).Msg("Skipping exception entry with invalid show id")
			continue
		}
		list := make([]Exception, 0, len(entries))
		for _, entry := range entries {
			for name, season := range entry {
				list = append(list, Exception{ShowID: showID, Name: name, Season: season})
			}
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
		byShow[showID] = list
	}
	return byShow, nil
}

func (s *Service) replace(ctx context.Context, byShow map[int64][]Exception) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for showID, list := range byShow {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM scene_exceptions WHERE indexer_id = ? AND custom = 0`, showID); err != nil {
			return fmt.Errorf("failed to replace exceptions: %w", err)
		}
		for _, e := range list {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO scene_exceptions (indexer_id, name, season, custom) VALUES (?, ?, ?, 0)`,
				e.ShowID, e.Name, e.Season); err != nil {
				return fmt.Errorf("failed to store exception: %w", err)
			}
		}
	}

	return tx.Commit()
}
