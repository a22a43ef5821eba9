package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/library/quality"
)

const entryColumns = `h.id, h.show_id, COALESCE(s.name, ''), h.season, h.episode, h.action, h.quality,
	h.provider, h.resource, h.release_group, h.date`

// Service provides history management functionality.
type Service struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *sql.DB, clock clockwork.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		db:     db,
		clock:  clock,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Log appends an entry. A zero Date is replaced with the current time.
func (s *Service) Log(ctx context.Context, entry *Entry) (*Entry, error) {
	if entry.Date.IsZero() {
		entry.Date = s.clock.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO history (show_id, season, episode, action, quality, provider, resource, release_group, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ShowID, entry.Season, entry.Episode, entry.Action, entry.Quality,
		entry.Provider, entry.Resource, entry.ReleaseGroup, entry.Date.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to log history: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	entry.ID = id
	return entry, nil
}

// Snatched returns snatch records dated at or after since, oldest first.
func (s *Service) Snatched(ctx context.Context, since time.Time) ([]*Entry, error) {
	return s.query(ctx, `
		SELECT `+entryColumns+`
		FROM history h LEFT JOIN shows s ON s.indexer_id = h.show_id
		WHERE h.date >= ? AND (h.action % 100) IN (`+placeholders(len(quality.SnatchedStatuses))+`)
		ORDER BY h.date, h.id`,
		append([]any{since.Unix()}, statusArgs(quality.SnatchedStatuses)...)...)
}

// DownloadedKeys returns every episode with at least one download record.
func (s *Service) DownloadedKeys(ctx context.Context) (map[EpisodeKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT show_id, season, episode FROM history WHERE (action % 100) = ?`,
		int(quality.StatusDownloaded))
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	keys := make(map[EpisodeKey]struct{})
	for rows.Next() {
		var key EpisodeKey
		if err := rows.Scan(&key.ShowID, &key.Season, &key.Episode); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// LastSnatch returns the most recent snatch record for an episode, or nil.
func (s *Service) LastSnatch(ctx context.Context, key EpisodeKey) (*Entry, error) {
	entries, err := s.query(ctx, `
		SELECT `+entryColumns+`
		FROM history h LEFT JOIN shows s ON s.indexer_id = h.show_id
		WHERE h.show_id = ? AND h.season = ? AND h.episode = ?
			AND (h.action % 100) IN (`+placeholders(len(quality.SnatchedStatuses))+`)
		ORDER BY h.date DESC, h.id DESC LIMIT 1`,
		append([]any{key.ShowID, key.Season, key.Episode}, statusArgs(quality.SnatchedStatuses)...)...)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// List returns the newest entries. A non-positive limit returns everything.
func (s *Service) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `
		SELECT `+entryColumns+`
		FROM history h LEFT JOIN shows s ON s.indexer_id = h.show_id
		ORDER BY h.date DESC, h.id DESC LIMIT ?`, limit)
}

// Compact groups the newest entries by episode and quality. Groups keep
// the order in which they first appear; actions are newest first.
func (s *Service) Compact(ctx context.Context, limit int) ([]*CompactEntry, error) {
	entries, err := s.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		key     EpisodeKey
		quality int
	}

	groups := make(map[groupKey]*CompactEntry)
	var compact []*CompactEntry
	for _, e := range entries {
		k := groupKey{key: e.Key(), quality: e.Quality}
		group, ok := groups[k]
		if !ok {
			group = &CompactEntry{
				ShowID:   e.ShowID,
				ShowName: e.ShowName,
				Season:   e.Season,
				Episode:  e.Episode,
				Quality:  e.Quality,
				Resource: e.Resource,
			}
			groups[k] = group
			compact = append(compact, group)
		}
		group.Actions = append(group.Actions, Action{
			Action:       e.Action,
			Provider:     e.Provider,
			ReleaseGroup: e.ReleaseGroup,
			Resource:     e.Resource,
			Time:         e.Date,
		})
	}

	for _, group := range compact {
		sort.SliceStable(group.Actions, func(i, j int) bool {
			return group.Actions[i].Time.After(group.Actions[j].Time)
		})
	}
	return compact, nil
}

// Trim deletes history entries older than RetentionDays.
func (s *Service) Trim(ctx context.Context) error {
	cutoff := s.clock.Now().AddDate(0, 0, -RetentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE date < ?`, cutoff.Unix())
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info().Int64("deleted", n).Int("retentionDays", RetentionDays).Msg("Trimmed history")
	}
	return nil
}

// Clear deletes all history entries.
func (s *Service) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// LogFailed records a release that is being retried.
func (s *Service) LogFailed(ctx context.Context, entry *FailedEntry) error {
	if entry.Date.IsZero() {
		entry.Date = s.clock.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_history (show_id, season, episode, release, size, provider, date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ShowID, entry.Season, entry.Episode, entry.Release, entry.Size, entry.Provider, entry.Date.Unix())
	if err != nil {
		return fmt.Errorf("failed to log failed release: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// ListFailed returns failed history for an episode, newest first.
func (s *Service) ListFailed(ctx context.Context, key EpisodeKey) ([]*FailedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, show_id, season, episode, release, size, provider, date
		FROM failed_history WHERE show_id = ? AND season = ? AND episode = ?
		ORDER BY date DESC, id DESC`,
		key.ShowID, key.Season, key.Episode)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed history: %w", err)
	}
	defer rows.Close()

	var entries []*FailedEntry
	for rows.Next() {
		var (
			e    FailedEntry
			date int64
		)
		if err := rows.Scan(&e.ID, &e.ShowID, &e.Season, &e.Episode, &e.Release, &e.Size, &e.Provider, &date); err != nil {
			return nil, err
		}
		e.Date = time.Unix(date, 0)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// TrimFailed deletes failed history older than RetentionDays.
func (s *Service) TrimFailed(ctx context.Context) error {
	cutoff := s.clock.Now().AddDate(0, 0, -RetentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM failed_history WHERE date < ?`, cutoff.Unix())
	if err != nil {
		return fmt.Errorf("failed to trim failed history: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug().Int64("deleted", n).Msg("Trimmed failed history")
	}
	return nil
}

func (s *Service) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e    Entry
			date int64
		)
		err := rows.Scan(&e.ID, &e.ShowID, &e.ShowName, &e.Season, &e.Episode, &e.Action, &e.Quality,
			&e.Provider, &e.Resource, &e.ReleaseGroup, &date)
		if err != nil {
			return nil, err
		}
		e.Date = time.Unix(date, 0)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return entries, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func statusArgs(statuses []quality.Status) []any {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = int(st)
	}
	return args
}
