package namecache

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists cache entries. Rows are unique per (name, showID) pair.
type Store interface {
	// Insert adds the pair, or marks an existing pair as the latest write
	// for its name.
	Insert(ctx context.Context, name string, showID int64) error
	// Delete removes rows whose identifier equals showID or whose name
	// equals name. A zero showID or empty name does not match anything.
	Delete(ctx context.Context, showID int64, name string) error
	// All returns every stored pair. When a name is stored under several
	// identifiers the most recently inserted one wins.
	All(ctx context.Context) (map[string]int64, error)
}

// SQLStore keeps entries in the scene_names table of the cache database.
// Rowid order is write order: re-inserting a pair replaces its row.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Insert(ctx context.Context, name string, showID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO scene_names (name, indexer_id) VALUES (?, ?)`, name, showID)
	if err != nil {
		return fmt.Errorf("failed to insert scene name %q: %w", name, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, showID int64, name string) error {
	var err error
	switch {
	case showID != 0 && name != "":
		_, err = s.db.ExecContext(ctx, `DELETE FROM scene_names WHERE indexer_id = ? OR name = ?`, showID, name)
	case showID != 0:
		_, err = s.db.ExecContext(ctx, `DELETE FROM scene_names WHERE indexer_id = ?`, showID)
	case name != "":
		_, err = s.db.ExecContext(ctx, `DELETE FROM scene_names WHERE name = ?`, name)
	}
	if err != nil {
		return fmt.Errorf("failed to delete scene names: %w", err)
	}
	return nil
}

func (s *SQLStore) All(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, indexer_id FROM scene_names ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]int64)
	for rows.Next() {
		var (
			name string
			id   int64
		)
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		names[name] = id
	}
	return names, rows.Err()
}
