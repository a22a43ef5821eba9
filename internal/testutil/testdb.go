// Package testutil provides migrated throwaway databases for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sceneward/sceneward/internal/database"
)

// TestDB holds migrated main and cache databases in a temporary directory.
type TestDB struct {
	Conn    *sql.DB // main database
	Cache   *sql.DB // cache database
	Logger  zerolog.Logger
	manager *database.Manager
}

// NewTestDB creates fresh main and cache databases with all migrations applied.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dir := t.TempDir()
	logger := zerolog.Nop()

	manager, err := database.NewManager(
		filepath.Join(dir, "main.db"),
		filepath.Join(dir, "cache.db"),
		logger,
	)
	if err != nil {
		t.Fatalf("failed to open test databases: %v", err)
	}

	if err := manager.Migrate(); err != nil {
		manager.Close()
		t.Fatalf("failed to migrate test databases: %v", err)
	}

	return &TestDB{
		Conn:    manager.Main(),
		Cache:   manager.Cache(),
		Logger:  logger,
		manager: manager,
	}
}

// Close closes both databases.
func (tdb *TestDB) Close() {
	_ = tdb.manager.Close()
}
