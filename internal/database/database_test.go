package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableNames(t *testing.T, m *Manager, main bool) []string {
	t.Helper()
	conn := m.Cache()
	if main {
		conn = m.Main()
	}

	rows, err := conn.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestManager_MigrateSplitsSchemas(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "main.db"), filepath.Join(dir, "cache", "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Migrate())

	mainTables := tableNames(t, m, true)
	assert.Contains(t, mainTables, "history")
	assert.Contains(t, mainTables, "failed_history")
	assert.Contains(t, mainTables, "shows")
	assert.NotContains(t, mainTables, "scene_names")

	cacheTables := tableNames(t, m, false)
	assert.Contains(t, cacheTables, "scene_names")
	assert.Contains(t, cacheTables, "scene_exceptions")
	assert.NotContains(t, cacheTables, "history")
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "main.db"), filepath.Join(dir, "cache.db"), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestDB_MigrateDown(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "cache.db"), SchemaCache)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	require.NoError(t, db.MigrateDown())

	var n int
	err = db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'scene_names'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}
