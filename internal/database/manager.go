package database

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Manager owns the main and cache databases. Shows, episodes and history
// live in the main database; rebuildable data such as scene names and
// scene exceptions live in the cache database so it can be wiped safely.
type Manager struct {
	mainDB  *DB
	cacheDB *DB
	logger  zerolog.Logger
	mu      sync.Mutex
	closed  bool
}

// NewManager opens both databases.
func NewManager(mainPath, cachePath string, logger zerolog.Logger) (*Manager, error) {
	mainDB, err := New(mainPath, SchemaMain)
	if err != nil {
		return nil, err
	}

	cacheDB, err := New(cachePath, SchemaCache)
	if err != nil {
		mainDB.Close()
		return nil, err
	}

	return &Manager{
		mainDB:  mainDB,
		cacheDB: cacheDB,
		logger:  logger.With().Str("component", "database").Logger(),
	}, nil
}

// Main returns the main database connection.
func (m *Manager) Main() *sql.DB {
	return m.mainDB.Conn()
}

// Cache returns the cache database connection.
func (m *Manager) Cache() *sql.DB {
	return m.cacheDB.Conn()
}

// Migrate runs migrations on both databases.
func (m *Manager) Migrate() error {
	m.logger.Info().Str("path", m.mainDB.Path()).Msg("migrating main database")
	if err := m.mainDB.Migrate(); err != nil {
		return err
	}

	m.logger.Info().Str("path", m.cacheDB.Path()).Msg("migrating cache database")
	return m.cacheDB.Migrate()
}

// Close closes both database connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	return errors.Join(m.mainDB.Close(), m.cacheDB.Close())
}
