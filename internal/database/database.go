package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/main/*.sql migrations/cache/*.sql
var embedMigrations embed.FS

// Schema selects which embedded migration set applies to a database file.
type Schema string

const (
	// SchemaMain holds shows, episodes and history.
	SchemaMain Schema = "main"
	// SchemaCache holds scene names and scene exceptions.
	SchemaCache Schema = "cache"
)

func (s Schema) dir() string {
	return "migrations/" + string(s)
}

// DB wraps the database connection and provides query methods.
type DB struct {
	conn   *sql.DB
	path   string
	schema Schema
}

// New creates a new database connection with SQLite.
func New(path string, schema Schema) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		conn:   conn,
		path:   path,
		schema: schema,
	}, nil
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the file backing this database.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Migrate runs all pending migrations for the database's schema.
func (db *DB) Migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db.conn, db.schema.dir()); err != nil {
		return fmt.Errorf("failed to run %s migrations: %w", db.schema, err)
	}

	return nil
}

// MigrateDown rolls back the last migration.
func (db *DB) MigrateDown() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Down(db.conn, db.schema.dir()); err != nil {
		return fmt.Errorf("failed to rollback %s migration: %w", db.schema, err)
	}

	return nil
}
