// ABOUTME: Database connection management and initialization
// ABOUTME: Handles opening SQLite database with WAL mode and running migrations
package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrVersionConflict is returned when an optimistic sync-cursor update loses a race.
var ErrVersionConflict = errors.New("sync version conflict")

// OpenDatabase opens the database at path and applies pending migrations.
func OpenDatabase(path string) (*sql.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Open opens the database at path without touching the schema.
func Open(path string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Open database with WAL mode
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Configure connection pool for SQLite (avoid database locked errors)
	db.SetMaxOpenConns(1)

	return db, nil
}
