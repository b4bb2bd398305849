// Package db provides the shared SQLite connection and schema for sunrised.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Non-volatile cells - one row per addressable byte, absent row = never written
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS nv_cells (
			idx INTEGER PRIMARY KEY,
			value INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create nv_cells table: %w", err)
	}

	// Soft RTC state - single row holding the offset from the host wall clock
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS clock_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			offset_ns INTEGER NOT NULL,
			seeded_from TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create clock_state table: %w", err)
	}

	// Fired occurrences - minute keys of started sessions, first writer wins
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fired_occurrences (
			occurrence TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			fired_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create fired_occurrences table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
