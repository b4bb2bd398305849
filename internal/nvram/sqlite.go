package nvram

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore is a persistent cell array backed by the nv_cells table.
type SQLiteStore struct {
	db   *sql.DB
	size int
}

// NewSQLiteStore creates a SQLite-backed store with size cells.
func NewSQLiteStore(db *sql.DB, size int) *SQLiteStore {
	if size <= 0 {
		size = DefaultSize
	}
	return &SQLiteStore{db: db, size: size}
}

// Size returns the number of cells.
func (s *SQLiteStore) Size() int {
	return s.size
}

// ReadCell returns the value of cell idx, or Erased if no row exists.
func (s *SQLiteStore) ReadCell(idx int) (byte, error) {
	if err := checkRange(s.size, idx, 1); err != nil {
		return 0, err
	}

	var value int
	err := s.db.QueryRow(`SELECT value FROM nv_cells WHERE idx = ?`, idx).Scan(&value)
	if err == sql.ErrNoRows {
		return Erased, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cell %d: %w", idx, err)
	}

	return byte(value), nil
}

// WriteCell stores b in cell idx.
func (s *SQLiteStore) WriteCell(idx int, b byte) error {
	if err := checkRange(s.size, idx, 1); err != nil {
		return err
	}
	if err := upsertCell(s.db, idx, b); err != nil {
		return fmt.Errorf("failed to write cell %d: %w", idx, err)
	}
	return nil
}

// WriteCells stores data in cells [start, start+len(data)) in one transaction.
func (s *SQLiteStore) WriteCells(start int, data []byte) error {
	if err := checkRange(s.size, start, len(data)); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cell batch: %w", err)
	}

	for i, b := range data {
		if err := upsertCell(tx, start+i, b); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to write cell %d: %w", start+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cell batch: %w", err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertCell(e execer, idx int, b byte) error {
	_, err := e.Exec(`
		INSERT INTO nv_cells (idx, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(idx) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, idx, int(b), time.Now().UTC().Unix())
	return err
}
