// Package ledger records which sunrise occurrences have fired, so a daemon
// restarted inside the target minute does not start a second session.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Ledger keeps the most recent fired occurrence in the fired_occurrences
// table. Occurrence keys sort chronologically.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// MarkFired records key for session. It reports false when key was
// already recorded, so only the first writer starts the session. Older
// occurrences are dropped.
func (l *Ledger) MarkFired(ctx context.Context, key, sessionID string) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO fired_occurrences (occurrence, session_id, fired_at)
		VALUES (?, ?, ?)
	`, key, sessionID, l.now().UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to record occurrence %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM fired_occurrences WHERE occurrence < ?`, key); err != nil {
		return false, fmt.Errorf("failed to drop old occurrences: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit occurrence %s: %w", key, err)
	}
	return true, nil
}

// LastFired returns the newest recorded occurrence key, or "" when nothing
// has fired yet.
func (l *Ledger) LastFired(ctx context.Context) (string, error) {
	var key string
	err := l.db.QueryRowContext(ctx, `
		SELECT occurrence FROM fired_occurrences
		ORDER BY occurrence DESC
		LIMIT 1
	`).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last occurrence: %w", err)
	}
	return key, nil
}
