package clock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SoftRTC keeps time as an offset from the host clock and persists the
// offset, so corrections survive restarts. It is not running until it has
// been started or set once.
type SoftRTC struct {
	db   *sql.DB
	host func() time.Time

	mu      sync.RWMutex
	offset  time.Duration
	running bool
}

// NewSoftRTC loads the persisted offset, if any.
func NewSoftRTC(ctx context.Context, db *sql.DB) (*SoftRTC, error) {
	return newSoftRTC(ctx, db, time.Now)
}

func newSoftRTC(ctx context.Context, db *sql.DB, host func() time.Time) (*SoftRTC, error) {
	c := &SoftRTC{db: db, host: host}

	var offsetNs int64
	var seededFrom string
	err := db.QueryRowContext(ctx, `SELECT offset_ns, seeded_from FROM clock_state WHERE id = 1`).Scan(&offsetNs, &seededFrom)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		log.Info().Msg("Soft RTC has no saved time, not running")
	case err != nil:
		return nil, fmt.Errorf("failed to load clock state: %w", err)
	default:
		c.offset = time.Duration(offsetNs)
		c.running = true
		log.Info().Dur("offset", c.offset).Str("seeded_from", seededFrom).Msg("Soft RTC loaded")
	}
	return c, nil
}

// Now returns the host time shifted by the stored offset.
func (c *SoftRTC) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host().Add(c.offset).UTC()
}

// Set corrects the clock to t.
func (c *SoftRTC) Set(t time.Time) error {
	return c.store(context.Background(), t, "sync")
}

// IsRunning reports whether the clock holds a time.
func (c *SoftRTC) IsRunning(context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running, nil
}

// Start seeds a stopped clock with seed.
func (c *SoftRTC) Start(ctx context.Context, seed time.Time) error {
	return c.store(ctx, seed, "seed")
}

func (c *SoftRTC) store(ctx context.Context, t time.Time, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hostNow := c.host()
	offset := t.Sub(hostNow)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO clock_state (id, offset_ns, seeded_from, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			offset_ns = excluded.offset_ns,
			seeded_from = excluded.seeded_from,
			updated_at = excluded.updated_at
	`, offset.Nanoseconds(), source, hostNow.Unix())
	if err != nil {
		return fmt.Errorf("failed to save clock state: %w", err)
	}

	log.Info().
		Time("time", t.UTC()).
		Dur("previous_offset", c.offset).
		Dur("offset", offset).
		Str("source", source).
		Msg("Soft RTC set")
	c.offset = offset
	c.running = true
	return nil
}
