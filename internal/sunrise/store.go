package sunrise

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/nvram"
)

// Store reads and writes the config in the first CellCount cells of a byte
// store and caches the active value in memory.
type Store struct {
	cells nvram.Store
	bus   eventbus.Publisher

	mu      sync.RWMutex
	current Config
}

// NewStore creates a store over cells. Until Load is called the cached
// value is Default.
func NewStore(cells nvram.Store, bus eventbus.Publisher) *Store {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Store{
		cells:   cells,
		bus:     bus,
		current: Default,
	}
}

// Load reads the persisted tuple. Unreadable, never-written or out-of-range
// cells replace the whole tuple with Default; nothing is repaired field by field.
func (s *Store) Load() Config {
	cfg, err := s.read()
	if err == nil {
		err = cfg.Validate()
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("fallback", Default.String()).
			Msg("Persisted sunrise config unusable, using defaults")
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeConfigFallback,
			Fields: map[string]any{
				"reason": err.Error(),
			},
		})
		cfg = Default
	} else {
		log.Info().Str("config", cfg.String()).Msg("Loaded sunrise config")
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	return cfg
}

func (s *Store) read() (Config, error) {
	var cells [CellCount]byte
	for i := range cells {
		b, err := s.cells.ReadCell(i)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read cell %d: %w", i, err)
		}
		cells[i] = b
	}
	return Decode(cells), nil
}

// Save persists cfg and then updates the cached value. Invalid configs are
// rejected without touching storage.
//
// When the byte store supports batch writes the five cells change together;
// otherwise they are written in order and a failure part-way leaves a mix
// of old and new cells on storage, while the cache keeps the old value.
func (s *Store) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	cells := Encode(cfg)
	if bw, ok := s.cells.(nvram.BatchWriter); ok {
		if err := bw.WriteCells(0, cells[:]); err != nil {
			return fmt.Errorf("failed to persist sunrise config: %w", err)
		}
	} else {
		for i, b := range cells {
			if err := s.cells.WriteCell(i, b); err != nil {
				return fmt.Errorf("failed to persist sunrise config cell %d: %w", i, err)
			}
		}
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	log.Info().Str("config", cfg.String()).Msg("Saved sunrise config")
	s.bus.Publish(eventbus.Event{
		Type:   eventbus.EventTypeConfigApplied,
		Fields: Fields(cfg),
	})
	return nil
}

// Current returns the cached config without touching storage.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Fields flattens a config for event payloads.
func Fields(c Config) map[string]any {
	return map[string]any{
		"hour":                  c.Hour,
		"minute":                c.Minute,
		"duration_minutes":      c.DurationMinutes,
		"keep_light_on_minutes": c.KeepLightOnMinutes,
		"utc_offset":            c.UTCOffset,
	}
}
