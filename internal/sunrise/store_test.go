package sunrise

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/sunrised/internal/db"
	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/nvram"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(e eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []eventbus.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []eventbus.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func writeCells(t *testing.T, s nvram.Store, cells ...byte) {
	t.Helper()
	for i, b := range cells {
		require.NoError(t, s.WriteCell(i, b))
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	// Sweep each field across its full range while holding the others valid.
	var cases []Config
	for h := MinHour; h <= MaxHour; h++ {
		cases = append(cases, Config{h, 30, 60, 30, 0})
	}
	for m := MinMinute; m <= MaxMinute; m++ {
		cases = append(cases, Config{7, m, 60, 30, 0})
	}
	for d := MinDuration; d <= MaxDuration; d++ {
		cases = append(cases, Config{7, 0, d, 120 - d, 0})
	}
	for o := MinOffset; o <= MaxOffset; o++ {
		cases = append(cases, Config{7, 0, 60, 30, o})
	}

	cells := nvram.NewMemoryStore(nvram.DefaultSize)
	for _, cfg := range cases {
		require.NoError(t, NewStore(cells, nil).Save(cfg))
		got := NewStore(cells, nil).Load()
		require.Equal(t, cfg, got, "round trip of %+v", cfg)
	}
}

func TestStore_LoadFallsBackOnAnyInvalidField(t *testing.T) {
	tests := []struct {
		name  string
		cells []byte
	}{
		{"hour_25", []byte{25, 0, 60, 30, 1}},
		{"minute_60", []byte{7, 60, 60, 30, 1}},
		{"duration_200", []byte{7, 0, 200, 30, 1}},
		{"keep_on_121", []byte{7, 0, 60, 121, 1}},
		{"offset_minus_13", []byte{7, 0, 60, 30, 0xF3}},
		{"offset_13", []byte{7, 0, 60, 30, 13}},
		{"one_bad_among_good", []byte{6, 15, 30, 200, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := nvram.NewMemoryStore(nvram.DefaultSize)
			writeCells(t, cells, tt.cells...)

			pub := &recordingPublisher{}
			store := NewStore(cells, pub)

			assert.Equal(t, Default, store.Load())
			assert.Equal(t, Default, store.Current())
			assert.Equal(t, []eventbus.EventType{eventbus.EventTypeConfigFallback}, pub.types())
		})
	}
}

func TestStore_LoadScenarioHour25(t *testing.T) {
	cells := nvram.NewMemoryStore(nvram.DefaultSize)
	writeCells(t, cells, 25, 0, 60, 30, 1)

	assert.Equal(t, Config{7, 0, 60, 30, 1}, NewStore(cells, nil).Load())
}

func TestStore_LoadErasedStoreUsesDefault(t *testing.T) {
	assert.Equal(t, Default, NewStore(nvram.NewMemoryStore(nvram.DefaultSize), nil).Load())
}

func TestStore_LoadReadErrorUsesDefault(t *testing.T) {
	// Too small to hold all five cells.
	assert.Equal(t, Default, NewStore(nvram.NewMemoryStore(3), nil).Load())
}

func TestStore_LoadReturnsValidTupleUnchanged(t *testing.T) {
	cells := nvram.NewMemoryStore(nvram.DefaultSize)
	writeCells(t, cells, 0, 59, 0, 120, 0xF4)

	assert.Equal(t, Config{0, 59, 0, 120, -12}, NewStore(cells, nil).Load())
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	cells := nvram.NewMemoryStore(nvram.DefaultSize)
	store := NewStore(cells, nil)

	err := store.Save(Config{Hour: 24})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	b, err := cells.ReadCell(CellHour)
	require.NoError(t, err)
	assert.Equal(t, nvram.Erased, b, "invalid config must not reach storage")
}

func TestStore_SaveUpdatesCurrentAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	store := NewStore(nvram.NewMemoryStore(nvram.DefaultSize), pub)
	cfg := Config{6, 45, 30, 15, 2}

	require.NoError(t, store.Save(cfg))

	assert.Equal(t, cfg, store.Current())
	assert.Equal(t, []eventbus.EventType{eventbus.EventTypeConfigApplied}, pub.types())
}

func TestStore_SequentialWriteFailureKeepsCache(t *testing.T) {
	cells := nvram.NewMemoryStore(nvram.DefaultSize)
	store := NewStore(cells, nil)
	require.NoError(t, store.Save(Config{6, 0, 60, 30, 0}))

	cells.FailWritesAt(CellKeepOn)
	err := store.Save(Config{8, 15, 90, 45, 3})
	require.Error(t, err)

	// Cache still holds the last successful value.
	assert.Equal(t, Config{6, 0, 60, 30, 0}, store.Current())

	// Storage holds the documented mixed tuple: new head, old tail.
	cells.FailWritesAt(-1)
	assert.Equal(t, Config{8, 15, 90, 30, 0}, NewStore(cells, nil).Load())
}

func TestStore_SQLiteBatchSave(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "sunrise.sqlite"))
	require.NoError(t, err)
	defer database.Close()

	cells := nvram.NewSQLiteStore(database.DB, nvram.DefaultSize)
	cfg := Config{5, 30, 45, 20, -3}
	require.NoError(t, NewStore(cells, nil).Save(cfg))

	assert.Equal(t, cfg, NewStore(nvram.NewSQLiteStore(database.DB, nvram.DefaultSize), nil).Load())
}
