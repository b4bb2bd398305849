package app

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/ledger"
	"github.com/dokzlo13/sunrised/internal/sunrise"
	"github.com/dokzlo13/sunrised/internal/syncsvc"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("metrics:\n  enabled: true\n"))
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "sunrised.sqlite")
	cfg.Ramp.Tick = config.Duration(time.Millisecond)
	return cfg
}

func TestServices_Lifecycle(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewServices(ctx, cfg)
	require.NoError(t, err)

	var fatal error
	require.NoError(t, s.Start(ctx, func(err error) { fatal = err }))

	// LastSync is set by the boot sync, after the config is loaded
	require.Eventually(t, func() bool {
		return s.Sequencer.Loop.Status().LastSync != nil
	}, 2*time.Second, 5*time.Millisecond)

	// Erased cells fall back to the built-in default
	assert.Equal(t, sunrise.Default, s.Store.Current())

	running, err := s.Clock.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running, "boot seeds a stopped clock")

	last := s.Sequencer.Loop.Status().LastSync
	assert.Equal(t, syncsvc.StatusSkipped, last.Config.Status, "no config url configured")
	assert.Equal(t, syncsvc.StatusSkipped, last.Time.Status, "no time url configured")

	cancel()
	require.NoError(t, s.Stop())
	assert.NoError(t, fatal)
}

func TestServices_FiredOccurrenceSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s, err := NewServices(ctx, cfg)
	require.NoError(t, err)
	fresh, err := s.Ledger.MarkFired(ctx, "2026-10-14T07:00", "s1")
	require.NoError(t, err)
	require.True(t, fresh)
	s.Close()

	// The restarted daemon reads the same table the loop writes
	s, err = NewServices(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	last, err := s.Ledger.LastFired(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14T07:00", last)

	fresh, err = ledger.New(s.DB.DB).MarkFired(ctx, "2026-10-14T07:00", "s2")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestServices_PersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s, err := NewServices(ctx, cfg)
	require.NoError(t, err)
	want := sunrise.Config{Hour: 5, Minute: 45, DurationMinutes: 30, KeepLightOnMinutes: 15, UTCOffset: -3}
	require.NoError(t, s.Store.Save(want))
	s.Close()

	s, err = NewServices(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, want, s.Store.Load())
}

func TestServices_RejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.PWM.Backend = "gpio"

	_, err := NewServices(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpio")
}

func TestServices_FailedInitStopsBusWorkers(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{name: "default workers", workers: 0},
		{name: "many workers", workers: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.PWM.Backend = "gpio"
			cfg.EventBus.Workers = tt.workers

			baseline := runtime.NumGoroutine()
			_, err := NewServices(context.Background(), cfg)
			require.Error(t, err)

			assert.Eventually(t, func() bool {
				return runtime.NumGoroutine() <= baseline
			}, 2*time.Second, 10*time.Millisecond, "bus workers must exit when init fails")
		})
	}
}

func TestServices_SystemClock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Clock.Source = "system"

	s, err := NewServices(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.WithinDuration(t, time.Now(), s.Clock.Now(), time.Second)
}
