package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/clock"
	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/db"
	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/ledger"
	"github.com/dokzlo13/sunrised/internal/metrics"
	"github.com/dokzlo13/sunrised/internal/nvram"
	"github.com/dokzlo13/sunrised/internal/sunrise"
	"github.com/dokzlo13/sunrised/internal/syncsvc"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Bus      *eventbus.Bus
	Registry *prometheus.Registry
	Metrics  metrics.Provider
	Ledger   *ledger.Ledger

	// Persistent state
	Cells nvram.Store
	Clock clock.RTC
	Store *sunrise.Store

	// Sync
	Sync *syncsvc.Orchestrator

	// High-level services
	Output    *OutputService
	Sequencer *SequencerService
	Health    *HealthService
	MQTT      *MQTTService
}

// NewServices creates all services with proper dependency injection.
func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize metrics
	s.Registry = prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	s.Metrics = metrics.New(cfg.Metrics.Enabled, s.Registry)

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	metrics.Observe(s.Bus, s.Metrics)

	// Initialize fired-occurrence ledger
	s.Ledger = ledger.New(database.DB)

	// Initialize persistent byte store and clock
	s.Cells = nvram.NewSQLiteStore(database.DB, cfg.NVRAM.Size)
	s.Clock, err = newClock(ctx, cfg, database)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize sunrise config store
	s.Store = sunrise.NewStore(s.Cells, s.Bus)

	// Initialize output and ramp engine
	s.Output, err = NewOutputService(ctx, cfg, s.Bus, s.Metrics)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Initialize sync orchestrator
	svc := syncsvc.NewHTTPService(cfg.Sync.ConfigURL, cfg.Sync.TimeURL, cfg.Sync.Timeout.Duration())
	s.Sync = syncsvc.NewOrchestrator(svc, s.Store, s.Clock, s.Bus)

	// Initialize sequencer
	s.Sequencer = NewSequencerService(cfg, s.Clock, s.Store, s.Sync, s.Output, s.Ledger, s.Bus)

	// Initialize health service
	s.Health = NewHealthService(cfg, s.Sequencer.Loop, s.Store, s.Clock, s.Registry)

	// Initialize MQTT service
	s.MQTT = NewMQTTService(cfg, s.Bus, s.Store, s.Sequencer.Loop)

	return s, nil
}

func newClock(ctx context.Context, cfg *config.Config, database *db.DB) (clock.RTC, error) {
	switch cfg.Clock.Source {
	case "system":
		log.Info().Msg("Using host clock")
		return clock.System{}, nil
	default:
		rtc, err := clock.NewSoftRTC(ctx, database.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to open soft RTC: %w", err)
		}
		return rtc, nil
	}
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Sequencer.Start(ctx, onFatalError)
	s.Health.Start(ctx)

	// Optional, connects in the background
	s.MQTT.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	timeout := s.cfg.GetShutdownTimeout()

	// The sequencer turns the channels off on cancellation; wait for it
	// before the output is closed.
	if s.Sequencer != nil {
		s.Sequencer.Wait(timeout)
	}

	s.Close()
	return nil
}

// Close releases all resources. The bus is drained first so its workers
// exit before the outputs they may touch are closed.
func (s *Services) Close() {
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Output != nil {
		s.Output.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
