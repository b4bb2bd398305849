package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/config"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	fatal error
}

// New creates a new App instance with all services initialized but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	services, err := NewServices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start starts all services and blocks until the sequencer has booted:
// the persisted config is loaded and the boot sync has run. A cancelled
// ctx ends the wait early.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx, a.fail); err != nil {
		return err
	}

	select {
	case <-a.services.Sequencer.Loop.Ready():
	case <-a.ctx.Done():
		return nil
	}

	status := a.services.Sequencer.Loop.Status()
	ev := log.Info().
		Str("mode", string(status.Mode)).
		Str("config", a.services.Store.Current().String()).
		Time("clock", a.services.Clock.Now())
	if status.LastSync != nil {
		ev = ev.
			Str("config_sync", string(status.LastSync.Config.Status)).
			Str("time_sync", string(status.LastSync.Time.Status))
	}
	ev.Msg("sunrised started")
	return nil
}

// fail records the first fatal error and cancels the app context.
func (a *App) fail(err error) {
	log.Error().Err(err).Msg("Fatal error, initiating shutdown")
	a.mu.Lock()
	if a.fatal == nil {
		a.fatal = err
	}
	a.mu.Unlock()
	a.cancel()
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until the application context is cancelled. It returns the
// fatal error that caused the shutdown, or nil for a signal.
func (a *App) Wait() error {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fatal
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
