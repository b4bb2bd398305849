// Package sequencer runs the daemon's control loop: it polls the clock,
// fires sunrise sessions and serialises syncs between them.
package sequencer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/clock"
	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/ramp"
	"github.com/dokzlo13/sunrised/internal/sunrise"
	"github.com/dokzlo13/sunrised/internal/syncsvc"
	"github.com/dokzlo13/sunrised/internal/trigger"
)

// ErrNotRunning is returned by RequestSync once the loop has stopped.
var ErrNotRunning = errors.New("sequencer not running")

// requestQueue bounds pending on-demand syncs.
const requestQueue = 4

// ConfigSource is the part of sunrise.Store the loop reads.
type ConfigSource interface {
	Load() sunrise.Config
	Current() sunrise.Config
}

// Syncer runs one sync of every remote resource.
type Syncer interface {
	Sync(ctx context.Context) syncsvc.Result
}

// Engine runs sessions and fixture sweeps.
type Engine interface {
	Run(ctx context.Context, session ramp.Session) error
	Sweep(ctx context.Context, channels int, step time.Duration) error
}

// OccurrenceLog persists fired occurrence keys across restarts.
type OccurrenceLog interface {
	LastFired(ctx context.Context) (string, error)
	MarkFired(ctx context.Context, key, sessionID string) (bool, error)
}

// Options holds the loop timings and startup behaviour.
type Options struct {
	Mode         config.Mode
	Interval     time.Duration // idle between trigger checks
	Settle       time.Duration // plain delays only, for this long after boot
	SyncInterval time.Duration // 0 disables periodic sync
	SyncOnBoot   bool
	Stagger      ramp.Stagger
	Channels     int

	DebugRampDuration time.Duration
	DebugKeepOn       time.Duration
	DebugPWMStep      time.Duration

	// Seed returns the time used to start a stopped RTC. Defaults to clock.Compiled.
	Seed func() time.Time

	// Occurrences, when set, keeps the minute dedupe across restarts.
	Occurrences OccurrenceLog
}

type syncRequest struct {
	reply chan syncsvc.Result
}

// Loop is the single control task. Sessions, trigger checks and syncs all
// run on the goroutine that calls Run.
type Loop struct {
	rtc       clock.RTC
	store     ConfigSource
	syncer    Syncer
	engine    Engine
	suspender Suspender
	bus       eventbus.Publisher
	opts      Options

	requests  chan syncRequest
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once

	// loop goroutine only
	bootedAt   time.Time
	lastSyncAt time.Time
	lastFired  string

	mu     sync.RWMutex
	status Status
}

// New creates a loop. A nil suspender keeps plain delays after settling.
func New(rtc clock.RTC, store ConfigSource, syncer Syncer, engine Engine, suspender Suspender, bus eventbus.Publisher, opts Options) *Loop {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if opts.Seed == nil {
		opts.Seed = clock.Compiled
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeNormal
	}
	return &Loop{
		rtc:       rtc,
		store:     store,
		syncer:    syncer,
		engine:    engine,
		suspender: suspender,
		bus:       bus,
		opts:      opts,
		requests:  make(chan syncRequest, requestQueue),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		status:    Status{Mode: opts.Mode, State: StateIdle},
	}
}

// Boot seeds a stopped RTC, loads the persisted config, runs the boot sync
// and the startup mode.
func (l *Loop) Boot(ctx context.Context) error {
	l.bootedAt = time.Now()
	l.lastSyncAt = l.bootedAt
	l.setStatus(func(s *Status) { s.BootedAt = l.bootedAt.UTC() })

	running, err := l.rtc.IsRunning(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Failed to query RTC, assuming it is running")
	case !running:
		seed := l.opts.Seed()
		log.Warn().Time("seed", seed).Msg("RTC not running, starting it from the build time")
		if err := l.rtc.Start(ctx, seed); err != nil {
			log.Warn().Err(err).Msg("Failed to start RTC")
		}
	}

	if l.opts.Occurrences != nil {
		last, err := l.opts.Occurrences.LastFired(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read last fired occurrence")
		}
		l.lastFired = last
	}

	cfg := l.store.Load()
	log.Info().
		Str("config", cfg.String()).
		Time("now", l.rtc.Now()).
		Str("last_fired", l.lastFired).
		Msg("Sequencer booted")

	if l.opts.SyncOnBoot {
		l.runSync(ctx)
	}
	l.readyOnce.Do(func() { close(l.ready) })

	return l.startupMode(ctx)
}

// Ready is closed once Boot has loaded the config and run the boot sync,
// before any debug startup mode runs.
func (l *Loop) Ready() <-chan struct{} {
	return l.ready
}

func (l *Loop) startupMode(ctx context.Context) error {
	switch l.opts.Mode {
	case config.ModeDebugRamp:
		cfg := l.store.Current()
		stagger := l.opts.Stagger
		if full := time.Duration(cfg.DurationMinutes) * time.Minute; full > 0 {
			stagger = stagger.Scale(float64(l.opts.DebugRampDuration) / float64(full))
		}
		log.Info().
			Dur("duration", l.opts.DebugRampDuration).
			Dur("keep_on", l.opts.DebugKeepOn).
			Msg("Debug mode: running one shortened session")
		session := ramp.NewSessionWithDurations(cfg, l.opts.DebugRampDuration, l.opts.DebugKeepOn, stagger, l.rtc.Now())
		return l.runSession(ctx, session)

	case config.ModeDebugPWM:
		log.Info().Int("channels", l.opts.Channels).Dur("step", l.opts.DebugPWMStep).Msg("Debug mode: sweeping channels")
		if err := l.engine.Sweep(ctx, l.opts.Channels, l.opts.DebugPWMStep); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Channel sweep failed")
		}
		return ctx.Err()
	}
	return nil
}

// Run loops until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	log.Info().
		Dur("interval", l.opts.Interval).
		Dur("settle", l.opts.Settle).
		Dur("sync_interval", l.opts.SyncInterval).
		Msg("Sequencer started")

	for {
		fired := l.cycle(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Sequencer stopping")
			return nil
		}
		if fired {
			continue
		}
		if err := l.idle(ctx); err != nil {
			log.Info().Msg("Sequencer stopping")
			return nil
		}
	}
}

// cycle runs one pass of the loop and reports whether a session ran.
func (l *Loop) cycle(ctx context.Context) bool {
	l.serveRequests(ctx)

	if l.opts.SyncInterval > 0 && time.Since(l.lastSyncAt) >= l.opts.SyncInterval {
		l.runSync(ctx)
	}

	now := l.rtc.Now()
	cfg := l.store.Current()
	log.Debug().Time("now", now).Str("config", cfg.String()).Msg("Checking sunrise time")

	if !trigger.ShouldTrigger(now, cfg) {
		return false
	}
	key := trigger.OccurrenceKey(now)
	if key == l.lastFired {
		log.Debug().Str("occurrence", key).Msg("Sunrise already ran this minute")
		return false
	}
	l.lastFired = key

	session := ramp.NewSession(cfg, l.opts.Stagger, now)
	if !l.markFired(ctx, key, session.ID) {
		log.Info().Str("occurrence", key).Msg("Sunrise already ran this minute before restart")
		return false
	}
	l.setStatus(func(s *Status) { s.LastTrigger = key })
	log.Info().
		Str("occurrence", key).
		Str("session", session.ID).
		Str("config", cfg.String()).
		Msg("Sunrise time reached, starting session")
	l.bus.Publish(eventbus.Event{
		Type:   eventbus.EventTypeTrigger,
		Fields: map[string]any{"session": session.ID, "occurrence": key},
	})

	if err := l.runSession(ctx, session); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("session", session.ID).Msg("Session ended with error")
	}
	return true
}

// markFired reports whether key is new. Ledger failures do not block the
// session.
func (l *Loop) markFired(ctx context.Context, key, sessionID string) bool {
	if l.opts.Occurrences == nil {
		return true
	}
	fresh, err := l.opts.Occurrences.MarkFired(ctx, key, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("occurrence", key).Msg("Failed to record fired occurrence")
		return true
	}
	return fresh
}

func (l *Loop) runSession(ctx context.Context, session ramp.Session) error {
	l.setStatus(func(s *Status) {
		s.State = ramp.StateRamping.String()
		s.SessionID = session.ID
	})
	defer l.setStatus(func(s *Status) {
		s.State = StateIdle
		s.SessionID = ""
	})
	return l.engine.Run(ctx, session)
}

// ObserveState records engine state changes in the status. It is meant to
// be registered with ramp.Engine.SetObserver.
func (l *Loop) ObserveState(session ramp.Session, state ramp.State) {
	l.setStatus(func(s *Status) {
		if s.SessionID == session.ID {
			s.State = state.String()
		}
	})
}

// idle waits one loop interval. While settling, and when no suspender is
// configured, the wait serves sync requests as they arrive.
func (l *Loop) idle(ctx context.Context) error {
	settling := time.Since(l.bootedAt) < l.opts.Settle
	if settling || l.suspender == nil {
		log.Debug().Bool("settling", settling).Dur("interval", l.opts.Interval).Msg("Idling with plain delay")
		return l.delay(ctx, l.opts.Interval)
	}

	log.Debug().Str("suspender", l.suspender.Name()).Dur("interval", l.opts.Interval).Msg("Idling with suspend")
	return l.suspender.Suspend(ctx, l.opts.Interval)
}

func (l *Loop) delay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-l.requests:
			req.reply <- l.runSync(ctx)
		case <-timer.C:
			return nil
		}
	}
}

func (l *Loop) serveRequests(ctx context.Context) {
	for {
		select {
		case req := <-l.requests:
			req.reply <- l.runSync(ctx)
		default:
			return
		}
	}
}

func (l *Loop) runSync(ctx context.Context) syncsvc.Result {
	res := l.syncer.Sync(ctx)
	l.lastSyncAt = time.Now()
	l.setStatus(func(s *Status) { s.LastSync = &res })
	return res
}

// RequestSync queues a sync and waits for the loop to run it. The loop only
// serves requests between sessions, so this can wait as long as a session.
func (l *Loop) RequestSync(ctx context.Context) (syncsvc.Result, error) {
	req := syncRequest{reply: make(chan syncsvc.Result, 1)}

	select {
	case l.requests <- req:
	case <-l.done:
		return syncsvc.Result{}, ErrNotRunning
	case <-ctx.Done():
		return syncsvc.Result{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-l.done:
		return syncsvc.Result{}, ErrNotRunning
	case <-ctx.Done():
		return syncsvc.Result{}, ctx.Err()
	}
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	if s.LastSync != nil {
		last := *s.LastSync
		s.LastSync = &last
	}
	return s
}

func (l *Loop) setStatus(fn func(*Status)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.status)
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}
