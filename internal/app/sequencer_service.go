package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/clock"
	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/sequencer"
)

// SequencerService runs the control loop on its own goroutine.
type SequencerService struct {
	Loop *sequencer.Loop
	done chan struct{}
}

// NewSequencerService creates the loop and connects it to the engine.
func NewSequencerService(
	cfg *config.Config,
	rtc clock.RTC,
	store sequencer.ConfigSource,
	syncer sequencer.Syncer,
	output *OutputService,
	occurrences sequencer.OccurrenceLog,
	bus eventbus.Publisher,
) *SequencerService {
	loop := sequencer.New(rtc, store, syncer, output.Engine, newSuspender(cfg.Loop.Suspend), bus, sequencer.Options{
		Mode:              cfg.Mode,
		Interval:          cfg.Loop.Interval.Duration(),
		Settle:            cfg.Loop.Settle.Duration(),
		SyncInterval:      cfg.Sync.Interval.Duration(),
		SyncOnBoot:        cfg.Sync.SyncOnBoot(),
		Stagger:           output.Stagger,
		Channels:          output.Output.Channels(),
		DebugRampDuration: cfg.Debug.RampDuration.Duration(),
		DebugKeepOn:       cfg.Debug.KeepOn.Duration(),
		DebugPWMStep:      cfg.Debug.PWMStep.Duration(),
		Occurrences:       occurrences,
	})
	output.Engine.SetObserver(loop.ObserveState)

	return &SequencerService{
		Loop: loop,
		done: make(chan struct{}),
	}
}

// newSuspender returns nil for "none", which keeps plain delays that serve
// sync requests.
func newSuspender(name string) sequencer.Suspender {
	switch name {
	case "timer":
		return sequencer.TimerSuspender{}
	default:
		return nil
	}
}

// Start boots and runs the loop until ctx is cancelled.
func (s *SequencerService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		defer close(s.done)

		if err := s.Loop.Boot(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			onFatalError(err)
			return
		}
		if err := s.Loop.Run(ctx); err != nil {
			onFatalError(err)
		}
	}()
}

// Wait blocks until the loop has stopped or timeout elapses.
func (s *SequencerService) Wait(timeout time.Duration) {
	select {
	case <-s.done:
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("Sequencer did not stop in time")
	}
}
