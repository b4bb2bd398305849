package sequencer

import (
	"context"
	"time"
)

// Suspender idles the host for d in a power-saving way. It returns early
// with ctx.Err() when ctx is cancelled.
type Suspender interface {
	Name() string
	Suspend(ctx context.Context, d time.Duration) error
}

// TimerSuspender is the host fallback: an ordinary timer.
type TimerSuspender struct{}

func (TimerSuspender) Name() string { return "timer" }

func (TimerSuspender) Suspend(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
