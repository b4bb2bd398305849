package ramp

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/eventbus"
)

// DefaultTick is the duty re-evaluation cadence while Ramping.
const DefaultTick = 20 * time.Millisecond

// extinguishTimeout bounds the final all-off writes after cancellation.
const extinguishTimeout = 5 * time.Second

// Output is the per-channel duty sink the engine drives.
type Output interface {
	SetDuty(ctx context.Context, channel int, duty uint16) error
}

// StateObserver is told about every state a session enters.
type StateObserver func(session Session, state State)

// Engine runs sessions against an output, one at a time.
type Engine struct {
	out      Output
	curve    Curve
	tick     time.Duration
	bus      eventbus.Publisher
	observer StateObserver
	now      func() time.Time
}

// NewEngine creates an engine. A zero tick uses DefaultTick.
func NewEngine(out Output, curve Curve, tick time.Duration, bus eventbus.Publisher) *Engine {
	if tick <= 0 {
		tick = DefaultTick
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Engine{
		out:   out,
		curve: curve,
		tick:  tick,
		bus:   bus,
		now:   time.Now,
	}
}

// SetObserver registers a callback invoked on every state change.
func (e *Engine) SetObserver(fn StateObserver) {
	e.observer = fn
}

// Curve returns the curve used for every session.
func (e *Engine) Curve() Curve {
	return e.curve
}

// Run drives session to completion and blocks until it is extinguished.
// Cancelling ctx is only meant for shutdown: the engine then turns every
// channel off and returns ctx.Err().
func (e *Engine) Run(ctx context.Context, session Session) error {
	m := NewMachine(session, e.curve)
	start := e.now()
	written := make([]int, session.Channels())
	for c := range written {
		written[c] = -1
	}

	log.Info().
		Str("session", session.ID).
		Dur("duration", session.Duration).
		Dur("keep_on", session.KeepOn).
		Int("channels", session.Channels()).
		Msg("Sunrise session started")
	e.transition(session, StateRamping)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	state := StateRamping
	for {
		frame := m.Advance(e.now().Sub(start))
		e.apply(ctx, session, frame, written)

		if frame.State != state {
			state = frame.State
			e.transition(session, state)
		}

		switch state {
		case StateExtinguished:
			log.Info().Str("session", session.ID).Msg("Sunrise session finished")
			return nil

		case StateHoldingOn:
			hold := m.HoldRemaining(e.now().Sub(start))
			if err := sleep(ctx, hold); err != nil {
				return e.abort(ctx, session)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return e.abort(ctx, session)
		case <-ticker.C:
		}
	}
}

// apply writes changed duties of started channels, or zero to every
// channel once extinguished. Failed writes are retried on the next frame.
func (e *Engine) apply(ctx context.Context, session Session, frame Frame, written []int) {
	for c, duty := range frame.Duties {
		if frame.State != StateExtinguished {
			if !frame.Started[c] || int(duty) == written[c] {
				continue
			}
		}
		if err := e.out.SetDuty(ctx, c, duty); err != nil {
			log.Warn().Err(err).Str("session", session.ID).Int("channel", c).Uint16("duty", duty).Msg("Failed to set duty")
			e.bus.Publish(eventbus.Event{
				Type: eventbus.EventTypeOutputError,
				Fields: map[string]any{
					"session": session.ID,
					"channel": c,
					"error":   err.Error(),
				},
			})
			continue
		}
		written[c] = int(duty)
	}
}

func (e *Engine) abort(ctx context.Context, session Session) error {
	log.Warn().Str("session", session.ID).Msg("Sunrise session interrupted, turning channels off")

	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), extinguishTimeout)
	defer cancel()
	for c := 0; c < session.Channels(); c++ {
		if err := e.out.SetDuty(offCtx, c, 0); err != nil {
			log.Warn().Err(err).Int("channel", c).Msg("Failed to turn channel off")
		}
	}

	e.transition(session, StateExtinguished)
	return ctx.Err()
}

func (e *Engine) transition(session Session, state State) {
	log.Debug().Str("session", session.ID).Str("state", state.String()).Msg("Ramp state changed")

	e.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeRampState,
		Fields: map[string]any{
			"session": session.ID,
			"state":   state.String(),
		},
	})
	if e.observer != nil {
		e.observer(session, state)
	}
}

// Sweep lights each channel at full duty for step, one after another, then
// turns it off again. Used to check fixture wiring.
func (e *Engine) Sweep(ctx context.Context, channels int, step time.Duration) error {
	for c := 0; c < channels; c++ {
		log.Info().Int("channel", c).Dur("step", step).Msg("PWM sweep: channel on")
		if err := e.out.SetDuty(ctx, c, e.curve.MaxDuty); err != nil {
			return err
		}
		waitErr := sleep(ctx, step)
		if err := e.out.SetDuty(context.WithoutCancel(ctx), c, 0); err != nil {
			return err
		}
		if waitErr != nil {
			return waitErr
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
