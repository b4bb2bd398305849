package ramp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/sunrise"
)

type write struct {
	channel int
	duty    uint16
}

type fakeOutput struct {
	mu     sync.Mutex
	writes []write
	failN  int
}

func (f *fakeOutput) SetDuty(_ context.Context, channel int, duty uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("bus fault")
	}
	f.writes = append(f.writes, write{channel, duty})
	return nil
}

func (f *fakeOutput) snapshot() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...)
}

func (f *fakeOutput) last(channel int) (uint16, bool) {
	writes := f.snapshot()
	for i := len(writes) - 1; i >= 0; i-- {
		if writes[i].channel == channel {
			return writes[i].duty, true
		}
	}
	return 0, false
}

func (f *fakeOutput) peak(channel int) uint16 {
	var p uint16
	for _, w := range f.snapshot() {
		if w.channel == channel && w.duty > p {
			p = w.duty
		}
	}
	return p
}

type eventSink struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (s *eventSink) Publish(e eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) count(t eventbus.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) observe(_ Session, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func shortSession(keepOn time.Duration, stagger Stagger) Session {
	return NewSessionWithDurations(sunrise.Default, 40*time.Millisecond, keepOn, stagger, time.Now())
}

func TestEngine_RunCompletesAndExtinguishes(t *testing.T) {
	out := &fakeOutput{}
	states := &stateLog{}
	e := NewEngine(out, testCurve, time.Millisecond, nil)
	e.SetObserver(states.observe)

	err := e.Run(context.Background(), shortSession(20*time.Millisecond, Stagger{0, 10 * time.Millisecond}))
	require.NoError(t, err)

	for c := 0; c < 2; c++ {
		last, ok := out.last(c)
		require.True(t, ok, "channel %d never written", c)
		assert.Equal(t, uint16(0), last, "channel %d must end off", c)
		assert.Equal(t, uint16(4095), out.peak(c), "channel %d must reach full duty", c)
	}
	assert.Equal(t, []State{StateRamping, StateHoldingOn, StateExtinguished}, states.all())
}

func TestEngine_RunDutiesRiseUntilOff(t *testing.T) {
	out := &fakeOutput{}
	e := NewEngine(out, testCurve, time.Millisecond, nil)

	require.NoError(t, e.Run(context.Background(), shortSession(5*time.Millisecond, Stagger{0})))

	writes := out.snapshot()
	require.NotEmpty(t, writes)
	for i := 1; i < len(writes)-1; i++ {
		assert.GreaterOrEqual(t, writes[i].duty, writes[i-1].duty, "write %d", i)
	}
	assert.Equal(t, uint16(0), writes[len(writes)-1].duty)
}

func TestEngine_RunSkipsUnchangedDuty(t *testing.T) {
	out := &fakeOutput{}
	e := NewEngine(out, testCurve, time.Millisecond, nil)

	require.NoError(t, e.Run(context.Background(), shortSession(30*time.Millisecond, Stagger{0})))

	fulls := 0
	for _, w := range out.snapshot() {
		if w.duty == 4095 {
			fulls++
		}
	}
	assert.Equal(t, 1, fulls, "hold phase must not rewrite full duty")
}

func TestEngine_ZeroDurationSession(t *testing.T) {
	out := &fakeOutput{}
	e := NewEngine(out, testCurve, time.Millisecond, nil)

	s := NewSessionWithDurations(sunrise.Default, 0, 0, Stagger{0}, time.Now())
	require.NoError(t, e.Run(context.Background(), s))

	assert.Equal(t, []write{{0, 4095}, {0, 0}}, out.snapshot())
}

func TestEngine_CancelTurnsChannelsOff(t *testing.T) {
	out := &fakeOutput{}
	states := &stateLog{}
	e := NewEngine(out, testCurve, time.Millisecond, nil)
	e.SetObserver(states.observe)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSessionWithDurations(sunrise.Default, time.Hour, time.Hour, Stagger{0, time.Millisecond}, time.Now())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, s) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}

	for c := 0; c < 2; c++ {
		last, ok := out.last(c)
		require.True(t, ok)
		assert.Equal(t, uint16(0), last)
	}
	got := states.all()
	assert.Equal(t, StateExtinguished, got[len(got)-1])
}

func TestEngine_CancelDuringHold(t *testing.T) {
	out := &fakeOutput{}
	e := NewEngine(out, testCurve, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSessionWithDurations(sunrise.Default, 5*time.Millisecond, time.Hour, Stagger{0}, time.Now())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, s) }()

	require.Eventually(t, func() bool { return out.peak(0) == 4095 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}
	last, _ := out.last(0)
	assert.Equal(t, uint16(0), last)
}

func TestEngine_WriteFailuresAreRetried(t *testing.T) {
	out := &fakeOutput{failN: 2}
	sink := &eventSink{}
	e := NewEngine(out, testCurve, time.Millisecond, sink)

	require.NoError(t, e.Run(context.Background(), shortSession(5*time.Millisecond, Stagger{0})))

	assert.Equal(t, 2, sink.count(eventbus.EventTypeOutputError))
	assert.Equal(t, uint16(4095), out.peak(0))
	last, _ := out.last(0)
	assert.Equal(t, uint16(0), last)
}

func TestEngine_PublishesStateEvents(t *testing.T) {
	sink := &eventSink{}
	e := NewEngine(&fakeOutput{}, testCurve, time.Millisecond, sink)

	require.NoError(t, e.Run(context.Background(), shortSession(time.Millisecond, Stagger{0})))

	assert.Equal(t, 3, sink.count(eventbus.EventTypeRampState))
}

func TestEngine_Sweep(t *testing.T) {
	out := &fakeOutput{}
	e := NewEngine(out, Curve{Exponent: 1.8, MaxDuty: 255}, time.Millisecond, nil)

	require.NoError(t, e.Sweep(context.Background(), 2, time.Millisecond))

	assert.Equal(t, []write{{0, 255}, {0, 0}, {1, 255}, {1, 0}}, out.snapshot())
}

func TestEngine_SweepCancelled(t *testing.T) {
	out := &fakeOutput{}
	e := NewEngine(out, testCurve, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := e.Sweep(ctx, 3, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []write{{0, 4095}, {0, 0}}, out.snapshot())
}
