package ramp

import "time"

// State is the phase of a sunrise session.
type State int

const (
	StateRamping State = iota
	StateHoldingOn
	StateExtinguished
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateRamping:
		return "ramping"
	case StateHoldingOn:
		return "holding_on"
	case StateExtinguished:
		return "extinguished"
	default:
		return "unknown"
	}
}

// Frame is the machine output for one step.
type Frame struct {
	State   State
	Duties  []uint16 // per channel; not-started channels keep their last value
	Started []bool   // whether each channel has begun its own ramp
}

// Machine is the Ramping -> HoldingOn -> Extinguished state machine shared
// by every channel of one session. It holds no timers: the caller supplies
// the elapsed time since session start.
type Machine struct {
	session Session
	curve   Curve

	state    State
	duties   []uint16
	started  []bool
	holdFrom time.Duration
}

// NewMachine creates a machine in the Ramping state with every channel at 0.
func NewMachine(session Session, curve Curve) *Machine {
	n := session.Channels()
	return &Machine{
		session: session,
		curve:   curve,
		state:   StateRamping,
		duties:  make([]uint16, n),
		started: make([]bool, n),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Advance steps the machine to elapsed and returns the resulting duties.
//
// While Ramping, time is capped at the session duration: a channel starts
// once that capped time reaches its offset, and its progress is measured
// against its own remaining window (duration minus offset). Reaching the
// session duration moves the machine to HoldingOn with the duties computed
// at exactly the duration, so the lead channel is at full brightness.
func (m *Machine) Advance(elapsed time.Duration) Frame {
	switch m.state {
	case StateRamping:
		m.ramp(elapsed)
		if elapsed >= m.session.Duration {
			m.state = StateHoldingOn
			m.holdFrom = elapsed
		}

	case StateHoldingOn:
		if elapsed-m.holdFrom >= m.session.KeepOn {
			m.state = StateExtinguished
			for c := range m.duties {
				m.duties[c] = 0
			}
		}

	case StateExtinguished:
	}

	return m.frame()
}

func (m *Machine) ramp(elapsed time.Duration) {
	effective := min(max(elapsed, 0), m.session.Duration)

	for c, offset := range m.session.ChannelStart {
		if effective < offset {
			continue
		}
		m.started[c] = true
		m.duties[c] = m.curve.Duty(effective-offset, m.session.Duration-offset)
	}
}

// HoldRemaining returns how long the HoldingOn phase still has to run at
// elapsed. It is zero in any other state.
func (m *Machine) HoldRemaining(elapsed time.Duration) time.Duration {
	if m.state != StateHoldingOn {
		return 0
	}
	return max(m.holdFrom+m.session.KeepOn-elapsed, 0)
}

func (m *Machine) frame() Frame {
	f := Frame{
		State:   m.state,
		Duties:  make([]uint16, len(m.duties)),
		Started: make([]bool, len(m.started)),
	}
	copy(f.Duties, m.duties)
	copy(f.Started, m.started)
	return f
}
