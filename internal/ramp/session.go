package ramp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dokzlo13/sunrised/internal/sunrise"
)

// Stagger holds the start offset of each output channel, indexed by channel.
// Channel 0 is expected at offset 0 and offsets should strictly increase.
type Stagger []time.Duration

// Validate reports the first ordering problem. The engine runs with an
// invalid stagger anyway; callers only warn about it.
func (s Stagger) Validate() error {
	for c, off := range s {
		if off < 0 {
			return fmt.Errorf("channel %d: negative start offset %s", c, off)
		}
		if c == 0 && off != 0 {
			return fmt.Errorf("channel 0: start offset %s, want 0", off)
		}
		if c > 0 && off <= s[c-1] {
			return fmt.Errorf("channel %d: start offset %s not after channel %d (%s)", c, off, c-1, s[c-1])
		}
	}
	return nil
}

// Scale multiplies every offset by factor.
func (s Stagger) Scale(factor float64) Stagger {
	out := make(Stagger, len(s))
	for c, off := range s {
		out[c] = time.Duration(float64(off) * factor)
	}
	return out
}

// Session is one sunrise event from trigger to extinguish.
type Session struct {
	ID           string
	Start        time.Time
	Duration     time.Duration
	KeepOn       time.Duration
	ChannelStart []time.Duration
	Config       sunrise.Config // snapshot taken when the session was built
}

// NewSession builds a session from a config snapshot.
func NewSession(cfg sunrise.Config, stagger Stagger, start time.Time) Session {
	return NewSessionWithDurations(
		cfg,
		time.Duration(cfg.DurationMinutes)*time.Minute,
		time.Duration(cfg.KeepLightOnMinutes)*time.Minute,
		stagger,
		start,
	)
}

// NewSessionWithDurations builds a session whose timing overrides the config.
func NewSessionWithDurations(cfg sunrise.Config, duration, keepOn time.Duration, stagger Stagger, start time.Time) Session {
	if len(stagger) == 0 {
		stagger = Stagger{0}
	}
	channelStart := make([]time.Duration, len(stagger))
	copy(channelStart, stagger)

	return Session{
		ID:           uuid.NewString(),
		Start:        start,
		Duration:     duration,
		KeepOn:       keepOn,
		ChannelStart: channelStart,
		Config:       cfg,
	}
}

// Channels returns the number of channels the session drives.
func (s Session) Channels() int {
	return len(s.ChannelStart)
}
