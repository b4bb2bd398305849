// Package pwm provides the duty-cycle outputs that drive the fixture: a
// Linux sysfs PWM chip, Philips Hue lights, and in-process sinks for
// development and tests.
package pwm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dokzlo13/sunrised/internal/ramp"
)

// ErrNoChannel is returned for a channel index the output does not have.
var ErrNoChannel = errors.New("no such channel")

// Output is a set of independently dimmable channels.
// Duties range from 0 (off) to MaxDuty (full brightness).
type Output interface {
	SetDuty(ctx context.Context, channel int, duty uint16) error
	Channels() int
	MaxDuty() uint16
}

// Backend names an Output implementation.
type Backend string

const (
	BackendSysfs Backend = "sysfs"
	BackendHue   Backend = "hue"
	BackendLog   Backend = "log"
)

// Channel describes one physical output channel. Pin is used by the sysfs
// backend, Light by the Hue backend.
type Channel struct {
	Pin   int
	Light int
}

// Options selects and configures a backend.
type Options struct {
	Backend        Backend
	ResolutionBits int
	Channels       []Channel
	Sysfs          SysfsOptions
	Hue            HueOptions
}

// SysfsOptions configures the sysfs backend.
type SysfsOptions struct {
	Root      string        // usually /sys/class/pwm
	Chip      int           // pwmchipN
	Period    time.Duration // PWM period applied to every pin
	ActiveLow bool          // invert duty for sinks that light at 0
}

// HueOptions configures the Hue backend.
type HueOptions struct {
	Bridge       string
	Token        string
	RateLimitRPS float64
}

// New builds the output selected by opts.Backend.
func New(ctx context.Context, opts Options) (Output, error) {
	if len(opts.Channels) == 0 {
		return nil, errors.New("no output channels configured")
	}
	maxDuty := ramp.MaxDuty(opts.ResolutionBits)

	switch opts.Backend {
	case BackendSysfs:
		return NewSysfs(ctx, opts.Sysfs, pins(opts.Channels), maxDuty)
	case BackendHue:
		return NewHue(opts.Hue, lights(opts.Channels), maxDuty), nil
	case BackendLog, "":
		return NewLogOutput(len(opts.Channels), maxDuty), nil
	default:
		return nil, fmt.Errorf("unknown pwm backend %q", opts.Backend)
	}
}

// Close releases out if it holds resources.
func Close(out Output) error {
	if c, ok := out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func checkChannel(channel, channels int) error {
	if channel < 0 || channel >= channels {
		return fmt.Errorf("channel %d of %d: %w", channel, channels, ErrNoChannel)
	}
	return nil
}

func pins(channels []Channel) []int {
	out := make([]int, len(channels))
	for i, c := range channels {
		out[i] = c.Pin
	}
	return out
}

func lights(channels []Channel) []int {
	out := make([]int, len(channels))
	for i, c := range channels {
		out[i] = c.Light
	}
	return out
}
