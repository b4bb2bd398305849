package pwm

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogOutput logs every duty instead of driving hardware.
type LogOutput struct {
	channels int
	maxDuty  uint16
}

// NewLogOutput creates a logging output with the given channel count.
func NewLogOutput(channels int, maxDuty uint16) *LogOutput {
	log.Warn().Int("channels", channels).Msg("Using log PWM output, no fixture will be driven")
	return &LogOutput{channels: channels, maxDuty: maxDuty}
}

func (l *LogOutput) SetDuty(_ context.Context, channel int, duty uint16) error {
	if err := checkChannel(channel, l.channels); err != nil {
		return err
	}
	log.Debug().Int("channel", channel).Uint16("duty", duty).Uint16("max", l.maxDuty).Msg("PWM duty")
	return nil
}

func (l *LogOutput) Channels() int   { return l.channels }
func (l *LogOutput) MaxDuty() uint16 { return l.maxDuty }
