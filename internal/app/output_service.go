package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/metrics"
	"github.com/dokzlo13/sunrised/internal/pwm"
	"github.com/dokzlo13/sunrised/internal/ramp"
)

// OutputService wraps the fixture output and the ramp engine that drives it.
type OutputService struct {
	Output  pwm.Output
	Engine  *ramp.Engine
	Stagger ramp.Stagger
}

// NewOutputService opens the configured backend. The channel topology is
// fixed for the lifetime of the process.
func NewOutputService(ctx context.Context, cfg *config.Config, bus *eventbus.Bus, m metrics.Provider) (*OutputService, error) {
	channels := make([]pwm.Channel, len(cfg.PWM.Channels))
	for i, c := range cfg.PWM.Channels {
		channels[i] = pwm.Channel{Pin: c.Pin, Light: c.Light}
	}

	out, err := pwm.New(ctx, pwm.Options{
		Backend:        pwm.Backend(cfg.PWM.Backend),
		ResolutionBits: cfg.PWM.ResolutionBits,
		Channels:       channels,
		Sysfs: pwm.SysfsOptions{
			Root:      cfg.PWM.Sysfs.Root,
			Chip:      cfg.PWM.Sysfs.Chip,
			Period:    cfg.PWM.Sysfs.Period.Duration(),
			ActiveLow: cfg.PWM.Sysfs.ActiveLow,
		},
		Hue: pwm.HueOptions{
			Bridge:       cfg.PWM.Hue.Bridge,
			Token:        cfg.PWM.Hue.Token,
			RateLimitRPS: cfg.PWM.Hue.RateLimitRPS,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s output: %w", cfg.PWM.Backend, err)
	}

	stagger := cfg.PWM.Stagger()
	if err := stagger.Validate(); err != nil {
		log.Warn().Err(err).Msg("Channel start offsets are not strictly increasing, using them as configured")
	}

	instrumented := pwm.Instrument(out, m.SetDuty)
	curve := ramp.Curve{Exponent: cfg.Ramp.Exponent, MaxDuty: out.MaxDuty()}
	engine := ramp.NewEngine(instrumented, curve, cfg.Ramp.Tick.Duration(), bus)

	log.Info().
		Str("backend", cfg.PWM.Backend).
		Int("channels", out.Channels()).
		Uint16("max_duty", out.MaxDuty()).
		Float64("exponent", curve.Exponent).
		Msg("Output initialized")

	return &OutputService{
		Output:  instrumented,
		Engine:  engine,
		Stagger: stagger,
	}, nil
}

// Close turns the output off and releases it.
func (s *OutputService) Close() {
	if err := pwm.Close(s.Output); err != nil {
		log.Warn().Err(err).Msg("Failed to close output")
	}
}
