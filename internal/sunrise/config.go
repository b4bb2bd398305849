// Package sunrise defines the persisted sunrise configuration and the store
// that keeps it in non-volatile cells.
package sunrise

import (
	"errors"
	"fmt"

	"github.com/dokzlo13/sunrised/internal/x/mathx"
)

// Valid field ranges, inclusive.
const (
	MinHour, MaxHour         = 0, 23
	MinMinute, MaxMinute     = 0, 59
	MinDuration, MaxDuration = 0, 120
	MinKeepOn, MaxKeepOn     = 0, 120
	MinOffset, MaxOffset     = -12, 12
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid sunrise config")

// Config is the sunrise target and timing.
type Config struct {
	Hour               int `json:"hour"`
	Minute             int `json:"minute"`
	DurationMinutes    int `json:"duration_minutes"`
	KeepLightOnMinutes int `json:"keep_light_on_minutes"`
	UTCOffset          int `json:"utc_offset"` // hours added to the clock hour before comparing
}

// Default is used whenever the persisted tuple is unusable.
var Default = Config{
	Hour:               7,
	Minute:             0,
	DurationMinutes:    60,
	KeepLightOnMinutes: 30,
	UTCOffset:          1,
}

// Validate checks every field against its range. The tuple is valid only
// if all fields are; the first offending field is reported.
func (c Config) Validate() error {
	checks := []struct {
		field  string
		v      int
		lo, hi int
	}{
		{"hour", c.Hour, MinHour, MaxHour},
		{"minute", c.Minute, MinMinute, MaxMinute},
		{"duration_minutes", c.DurationMinutes, MinDuration, MaxDuration},
		{"keep_light_on_minutes", c.KeepLightOnMinutes, MinKeepOn, MaxKeepOn},
		{"utc_offset", c.UTCOffset, MinOffset, MaxOffset},
	}
	for _, ch := range checks {
		if !mathx.Between(ch.v, ch.lo, ch.hi) {
			return fmt.Errorf("%w: %s=%d outside [%d, %d]", ErrInvalidConfig, ch.field, ch.v, ch.lo, ch.hi)
		}
	}
	return nil
}

// String renders the config for diagnostics.
func (c Config) String() string {
	return fmt.Sprintf("%02d:%02d (utc%+d) ramp=%dm hold=%dm",
		c.Hour, c.Minute, c.UTCOffset, c.DurationMinutes, c.KeepLightOnMinutes)
}
