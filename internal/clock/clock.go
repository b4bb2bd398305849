// Package clock provides the real-time clock the sequencer reads: a soft
// RTC persisted in SQLite, or the host clock as-is.
package clock

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock reports wall-clock time in UTC and accepts corrections.
type Clock interface {
	Now() time.Time
	Set(t time.Time) error
}

// RTC is a clock that may have lost its time and needs seeding.
type RTC interface {
	Clock
	IsRunning(ctx context.Context) (bool, error)
	Start(ctx context.Context, seed time.Time) error
}

// BuildTime is the build timestamp in RFC 3339, set with
// -ldflags "-X github.com/dokzlo13/sunrised/internal/clock.BuildTime=...".
var BuildTime string

// Compiled returns the best known build timestamp: BuildTime, then the VCS
// commit time embedded by the toolchain, then the current time.
func Compiled() time.Time {
	if BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
			return t.UTC()
		}
		log.Warn().Str("build_time", BuildTime).Msg("Ignoring malformed build time")
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key != "vcs.time" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

// System is the host clock. The host keeps its own time, so it is always
// running and corrections are only logged.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) Set(t time.Time) error {
	log.Info().
		Time("remote", t).
		Dur("drift", time.Until(t)).
		Msg("Host clock is managed externally, not adjusting")
	return nil
}

func (System) IsRunning(context.Context) (bool, error) { return true, nil }

func (System) Start(context.Context, time.Time) error { return nil }
