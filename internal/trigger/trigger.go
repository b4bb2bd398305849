// Package trigger decides whether a sunrise should start at a given time.
package trigger

import (
	"time"

	"github.com/dokzlo13/sunrised/internal/sunrise"
)

// ShouldTrigger reports whether now falls in the configured target minute.
//
// The clock hour plus the UTC offset is compared as a raw sum: it is not
// wrapped into 0-23, so offsets that push it past a day boundary never
// match. The window is exactly one minute; a cycle that skips it misses
// that day's sunrise.
func ShouldTrigger(now time.Time, cfg sunrise.Config) bool {
	return now.Hour()+cfg.UTCOffset == cfg.Hour && now.Minute() == cfg.Minute
}

// OccurrenceKey identifies the minute bucket of now, used to fire at most
// once per target minute.
func OccurrenceKey(now time.Time) string {
	return now.Format("2006-01-02T15:04")
}
