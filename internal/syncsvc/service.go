// Package syncsvc refreshes the sunrise config and the clock from a remote
// source.
package syncsvc

import (
	"context"
	"errors"
	"time"

	"github.com/dokzlo13/sunrised/internal/sunrise"
)

// ErrNotConfigured is returned when a resource has no remote location.
var ErrNotConfigured = errors.New("remote resource not configured")

// Service fetches the remote documents.
type Service interface {
	FetchConfig(ctx context.Context) (ConfigDocument, error)
	FetchTime(ctx context.Context) (time.Time, error)
}

// ConfigDocument is the remote sunrise config.
type ConfigDocument struct {
	SunriseHour        int `json:"sunriseHour"`
	SunriseMinute      int `json:"sunriseMinute"`
	DurationMinutes    int `json:"durationMinutes"`
	KeepLightOnMinutes int `json:"keepLightOnMinutes"`
	UTCOffset          int `json:"utcOffset"`
}

// ToConfig maps the document field by field. The result is not validated.
func (d ConfigDocument) ToConfig() sunrise.Config {
	return sunrise.Config{
		Hour:               d.SunriseHour,
		Minute:             d.SunriseMinute,
		DurationMinutes:    d.DurationMinutes,
		KeepLightOnMinutes: d.KeepLightOnMinutes,
		UTCOffset:          d.UTCOffset,
	}
}

// TimeDocument is the remote time as Unix seconds.
type TimeDocument struct {
	UnixTime int64 `json:"unixtime"`
}
