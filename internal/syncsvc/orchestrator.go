package syncsvc

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/eventbus"
	"github.com/dokzlo13/sunrised/internal/sunrise"
)

// Resource names a synced document.
type Resource string

const (
	ResourceConfig Resource = "config"
	ResourceTime   Resource = "time"
)

// Status is the outcome of syncing one resource.
type Status string

const (
	StatusApplied   Status = "applied"   // new value persisted or clock set
	StatusUnchanged Status = "unchanged" // remote config equals the active one
	StatusRejected  Status = "rejected"  // remote config out of range
	StatusFailed    Status = "failed"    // fetch or persist error
	StatusSkipped   Status = "skipped"   // resource not configured
)

// Outcome describes one resource's sync.
type Outcome struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of one sync run.
type Result struct {
	At     time.Time `json:"at"`
	Config Outcome   `json:"config"`
	Time   Outcome   `json:"time"`
}

// ConfigStore is the part of sunrise.Store a sync needs.
type ConfigStore interface {
	Current() sunrise.Config
	Save(cfg sunrise.Config) error
}

// ClockSetter accepts time corrections.
type ClockSetter interface {
	Set(t time.Time) error
}

// Orchestrator applies remote documents to the config store and clock.
type Orchestrator struct {
	svc   Service
	store ConfigStore
	clock ClockSetter
	bus   eventbus.Publisher
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(svc Service, store ConfigStore, clock ClockSetter, bus eventbus.Publisher) *Orchestrator {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Orchestrator{svc: svc, store: store, clock: clock, bus: bus}
}

// Sync fetches and applies both resources. A failure of one never prevents
// the other; nothing is retried.
func (o *Orchestrator) Sync(ctx context.Context) Result {
	res := Result{At: time.Now().UTC()}
	res.Config = o.syncConfig(ctx)
	o.report(ResourceConfig, res.Config)
	res.Time = o.syncTime(ctx)
	o.report(ResourceTime, res.Time)
	return res
}

func (o *Orchestrator) syncConfig(ctx context.Context) Outcome {
	doc, err := o.svc.FetchConfig(ctx)
	if err != nil {
		return failure(err)
	}

	cfg := doc.ToConfig()
	if err := cfg.Validate(); err != nil {
		return Outcome{Status: StatusRejected, Error: err.Error()}
	}
	if cfg == o.store.Current() {
		return Outcome{Status: StatusUnchanged}
	}
	if err := o.store.Save(cfg); err != nil {
		return Outcome{Status: StatusFailed, Error: err.Error()}
	}
	return Outcome{Status: StatusApplied}
}

func (o *Orchestrator) syncTime(ctx context.Context) Outcome {
	t, err := o.svc.FetchTime(ctx)
	if err != nil {
		return failure(err)
	}
	if err := o.clock.Set(t); err != nil {
		return Outcome{Status: StatusFailed, Error: err.Error()}
	}
	return Outcome{Status: StatusApplied}
}

func failure(err error) Outcome {
	if errors.Is(err, ErrNotConfigured) {
		return Outcome{Status: StatusSkipped}
	}
	return Outcome{Status: StatusFailed, Error: err.Error()}
}

func (o *Orchestrator) report(resource Resource, out Outcome) {
	var ev *zerolog.Event
	switch out.Status {
	case StatusFailed, StatusRejected:
		ev = log.Warn()
	case StatusSkipped:
		ev = log.Debug()
	default:
		ev = log.Info()
	}
	ev.Str("resource", string(resource)).Str("status", string(out.Status))
	if out.Error != "" {
		ev.Str("error", out.Error)
	}
	ev.Msg("Sync finished")

	fields := map[string]any{
		"resource": string(resource),
		"status":   string(out.Status),
	}
	if out.Error != "" {
		fields["error"] = out.Error
	}
	o.bus.Publish(eventbus.Event{Type: eventbus.EventTypeSync, Fields: fields})
}
