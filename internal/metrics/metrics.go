// Package metrics exposes sunrise activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dokzlo13/sunrised/internal/eventbus"
)

type Provider interface {
	IncSessions()
	SetRampState(state string)
	IncSync(resource, status string)
	IncOutputErrors(channel int)
	IncConfigApplied()
	IncConfigFallbacks()
	SetDuty(channel int, duty uint16)
}

// rampStates are the values of the ramp_state gauge label.
var rampStates = []string{"idle", "ramping", "holding_on", "extinguished"}

type PrometheusProvider struct {
	sessions        prometheus.Counter
	rampState       *prometheus.GaugeVec
	syncs           *prometheus.CounterVec
	outputErrors    *prometheus.CounterVec
	configApplied   prometheus.Counter
	configFallbacks prometheus.Counter
	duty            *prometheus.GaugeVec
}

// New returns a Prometheus provider registered on reg, or a no-op provider
// when metrics are disabled.
func New(enabled bool, reg prometheus.Registerer) Provider {
	if !enabled {
		return &noopMetrics{}
	}

	factory := promauto.With(reg)
	m := &PrometheusProvider{
		sessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunrised_sessions_total",
			Help: "Total number of sunrise sessions started",
		}),

		rampState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sunrised_ramp_state",
			Help: "Current ramp state, 1 for the active state",
		}, []string{"state"}),

		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sunrised_syncs_total",
			Help: "Total number of remote sync results per resource",
		}, []string{"resource", "status"}),

		outputErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sunrised_output_errors_total",
			Help: "Total number of failed duty writes per channel",
		}, []string{"channel"}),

		configApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunrised_config_applied_total",
			Help: "Total number of sunrise configs persisted",
		}),

		configFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunrised_config_fallbacks_total",
			Help: "Total number of times the persisted config was replaced by defaults",
		}),

		duty: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sunrised_channel_duty",
			Help: "Last duty written to each output channel",
		}, []string{"channel"}),
	}
	m.SetRampState("idle")
	return m
}

func (m *PrometheusProvider) IncSessions() {
	m.sessions.Inc()
}

func (m *PrometheusProvider) SetRampState(state string) {
	for _, s := range rampStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.rampState.WithLabelValues(s).Set(v)
	}
}

func (m *PrometheusProvider) IncSync(resource, status string) {
	m.syncs.WithLabelValues(resource, status).Inc()
}

func (m *PrometheusProvider) IncOutputErrors(channel int) {
	m.outputErrors.WithLabelValues(strconv.Itoa(channel)).Inc()
}

func (m *PrometheusProvider) IncConfigApplied() {
	m.configApplied.Inc()
}

func (m *PrometheusProvider) IncConfigFallbacks() {
	m.configFallbacks.Inc()
}

func (m *PrometheusProvider) SetDuty(channel int, duty uint16) {
	m.duty.WithLabelValues(strconv.Itoa(channel)).Set(float64(duty))
}

// Observe subscribes p to every lifecycle event on bus.
func Observe(bus *eventbus.Bus, p Provider) {
	bus.SubscribeAll(func(e eventbus.Event) {
		Record(p, e)
	})
}

// Record updates p from one event.
func Record(p Provider, e eventbus.Event) {
	switch e.Type {
	case eventbus.EventTypeTrigger:
		p.IncSessions()
	case eventbus.EventTypeRampState:
		state, _ := e.Fields["state"].(string)
		if state == "extinguished" {
			state = "idle"
		}
		p.SetRampState(state)
	case eventbus.EventTypeSync:
		resource, _ := e.Fields["resource"].(string)
		status, _ := e.Fields["status"].(string)
		p.IncSync(resource, status)
	case eventbus.EventTypeOutputError:
		channel, _ := e.Fields["channel"].(int)
		p.IncOutputErrors(channel)
	case eventbus.EventTypeConfigApplied:
		p.IncConfigApplied()
	case eventbus.EventTypeConfigFallback:
		p.IncConfigFallbacks()
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncSessions()            {}
func (n *noopMetrics) SetRampState(_ string)   {}
func (n *noopMetrics) IncSync(_, _ string)     {}
func (n *noopMetrics) IncOutputErrors(_ int)   {}
func (n *noopMetrics) IncConfigApplied()       {}
func (n *noopMetrics) IncConfigFallbacks()     {}
func (n *noopMetrics) SetDuty(_ int, _ uint16) {}
