package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/sunrised/internal/eventbus"
)

func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestNoopMetrics_WhenDisabled(t *testing.T) {
	m := New(false, prometheus.NewRegistry())
	_, ok := m.(*noopMetrics)
	assert.True(t, ok, "should return noopMetrics when disabled")

	m.IncSessions()
	m.SetRampState("ramping")
	m.IncSync("config", "applied")
	m.IncOutputErrors(1)
	m.IncConfigApplied()
	m.IncConfigFallbacks()
	m.SetDuty(0, 10)
}

func TestPrometheusProvider_InitialState(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(true, reg)
	_, ok := m.(*PrometheusProvider)
	require.True(t, ok)

	assert.Equal(t, 1.0, value(t, reg, "sunrised_ramp_state", map[string]string{"state": "idle"}))
	assert.Equal(t, 0.0, value(t, reg, "sunrised_ramp_state", map[string]string{"state": "ramping"}))
}

func TestRecord_MapsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(true, reg)

	events := []eventbus.Event{
		{Type: eventbus.EventTypeTrigger},
		{Type: eventbus.EventTypeRampState, Fields: map[string]any{"state": "holding_on"}},
		{Type: eventbus.EventTypeSync, Fields: map[string]any{"resource": "time", "status": "failed"}},
		{Type: eventbus.EventTypeSync, Fields: map[string]any{"resource": "time", "status": "failed"}},
		{Type: eventbus.EventTypeOutputError, Fields: map[string]any{"channel": 2}},
		{Type: eventbus.EventTypeConfigApplied},
		{Type: eventbus.EventTypeConfigFallback},
	}
	for _, e := range events {
		Record(m, e)
	}

	assert.Equal(t, 1.0, value(t, reg, "sunrised_sessions_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "sunrised_ramp_state", map[string]string{"state": "holding_on"}))
	assert.Equal(t, 0.0, value(t, reg, "sunrised_ramp_state", map[string]string{"state": "idle"}))
	assert.Equal(t, 2.0, value(t, reg, "sunrised_syncs_total", map[string]string{"resource": "time", "status": "failed"}))
	assert.Equal(t, 1.0, value(t, reg, "sunrised_output_errors_total", map[string]string{"channel": "2"}))
	assert.Equal(t, 1.0, value(t, reg, "sunrised_config_applied_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "sunrised_config_fallbacks_total", nil))
}

func TestRecord_ExtinguishedReturnsToIdle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(true, reg)

	Record(m, eventbus.Event{Type: eventbus.EventTypeRampState, Fields: map[string]any{"state": "ramping"}})
	Record(m, eventbus.Event{Type: eventbus.EventTypeRampState, Fields: map[string]any{"state": "extinguished"}})

	assert.Equal(t, 1.0, value(t, reg, "sunrised_ramp_state", map[string]string{"state": "idle"}))
	assert.Equal(t, 0.0, value(t, reg, "sunrised_ramp_state", map[string]string{"state": "ramping"}))
}

func TestSetDuty(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(true, reg)

	m.SetDuty(1, 4095)

	assert.Equal(t, 4095.0, value(t, reg, "sunrised_channel_duty", map[string]string{"channel": "1"}))
}
