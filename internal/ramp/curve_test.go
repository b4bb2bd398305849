package ramp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMaxDuty(t *testing.T) {
	tests := []struct {
		bits     int
		expected uint16
	}{
		{12, 4095},
		{8, 255},
		{10, 1023},
		{16, 65535},
		{1, 1},
		{0, 1},
		{24, 65535},
	}
	for _, tt := range tests {
		if got := MaxDuty(tt.bits); got != tt.expected {
			t.Errorf("MaxDuty(%d) = %d, want %d", tt.bits, got, tt.expected)
		}
	}
}

func TestDuty(t *testing.T) {
	const maxDuty = 4095
	hour := time.Hour

	tests := []struct {
		name     string
		elapsed  time.Duration
		duration time.Duration
		exponent float64
		expected uint16
	}{
		{"start", 0, hour, 1.8, 0},
		{"end", hour, hour, 1.8, maxDuty},
		{"past_end_clamped", 3 * hour, hour, 1.8, maxDuty},
		{"negative_elapsed", -time.Minute, hour, 1.8, 0},
		{"linear_half", 30 * time.Minute, hour, 1.0, 2048},
		{"square_half", 30 * time.Minute, hour, 2.0, 1024},
		{"zero_duration", 0, 0, 1.8, maxDuty},
		{"negative_duration", time.Minute, -time.Minute, 1.8, maxDuty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Duty(tt.elapsed, tt.duration, tt.exponent, maxDuty))
		})
	}
}

func TestDuty_HalfwayScenario(t *testing.T) {
	got := Duty(30*time.Minute, 60*time.Minute, 1.8, 4095)

	want := math.Round(math.Pow(0.5, 1.8) * 4095)
	assert.Equal(t, uint16(want), got)
	assert.InDelta(t, 1180, float64(got), 10)
}

func TestDuty_MonotonicAndBounded(t *testing.T) {
	for _, exponent := range []float64{1.8, 2.0, 2.2} {
		var prev uint16
		for elapsed := -time.Minute; elapsed <= 70*time.Minute; elapsed += 7 * time.Second {
			d := Duty(elapsed, time.Hour, exponent, 4095)
			if d < prev {
				t.Fatalf("exponent %.1f: duty decreased at %s: %d < %d", exponent, elapsed, d, prev)
			}
			if d > 4095 {
				t.Fatalf("exponent %.1f: duty %d above max at %s", exponent, d, elapsed)
			}
			prev = d
		}
		if prev != 4095 {
			t.Errorf("exponent %.1f: final duty %d, want 4095", exponent, prev)
		}
	}
}

func TestCurve_Duty(t *testing.T) {
	c := Curve{Exponent: 2, MaxDuty: 255}
	assert.Equal(t, uint16(64), c.Duty(time.Minute, 2*time.Minute))
}
