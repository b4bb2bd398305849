// Package ramp computes and drives the staggered exponential brightness ramp
// of a sunrise session.
package ramp

import (
	"math"
	"time"

	"github.com/dokzlo13/sunrised/internal/x/mathx"
)

// DefaultExponent shapes the curve so brightness rises slowly at first.
const DefaultExponent = 1.8

// MaxDuty returns the highest duty value at the given PWM resolution.
// Resolutions outside 1-16 bits are clamped.
func MaxDuty(resolutionBits int) uint16 {
	bits := mathx.Clamp(resolutionBits, 1, 16)
	return uint16((1 << bits) - 1)
}

// Duty returns round((localElapsed/localDuration)^exponent * maxDuty),
// with progress clamped to [0, 1]. A non-positive localDuration counts as
// already complete.
func Duty(localElapsed, localDuration time.Duration, exponent float64, maxDuty uint16) uint16 {
	if localDuration <= 0 {
		return maxDuty
	}

	progress := mathx.Clamp(float64(localElapsed)/float64(localDuration), 0, 1)
	v := math.Round(math.Pow(progress, exponent) * float64(maxDuty))

	return uint16(mathx.Clamp(v, 0, float64(maxDuty)))
}

// Curve binds the tuning constants used for every channel of a session.
type Curve struct {
	Exponent float64
	MaxDuty  uint16
}

// Duty evaluates the curve for one channel.
func (c Curve) Duty(localElapsed, localDuration time.Duration) uint16 {
	return Duty(localElapsed, localDuration, c.Exponent, c.MaxDuty)
}
