package pwm

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultHueRateLimit keeps well under the bridge's ~10 light commands/s.
const DefaultHueRateLimit = 5.0

// Hue maps each channel to a Hue light and duty to brightness.
// Intermediate duties are dropped when the rate limit is exceeded; off and
// full brightness are always sent.
type Hue struct {
	bridge  *huego.Bridge
	lights  []int
	maxDuty uint16
	limiter *rate.Limiter

	mu   sync.Mutex
	sent []int // last bri per channel, 0 = off, -1 = unknown
}

// NewHue creates a Hue output. No request is made until the first duty.
func NewHue(opts HueOptions, lights []int, maxDuty uint16) *Hue {
	rps := opts.RateLimitRPS
	if rps <= 0 {
		rps = DefaultHueRateLimit
	}
	burst := max(int(rps), 1)

	sent := make([]int, len(lights))
	for i := range sent {
		sent[i] = -1
	}

	log.Info().
		Str("bridge", opts.Bridge).
		Ints("lights", lights).
		Float64("rate_limit_rps", rps).
		Msg("Hue output ready")

	return &Hue{
		bridge:  huego.New(opts.Bridge, opts.Token),
		lights:  lights,
		maxDuty: maxDuty,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		sent:    sent,
	}
}

// SetDuty sets the light's brightness, turning it off at duty 0.
func (h *Hue) SetDuty(ctx context.Context, channel int, duty uint16) error {
	if err := checkChannel(channel, len(h.lights)); err != nil {
		return err
	}
	bri := brightness(duty, h.maxDuty)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sent[channel] == bri {
		return nil
	}

	endpoint := bri == 0 || duty >= h.maxDuty
	if endpoint {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
	} else if !h.limiter.Allow() {
		return nil
	}

	state := huego.State{On: bri > 0}
	if bri > 0 {
		state.Bri = uint8(bri)
	}
	if _, err := h.bridge.SetLightStateContext(ctx, h.lights[channel], state); err != nil {
		return fmt.Errorf("hue light %d: %w", h.lights[channel], err)
	}
	h.sent[channel] = bri
	return nil
}

// Channels returns the number of mapped lights.
func (h *Hue) Channels() int { return len(h.lights) }

// MaxDuty returns the full-brightness duty.
func (h *Hue) MaxDuty() uint16 { return h.maxDuty }

// brightness maps a duty onto Hue's bri scale: 0 is off, 1..254 is on.
func brightness(duty, maxDuty uint16) int {
	if duty == 0 || maxDuty == 0 {
		return 0
	}
	duty = min(duty, maxDuty)
	bri := 1 + int(math.Round(float64(duty)/float64(maxDuty)*253))
	return min(bri, 254)
}
