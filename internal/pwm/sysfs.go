package pwm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSysfsRoot is where the kernel exposes PWM chips.
const DefaultSysfsRoot = "/sys/class/pwm"

// exportWait bounds how long to wait for udev to create an exported pin.
const exportWait = time.Second

// Sysfs drives the pins of one kernel PWM chip through its sysfs files.
type Sysfs struct {
	mu        sync.Mutex
	chipDir   string
	pins      []int
	periodNs  int64
	maxDuty   uint16
	activeLow bool
}

// NewSysfs exports every pin, applies the period and enables the pins at
// zero brightness.
func NewSysfs(ctx context.Context, opts SysfsOptions, pins []int, maxDuty uint16) (*Sysfs, error) {
	if opts.Root == "" {
		opts.Root = DefaultSysfsRoot
	}
	if opts.Period <= 0 {
		return nil, fmt.Errorf("invalid pwm period %s", opts.Period)
	}

	s := &Sysfs{
		chipDir:   filepath.Join(opts.Root, fmt.Sprintf("pwmchip%d", opts.Chip)),
		pins:      pins,
		periodNs:  opts.Period.Nanoseconds(),
		maxDuty:   maxDuty,
		activeLow: opts.ActiveLow,
	}

	if _, err := os.Stat(s.chipDir); err != nil {
		return nil, fmt.Errorf("pwm chip: %w", err)
	}

	for c, pin := range pins {
		if err := s.export(ctx, pin); err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
		if err := s.writeAttr(pin, "period", s.periodNs); err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
		if err := s.writeAttr(pin, "duty_cycle", s.dutyNs(0)); err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
		if err := s.writeAttr(pin, "enable", 1); err != nil {
			return nil, fmt.Errorf("channel %d: %w", c, err)
		}
	}

	log.Info().
		Str("chip", s.chipDir).
		Ints("pins", pins).
		Dur("period", opts.Period).
		Bool("active_low", opts.ActiveLow).
		Msg("Sysfs PWM output ready")
	return s, nil
}

func (s *Sysfs) export(ctx context.Context, pin int) error {
	dir := s.pinDir(pin)
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.WriteFile(filepath.Join(s.chipDir, "export"), []byte(strconv.Itoa(pin)), 0o200); err != nil {
		return fmt.Errorf("export pin %d: %w", pin, err)
	}

	deadline := time.Now().Add(exportWait)
	for {
		if _, err := os.Stat(dir); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pin %d not exported after %s", pin, exportWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// SetDuty writes the duty as a fraction of the period.
func (s *Sysfs) SetDuty(ctx context.Context, channel int, duty uint16) error {
	if err := checkChannel(channel, len(s.pins)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAttr(s.pins[channel], "duty_cycle", s.dutyNs(duty))
}

// Channels returns the number of pins.
func (s *Sysfs) Channels() int { return len(s.pins) }

// MaxDuty returns the full-brightness duty.
func (s *Sysfs) MaxDuty() uint16 { return s.maxDuty }

// Close turns every pin off and disables it.
func (s *Sysfs) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, pin := range s.pins {
		if err := s.writeAttr(pin, "duty_cycle", s.dutyNs(0)); err != nil {
			errs = append(errs, err)
		}
		if err := s.writeAttr(pin, "enable", 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sysfs) dutyNs(duty uint16) int64 {
	duty = min(duty, s.maxDuty)
	if s.activeLow {
		duty = s.maxDuty - duty
	}
	if s.maxDuty == 0 {
		return 0
	}
	return s.periodNs * int64(duty) / int64(s.maxDuty)
}

func (s *Sysfs) pinDir(pin int) string {
	return filepath.Join(s.chipDir, fmt.Sprintf("pwm%d", pin))
}

func (s *Sysfs) writeAttr(pin int, attr string, value int64) error {
	path := filepath.Join(s.pinDir(pin), attr)
	if err := os.WriteFile(path, []byte(strconv.FormatInt(value, 10)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
