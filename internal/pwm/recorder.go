package pwm

import (
	"context"
	"sync"
	"time"
)

// Write is one recorded duty change.
type Write struct {
	Channel int
	Duty    uint16
	At      time.Time
}

// Recorder is an in-memory Output that keeps every write.
type Recorder struct {
	mu       sync.Mutex
	channels int
	maxDuty  uint16
	writes   []Write
	duties   []uint16
	fail     error
}

// NewRecorder creates a recorder with all channels at 0.
func NewRecorder(channels int, maxDuty uint16) *Recorder {
	return &Recorder{
		channels: channels,
		maxDuty:  maxDuty,
		duties:   make([]uint16, channels),
	}
}

// SetDuty records the write, or returns the injected failure.
func (r *Recorder) SetDuty(_ context.Context, channel int, duty uint16) error {
	if err := checkChannel(channel, r.channels); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.writes = append(r.writes, Write{Channel: channel, Duty: duty, At: time.Now()})
	r.duties[channel] = duty
	return nil
}

func (r *Recorder) Channels() int   { return r.channels }
func (r *Recorder) MaxDuty() uint16 { return r.maxDuty }

// Fail makes every following write return err. Nil restores writes.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Writes returns a copy of every recorded write.
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Write(nil), r.writes...)
}

// Duties returns the current duty of every channel.
func (r *Recorder) Duties() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint16(nil), r.duties...)
}

// Peak returns the highest duty written to channel.
func (r *Recorder) Peak(channel int) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var p uint16
	for _, w := range r.writes {
		if w.Channel == channel && w.Duty > p {
			p = w.Duty
		}
	}
	return p
}
