// Package eventbus fans sunrise lifecycle events out to observers
// (metrics, MQTT) on a bounded worker pool.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeTrigger        EventType = "trigger"         // a sunrise session is starting
	EventTypeRampState      EventType = "ramp_state"      // the ramp machine changed state
	EventTypeSync           EventType = "sync"            // a sync resource finished
	EventTypeConfigApplied  EventType = "config_applied"  // a new config was persisted
	EventTypeConfigFallback EventType = "config_fallback" // persisted config was invalid
	EventTypeOutputError    EventType = "output_error"    // a duty write failed
)

// Default configuration
const (
	DefaultWorkerCount = 2
	DefaultQueueSize   = 64
)

// Event is a lifecycle notification. Fields carries event-specific values
// and is safe to serialize as-is.
type Event struct {
	Type   EventType      `json:"type"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Handler is a function that handles events
type Handler func(Event)

// Publisher is the narrow interface producers depend on.
type Publisher interface {
	Publish(event Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

type delivery struct {
	event   Event
	handler Handler
}

// Bus routes events to subscribed handlers via a worker pool.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]Handler
	allHandlers []Handler

	queue chan delivery
	wg    sync.WaitGroup

	closing   chan struct{}
	closeOnce sync.Once
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	b := &Bus{
		handlers: make(map[EventType][]Handler),
		queue:    make(chan delivery, queueSize),
		closing:  make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for d := range b.queue {
		b.deliver(id, d)
	}
}

func (b *Bus) deliver(worker int, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", string(d.event.Type)).
				Int("worker", worker).
				Msg("Event handler panicked")
		}
	}()
	d.handler(d.event)
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allHandlers = append(b.allHandlers, handler)
}

// Publish queues the event for every matching handler.
// Never blocks: when the queue is full or the bus is closing, the event is dropped.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	// Held across the sends: Close must not close the queue under a sender.
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.closing:
		log.Debug().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
		return
	default:
	}

	for _, handler := range b.handlers[event.Type] {
		b.enqueue(event, handler)
	}
	for _, handler := range b.allHandlers {
		b.enqueue(event, handler)
	}
}

func (b *Bus) enqueue(event Event, handler Handler) {
	select {
	case b.queue <- delivery{event: event, handler: handler}:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("Event bus queue full, dropping event")
	}
}

// Close stops accepting events, drains the queue and waits for workers
// until ctx expires.
func (b *Bus) Close(ctx context.Context) {
	first := false
	b.closeOnce.Do(func() {
		close(b.closing)
		first = true
	})
	if !first {
		return
	}

	b.mu.Lock()
	close(b.queue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
