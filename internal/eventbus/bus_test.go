package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitGroupTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
}

func TestBus_DeliversToTypedAndWildcardHandlers(t *testing.T) {
	b := NewWithConfig(2, 16)
	defer b.Close(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	var got []string

	b.Subscribe(EventTypeTrigger, func(e Event) {
		mu.Lock()
		got = append(got, "typed:"+string(e.Type))
		mu.Unlock()
		wg.Done()
	})
	b.SubscribeAll(func(e Event) {
		mu.Lock()
		got = append(got, "all:"+string(e.Type))
		mu.Unlock()
		wg.Done()
	})
	b.Subscribe(EventTypeSync, func(e Event) {
		t.Error("sync handler must not receive trigger events")
	})

	b.Publish(Event{Type: EventTypeTrigger})
	waitGroupTimeout(t, &wg)

	assert.ElementsMatch(t, []string{"typed:trigger", "all:trigger"}, got)
}

func TestBus_StampsTime(t *testing.T) {
	b := NewWithConfig(0, 0)
	defer b.Close(context.Background())

	received := make(chan Event, 1)
	b.SubscribeAll(func(e Event) { received <- e })
	b.Publish(Event{Type: EventTypeSync})

	select {
	case e := <-received:
		assert.False(t, e.Time.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_RecoversFromPanickingHandler(t *testing.T) {
	b := NewWithConfig(1, 8)
	defer b.Close(context.Background())

	received := make(chan struct{}, 1)
	b.Subscribe(EventTypeRampState, func(Event) { panic("boom") })
	b.Subscribe(EventTypeRampState, func(Event) { received <- struct{}{} })

	b.Publish(Event{Type: EventTypeRampState})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler should still run after a panic")
	}
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := NewWithConfig(1, 1)
	b.SubscribeAll(func(Event) { t.Error("no delivery expected after close") })
	b.Close(context.Background())

	require.NotPanics(t, func() {
		b.Publish(Event{Type: EventTypeTrigger})
	})
	b.Close(context.Background())
}
