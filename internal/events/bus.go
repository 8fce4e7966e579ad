// Package events provides the process-wide publish/subscribe bus.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

const (
	defaultBufferSize = 256
	// subscriberQueueSize bounds each listener's private queue. A listener
	// that falls this far behind starts losing events rather than blocking
	// the bus.
	subscriberQueueSize = 64

	// MatchAll subscribes a handler to every event type.
	MatchAll = "*"
)

// Bus fans events out to subscribers. Ordering across listeners is
// unspecified; ordering from the bus to a single listener is FIFO.
type Bus struct {
	logger  hclog.Logger
	storage Storage

	mu      sync.RWMutex
	subs    map[string]*subscription
	byType  map[string][]string
	running bool
	stats   Stats

	ch     chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type subscription struct {
	id        string
	eventType string
	handler   Handler
	queue     chan Event
	done      chan struct{}

	// closed is guarded by the bus mutex. The queue is only ever closed with
	// the mutex held and closed set, and handleEvent only sends with the
	// mutex held and closed unset, so a send on a closed queue cannot
	// interleave.
	closed bool
}

// NewBus creates a bus. storage may be nil for a purely in-memory bus.
func NewBus(logger hclog.Logger, storage Storage) *Bus {
	return &Bus{
		logger:  logger.Named("events"),
		storage: storage,
		subs:    make(map[string]*subscription),
		byType:  make(map[string][]string),
		ch:      make(chan Event, defaultBufferSize),
		stopCh:  make(chan struct{}),
		stats:   Stats{EventsByType: make(map[string]int64)},
	}
}

// Start launches the event processor.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("event bus is already running")
	}
	b.running = true
	b.stopCh = make(chan struct{})

	b.wg.Add(1)
	go b.processEvents(ctx)

	b.logger.Info("event bus started", "buffer_size", defaultBufferSize)
	return nil
}

// Stop drains subscribers and shuts the bus down.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	for _, s := range b.subs {
		if !s.closed {
			s.closed = true
			close(s.queue)
		}
	}
	b.subs = make(map[string]*subscription)
	b.byType = make(map[string][]string)
	b.mu.Unlock()

	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out")
		return ctx.Err()
	}

	if b.storage != nil {
		return b.storage.Close()
	}
	return nil
}

// Publish enqueues an event without blocking the emitter. A full bus drops
// the event with a warning.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return fmt.Errorf("event bus is not running")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	select {
	case b.ch <- event:
		return nil
	default:
		b.mu.Lock()
		b.stats.DroppedEvents++
		b.mu.Unlock()
		b.logger.Warn("event channel full, dropping event", "event_type", event.Type, "event_id", event.ID)
		return fmt.Errorf("event channel full")
	}
}

// Subscribe registers a handler for one event type, or all types with
// MatchAll. The returned ID can be passed to Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	sub := &subscription{
		id:        "sub-" + uuid.NewString(),
		eventType: eventType,
		handler:   handler,
		queue:     make(chan Event, subscriberQueueSize),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.byType[eventType] = append(b.byType[eventType], sub.id)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.deliver(sub)

	b.logger.Debug("subscription created", "subscription_id", sub.id, "type", eventType)
	return sub.id
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(subscriptionID string) error {
	b.mu.Lock()
	sub, ok := b.subs[subscriptionID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(b.subs, subscriptionID)
	ids := b.byType[sub.eventType]
	for i, id := range ids {
		if id == subscriptionID {
			b.byType[sub.eventType] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if !sub.closed {
		sub.closed = true
		close(sub.queue)
	}
	b.mu.Unlock()
	return nil
}

// GetStats returns cumulative counters.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		TotalEvents:         b.stats.TotalEvents,
		DroppedEvents:       b.stats.DroppedEvents,
		EventsByType:        make(map[string]int64, len(b.stats.EventsByType)),
		ActiveSubscriptions: len(b.subs),
	}
	for k, v := range b.stats.EventsByType {
		stats.EventsByType[k] = v
	}
	return stats
}

// Recent returns the most recent stored events, newest first. Returns nil
// when the bus has no storage.
func (b *Bus) Recent(limit int) ([]Event, error) {
	if b.storage == nil {
		return nil, nil
	}
	return b.storage.Recent(limit)
}

func (b *Bus) processEvents(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case event := <-b.ch:
			b.handleEvent(event)
		}
	}
}

func (b *Bus) handleEvent(event Event) {
	if b.storage != nil {
		if err := b.storage.Store(event); err != nil {
			b.logger.Error("failed to store event", "error", err, "event_id", event.ID)
		}
	}

	// Enqueueing happens under the mutex so it cannot interleave with
	// Unsubscribe or Stop closing a queue. Sends are non-blocking, so the
	// lock is never held across a wait.
	b.mu.Lock()
	b.stats.TotalEvents++
	b.stats.EventsByType[event.Type]++

	var dropped []string
	enqueue := func(id string) {
		sub, ok := b.subs[id]
		if !ok || sub.closed {
			return
		}
		select {
		case sub.queue <- event:
		default:
			b.stats.DroppedEvents++
			dropped = append(dropped, sub.id)
		}
	}
	for _, id := range b.byType[event.Type] {
		enqueue(id)
	}
	for _, id := range b.byType[MatchAll] {
		enqueue(id)
	}
	b.mu.Unlock()

	for _, id := range dropped {
		b.logger.Warn("subscriber queue full, dropping event",
			"subscription_id", id, "event_type", event.Type)
	}
}

// deliver drains one subscriber's queue. Handler panics are contained so a
// broken listener cannot take down the bus.
func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()
	defer close(sub.done)

	for event := range sub.queue {
		b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in event handler",
				"subscription_id", sub.id, "error", r, "event_id", event.ID)
		}
	}()
	sub.handler(event)
}
