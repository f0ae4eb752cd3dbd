// Package event provides the lifecycle notification bus using watermill.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/worldkeeper/worldkeeper/internal/logging"
)

// Topic is the watermill topic every published event is mirrored to.
const Topic = "worldkeeper.lifecycle"

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// Interceptor inspects a cancellable event before the action happens.
// Returning false vetoes the action.
type Interceptor func(event Event) bool

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id uint64
	fn Subscriber
}

type interceptorEntry struct {
	id uint64
	fn Interceptor
}

// Bus is the event bus. Subscribers and interceptors are invoked
// directly, in registration order, to keep type information; every
// published event is also mirrored as JSON onto a watermill gochannel so
// streaming consumers can attach without holding a callback.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers  map[EventType][]subscriberEntry
	global       []subscriberEntry
	interceptors map[EventType][]interceptorEntry

	nextID uint64
	closed bool
}

// NewBus creates a new event bus with watermill infrastructure.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[EventType][]subscriberEntry),
		interceptors: make(map[EventType][]interceptorEntry),
	}
}

// newID generates a unique subscriber ID.
func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribeGlobal(id)
	}
}

// Intercept registers an interceptor for a cancellable event type.
// Returns a function removing it.
func (b *Bus) Intercept(eventType EventType, fn Interceptor) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.interceptors[eventType] = append(b.interceptors[eventType], interceptorEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.interceptors[eventType]
		for i, entry := range entries {
			if entry.id == id {
				b.interceptors[eventType] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// unsubscribe removes a subscriber for a specific event type.
func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// unsubscribeGlobal removes a global subscriber.
func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Allow raises a cancellable event. Interceptors run synchronously in
// registration order; the first veto stops the chain and Allow returns
// false. Allowed events are then delivered like PublishSync.
func (b *Bus) Allow(event Event) bool {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return true
	}
	entries := make([]Interceptor, 0, len(b.interceptors[event.Type]))
	for _, entry := range b.interceptors[event.Type] {
		entries = append(entries, entry.fn)
	}
	b.mu.RUnlock()

	for _, fn := range entries {
		if !fn(event) {
			logging.Debug().Str("type", string(event.Type)).Msg("event vetoed")
			return false
		}
	}

	b.PublishSync(event)
	return true
}

// collect returns all subscribers that should receive event.
func (b *Bus) collect(event Event) []Subscriber {
	subs := make([]Subscriber, 0, len(b.subscribers[event.Type])+len(b.global))
	for _, entry := range b.subscribers[event.Type] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Publish sends an event to all subscribers asynchronously.
// Each subscriber is called in its own goroutine to prevent blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collect(event)
	b.mu.RUnlock()

	b.mirror(event)
	for _, sub := range subs {
		go sub(event)
	}
}

// PublishSync sends an event to all subscribers synchronously.
// All subscribers are called in the current goroutine before returning.
func (b *Bus) PublishSync(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collect(event)
	b.mu.RUnlock()

	b.mirror(event)
	for _, sub := range subs {
		sub(event)
	}
}

// mirror forwards event onto the watermill topic.
func (b *Bus) mirror(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logging.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to encode event")
		return
	}
	if err := b.pubsub.Publish(Topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		logging.Debug().Err(err).Msg("failed to mirror event")
	}
}

// Stream subscribes to the watermill topic. Messages carry the JSON
// encoding of Event and must be acked by the consumer. The channel is
// closed when ctx is done or the bus is closed.
func (b *Bus) Stream(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, Topic)
}

// Close closes the bus and all its subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[EventType][]subscriberEntry)
	b.interceptors = make(map[EventType][]interceptorEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
