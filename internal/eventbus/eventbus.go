// Package eventbus is an in-process publish-subscribe bus used to fan
// indexer/thumbnail events out to SSE clients. Each subscriber gets a
// bounded buffered channel; a slow consumer drops its oldest queued event
// rather than blocking the publisher.
package eventbus

import (
	"sync"
	"time"

	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
)

// Event is one published message: Topic names the channel ("thumbnail-generated",
// "connected"), Data is the JSON-serializable payload.
type Event struct {
	Topic string
	Data  any
}

// DefaultBufferSize is the per-subscriber channel capacity before events
// start being dropped.
const DefaultBufferSize = 32

// Subscription is a single client's view of the bus: Events delivers
// published messages; Close unsubscribes and releases the channel.
type Subscription struct {
	id     uint64
	Events <-chan Event
	bus    *Bus
}

// Close unsubscribes and stops further delivery to this subscription.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

type subscriber struct {
	id     uint64
	ch     chan Event
	topics map[string]struct{} // empty set means "all topics"
}

// Bus is the shared publish-subscribe hub. The zero value is not usable;
// construct with New.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*subscriber
	nextID     uint64
	bufferSize int
}

// New creates a Bus whose subscriber channels are sized bufferSize (or
// DefaultBufferSize if bufferSize <= 0).
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{subs: make(map[uint64]*subscriber), bufferSize: bufferSize}
}

// Subscribe registers a new subscriber. If topics is empty, the subscriber
// receives every published event; otherwise only events whose Topic is in
// the set.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	topicSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		topicSet[t] = struct{}{}
	}

	sub := &subscriber{
		id:     id,
		ch:     make(chan Event, b.bufferSize),
		topics: topicSet,
	}
	b.subs[id] = sub
	metrics.EventBusSubscribers.Set(float64(len(b.subs)))

	return &Subscription{id: id, Events: sub.ch, bus: b}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
		metrics.EventBusSubscribers.Set(float64(len(b.subs)))
	}
}

// Publish fans event out to every subscriber interested in its topic. A
// subscriber whose buffer is full has its oldest queued event dropped to
// make room — publishers never block on a slow consumer.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if len(sub.topics) > 0 {
			if _, interested := sub.topics[event.Topic]; !interested {
				continue
			}
		}
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscriber, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	// Buffer full: drop the oldest queued event and retry once.
	select {
	case <-sub.ch:
		metrics.EventBusDroppedEvents.WithLabelValues(event.Topic).Inc()
		logging.Warn("eventbus: subscriber %d buffer full, dropping oldest %s event", sub.id, event.Topic)
	default:
	}

	select {
	case sub.ch <- event:
	default:
		// Another goroutine raced us and refilled the slot; drop this one too.
		metrics.EventBusDroppedEvents.WithLabelValues(event.Topic).Inc()
	}
}

// SubscriberCount reports the current number of connected subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// KeepAliveInterval is the cadence SSE handlers should use for the
// comment-line keep-alive ping.
const KeepAliveInterval = 15 * time.Second
