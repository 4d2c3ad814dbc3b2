package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is used when a subscriber asks for a non-positive buffer.
const DefaultBufferSize = 256

// EventBus is a channel-based pub-sub bus for schedule notifications.
// Subscribers either follow one topic or every topic. Slow subscribers lose
// events rather than stall a recalculation.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	allSubs []chan Event
	closed  bool
	dropped atomic.Uint64
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events published to topic.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.subscribe(bufSize, func(ch chan Event) {
		b.subs[topic] = append(b.subs[topic], ch)
	})
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.subscribe(bufSize, func(ch chan Event) {
		b.allSubs = append(b.allSubs, ch)
	})
}

func (b *EventBus) subscribe(bufSize int, register func(chan Event)) <-chan Event {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	register(ch)
	return ch
}

// Publish delivers event to the topic's subscribers and to every
// SubscribeAll channel. It never blocks; full channels miss the event.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		b.send(ch, event)
	}
	for _, ch := range b.allSubs {
		b.send(ch, event)
	}
}

func (b *EventBus) send(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
