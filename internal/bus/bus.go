package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Bus is an in-process publish/subscribe event bus. Subscribers select events
// by kind prefix ("engine." receives every engine event).
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	dropped atomic.Uint64
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// It never blocks: a subscriber with a full buffer misses the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with prefix,
// and a function that removes the subscription.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
