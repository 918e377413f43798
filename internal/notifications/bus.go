package notifications

import (
	"context"
	"sync"
	"sync/atomic"

	"socialgraph/internal/observability"
)

const defaultSubscriptionBuffer = 64

// Bus fans events out to in-process subscribers. Publishing never blocks: a
// subscriber whose buffer is full loses the event and is later handed an
// EventStreamDegraded marker carrying the number of events it missed.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
}

// NewBus creates a bus whose subscriptions buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	return &Bus{subs: make(map[uint64]*Subscription), buffer: buffer}
}

// Subscription is one consumer of a Bus.
type Subscription struct {
	bus     *Bus
	id      uint64
	name    string
	filter  func(Event) bool
	ch      chan Event
	dropped atomic.Int64
	once    sync.Once
}

// Subscribe registers a consumer. A nil filter accepts every event.
func (b *Bus) Subscribe(name string, filter func(Event) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		bus:    b,
		id:     b.nextID,
		name:   name,
		filter: filter,
		ch:     make(chan Event, b.buffer),
	}
	b.subs[sub.id] = sub
	observability.ActiveSubscriptions.Inc()
	return sub
}

// SubscribeUser registers a consumer for events uid participates in.
func (b *Bus) SubscribeUser(name, uid string) *Subscription {
	return b.Subscribe(name, func(ev Event) bool { return ev.Involves(uid) })
}

// Publish implements Publisher.
func (b *Bus) Publish(_ context.Context, ev Event) {
	observability.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		sub.deliver(ev)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close cancels every subscription.
func (b *Bus) Close() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// deliver is called with the bus read lock held so the channel cannot be
// closed underneath it.
func (s *Subscription) deliver(ev Event) {
	if missed := s.dropped.Load(); missed > 0 {
		select {
		case s.ch <- newDegradedEvent(missed):
			s.dropped.Add(-missed)
		default:
		}
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
		observability.EventDrops.WithLabelValues(s.name, "buffer_full").Inc()
	}
}

// Events returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns the number of events lost since the last degraded marker.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Unsubscribe stops delivery and closes the channel. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.ch)
		s.bus.mu.Unlock()
		observability.ActiveSubscriptions.Dec()
	})
}
