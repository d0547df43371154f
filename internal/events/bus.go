// Package events delivers lifecycle notifications to observers. Delivery
// is best effort: a slow or absent observer never blocks the publisher.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Publisher is anything events can be published to.
type Publisher interface {
	Publish(name string, payload any)
}

// Event is one published notification.
type Event struct {
	Name    string    `json:"event"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

type subscriber struct {
	ch    chan Event
	names map[string]struct{}
}

func (s *subscriber) wants(name string) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Bus fans events out to in-process subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	now  func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*subscriber]struct{}),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber that receives the named events, or all
// events when no names are given. The returned function unsubscribes and
// closes the channel.
func (b *Bus) Subscribe(buffer int, names ...string) (<-chan Event, func()) {
	s := &subscriber{
		ch:    make(chan Event, buffer),
		names: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		s.names[n] = struct{}{}
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish delivers an event to every interested subscriber whose buffer
// has room. Events for full subscribers are dropped.
func (b *Bus) Publish(name string, payload any) {
	ev := Event{Name: name, Payload: payload, At: b.now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if !s.wants(name) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			slog.Debug("dropping event for slow subscriber", "event", name)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Multi publishes every event to each of its publishers in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(name string, payload any) {
	for _, p := range m {
		p.Publish(name, payload)
	}
}
