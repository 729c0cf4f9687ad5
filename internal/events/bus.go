package events

import (
	"context"
	"sync"
	"time"
)

// Kind identifies a class of process-wide signal.
type Kind string

const (
	// KindRuntimeError is a generic failure that may carry an HTTP status marker.
	KindRuntimeError Kind = "runtime_error"
	// KindFetchUnauthorized is raised when a backend call answered 401.
	KindFetchUnauthorized Kind = "fetch_unauthorized"
	// KindAuthError is an explicit authentication failure signal.
	KindAuthError Kind = "auth_error"
	// KindSessionInvalidated is emitted after a session was forcibly ended.
	KindSessionInvalidated Kind = "session_invalidated"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindRuntimeError, KindFetchUnauthorized, KindAuthError, KindSessionInvalidated:
		return k, true
	}
	return "", false
}

// Event is a signal addressed to one client instance.
type Event struct {
	Kind     Kind      `json:"type"`
	ClientID string    `json:"client_id"`
	Status   int       `json:"status,omitempty"`
	Source   string    `json:"source,omitempty"`
	Location string    `json:"location,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

const subscriptionBuffer = 64

// Bus fans events out to subscribers. Publish never drops an event for a
// live subscriber; it waits until the subscriber accepts it, closes, or
// ctx is done.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription receives events of the kinds it was created with.
type Subscription struct {
	bus   *Bus
	kinds map[Kind]bool
	ch    chan Event
	done  chan struct{}
	once  sync.Once
}

// Subscribe registers interest in kinds. No kinds means every kind.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	s := &Subscription{
		bus:   b,
		kinds: make(map[Kind]bool, len(kinds)),
		ch:    make(chan Event, subscriptionBuffer),
		done:  make(chan struct{}),
	}
	for _, k := range kinds {
		s.kinds[k] = true
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		if s.wants(e.Kind) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- e:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
