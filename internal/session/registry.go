package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"jobboard-portal/internal/events"
	"jobboard-portal/internal/observability"
)

// ClientFactory builds the auth client bound to one client instance.
type ClientFactory func(clientID string) AuthClient

// Registry keeps one Manager per client instance.
type Registry struct {
	mu        sync.Mutex
	managers  map[string]*Manager
	factory   ClientFactory
	publisher events.Publisher
}

func NewRegistry(factory ClientFactory, publisher events.Publisher) *Registry {
	return &Registry{
		managers:  make(map[string]*Manager),
		factory:   factory,
		publisher: publisher,
	}
}

// Get returns the manager for clientID, creating it and running the
// startup check on first use. Later calls revalidate the persisted
// credential so an expired token ends the session.
func (r *Registry) Get(ctx context.Context, clientID string) (*Manager, error) {
	if clientID == "" {
		return nil, errors.New("client id is required")
	}

	r.mu.Lock()
	m, ok := r.managers[clientID]
	if !ok {
		m = NewManager(clientID, r.factory(clientID), r.publisher)
		r.managers[clientID] = m
		observability.SessionInstancesActive.Set(float64(len(r.managers)))
	}
	m.touch()
	r.mu.Unlock()

	if !m.Initialized() {
		if err := m.CheckAuthState(ctx); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := m.Revalidate(ctx); err != nil {
		observability.FromContext(ctx).Warn("failed to announce expired session",
			"client_id", clientID,
			"error", err,
		)
	}
	return m, nil
}

// Peek returns the manager for clientID without creating one.
func (r *Registry) Peek(clientID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[clientID]
	return m, ok
}

// HandleAuthError invalidates the session of clientID. An instance with no
// manager only has its persisted credential cleared; no manager is created.
func (r *Registry) HandleAuthError(ctx context.Context, clientID string) error {
	if clientID == "" {
		return errors.New("client id is required")
	}
	if m, ok := r.Peek(clientID); ok {
		return m.HandleAuthError(ctx)
	}

	if err := r.factory(clientID).ClearAuthData(context.WithoutCancel(ctx)); err != nil {
		observability.FromContext(ctx).Error("failed to clear persisted credential",
			"client_id", clientID,
			"error", err,
		)
	}
	record("invalidate", "success")
	observability.FromContext(ctx).Info("session invalidated", "client_id", clientID)
	if r.publisher == nil {
		return nil
	}
	return r.publisher.Publish(ctx, events.Event{
		Kind:     events.KindSessionInvalidated,
		ClientID: clientID,
		Location: LoginPath,
	})
}

// Sweep drops managers idle for longer than ttl. Busy managers are kept.
// The persisted credential is untouched, so a returning instance is
// restored by its startup check.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, m := range r.managers {
		if m.Busy() || m.LastSeen().After(cutoff) {
			continue
		}
		delete(r.managers, id)
		removed++
	}
	observability.SessionInstancesActive.Set(float64(len(r.managers)))
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ttl); n > 0 {
				observability.Debug("evicted idle session managers", "count", n)
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}
