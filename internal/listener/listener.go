// Package listener turns auth-error signals raised anywhere in the portal
// into forced logouts of the affected client instance.
package listener

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"jobboard-portal/internal/events"
	"jobboard-portal/internal/observability"
)

var ErrAlreadyStarted = errors.New("listener already started")

const defaultHandleTimeout = 10 * time.Second

// Invalidator forces a client instance to the logged-out state.
type Invalidator interface {
	HandleAuthError(ctx context.Context, clientID string) error
}

// Listener subscribes to runtime_error, fetch_unauthorized and auth_error
// signals. A runtime_error only counts when it carries status 401.
type Listener struct {
	bus           *events.Bus
	invalidator   Invalidator
	handleTimeout time.Duration

	mu     sync.Mutex
	sub    *events.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

func New(bus *events.Bus, invalidator Invalidator) *Listener {
	return &Listener{
		bus:           bus,
		invalidator:   invalidator,
		handleTimeout: defaultHandleTimeout,
	}
}

// Start subscribes and begins handling signals until ctx ends or Stop is
// called.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	l.sub = l.bus.Subscribe(events.KindRuntimeError, events.KindFetchUnauthorized, events.KindAuthError)
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx, l.sub, l.done)
	observability.Info("auth-error listener started")
	return nil
}

// Stop unsubscribes and waits for the handling goroutine to exit. Stopping a
// listener that is not running does nothing.
func (l *Listener) Stop() {
	l.mu.Lock()
	sub, cancel, done := l.sub, l.cancel, l.done
	l.sub, l.cancel, l.done = nil, nil, nil
	l.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	cancel()
	<-done
	observability.Info("auth-error listener stopped")
}

func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}

func (l *Listener) run(ctx context.Context, sub *events.Subscription, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case e := <-sub.Events():
			l.handle(ctx, e)
		}
	}
}

func (l *Listener) handle(ctx context.Context, e events.Event) {
	if !Qualifies(e) || e.ClientID == "" {
		observability.AuthSignalsTotal.WithLabelValues(string(e.Kind), "false").Inc()
		return
	}
	observability.AuthSignalsTotal.WithLabelValues(string(e.Kind), "true").Inc()

	ctx, cancel := context.WithTimeout(ctx, l.handleTimeout)
	defer cancel()

	if err := l.invalidator.HandleAuthError(ctx, e.ClientID); err != nil {
		observability.FromContext(ctx).Error("failed to invalidate session",
			"client_id", e.ClientID,
			"kind", string(e.Kind),
			"error", err,
		)
		return
	}
	observability.FromContext(ctx).Info("session invalidated by signal",
		"client_id", e.ClientID,
		"kind", string(e.Kind),
		"source", e.Source,
		"status", e.Status,
	)
}

// Qualifies reports whether e should force a logout.
func Qualifies(e events.Event) bool {
	switch e.Kind {
	case events.KindRuntimeError:
		return e.Status == http.StatusUnauthorized
	case events.KindFetchUnauthorized, events.KindAuthError:
		return true
	}
	return false
}
