package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/session"
	"jobboard-portal/internal/testutil"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
	seen  chan string
}

func newRecordingInvalidator() *recordingInvalidator {
	return &recordingInvalidator{seen: make(chan string, 16)}
}

func (r *recordingInvalidator) HandleAuthError(ctx context.Context, clientID string) error {
	r.mu.Lock()
	r.calls = append(r.calls, clientID)
	r.mu.Unlock()
	r.seen <- clientID
	return nil
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingInvalidator) wait(t *testing.T) string {
	t.Helper()
	select {
	case id := <-r.seen:
		return id
	case <-time.After(time.Second):
		t.Fatal("invalidator was not called")
		return ""
	}
}

func TestListener_HandlesQualifyingSignals(t *testing.T) {
	bus := events.NewBus()
	inv := newRecordingInvalidator()
	l := New(bus, inv)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindRuntimeError, ClientID: "a", Status: 401}))
	assert.Equal(t, "a", inv.wait(t))

	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindFetchUnauthorized, ClientID: "b"}))
	assert.Equal(t, "b", inv.wait(t))

	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindAuthError, ClientID: "c"}))
	assert.Equal(t, "c", inv.wait(t))

	assert.Equal(t, 3, inv.count(), "exactly one call per signal")
}

func TestListener_BusyInstanceDoesNotDelayInvalidation(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.KindSessionInvalidated)
	defer sub.Close()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	defer close(unblock)
	registry := session.NewRegistry(func(clientID string) session.AuthClient {
		client := testutil.NewMockAuthClient()
		if clientID == "a" {
			client.LoginFunc = func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
				close(entered)
				<-unblock
				return nil, testutil.ErrMockBackendDown
			}
		}
		return client
	}, bus)

	ctx := context.Background()
	a, err := registry.Get(ctx, "a")
	require.NoError(t, err)
	b, err := registry.Get(ctx, "b")
	require.NoError(t, err)
	_, err = b.Login(ctx, domain.Credentials{Login: "bob", Password: "secret1"})
	require.NoError(t, err)
	go func() { _, _ = a.Login(ctx, domain.Credentials{Login: "alice", Password: "secret1"}) }()
	<-entered

	l := New(bus, registry)
	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindAuthError, ClientID: "a"}))
	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindAuthError, ClientID: "b"}))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		got[testutil.WaitForEvent(t, sub, time.Second).ClientID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
	assert.True(t, a.Busy())
	assert.False(t, b.IsAuthenticated())
}

func TestListener_IgnoresOtherSignals(t *testing.T) {
	bus := events.NewBus()
	inv := newRecordingInvalidator()
	l := New(bus, inv)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindRuntimeError, ClientID: "a", Status: 500}))
	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindRuntimeError, ClientID: "a"}))
	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindSessionInvalidated, ClientID: "a"}))
	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindAuthError}))
	// A qualifying signal afterwards proves the others were consumed first.
	require.NoError(t, bus.Publish(ctx, events.Event{Kind: events.KindAuthError, ClientID: "z"}))

	assert.Equal(t, "z", inv.wait(t))
	assert.Equal(t, 1, inv.count())
}

func TestListener_StartStop(t *testing.T) {
	bus := events.NewBus()
	inv := newRecordingInvalidator()
	l := New(bus, inv)

	require.NoError(t, l.Start(context.Background()))
	assert.ErrorIs(t, l.Start(context.Background()), ErrAlreadyStarted)
	assert.True(t, l.Running())
	assert.Equal(t, 1, bus.Subscribers())

	l.Stop()
	l.Stop()
	assert.False(t, l.Running())
	assert.Equal(t, 0, bus.Subscribers())

	require.NoError(t, bus.Publish(context.Background(), events.Event{Kind: events.KindAuthError, ClientID: "gone"}))
	assert.Zero(t, inv.count(), "no handling after stop")

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()
	require.NoError(t, bus.Publish(context.Background(), events.Event{Kind: events.KindAuthError, ClientID: "again"}))
	assert.Equal(t, "again", inv.wait(t))
}

func TestListener_StopsWithContext(t *testing.T) {
	bus := events.NewBus()
	l := New(bus, newRecordingInvalidator())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))

	cancel()

	stopped := make(chan struct{})
	go func() {
		l.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop hung after context cancel")
	}
}

func TestQualifies(t *testing.T) {
	assert.True(t, Qualifies(events.Event{Kind: events.KindRuntimeError, Status: 401}))
	assert.False(t, Qualifies(events.Event{Kind: events.KindRuntimeError, Status: 403}))
	assert.True(t, Qualifies(events.Event{Kind: events.KindFetchUnauthorized}))
	assert.True(t, Qualifies(events.Event{Kind: events.KindAuthError}))
	assert.False(t, Qualifies(events.Event{Kind: events.KindSessionInvalidated}))
}
