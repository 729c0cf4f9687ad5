package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/testutil"
)

type clientSet struct {
	mu      sync.Mutex
	clients map[string]*testutil.MockAuthClient
}

func (c *clientSet) factory(clientID string) AuthClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[clientID]; ok {
		return cl
	}
	cl := testutil.NewMockAuthClient()
	c.clients[clientID] = cl
	return cl
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[string]*testutil.MockAuthClient)}
}

func TestRegistry_Get(t *testing.T) {
	t.Run("creates_and_initializes_once", func(t *testing.T) {
		set := newClientSet()
		r := NewRegistry(set.factory, nil)

		m1, err := r.Get(context.Background(), "tab-1")
		require.NoError(t, err)
		m2, err := r.Get(context.Background(), "tab-1")
		require.NoError(t, err)

		assert.Same(t, m1, m2)
		assert.True(t, m1.Initialized())
		assert.False(t, m1.Loading())
		assert.Equal(t, 1, r.Len())
	})

	t.Run("instances_are_independent", func(t *testing.T) {
		set := newClientSet()
		r := NewRegistry(set.factory, nil)

		a, err := r.Get(context.Background(), "tab-a")
		require.NoError(t, err)
		b, err := r.Get(context.Background(), "tab-b")
		require.NoError(t, err)

		_, err = a.Login(context.Background(), domain.Credentials{Login: "alice", Password: "secret1"})
		require.NoError(t, err)

		assert.True(t, a.IsAuthenticated())
		assert.False(t, b.IsAuthenticated())
	})

	t.Run("rejects_empty_id", func(t *testing.T) {
		r := NewRegistry(newClientSet().factory, nil)
		_, err := r.Get(context.Background(), "")
		assert.Error(t, err)
	})

	t.Run("retries_startup_check_after_cancellation", func(t *testing.T) {
		r := NewRegistry(newClientSet().factory, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r.mu.Lock()
		m := NewManager("tab", testutil.NewMockAuthClient(), nil)
		r.managers["tab"] = m
		r.mu.Unlock()
		m.sem <- struct{}{}

		_, err := r.Get(ctx, "tab")
		assert.ErrorIs(t, err, context.Canceled)
		m.release()

		got, err := r.Get(context.Background(), "tab")
		require.NoError(t, err)
		assert.True(t, got.Initialized())
	})

	t.Run("ends_session_when_credential_is_gone", func(t *testing.T) {
		set := newClientSet()
		pub := &testutil.RecordingPublisher{}
		r := NewRegistry(set.factory, pub)
		m, err := r.Get(context.Background(), "tab-1")
		require.NoError(t, err)
		_, err = m.Login(context.Background(), domain.Credentials{Login: "alice", Password: "secret1"})
		require.NoError(t, err)

		set.clients["tab-1"].Token = ""
		got, err := r.Get(context.Background(), "tab-1")
		require.NoError(t, err)

		assert.Same(t, m, got)
		assert.False(t, got.IsAuthenticated())
		assert.Equal(t, 1, pub.Count(events.KindSessionInvalidated))
	})

	t.Run("refreshes_last_seen", func(t *testing.T) {
		r := NewRegistry(newClientSet().factory, nil)
		m, err := r.Get(context.Background(), "tab-1")
		require.NoError(t, err)
		m.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())

		_, err = r.Get(context.Background(), "tab-1")
		require.NoError(t, err)

		assert.Zero(t, r.Sweep(10*time.Minute))
		assert.WithinDuration(t, time.Now(), m.LastSeen(), time.Minute)
	})
}

func TestRegistry_HandleAuthError(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.KindSessionInvalidated)
	defer sub.Close()

	set := newClientSet()
	r := NewRegistry(set.factory, bus)
	m, err := r.Get(context.Background(), "tab-1")
	require.NoError(t, err)
	_, err = m.Login(context.Background(), domain.Credentials{Login: "alice", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, r.HandleAuthError(context.Background(), "tab-1"))

	assert.False(t, m.IsAuthenticated())
	e := testutil.WaitForEvent(t, sub, time.Second)
	assert.Equal(t, "tab-1", e.ClientID)
	assert.Equal(t, LoginPath, e.Location)
}

func TestRegistry_HandleAuthErrorUnknownClient(t *testing.T) {
	set := newClientSet()
	pub := &testutil.RecordingPublisher{}
	r := NewRegistry(set.factory, pub)

	require.NoError(t, r.HandleAuthError(context.Background(), "gone"))

	assert.Zero(t, r.Len())
	_, ok := r.Peek("gone")
	assert.False(t, ok)
	assert.Equal(t, 1, set.clients["gone"].CallCount("ClearAuthData"))
	published := pub.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.KindSessionInvalidated, published[0].Kind)
	assert.Equal(t, "gone", published[0].ClientID)
}

func TestRegistry_HandleAuthErrorDoesNotWaitForBusyInstance(t *testing.T) {
	r := NewRegistry(newClientSet().factory, nil)
	m, err := r.Get(context.Background(), "busy")
	require.NoError(t, err)
	m.sem <- struct{}{}
	defer m.release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, r.HandleAuthError(ctx, "busy"))
	assert.False(t, m.IsAuthenticated())
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(newClientSet().factory, nil)

	idle, err := r.Get(context.Background(), "idle")
	require.NoError(t, err)
	_, err = r.Get(context.Background(), "fresh")
	require.NoError(t, err)
	busy, err := r.Get(context.Background(), "busy")
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour).UnixNano()
	idle.lastSeen.Store(old)
	busy.lastSeen.Store(old)
	busy.sem <- struct{}{}
	defer busy.release()

	removed := r.Sweep(10 * time.Minute)

	assert.Equal(t, 1, removed)
	_, ok := r.Peek("idle")
	assert.False(t, ok)
	_, ok = r.Peek("fresh")
	assert.True(t, ok)
	_, ok = r.Peek("busy")
	assert.True(t, ok)
}

func TestRegistry_RunSweeperStopsWithContext(t *testing.T) {
	r := NewRegistry(newClientSet().factory, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
