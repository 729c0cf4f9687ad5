package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/observability"
)

// LoginPath is where an invalidated instance is sent.
const LoginPath = "/login"

// AuthClient is the per-instance view of the auth backend the manager drives.
type AuthClient interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error)
	Logout(ctx context.Context) error
	LogoutAllSessions(ctx context.Context) error
	GetProfile(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, change domain.PasswordChange) error
	ResetPassword(ctx context.Context, email string) error
	ResetPasswordConfirm(ctx context.Context, confirm domain.PasswordResetConfirm) error
	IsAuthenticated(ctx context.Context) bool
	GetCurrentUser(ctx context.Context) *domain.User
	ClearAuthData(ctx context.Context) error
}

// Manager owns the session of one client instance. Every operation that
// changes the session runs alone; others wait their turn or give up when
// their context ends. HandleAuthError is the exception: it never waits, and
// results of operations that were in flight when it ran are discarded.
type Manager struct {
	clientID  string
	client    AuthClient
	publisher events.Publisher
	store     *Store

	sem         chan struct{}
	initialized atomic.Bool
	lastSeen    atomic.Int64
}

func NewManager(clientID string, client AuthClient, publisher events.Publisher) *Manager {
	m := &Manager{
		clientID:  clientID,
		client:    client,
		publisher: publisher,
		store:     NewStore(),
		sem:       make(chan struct{}, 1),
	}
	m.touch()
	return m
}

func (m *Manager) ClientID() string {
	return m.clientID
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() domain.Snapshot {
	return m.store.Snapshot()
}

func (m *Manager) User() *domain.User {
	return m.store.Snapshot().User
}

func (m *Manager) IsAuthenticated() bool {
	return m.store.Snapshot().IsAuthenticated()
}

func (m *Manager) Loading() bool {
	return m.store.Snapshot().Loading
}

func (m *Manager) HasUserType(name string) bool {
	return m.store.Snapshot().HasUserType(name)
}

func (m *Manager) HasAnyUserType(names ...string) bool {
	return m.store.Snapshot().HasAnyUserType(names...)
}

func (m *Manager) HasRole(types ...domain.UserType) bool {
	return m.store.Snapshot().HasRole(types...)
}

func (m *Manager) IsApproved() bool {
	return m.store.Snapshot().IsApproved()
}

func (m *Manager) IsEmailVerified() bool {
	return m.store.Snapshot().IsEmailVerified()
}

// Initialized reports whether the startup check has completed.
func (m *Manager) Initialized() bool {
	return m.initialized.Load()
}

// Busy reports whether an operation is in flight.
func (m *Manager) Busy() bool {
	return len(m.sem) > 0
}

// LastSeen is the last time the instance was used.
func (m *Manager) LastSeen() time.Time {
	return time.Unix(0, m.lastSeen.Load())
}

func (m *Manager) touch() {
	m.lastSeen.Store(time.Now().UnixNano())
}

func (m *Manager) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.sem <- struct{}{}:
		m.touch()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.sem
}

// CheckAuthState reconciles the store with the persisted credential. It
// always leaves loading false once it has run.
func (m *Manager) CheckAuthState(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	defer m.initialized.Store(true)
	defer m.store.setLoading(false)

	epoch := m.store.Epoch()
	if m.client.IsAuthenticated(ctx) {
		if user := m.client.GetCurrentUser(ctx); user != nil && m.store.replaceUserAt(epoch, user) {
			record("check", "authenticated")
			return nil
		}
	}

	m.store.replaceUserAt(epoch, nil)
	if err := m.client.ClearAuthData(ctx); err != nil {
		observability.FromContext(ctx).Warn("failed to clear stale credential",
			"client_id", m.clientID,
			"error", err,
		)
	}
	record("check", "anonymous")
	return nil
}

// Login authenticates the instance. On failure the instance is ANONYMOUS and
// the error is returned unchanged.
func (m *Manager) Login(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	return m.authenticate(ctx, "login", func() (*domain.AuthResult, error) {
		return m.client.Login(ctx, creds)
	})
}

// Register creates an account and authenticates the instance with it.
func (m *Manager) Register(ctx context.Context, reg domain.Registration) (*domain.User, error) {
	return m.authenticate(ctx, "register", func() (*domain.AuthResult, error) {
		return m.client.Register(ctx, reg)
	})
}

func (m *Manager) authenticate(ctx context.Context, op string, call func() (*domain.AuthResult, error)) (*domain.User, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	m.store.setLoading(true)
	defer m.store.setLoading(false)

	epoch := m.store.Epoch()
	result, err := call()
	if err == nil && (result == nil || result.User == nil) {
		err = fmt.Errorf("%s response carried no user: %w", op, domain.ErrBackendUnavailable)
	}
	if err != nil {
		m.clearLocal(ctx)
		record(op, outcome(err))
		observability.FromContext(ctx).Info(op+" failed",
			"client_id", m.clientID,
			"error", err,
		)
		return nil, err
	}

	if !m.store.replaceUserAt(epoch, result.User) {
		return nil, m.discard(ctx, op)
	}
	record(op, "success")
	observability.FromContext(ctx).Info(op+" succeeded",
		"client_id", m.clientID,
		"user_id", result.User.ID,
		"user_type", result.User.UserType.String(),
	)
	return result.User.Clone(), nil
}

// Logout ends the session. Local state is always cleared, whatever the
// backend says; the only error is ctx ending before the logout could start.
func (m *Manager) Logout(ctx context.Context) error {
	return m.logout(ctx, "logout", m.client.Logout)
}

// LogoutAllSessions revokes every token of the user, then clears locally.
func (m *Manager) LogoutAllSessions(ctx context.Context) error {
	return m.logout(ctx, "logout_all", m.client.LogoutAllSessions)
}

func (m *Manager) logout(ctx context.Context, op string, remote func(context.Context) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.store.setLoading(true)
	defer m.store.setLoading(false)

	if err := remote(ctx); err != nil {
		observability.FromContext(ctx).Warn("remote "+op+" failed, clearing local session anyway",
			"client_id", m.clientID,
			"error", err,
		)
		record(op, "remote_failed")
	} else {
		record(op, "success")
	}
	m.clearLocal(ctx)
	return nil
}

// Refresh replaces the cached user with a fresh profile. Failures leave the
// session untouched.
func (m *Manager) Refresh(ctx context.Context) (*domain.User, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	epoch := m.store.Epoch()
	if !m.store.Snapshot().IsAuthenticated() {
		return nil, domain.ErrUnauthorized
	}
	user, err := m.client.GetProfile(ctx)
	if err != nil {
		record("refresh", outcome(err))
		return nil, err
	}
	if !m.store.replaceUserAt(epoch, user) {
		return nil, m.discard(ctx, "refresh")
	}
	record("refresh", "success")
	return user.Clone(), nil
}

// UpdateProfile sends the changes and merges the returned record into the
// cached user.
func (m *Manager) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	epoch := m.store.Epoch()
	if !m.store.Snapshot().IsAuthenticated() {
		return nil, domain.ErrUnauthorized
	}
	user, err := m.client.UpdateProfile(ctx, update)
	if err != nil {
		record("update_profile", outcome(err))
		return nil, err
	}
	if !m.store.mergeUserAt(epoch, user) {
		return nil, m.discard(ctx, "update_profile")
	}
	record("update_profile", "success")
	return m.store.Snapshot().User, nil
}

func (m *Manager) ChangePassword(ctx context.Context, change domain.PasswordChange) error {
	err := m.client.ChangePassword(ctx, change)
	record("change_password", outcome(err))
	return err
}

func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	err := m.client.ResetPassword(ctx, email)
	record("reset_password", outcome(err))
	return err
}

func (m *Manager) ResetPasswordConfirm(ctx context.Context, confirm domain.PasswordResetConfirm) error {
	err := m.client.ResetPasswordConfirm(ctx, confirm)
	record("reset_password_confirm", outcome(err))
	return err
}

// HandleAuthError forces the instance to ANONYMOUS and announces that it must
// go to the login page. It does not call the backend and does not wait for
// operations in flight.
func (m *Manager) HandleAuthError(ctx context.Context) error {
	m.touch()
	m.store.invalidate()
	m.clearCredential(ctx)
	m.initialized.Store(true)

	record("invalidate", "success")
	observability.FromContext(ctx).Info("session invalidated", "client_id", m.clientID)

	if m.publisher == nil {
		return nil
	}
	return m.publisher.Publish(ctx, events.Event{
		Kind:     events.KindSessionInvalidated,
		ClientID: m.clientID,
		Location: LoginPath,
	})
}

// Revalidate invalidates an authenticated instance whose persisted
// credential is gone or expired. Instances that are busy or not yet
// initialized are left alone.
func (m *Manager) Revalidate(ctx context.Context) error {
	if !m.Initialized() || m.Busy() || !m.IsAuthenticated() {
		return nil
	}
	if m.client.IsAuthenticated(ctx) {
		return nil
	}
	observability.FromContext(ctx).Info("persisted credential no longer valid", "client_id", m.clientID)
	return m.HandleAuthError(ctx)
}

// discard drops the result of an operation overtaken by HandleAuthError.
// The operation may have persisted a credential after it was cleared.
func (m *Manager) discard(ctx context.Context, op string) error {
	m.clearCredential(ctx)
	record(op, "invalidated")
	observability.FromContext(ctx).Info(op+" overtaken by invalidation", "client_id", m.clientID)
	return domain.ErrUnauthorized
}

// clearLocal drops the in-memory user and the persisted credential. Callers
// hold the semaphore.
func (m *Manager) clearLocal(ctx context.Context) {
	m.store.clear()
	m.clearCredential(ctx)
}

func (m *Manager) clearCredential(ctx context.Context) {
	if err := m.client.ClearAuthData(context.WithoutCancel(ctx)); err != nil {
		observability.FromContext(ctx).Error("failed to clear persisted credential",
			"client_id", m.clientID,
			"error", err,
		)
	}
}

func record(op, result string) {
	observability.AuthOperationsTotal.WithLabelValues(op, result).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrAuthRejected):
		return "rejected"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
