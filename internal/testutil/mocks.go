// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the job-board portal.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockBackendDown    = errors.New("mock: backend down")
)

// MockAuthClient implements session.AuthClient for testing. Without
// overrides it behaves like a backend that accepts everything and keeps the
// credential in memory.
type MockAuthClient struct {
	mu sync.Mutex

	// Function overrides - set these to customize behavior
	LoginFunc                func(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	RegisterFunc             func(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error)
	LogoutFunc               func(ctx context.Context) error
	LogoutAllSessionsFunc    func(ctx context.Context) error
	GetProfileFunc           func(ctx context.Context) (*domain.User, error)
	UpdateProfileFunc        func(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error)
	ChangePasswordFunc       func(ctx context.Context, change domain.PasswordChange) error
	ResetPasswordFunc        func(ctx context.Context, email string) error
	ResetPasswordConfirmFunc func(ctx context.Context, confirm domain.PasswordResetConfirm) error
	ClearAuthDataFunc        func(ctx context.Context) error

	// In-memory credential
	Token string
	User  *domain.User

	// Calls counts invocations per method name
	Calls map[string]int
}

func NewMockAuthClient() *MockAuthClient {
	return &MockAuthClient{Calls: make(map[string]int)}
}

// WithStoredCredential seeds the in-memory credential, as if a previous
// login had persisted it.
func (m *MockAuthClient) WithStoredCredential(token string, user *domain.User) *MockAuthClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Token = token
	m.User = user.Clone()
	return m
}

func (m *MockAuthClient) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

func (m *MockAuthClient) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[method]++
}

func (m *MockAuthClient) persist(result *domain.AuthResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Token = result.Token
	m.User = result.User.Clone()
}

func (m *MockAuthClient) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	m.count("Login")
	if m.LoginFunc != nil {
		result, err := m.LoginFunc(ctx, creds)
		if err == nil && result != nil {
			m.persist(result)
		}
		return result, err
	}
	result := &domain.AuthResult{
		User:  NewTestUser(WithUsername(creds.Login)),
		Token: NewTestToken(),
	}
	m.persist(result)
	return result, nil
}

func (m *MockAuthClient) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error) {
	m.count("Register")
	if m.RegisterFunc != nil {
		result, err := m.RegisterFunc(ctx, reg)
		if err == nil && result != nil {
			m.persist(result)
		}
		return result, err
	}
	result := &domain.AuthResult{
		User: NewTestUser(
			WithUsername(reg.Username),
			WithEmail(reg.Email),
			WithUserType(reg.UserType),
		),
		Token: NewTestToken(),
	}
	m.persist(result)
	return result, nil
}

func (m *MockAuthClient) Logout(ctx context.Context) error {
	m.count("Logout")
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

func (m *MockAuthClient) LogoutAllSessions(ctx context.Context) error {
	m.count("LogoutAllSessions")
	if m.LogoutAllSessionsFunc != nil {
		return m.LogoutAllSessionsFunc(ctx)
	}
	return nil
}

func (m *MockAuthClient) GetProfile(ctx context.Context) (*domain.User, error) {
	m.count("GetProfile")
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Token == "" {
		return nil, domain.ErrUnauthorized
	}
	return m.User.Clone(), nil
}

func (m *MockAuthClient) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error) {
	m.count("UpdateProfile")
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, update)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Token == "" {
		return nil, domain.ErrUnauthorized
	}
	patch := &domain.User{}
	if update.FirstName != nil {
		patch.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		patch.LastName = *update.LastName
	}
	if update.Phone != nil {
		patch.Phone = *update.Phone
	}
	if update.Email != nil {
		patch.Email = *update.Email
	}
	if update.Username != nil {
		patch.Username = *update.Username
	}
	m.User = m.User.Merge(patch)
	return m.User.Clone(), nil
}

func (m *MockAuthClient) ChangePassword(ctx context.Context, change domain.PasswordChange) error {
	m.count("ChangePassword")
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, change)
	}
	return nil
}

func (m *MockAuthClient) ResetPassword(ctx context.Context, email string) error {
	m.count("ResetPassword")
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthClient) ResetPasswordConfirm(ctx context.Context, confirm domain.PasswordResetConfirm) error {
	m.count("ResetPasswordConfirm")
	if m.ResetPasswordConfirmFunc != nil {
		return m.ResetPasswordConfirmFunc(ctx, confirm)
	}
	return nil
}

func (m *MockAuthClient) IsAuthenticated(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Token != ""
}

func (m *MockAuthClient) GetCurrentUser(ctx context.Context) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.User.Clone()
}

func (m *MockAuthClient) ClearAuthData(ctx context.Context) error {
	m.count("ClearAuthData")
	if m.ClearAuthDataFunc != nil {
		if err := m.ClearAuthDataFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Token = ""
	m.User = nil
	return nil
}

// MockCredentialRepository implements domain.CredentialRepository for testing
type MockCredentialRepository struct {
	mu sync.RWMutex

	// Function overrides
	GetFunc         func(ctx context.Context, clientID string) (*domain.StoredCredential, error)
	PutFunc         func(ctx context.Context, cred *domain.StoredCredential) error
	DeleteFunc      func(ctx context.Context, clientID string) error
	DeleteStaleFunc func(ctx context.Context, before time.Time) (int64, error)

	// In-memory storage
	Credentials map[string]*domain.StoredCredential
}

func NewMockCredentialRepository() *MockCredentialRepository {
	return &MockCredentialRepository{
		Credentials: make(map[string]*domain.StoredCredential),
	}
}

func (m *MockCredentialRepository) Get(ctx context.Context, clientID string) (*domain.StoredCredential, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, clientID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.Credentials[clientID]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	c := *cred
	c.User = cred.User.Clone()
	return &c, nil
}

func (m *MockCredentialRepository) Put(ctx context.Context, cred *domain.StoredCredential) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, cred)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Credentials == nil {
		m.Credentials = make(map[string]*domain.StoredCredential)
	}
	c := *cred
	c.User = cred.User.Clone()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	m.Credentials[cred.ClientID] = &c
	return nil
}

func (m *MockCredentialRepository) Delete(ctx context.Context, clientID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, clientID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Credentials, clientID)
	return nil
}

func (m *MockCredentialRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	if m.DeleteStaleFunc != nil {
		return m.DeleteStaleFunc(ctx, before)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, c := range m.Credentials {
		if c.UpdatedAt.Before(before) {
			delete(m.Credentials, id)
			n++
		}
	}
	return n, nil
}

// RecordingPublisher implements events.Publisher and keeps every event.
type RecordingPublisher struct {
	mu sync.Mutex

	PublishFunc func(ctx context.Context, e events.Event) error
	Events      []events.Event
}

func (p *RecordingPublisher) Publish(ctx context.Context, e events.Event) error {
	if p.PublishFunc != nil {
		if err := p.PublishFunc(ctx, e); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, e)
	return nil
}

// Published returns a copy of the recorded events.
func (p *RecordingPublisher) Published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.Events))
	copy(out, p.Events)
	return out
}

// Count returns how many events of kind were recorded.
func (p *RecordingPublisher) Count(kind events.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
