package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jobboard-portal/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID            string
	Username      string
	Email         string
	UserType      domain.UserType
	IsApproved    *bool
	EmailVerified *bool
	FirstName     string
	LastName      string
}

// NewTestUser creates an approved, verified candidate unless options say
// otherwise.
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{
		ID:            nextID("user"),
		Username:      fmt.Sprintf("testuser%d", idCounter.Load()),
		UserType:      domain.Candidat,
		IsApproved:    domain.Bool(true),
		EmailVerified: domain.Bool(true),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = o.Username + "@example.com"
	}

	return &domain.User{
		ID:            o.ID,
		Username:      o.Username,
		Email:         o.Email,
		UserType:      o.UserType,
		IsApproved:    o.IsApproved,
		EmailVerified: o.EmailVerified,
		FirstName:     o.FirstName,
		LastName:      o.LastName,
	}
}

func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

func WithUserType(t domain.UserType) func(*UserOptions) {
	return func(o *UserOptions) {
		o.UserType = t
	}
}

func WithApproved(v bool) func(*UserOptions) {
	return func(o *UserOptions) {
		o.IsApproved = domain.Bool(v)
	}
}

func WithEmailVerified(v bool) func(*UserOptions) {
	return func(o *UserOptions) {
		o.EmailVerified = domain.Bool(v)
	}
}

// WithoutFlags leaves is_approved and email_verified unset, as an older
// backend would.
func WithoutFlags() func(*UserOptions) {
	return func(o *UserOptions) {
		o.IsApproved = nil
		o.EmailVerified = nil
	}
}

func WithName(first, last string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.FirstName = first
		o.LastName = last
	}
}

// NewTestToken returns an opaque token unique within the test binary.
func NewTestToken() string {
	return nextID("token")
}

// NewClientID returns a fresh client instance id.
func NewClientID() string {
	return uuid.NewString()
}

// NewTestRegistration returns a registration that passes validation.
func NewTestRegistration(userType domain.UserType) domain.Registration {
	name := fmt.Sprintf("newuser%d", idCounter.Add(1))
	return domain.Registration{
		Username:      name,
		Email:         name + "@example.com",
		Password:      "secret123",
		Password2:     "secret123",
		UserType:      userType,
		FirstName:     "Test",
		LastName:      "User",
		TermsAccepted: true,
	}
}

// CredentialOptions allows customizing stored credential fixtures
type CredentialOptions struct {
	ClientID  string
	Token     string
	User      *domain.User
	UpdatedAt time.Time
}

func NewTestCredential(opts ...func(*CredentialOptions)) *domain.StoredCredential {
	o := &CredentialOptions{
		ClientID:  NewClientID(),
		Token:     NewTestToken(),
		User:      NewTestUser(),
		UpdatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.StoredCredential{
		ClientID:  o.ClientID,
		Token:     o.Token,
		User:      o.User,
		UpdatedAt: o.UpdatedAt,
	}
}

func WithClientID(id string) func(*CredentialOptions) {
	return func(o *CredentialOptions) {
		o.ClientID = id
	}
}

func WithToken(token string) func(*CredentialOptions) {
	return func(o *CredentialOptions) {
		o.Token = token
	}
}

func WithCredentialUser(u *domain.User) func(*CredentialOptions) {
	return func(o *CredentialOptions) {
		o.User = u
	}
}

func WithUpdatedAt(t time.Time) func(*CredentialOptions) {
	return func(o *CredentialOptions) {
		o.UpdatedAt = t
	}
}

// ResetIDCounter resets the ID counter (useful for deterministic tests)
func ResetIDCounter() {
	idCounter.Store(0)
}
