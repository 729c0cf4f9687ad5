// Package devbackend is an in-memory stand-in for the job-board REST
// backend, for local development and tests of the portal.
package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/observability"
)

const (
	defaultTokenTTL = time.Hour
	resetTokenTTL   = time.Hour
)

// Error is a rejection in the backend's wire shape: field messages when
// Fields is set, a single detail otherwise.
type Error struct {
	Status int
	Detail string
	Fields map[string][]string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return strings.Join(parts, "; ")
}

func badRequest(fields map[string][]string) *Error {
	return &Error{Status: http.StatusBadRequest, Fields: fields}
}

func unauthorized(detail string) *Error {
	return &Error{Status: http.StatusUnauthorized, Detail: detail}
}

func fromValidation(err error) error {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string][]string, len(ve.Fields))
	for k, v := range ve.Fields {
		fields[k] = []string{v}
	}
	return badRequest(fields)
}

type resetToken struct {
	userID  string
	expires time.Time
}

type Option func(*Service)

func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		s.tokens.ttl = d
	}
}

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.tokens.now = now
	}
}

// Service implements the account operations of the backend.
type Service struct {
	users  *userStore
	tokens *tokenIssuer
	cost   int
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
	resets  map[string]resetToken
}

func NewService(secret string, opts ...Option) *Service {
	s := &Service{
		users:   newUserStore(),
		tokens:  &tokenIssuer{secret: []byte(secret), ttl: defaultTokenTTL, now: time.Now},
		cost:    12,
		now:     time.Now,
		revoked: make(map[string]time.Time),
		resets:  make(map[string]resetToken),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser adds an account with the given flags without issuing a token.
func (s *Service) CreateUser(ctx context.Context, reg domain.Registration, approved, emailVerified bool) (*domain.User, error) {
	if err := domain.ValidateRegistration(reg); err != nil {
		return nil, fromValidation(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acc := &account{
		user: domain.User{
			ID:            uuid.NewString(),
			Username:      strings.TrimSpace(reg.Username),
			Email:         strings.TrimSpace(reg.Email),
			UserType:      reg.UserType,
			IsApproved:    domain.Bool(approved),
			EmailVerified: domain.Bool(emailVerified),
			FirstName:     reg.FirstName,
			LastName:      reg.LastName,
		},
		passwordHash: hash,
	}
	if conflicts := s.users.add(acc); conflicts != nil {
		return nil, badRequest(conflicts)
	}
	return acc.user.Clone(), nil
}

// Register creates an account and logs it in. Candidates are approved
// straight away; recruiters and providers wait for approval.
func (s *Service) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error) {
	user, err := s.CreateUser(ctx, reg, reg.UserType == domain.Candidat, false)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.issue(user.ID, 0)
	if err != nil {
		return nil, err
	}
	observability.FromContext(ctx).Info("account registered",
		"user_id", user.ID,
		"user_type", user.UserType.String(),
	)
	return &domain.AuthResult{User: user, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	if err := domain.ValidateCredentials(creds); err != nil {
		return nil, fromValidation(err)
	}

	invalid := badRequest(map[string][]string{
		"non_field_errors": {"Unable to log in with provided credentials."},
	})

	acc, ok := s.users.lookup(creds.Login)
	if !ok {
		return nil, invalid
	}
	snap, ok := s.users.snapshot(acc.user.ID)
	if !ok {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword(snap.passwordHash, []byte(creds.Password)); err != nil {
		return nil, invalid
	}

	token, err := s.tokens.issue(snap.user.ID, snap.generation)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{User: snap.user.Clone(), Token: token}, nil
}

// Authenticate resolves a bearer token to its user id. Expired, revoked and
// superseded tokens are rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := s.tokens.parse(token)
	if err != nil {
		return "", unauthorized("Invalid token.")
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	s.mu.Unlock()
	if revoked {
		return "", unauthorized("Invalid token.")
	}

	snap, ok := s.users.snapshot(claims.Subject)
	if !ok || snap.generation != claims.Generation {
		return "", unauthorized("Invalid token.")
	}
	return claims.Subject, nil
}

// Logout revokes token only.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.parse(token)
	if err != nil {
		return unauthorized("Invalid token.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for jti, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, jti)
		}
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}

// LogoutAll revokes every token of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	_, _, ok := s.users.update(userID, func(acc *account) map[string][]string {
		acc.generation++
		return nil
	})
	if !ok {
		return unauthorized("Invalid token.")
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*domain.User, error) {
	snap, ok := s.users.snapshot(userID)
	if !ok {
		return nil, unauthorized("Invalid token.")
	}
	return snap.user.Clone(), nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.User, error) {
	if update.Email != nil {
		if err := domain.ValidateEmail(*update.Email); err != nil {
			return nil, fromValidation(err)
		}
	}

	user, errs, ok := s.users.update(userID, func(acc *account) map[string][]string {
		conflicts := map[string][]string{}
		if update.Username != nil && s.users.takenLocked(userID, "username", *update.Username) {
			conflicts["username"] = []string{"A user with that username already exists."}
		}
		if update.Email != nil && s.users.takenLocked(userID, "email", *update.Email) {
			conflicts["email"] = []string{"A user with that email already exists."}
		}
		if len(conflicts) > 0 {
			return conflicts
		}

		if update.Username != nil {
			acc.user.Username = strings.TrimSpace(*update.Username)
		}
		if update.Email != nil && !strings.EqualFold(*update.Email, acc.user.Email) {
			acc.user.Email = strings.TrimSpace(*update.Email)
			acc.user.EmailVerified = domain.Bool(false)
		}
		if update.FirstName != nil {
			acc.user.FirstName = *update.FirstName
		}
		if update.LastName != nil {
			acc.user.LastName = *update.LastName
		}
		if update.Phone != nil {
			acc.user.Phone = *update.Phone
		}
		return nil
	})
	if !ok {
		return nil, unauthorized("Invalid token.")
	}
	if errs != nil {
		return nil, badRequest(errs)
	}
	return &user, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID string, change domain.PasswordChange) error {
	if err := domain.ValidatePasswordChange(change); err != nil {
		return fromValidation(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(change.NewPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, errs, ok := s.users.update(userID, func(acc *account) map[string][]string {
		if bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(change.OldPassword)) != nil {
			return map[string][]string{"old_password": {"Wrong password."}}
		}
		acc.passwordHash = hash
		return nil
	})
	if !ok {
		return unauthorized("Invalid token.")
	}
	if errs != nil {
		return badRequest(errs)
	}
	return nil
}

// RequestPasswordReset issues a reset token when email belongs to an
// account. The outcome is not revealed to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if err := domain.ValidateEmail(email); err != nil {
		return fromValidation(err)
	}
	acc, ok := s.users.lookup(email)
	if !ok {
		return nil
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.resets[token] = resetToken{userID: acc.user.ID, expires: s.now().Add(resetTokenTTL)}
	s.mu.Unlock()

	observability.FromContext(ctx).Info("password reset requested",
		"user_id", acc.user.ID,
		"reset_token", token,
	)
	return nil
}

// PendingResetToken returns the newest unexpired reset token of email.
func (s *Service) PendingResetToken(email string) (string, bool) {
	acc, ok := s.users.lookup(email)
	if !ok {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var best string
	var bestExp time.Time
	for token, rt := range s.resets {
		if rt.userID == acc.user.ID && rt.expires.After(s.now()) && rt.expires.After(bestExp) {
			best, bestExp = token, rt.expires
		}
	}
	return best, best != ""
}

// ConfirmPasswordReset sets the new password and ends every session of
// the account.
func (s *Service) ConfirmPasswordReset(ctx context.Context, confirm domain.PasswordResetConfirm) error {
	if err := domain.ValidatePasswordResetConfirm(confirm); err != nil {
		return fromValidation(err)
	}
	invalid := badRequest(map[string][]string{"token": {"Invalid or expired token."}})

	s.mu.Lock()
	rt, ok := s.resets[confirm.Token]
	if ok {
		delete(s.resets, confirm.Token)
	}
	s.mu.Unlock()
	if !ok || !rt.expires.After(s.now()) {
		return invalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(confirm.NewPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, _, found := s.users.update(rt.userID, func(acc *account) map[string][]string {
		acc.passwordHash = hash
		acc.generation++
		return nil
	})
	if !found {
		return invalid
	}
	return nil
}

// SetApproved flips the approval flag, as an administrator would.
func (s *Service) SetApproved(ctx context.Context, userID string, approved bool) (*domain.User, error) {
	user, _, ok := s.users.update(userID, func(acc *account) map[string][]string {
		acc.user.IsApproved = domain.Bool(approved)
		return nil
	})
	if !ok {
		return nil, &Error{Status: http.StatusNotFound, Detail: "Not found."}
	}
	return &user, nil
}

// SetEmailVerified flips the verification flag, as the emailed link would.
func (s *Service) SetEmailVerified(ctx context.Context, userID string, verified bool) (*domain.User, error) {
	user, _, ok := s.users.update(userID, func(acc *account) map[string][]string {
		acc.user.EmailVerified = domain.Bool(verified)
		return nil
	})
	if !ok {
		return nil, &Error{Status: http.StatusNotFound, Detail: "Not found."}
	}
	return &user, nil
}

// Users reports the number of accounts.
func (s *Service) Users() int {
	return s.users.count()
}
