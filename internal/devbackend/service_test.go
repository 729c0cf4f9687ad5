package devbackend

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/testutil"
)

func newTestService(opts ...Option) *Service {
	return NewService("test-secret", append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)...)
}

func requireAPIError(t *testing.T, err error, status int) *Error {
	t.Helper()
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr), "expected *Error, got %v", err)
	assert.Equal(t, status, apiErr.Status)
	return apiErr
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("candidate is approved", func(t *testing.T) {
		svc := newTestService()
		result, err := svc.Register(ctx, testutil.NewTestRegistration(domain.Candidat))
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, domain.Candidat, result.User.UserType)
		assert.True(t, *result.User.IsApproved)
		assert.False(t, *result.User.EmailVerified)
	})

	t.Run("recruiter waits for approval", func(t *testing.T) {
		svc := newTestService()
		result, err := svc.Register(ctx, testutil.NewTestRegistration(domain.Recruteur))
		require.NoError(t, err)
		assert.False(t, *result.User.IsApproved)
	})

	t.Run("duplicate username and email", func(t *testing.T) {
		svc := newTestService()
		reg := testutil.NewTestRegistration(domain.Prestataire)
		_, err := svc.Register(ctx, reg)
		require.NoError(t, err)

		_, err = svc.Register(ctx, reg)
		apiErr := requireAPIError(t, err, http.StatusBadRequest)
		assert.Contains(t, apiErr.Fields, "username")
		assert.Contains(t, apiErr.Fields, "email")
		assert.Equal(t, 1, svc.Users())
	})

	t.Run("invalid form", func(t *testing.T) {
		svc := newTestService()
		reg := testutil.NewTestRegistration(domain.Candidat)
		reg.Password2 = "different"
		_, err := svc.Register(ctx, reg)
		apiErr := requireAPIError(t, err, http.StatusBadRequest)
		assert.Contains(t, apiErr.Fields, "password2")
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	reg := testutil.NewTestRegistration(domain.Candidat)
	_, err := svc.Register(ctx, reg)
	require.NoError(t, err)

	t.Run("by username", func(t *testing.T) {
		result, err := svc.Login(ctx, domain.Credentials{Login: reg.Username, Password: reg.Password})
		require.NoError(t, err)
		assert.Equal(t, reg.Username, result.User.Username)
	})

	t.Run("by email with surrounding spaces", func(t *testing.T) {
		_, err := svc.Login(ctx, domain.Credentials{Login: "  " + reg.Email + " ", Password: reg.Password})
		require.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, domain.Credentials{Login: reg.Username, Password: "wrong-password"})
		apiErr := requireAPIError(t, err, http.StatusBadRequest)
		assert.Contains(t, apiErr.Fields, "non_field_errors")
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, domain.Credentials{Login: "nobody", Password: "whatever"})
		requireAPIError(t, err, http.StatusBadRequest)
	})
}

func TestService_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	svc := newTestService(WithClock(clock), WithTokenTTL(time.Minute))

	reg := testutil.NewTestRegistration(domain.Candidat)
	first, err := svc.Register(ctx, reg)
	require.NoError(t, err)
	second, err := svc.Login(ctx, domain.Credentials{Login: reg.Username, Password: reg.Password})
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, id)

	t.Run("logout revokes one token", func(t *testing.T) {
		require.NoError(t, svc.Logout(ctx, first.Token))
		_, err := svc.Authenticate(ctx, first.Token)
		requireAPIError(t, err, http.StatusUnauthorized)

		_, err = svc.Authenticate(ctx, second.Token)
		assert.NoError(t, err)
	})

	t.Run("logout all revokes the rest", func(t *testing.T) {
		require.NoError(t, svc.LogoutAll(ctx, second.User.ID))
		_, err := svc.Authenticate(ctx, second.Token)
		requireAPIError(t, err, http.StatusUnauthorized)

		third, err := svc.Login(ctx, domain.Credentials{Login: reg.Username, Password: reg.Password})
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, third.Token)
		assert.NoError(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		fresh, err := svc.Login(ctx, domain.Credentials{Login: reg.Username, Password: reg.Password})
		require.NoError(t, err)
		now = now.Add(2 * time.Minute)
		_, err = svc.Authenticate(ctx, fresh.Token)
		requireAPIError(t, err, http.StatusUnauthorized)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "not-a-jwt")
		requireAPIError(t, err, http.StatusUnauthorized)
	})
}

func TestService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	taken := testutil.NewTestRegistration(domain.Candidat)
	_, err := svc.Register(ctx, taken)
	require.NoError(t, err)

	verified, err := svc.CreateUser(ctx, testutil.NewTestRegistration(domain.Recruteur), true, true)
	require.NoError(t, err)

	t.Run("partial update", func(t *testing.T) {
		phone := "+33 6 12 34 56 78"
		user, err := svc.UpdateProfile(ctx, verified.ID, domain.ProfileUpdate{Phone: &phone})
		require.NoError(t, err)
		assert.Equal(t, phone, user.Phone)
		assert.Equal(t, verified.Username, user.Username)
		assert.True(t, *user.EmailVerified)
	})

	t.Run("email change clears verification", func(t *testing.T) {
		email := "changed@example.com"
		user, err := svc.UpdateProfile(ctx, verified.ID, domain.ProfileUpdate{Email: &email})
		require.NoError(t, err)
		assert.Equal(t, email, user.Email)
		assert.False(t, *user.EmailVerified)

		_, err = svc.Login(ctx, domain.Credentials{Login: email, Password: "secret123"})
		assert.NoError(t, err)
	})

	t.Run("username taken", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, verified.ID, domain.ProfileUpdate{Username: &taken.Username})
		apiErr := requireAPIError(t, err, http.StatusBadRequest)
		assert.Contains(t, apiErr.Fields, "username")
	})

	t.Run("invalid email", func(t *testing.T) {
		bad := "not-an-email"
		_, err := svc.UpdateProfile(ctx, verified.ID, domain.ProfileUpdate{Email: &bad})
		requireAPIError(t, err, http.StatusBadRequest)
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	reg := testutil.NewTestRegistration(domain.Candidat)
	result, err := svc.Register(ctx, reg)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, result.User.ID, domain.PasswordChange{OldPassword: "wrong-old", NewPassword: "newsecret"})
	apiErr := requireAPIError(t, err, http.StatusBadRequest)
	assert.Contains(t, apiErr.Fields, "old_password")

	require.NoError(t, svc.ChangePassword(ctx, result.User.ID, domain.PasswordChange{OldPassword: reg.Password, NewPassword: "newsecret"}))

	_, err = svc.Login(ctx, domain.Credentials{Login: reg.Username, Password: "newsecret"})
	assert.NoError(t, err)
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	reg := testutil.NewTestRegistration(domain.Candidat)
	result, err := svc.Register(ctx, reg)
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "unknown@example.com"))
	_, ok := svc.PendingResetToken("unknown@example.com")
	assert.False(t, ok)

	require.NoError(t, svc.RequestPasswordReset(ctx, reg.Email))
	token, ok := svc.PendingResetToken(reg.Email)
	require.True(t, ok)

	err = svc.ConfirmPasswordReset(ctx, domain.PasswordResetConfirm{Token: "bogus", NewPassword: "resetpass"})
	requireAPIError(t, err, http.StatusBadRequest)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, domain.PasswordResetConfirm{Token: token, NewPassword: "resetpass"}))

	_, err = svc.Authenticate(ctx, result.Token)
	requireAPIError(t, err, http.StatusUnauthorized)

	_, err = svc.Login(ctx, domain.Credentials{Login: reg.Username, Password: "resetpass"})
	assert.NoError(t, err)

	err = svc.ConfirmPasswordReset(ctx, domain.PasswordResetConfirm{Token: token, NewPassword: "again123"})
	requireAPIError(t, err, http.StatusBadRequest)
}

func TestService_Flags(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	result, err := svc.Register(ctx, testutil.NewTestRegistration(domain.Prestataire))
	require.NoError(t, err)

	user, err := svc.SetApproved(ctx, result.User.ID, true)
	require.NoError(t, err)
	assert.True(t, *user.IsApproved)

	user, err = svc.SetEmailVerified(ctx, result.User.ID, true)
	require.NoError(t, err)
	assert.True(t, *user.EmailVerified)

	_, err = svc.SetApproved(ctx, "missing", true)
	requireAPIError(t, err, http.StatusNotFound)
}
