package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegistration() Registration {
	return Registration{
		Username:      "ada",
		Email:         "ada@example.com",
		Password:      "secret123",
		Password2:     "secret123",
		UserType:      Candidat,
		TermsAccepted: true,
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr.Fields
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials(Credentials{Login: "ada", Password: "secret1"}))

	err := ValidateCredentials(Credentials{Password: "abc"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "login")
	assert.Equal(t, "password must be at least 6 characters", fields["password"])
}

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Registration)
		field  string
	}{
		{"missing_username", func(r *Registration) { r.Username = "" }, "username"},
		{"bad_email", func(r *Registration) { r.Email = "not-an-email" }, "email"},
		{"short_password", func(r *Registration) { r.Password, r.Password2 = "abc", "abc" }, "password"},
		{"mismatched_confirmation", func(r *Registration) { r.Password2 = "other123" }, "password2"},
		{"unknown_role", func(r *Registration) { r.UserType = UserTypeUnknown }, "user_type"},
		{"terms_not_accepted", func(r *Registration) { r.TermsAccepted = false }, "terms_accepted"},
	}

	require.NoError(t, ValidateRegistration(validRegistration()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRegistration()
			tt.mutate(&r)
			fields := fieldsOf(t, ValidateRegistration(r))
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidatePasswordOperations(t *testing.T) {
	assert.NoError(t, ValidatePasswordChange(PasswordChange{OldPassword: "old", NewPassword: "secret123"}))
	assert.Contains(t, fieldsOf(t, ValidatePasswordChange(PasswordChange{NewPassword: "secret123"})), "old_password")

	assert.NoError(t, ValidatePasswordResetConfirm(PasswordResetConfirm{Token: "t", NewPassword: "secret123"}))
	assert.Contains(t, fieldsOf(t, ValidatePasswordResetConfirm(PasswordResetConfirm{Token: "t", NewPassword: "x"})), "new_password")

	assert.NoError(t, ValidateEmail("ada@example.com"))
	assert.Equal(t, "email is not valid", fieldsOf(t, ValidateEmail("nope"))["email"])
}
