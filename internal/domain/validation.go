package domain

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const MinPasswordLength = 6

// ValidateCredentials checks the login form before it is submitted.
func ValidateCredentials(c Credentials) error {
	return toValidationError(validation.ValidateStruct(&c,
		validation.Field(&c.Login, validation.Required.Error("email or username is required")),
		validation.Field(&c.Password,
			validation.Required.Error("password is required"),
			validation.Length(MinPasswordLength, 0).Error("password must be at least 6 characters"),
		),
	))
}

// ValidateRegistration checks the sign-up form before it is submitted.
func ValidateRegistration(r Registration) error {
	return toValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required.Error("username is required")),
		validation.Field(&r.Email,
			validation.Required.Error("email is required"),
			is.Email.Error("email is not valid"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("password is required"),
			validation.Length(MinPasswordLength, 0).Error("password must be at least 6 characters"),
		),
		validation.Field(&r.Password2,
			validation.Required.Error("password confirmation is required"),
			validation.By(equalsString(r.Password, "passwords do not match")),
		),
		validation.Field(&r.UserType, validation.By(knownUserType)),
		validation.Field(&r.TermsAccepted, validation.Required.Error("terms must be accepted")),
	))
}

func ValidatePasswordChange(p PasswordChange) error {
	return toValidationError(validation.ValidateStruct(&p,
		validation.Field(&p.OldPassword, validation.Required.Error("current password is required")),
		validation.Field(&p.NewPassword,
			validation.Required.Error("new password is required"),
			validation.Length(MinPasswordLength, 0).Error("password must be at least 6 characters"),
		),
	))
}

func ValidatePasswordResetConfirm(p PasswordResetConfirm) error {
	return toValidationError(validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required.Error("reset token is required")),
		validation.Field(&p.NewPassword,
			validation.Required.Error("new password is required"),
			validation.Length(MinPasswordLength, 0).Error("password must be at least 6 characters"),
		),
	))
}

func ValidateEmail(email string) error {
	err := validation.Validate(email,
		validation.Required.Error("email is required"),
		is.Email.Error("email is not valid"),
	)
	if err != nil {
		return &ValidationError{Fields: map[string]string{"email": err.Error()}}
	}
	return nil
}

func equalsString(expected, message string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != expected {
			return errors.New(message)
		}
		return nil
	}
}

func knownUserType(value interface{}) error {
	t, _ := value.(UserType)
	if t == UserTypeUnknown {
		return errors.New("user type must be one of CANDIDAT, RECRUTEUR, PRESTATAIRE")
	}
	return nil
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		fields[field] = fieldErr.Error()
	}
	return &ValidationError{Fields: fields}
}
