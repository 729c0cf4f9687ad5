package domain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// ValidationError holds client-side form errors keyed by field name.
// It is raised before any network call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// AuthError is a rejection returned by the backend on login, registration
// or password operations. Fields carries the server's messages keyed by
// field name (login, password, non_field_errors, ...).
type AuthError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if msgs := e.Fields["non_field_errors"]; len(msgs) > 0 {
		return msgs[0]
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(e.Fields[k]) > 0 {
			return k + ": " + e.Fields[k][0]
		}
	}
	return fmt.Sprintf("authentication rejected (status %d)", e.Status)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuthRejected
}

// StatusError marks an error with the HTTP status that produced it.
type StatusError struct {
	Status int
	Err    error
}

func NewStatusError(status int, err error) *StatusError {
	return &StatusError{Status: status, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Status)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) StatusCode() int {
	return e.Status
}

// StatusOf extracts the HTTP status marker carried by err, if any.
func StatusOf(err error) (int, bool) {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode(), true
	}
	return 0, false
}
