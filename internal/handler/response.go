package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/observability"
)

// SessionResponse is the session view returned to the page.
type SessionResponse struct {
	State   string       `json:"state"`
	Loading bool         `json:"loading"`
	User    *domain.User `json:"user"`
}

func newSessionResponse(s domain.Snapshot) SessionResponse {
	return SessionResponse{
		State:   s.State().String(),
		Loading: s.Loading,
		User:    s.User,
	}
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error  string                 `json:"error"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observability.Error("failed to encode response", "error", err)
	}
}

// writeError maps err onto a status code and a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *domain.ValidationError
	var authErr *domain.AuthError

	switch {
	case errors.As(err, &validationErr):
		fields := make(map[string]interface{}, len(validationErr.Fields))
		for k, v := range validationErr.Fields {
			fields[k] = v
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid input", Fields: fields})
	case errors.As(err, &authErr):
		status := authErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadRequest
		}
		var fields map[string]interface{}
		if len(authErr.Fields) > 0 {
			fields = make(map[string]interface{}, len(authErr.Fields))
			for k, v := range authErr.Fields {
				fields[k] = v
			}
		}
		writeJSON(w, status, ErrorResponse{Error: authErr.Error(), Fields: fields})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Not authenticated"})
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Authentication service unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Request cancelled"})
	default:
		observability.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Fields: map[string]string{"body": "invalid request body"}}
	}
	return nil
}
