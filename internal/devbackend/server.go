package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/observability"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	tokenKey  contextKey = "token"
)

// Server exposes Service over the backend's REST contract.
type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

// Router returns the backend routes. The /api/dev routes stand in for the
// administrator and the email verification link.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login/", s.login)
		r.Post("/register/", s.register)
		r.Post("/password-reset/", s.passwordReset)
		r.Post("/password-reset/confirm/", s.passwordResetConfirm)

		r.Group(func(r chi.Router) {
			r.Use(s.bearer)
			r.Post("/logout/", s.logout)
			r.Post("/logout-all/", s.logoutAll)
			r.Get("/profile/", s.profile)
			r.Patch("/profile/", s.updateProfile)
			r.Post("/change-password/", s.changePassword)
		})
	})

	r.Route("/api/dev/users/{id}", func(r chi.Router) {
		r.Post("/approve", s.approve)
		r.Post("/verify-email", s.verifyEmail)
	})

	// Any other authenticated resource of the job board answers with the
	// caller's identity, which is enough to exercise the portal's proxy.
	r.With(s.bearer).Get("/api/me/", s.profile)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// bearer authenticates the Authorization header.
func (s *Server) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, unauthorized("Authentication credentials were not provided."))
			return
		}
		userID, err := s.svc.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if !decode(w, r, &creds) {
		return
	}
	result, err := s.svc.Login(r.Context(), creds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var reg domain.Registration
	if !decode(w, r, &reg) {
		return
	}
	result, err := s.svc.Register(r.Context(), reg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey).(string)
	if err := s.svc.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.LogoutAll(r.Context(), userID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Profile(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var update domain.ProfileUpdate
	if !decode(w, r, &update) {
		return
	}
	user, err := s.svc.UpdateProfile(r.Context(), userID(r), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var change domain.PasswordChange
	if !decode(w, r, &change) {
		return
	}
	if err := s.svc.ChangePassword(r.Context(), userID(r), change); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password updated."})
}

func (s *Server) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password reset e-mail has been sent."})
}

func (s *Server) passwordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var confirm domain.PasswordResetConfirm
	if !decode(w, r, &confirm) {
		return
	}
	if err := s.svc.ConfirmPasswordReset(r.Context(), confirm); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password has been reset."})
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.SetApproved(r.Context(), chi.URLParam(r, "id"), true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.SetEmailVerified(r.Context(), chi.URLParam(r, "id"), true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, badRequest(map[string][]string{"non_field_errors": {"Malformed request body."}}))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observability.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		observability.Error("dev backend request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal server error."})
		return
	}
	if len(apiErr.Fields) > 0 {
		writeJSON(w, apiErr.Status, apiErr.Fields)
		return
	}
	writeJSON(w, apiErr.Status, map[string]string{"detail": apiErr.Detail})
}
