package handler

import (
	"net/http"
	"strings"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/session"
)

// AuthHandler exposes the session operations of the calling instance.
type AuthHandler struct{}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// LoginResponse is the session after login or registration together with
// where the page should go next.
type LoginResponse struct {
	SessionResponse
	Redirect string `json:"redirect"`
}

// ResetPasswordRequest represents a password reset request
type ResetPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) manager(w http.ResponseWriter, r *http.Request) (*session.Manager, bool) {
	m, ok := middleware.GetManager(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Session unavailable"})
		return nil, false
	}
	return m, true
}

// Login handles POST /auth/login. A from query parameter pointing inside
// the site wins over the role's home page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var creds domain.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.ValidateCredentials(creds); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := m.Login(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		SessionResponse: newSessionResponse(m.Snapshot()),
		Redirect:        nextLocation(r.URL.Query().Get("from"), user),
	})
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var reg domain.Registration
	if err := decodeBody(r, &reg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.ValidateRegistration(reg); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := m.Register(r.Context(), reg)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, LoginResponse{
		SessionResponse: newSessionResponse(m.Snapshot()),
		Redirect:        domain.HomePath(user.UserType),
	})
}

// Logout handles POST /auth/logout. Backend failures are not reported: the
// local session is cleared regardless.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(m.Snapshot()))
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if err := m.LogoutAllSessions(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(m.Snapshot()))
}

// Session handles GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(m.Snapshot()))
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	if _, err := m.Refresh(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(m.Snapshot()))
}

// UpdateProfile handles PATCH /auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var update domain.ProfileUpdate
	if err := decodeBody(r, &update); err != nil {
		writeError(w, r, err)
		return
	}
	if update.Email != nil {
		if err := domain.ValidateEmail(*update.Email); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if _, err := m.UpdateProfile(r.Context(), update); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(m.Snapshot()))
}

// ChangePassword handles POST /auth/password/change
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var change domain.PasswordChange
	if err := decodeBody(r, &change); err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.ValidatePasswordChange(change); err != nil {
		writeError(w, r, err)
		return
	}

	if err := m.ChangePassword(r.Context(), change); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /auth/password/reset
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.ValidateEmail(req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	if err := m.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetPasswordConfirm handles POST /auth/password/reset/confirm
func (h *AuthHandler) ResetPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	var confirm domain.PasswordResetConfirm
	if err := decodeBody(r, &confirm); err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.ValidatePasswordResetConfirm(confirm); err != nil {
		writeError(w, r, err)
		return
	}

	if err := m.ResetPasswordConfirm(r.Context(), confirm); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nextLocation returns from when it is a path on this site, otherwise the
// home page of the user's role.
func nextLocation(from string, user *domain.User) string {
	if isLocalPath(from) {
		return from
	}
	if user == nil {
		return domain.HomePath(domain.UserTypeUnknown)
	}
	return domain.HomePath(user.UserType)
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") &&
		!strings.HasPrefix(p, "//") &&
		!strings.Contains(p, `\`)
}
