package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"jobboard-portal/internal/observability"
	"jobboard-portal/internal/security"
	"jobboard-portal/internal/session"
)

type contextKey string

const (
	ClientIDKey contextKey = "client_id"
	ManagerKey  contextKey = "session_manager"
)

const (
	ClientCookieName = "portal_client"
	CSRFCookieName   = "portal_csrf"
)

// CookieOptions controls the cookies issued to a browser instance.
type CookieOptions struct {
	Secure bool
	MaxAge int
}

// ClientInstance identifies the browser tab by its portal_client cookie,
// issuing one when absent, and resolves the instance session manager.
// The CSRF cookie is issued alongside so the page can echo it back.
func ClientInstance(registry *session.Registry, tokens *security.TokenManager, opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := readClientID(r)
			if clientID == "" {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					MaxAge:   opts.MaxAge,
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if c, err := r.Cookie(CSRFCookieName); err != nil || !tokens.WellFormed(c.Value) {
				token, err := tokens.Generate()
				if err != nil {
					slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
					return
				}
				// Readable by the page: it is echoed in X-CSRF-Token.
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   opts.MaxAge,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := observability.WithClientID(r.Context(), clientID)
			manager, err := registry.Get(ctx, clientID)
			if err != nil {
				observability.FromContext(ctx).Warn("session unavailable",
					slog.String("error", err.Error()))
				http.Error(w, `{"error":"Session unavailable"}`, http.StatusServiceUnavailable)
				return
			}

			ctx = context.WithValue(ctx, ClientIDKey, clientID)
			ctx = context.WithValue(ctx, ManagerKey, manager)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func readClientID(r *http.Request) string {
	c, err := r.Cookie(ClientCookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func GetClientID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ClientIDKey).(string)
	return id, ok
}

func GetManager(ctx context.Context) (*session.Manager, bool) {
	m, ok := ctx.Value(ManagerKey).(*session.Manager)
	return m, ok
}

// WithManager stores m and its client id in ctx.
func WithManager(ctx context.Context, m *session.Manager) context.Context {
	ctx = context.WithValue(ctx, ClientIDKey, m.ClientID())
	return context.WithValue(ctx, ManagerKey, m)
}
