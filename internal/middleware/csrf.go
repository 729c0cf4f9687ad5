package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"jobboard-portal/internal/security"
)

var defaultCSRFExempt = []string{"/health", "/metrics", "/ws/"}

// CSRF enforces the double-submit pattern: state-changing requests must
// echo the portal_csrf cookie in X-CSRF-Token (X-XSRF-Token and the
// csrf_token form field are accepted too).
func CSRF(tokens *security.TokenManager, exempt ...string) func(http.Handler) http.Handler {
	if len(exempt) == 0 {
		exempt = defaultCSRFExempt
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}

			var cookieToken string
			if c, err := r.Cookie(CSRFCookieName); err == nil {
				cookieToken = c.Value
			}

			if err := tokens.Verify(cookieToken, extractCSRFToken(r)); err != nil {
				clientID, _ := GetClientID(r.Context())
				slog.Warn("CSRF validation failed",
					slog.String("client_id", clientID),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string, exempt []string) bool {
	for _, p := range exempt {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-XSRF-Token"); token != "" {
		return token
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.FormValue("csrf_token")
	}
	return ""
}
