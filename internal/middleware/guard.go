package middleware

import (
	"net/http"

	"jobboard-portal/internal/guard"
	"jobboard-portal/internal/observability"
)

const loadingPage = `<!doctype html><html><head><meta charset="utf-8"><title>Loading</title></head>` +
	`<body><div class="loading" role="status" aria-busy="true"></div></body></html>`

// Guard protects a page with policy. The instance manager must already be
// in the request context.
func Guard(policy guard.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serveGuarded(w, r, policy, next)
		})
	}
}

// GuardRoutes looks the policy up in routes by request path. Paths with no
// route are rendered as is.
func GuardRoutes(routes *guard.Routes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := routes.Match(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			serveGuarded(w, r, route.Policy, next)
		})
	}
}

func serveGuarded(w http.ResponseWriter, r *http.Request, policy guard.Policy, next http.Handler) {
	manager, ok := GetManager(r.Context())
	if !ok {
		http.Error(w, `{"error":"Session unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	d := guard.Evaluate(manager.Snapshot(), policy, r.URL.RequestURI())
	observability.GuardDecisionsTotal.WithLabelValues(policy.Name, string(d.Action), string(d.Reason)).Inc()

	WriteDecision(w, r, d, next)
}

// WriteDecision turns a guard decision into an HTTP response. Replace
// navigations use 303 and are flagged in X-Navigation so the page can swap
// its history entry.
func WriteDecision(w http.ResponseWriter, r *http.Request, d guard.Decision, next http.Handler) {
	switch d.Action {
	case guard.ActionLoading:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Refresh", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(loadingPage))
	case guard.ActionRedirect:
		w.Header().Set("Cache-Control", "no-store")
		if d.Replace {
			w.Header().Set("X-Navigation", "replace")
			http.Redirect(w, r, d.Location, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, d.Location, http.StatusFound)
	default:
		next.ServeHTTP(w, r)
	}
}
