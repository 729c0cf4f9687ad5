package handler

import (
	"net/http"
	"net/url"

	"jobboard-portal/internal/guard"
	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/observability"
)

// GuardHandler answers the page router's question: may this instance see
// the page it is navigating to?
type GuardHandler struct {
	routes *guard.Routes
}

func NewGuardHandler(routes *guard.Routes) *GuardHandler {
	return &GuardHandler{routes: routes}
}

// Evaluate handles GET /guard?path=<requested location>
func (h *GuardHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("path")
	target, err := url.Parse(requested)
	if requested == "" || err != nil || !isLocalPath(target.Path) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "path must be a site path"})
		return
	}

	m, ok := middleware.GetManager(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Session unavailable"})
		return
	}

	route, ok := h.routes.Match(target.Path)
	if !ok {
		writeJSON(w, http.StatusOK, guard.Decision{Action: guard.ActionRender})
		return
	}

	d := guard.Evaluate(m.Snapshot(), route.Policy, requested)
	observability.GuardDecisionsTotal.WithLabelValues(route.Policy.Name, string(d.Action), string(d.Reason)).Inc()
	writeJSON(w, http.StatusOK, d)
}
