package handler

import (
	"context"
	"net/http"
	"time"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/observability"
)

const signalTimeout = 2 * time.Second

// SignalRequest is an auth-error signal raised in the page.
type SignalRequest struct {
	Type   string `json:"type"`
	Status int    `json:"status,omitempty"`
	Source string `json:"source,omitempty"`
}

// SignalHandler relays signals raised in the browser onto the event bus,
// addressed to the calling instance.
type SignalHandler struct {
	publisher events.Publisher
}

func NewSignalHandler(publisher events.Publisher) *SignalHandler {
	return &SignalHandler{publisher: publisher}
}

// Relay handles POST /signals
func (h *SignalHandler) Relay(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientID(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Session unavailable"})
		return
	}

	var req SignalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, ok := events.ParseKind(req.Type)
	if !ok || kind == events.KindSessionInvalidated {
		writeError(w, r, &domain.ValidationError{Fields: map[string]string{"type": "unknown signal type"}})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), signalTimeout)
	defer cancel()

	err := h.publisher.Publish(ctx, events.Event{
		Kind:     kind,
		ClientID: clientID,
		Status:   req.Status,
		Source:   "browser:" + req.Source,
		At:       time.Now(),
	})
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to relay signal",
			"kind", string(kind),
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Signal not delivered"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
