package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"jobboard-portal/internal/middleware"
	ws "jobboard-portal/internal/websocket"
)

// NavigationHandler opens the socket over which the portal tells a page to
// navigate, for instance to the login page after its session was ended.
type NavigationHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewNavigationHandler accepts upgrades from allowedOrigins only; "*" allows
// any origin and requests without an Origin header are always accepted.
func NewNavigationHandler(hub *ws.Hub, allowedOrigins []string) *NavigationHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &NavigationHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// HandleConnection handles GET /ws/session
func (h *NavigationHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	m, ok := middleware.GetManager(r.Context())
	if !ok {
		http.Error(w, `{"error":"Session unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, m.ClientID())
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	if err := client.Write(ws.ServerMessage{Type: ws.TypeSession, State: m.Snapshot().State().String()}); err != nil {
		h.hub.Unregister(client)
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
