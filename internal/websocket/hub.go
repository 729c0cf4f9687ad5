package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"jobboard-portal/internal/events"
	"jobboard-portal/internal/observability"
)

// Notification is a message addressed to every socket of one client instance.
type Notification struct {
	ClientID string
	Message  []byte
}

// Hub keeps the navigation sockets of each client instance and pushes
// session changes to them.
type Hub struct {
	bus *events.Bus

	// Registered sockets by client instance
	clients map[string]map[*Client]bool

	notify     chan *Notification
	register   chan *Client
	unregister chan *Client

	// ready is closed once the hub listens to the bus
	ready chan struct{}
	done  chan struct{}
}

func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[string]map[*Client]bool),
		notify:     make(chan *Notification, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. Every session_invalidated event becomes a
// navigate message for the sockets of that instance.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.bus.Subscribe(events.KindSessionInvalidated)
	defer sub.Close()
	defer h.shutdown()
	close(h.ready)

	for {
		select {
		case <-ctx.Done():
			slog.Info("navigation hub shutting down")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.clientID] == nil {
				h.clients[client.clientID] = make(map[*Client]bool)
			}
			h.clients[client.clientID][client] = true
			observability.NavigationConnectionsActive.Inc()
			slog.Debug("navigation socket registered", slog.String("client_id", client.clientID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			h.deliver(&Notification{ClientID: e.ClientID, Message: navigateMessage(e)})

		case n := <-h.notify:
			h.deliver(n)
		}
	}
}

func navigateMessage(e events.Event) []byte {
	location := e.Location
	if location == "" {
		location = "/login"
	}
	data, _ := json.Marshal(ServerMessage{Type: TypeNavigate, Location: location, Replace: true})
	return data
}

func (h *Hub) deliver(n *Notification) {
	clients, ok := h.clients[n.ClientID]
	if !ok {
		return
	}
	msgType := messageType(n.Message)
	for client := range clients {
		select {
		case client.send <- n.Message:
			observability.NavigationMessagesSent.WithLabelValues(msgType).Inc()
		default:
			// Slow socket: drop it, the page reconnects and reloads state.
			h.unregisterClient(client)
		}
	}
}

func messageType(data []byte) string {
	var m struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &m); err != nil || m.Type == "" {
		return "unknown"
	}
	return m.Type
}

func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.clients[client.clientID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	observability.NavigationConnectionsActive.Dec()
	slog.Debug("navigation socket unregistered", slog.String("client_id", client.clientID))

	if len(clients) == 0 {
		delete(h.clients, client.clientID)
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for _, clients := range h.clients {
		for client := range clients {
			h.unregisterClient(client)
		}
	}
	slog.Info("navigation hub shutdown complete")
}

// Ready is closed once Run is receiving session events.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Notify queues msg for every socket of clientID. It reports false once the
// hub has stopped.
func (h *Hub) Notify(clientID string, msg ServerMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal navigation message", slog.String("error", err.Error()))
		return false
	}
	select {
	case h.notify <- &Notification{ClientID: clientID, Message: data}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
