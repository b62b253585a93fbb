// Package web provides the websocket hub broadcasting live status
// snapshots to dashboard clients.
package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sunil55999/Zorox/internal/logger"
)

// Event is a structured websocket message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Event types pushed to clients.
const (
	EventStatus = "status"
	EventAlert  = "alert"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// dashboard is served from the same admin origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans events out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{}), log: log}
}

// Broadcast sends an event to every connected client; dead connections are
// dropped on write failure.
func (h *Hub) Broadcast(typ string, payload any) {
	data, err := json.Marshal(Event{Type: typ, Payload: payload})
	if err != nil {
		h.log.Warn().Err(err).Msg("web: event marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("web: websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// reader loop exists only to notice the close
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
