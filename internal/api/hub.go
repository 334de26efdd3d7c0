package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/victornm/quizduel/internal/domain"
)

// Notification is the envelope of every websocket frame, in both directions.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ConnectionConfig holds the websocket connection limits.
type ConnectionConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
		AllowedOrigins: []string{"*"},
	}
}

// Hub keeps the live websocket connections keyed by participant id and
// delivers outbound messages to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	config   ConnectionConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(c ConnectionConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		clients: make(map[string]*client),
		config:  c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(c.AllowedOrigins),
		},
		logger: logger,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Notify queues m for the participant. It never blocks: a participant that
// does not keep up is disconnected.
func (h *Hub) Notify(participantID string, m domain.Message) {
	ctx := context.Background()

	b, err := json.Marshal(Notification{Event: m.Name(), Data: m})
	if err != nil {
		h.logger.ErrorContext(ctx, "hub: marshal message failed", "event", m.Name(), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[participantID]
	if !ok {
		return
	}

	select {
	case c.send <- b:
	default:
		h.logger.WarnContext(ctx, "hub: send buffer full, closing connection", "participant_id", participantID)
		go c.conn.Close()
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
}

// remove unregisters the client and closes its send channel. It reports false
// if the client was already removed.
func (h *Hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return false
	}

	delete(h.clients, c.id)
	close(c.send)
	return true
}

// Len is the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close drops every connection, e.g. on shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		c.conn.Close()
	}
}
