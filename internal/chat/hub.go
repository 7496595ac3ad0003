// Package chat is the realtime fan-out channel. Every "message" event a
// client sends is delivered, byte for byte, to every connected client.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/metrics"
	"evalgo.org/realmgate/models"
)

// Events understood by the channel.
const (
	EventConnect = "connect"
	EventMessage = "message"
)

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	clients map[*Client]struct{}

	// Inbound messages to fan out
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	sendBuffer int
	logger     zerolog.Logger
	metrics    *metrics.Registry
}

// NewHub creates a hub. sendBuffer is the per-client outbound queue length.
func NewHub(logger zerolog.Logger, reg *metrics.Registry, sendBuffer int) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sendBuffer: sendBuffer,
		logger:     logger,
		metrics:    reg,
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.metrics.ChatClients.Inc()

			client.send <- connectFrame(client.id)
			h.logger.Info().Str("client_id", client.id).Int("total", total).Msg("chat client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				h.remove(client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.logger.Info().Str("client_id", client.id).Int("total", total).Msg("chat client disconnected")
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.remove(client)
					h.metrics.ChatDropped.Inc()
					h.logger.Warn().Str("client_id", client.id).Msg("chat client too slow, dropped")
				}
			}
			h.mu.Unlock()
			h.metrics.ChatBroadcasts.Inc()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.ChatClients.Dec()
}

// Broadcast queues message for every connected client. It is a no-op once
// the hub has stopped.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Accept registers an upgraded connection and starts its pumps.
func (h *Hub) Accept(conn *websocket.Conn) {
	client := &Client{
		id:   models.GenerateID("client"),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// NewUpgrader returns an upgrader that only accepts the given browser
// origins. Requests without an Origin header are not from a browser and
// are accepted; "*" accepts every origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

func connectFrame(id string) []byte {
	data, _ := json.Marshal(map[string]string{"id": id})
	frame, _ := json.Marshal(Envelope{Event: EventConnect, Data: data})
	return frame
}
