package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ulvio/heimdall/internal/component"
)

const clientSendBuffer = 16

// Hub pushes status-transition events to websocket clients. A client
// that cannot keep up is disconnected rather than allowed to stall the
// broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[chan component.Transition]struct{}
}

// NewHub creates a websocket hub. Pass nil logger to discard logs.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is public read-only; same CORS posture as the
			// rest of the routes.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[chan component.Transition]struct{}),
	}
}

// Run consumes transition events and fans them out to connected
// clients until the context is cancelled or the channel closes.
func (h *Hub) Run(ctx context.Context, events <-chan component.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(tr)
		}
	}
}

func (h *Hub) broadcast(tr component.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- tr:
		default:
			// Slow client; its write loop will notice the closed
			// channel and clean up.
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// ClientCount returns how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams transition events as
// JSON messages.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ch := make(chan component.Transition, clientSendBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(conn, ch)
	go h.readLoop(conn, ch)
}

func (h *Hub) writeLoop(conn *websocket.Conn, ch chan component.Transition) {
	defer conn.Close()
	for tr := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(tr); err != nil {
			h.drop(ch)
			return
		}
	}
}

// readLoop discards inbound messages; its job is noticing the peer
// going away.
func (h *Hub) readLoop(conn *websocket.Conn, ch chan component.Transition) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(ch)
			conn.Close()
			return
		}
	}
}

func (h *Hub) drop(ch chan component.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}
