package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/conneroisu/quilt/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Messages queued per client before it is dropped.
	sendBuffer = 16
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Paths     []string  `json:"paths,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans live reload messages out to connected browsers.
type Hub struct {
	clients      map[*client]struct{}
	clientsMutex sync.RWMutex
	closed       bool
	logger       logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. Clients whose queue is full are
// disconnected.
func (h *Hub) Broadcast(msg UpdateMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var slow []*client
	h.clientsMutex.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.clientsMutex.RUnlock()

	for _, c := range slow {
		h.remove(c, websocket.StatusPolicyViolation, "client too slow")
	}
	return nil
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.clientsMutex.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.clientsMutex.Unlock()

	for c := range clients {
		close(c.send)
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) add(c *client) bool {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client, code websocket.StatusCode, reason string) {
	h.clientsMutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.clientsMutex.Unlock()
	if ok {
		close(c.send)
		c.conn.Close(code, reason)
	}
}

// handleWebSocket upgrades the request and streams reload messages until
// either side goes away. The default accept options only allow same-origin
// pages to connect.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.logger.Debug(r.Context(), "Live reload client connected", "clients", h.Count())

	// The browser never sends anything; CloseRead handles control frames
	// and cancels ctx once the peer disconnects.
	ctx := conn.CloseRead(context.Background())
	h.writePump(ctx, c)
	h.remove(c, websocket.StatusNormalClosure, "")
	h.logger.Debug(ctx, "Live reload client disconnected", "clients", h.Count())
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
