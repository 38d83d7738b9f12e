package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled by the main handler
		return true
	},
}

// Event is one message on the operator stream.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type subscribeRequest struct {
	Op     string   `json:"op"`
	Events []string `json:"events"`
}

// Hub fans loop events out to WebSocket clients. A client with no
// subscriptions receives every event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	log     *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{clients: make(map[*Client]struct{}), log: log}
}

// Publish never blocks; clients with a full buffer miss the event.
func (h *Hub) Publish(kind string, data any) {
	message, err := json.Marshal(Event{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		h.log.Warnw("ws_marshal_failed", "type", kind, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(kind) {
			continue
		}
		select {
		case client.send <- message:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("ws_client_connected", "client", c.id, "total", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("ws_client_disconnected", "client", c.id, "total", n)
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu sync.RWMutex
	subs   map[string]bool
}

func (c *Client) wants(kind string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return len(c.subs) == 0 || c.subs[kind]
}

// readPump handles subscription requests until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugw("ws_read_error", "client", c.id, "error", err)
			}
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.log.Debugw("ws_invalid_message", "client", c.id, "error", err)
			continue
		}
		c.subsMu.Lock()
		switch req.Op {
		case "subscribe":
			for _, e := range req.Events {
				c.subs[e] = true
			}
		case "unsubscribe":
			for _, e := range req.Events {
				delete(c.subs, e)
			}
		}
		c.subsMu.Unlock()
	}
}

// writePump forwards hub messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
		id:   conn.RemoteAddr().String(),
		subs: make(map[string]bool),
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}
