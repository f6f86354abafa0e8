package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/domain"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingEvery    = 50 * time.Second
	wsSendBuffer   = 16
)

// Frame is one message pushed to UI clients.
type Frame struct {
	Type     string           `json:"type"` // "snapshot" or "alert"
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
	Title    string           `json:"title,omitempty"`
	Text     string           `json:"text,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames out to connected WebSocket clients. A client whose buffer
// is full is dropped.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub accepts connections from allowedOrigins; "*" or an empty list
// accepts any origin.
func NewHub(log *zap.Logger, allowedOrigins []string) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{log: log, clients: map[*wsClient]struct{}{}}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishSnapshot pushes snap to every client.
func (h *Hub) PublishSnapshot(snap domain.Snapshot) {
	h.broadcast(Frame{Type: "snapshot", Snapshot: &snap})
}

// Send delivers a visual alert to every client.
func (h *Hub) Send(_ context.Context, title, text string) error {
	h.broadcast(Frame{Type: "alert", Title: title, Text: text})
	return nil
}

func (h *Hub) broadcast(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		h.log.Error("ws_encode_error", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("ws_client_slow", zap.String("remote", c.conn.RemoteAddr().String()))
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Serve upgrades the request, sends initial and then relays frames until
// the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial domain.Snapshot) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("ws_upgrade_error", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	first, _ := json.Marshal(Frame{Type: "snapshot", Snapshot: &initial})
	c.send <- first

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("ws_connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		h.log.Info("ws_disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	defer c.conn.Close()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
