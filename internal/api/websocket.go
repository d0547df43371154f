package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/devtrack/internal/events"
)

const (
	// wsSendBuffer is the per-client outbound message buffer size.
	wsSendBuffer = 64
	// busBuffer is how many events may queue between the bus and the hub.
	busBuffer = 256

	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsMaxMessage   = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Connections are authenticated by token, not by cookie.
		return true
	},
}

// Hub relays bus events to connected WebSocket observers.
type Hub struct {
	bus     *events.Bus
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	user   string
	filter map[string]struct{}
}

// NewHub creates a hub fed by bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:     bus,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run relays events until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	ch, unsubscribe := h.bus.Subscribe(busBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-ch:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encoding event for websocket", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.wants(ev.Name) {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("websocket client connected", "user", c.user, "clients", h.ClientCount())
}

// unregister removes a client. Only the caller that removes it closes the
// send channel.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	slog.Debug("websocket client disconnected", "user", c.user, "clients", h.ClientCount())
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

// ServeHTTP handles GET /api/events. The optional events query parameter
// is a comma-separated list of event names to receive.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		user:   claims.Username,
		filter: make(map[string]struct{}),
	}
	for _, name := range strings.Split(r.URL.Query().Get("events"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			c.filter[name] = struct{}{}
		}
	}

	h.register(c)
	go c.writePump()
	go c.readPump()
}

func (c *wsClient) wants(name string) bool {
	if len(c.filter) == 0 {
		return true
	}
	_, ok := c.filter[name]
	return ok
}

// trySend drops the message if the client is slow or already gone.
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

// readPump only watches for the connection closing; observers do not
// send anything meaningful.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "user", c.user, "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
