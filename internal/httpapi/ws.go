package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perdanaw/wagate/internal/bus"
	. "github.com/perdanaw/wagate/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second

	// Slow consumers get dropped rather than blocking the feed.
	wsSendBuffer = 64
)

// wsEvent is the wire shape of one notification on the feed.
type wsEvent struct {
	Topic     string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans gateway notifications out to websocket clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	subID   bus.SubscriptionID
	running bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an idle hub; call Start to begin relaying notifications.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The control API has no cross-origin story; accept all.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Start subscribes the hub to every notification topic.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.subID = bus.SubscribeAll(h.relay)
	h.running = true
}

// Stop unsubscribes and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	bus.Unsubscribe(h.subID)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.running = false
}

// relay serializes one bus event and queues it on every client.
func (h *Hub) relay(evt bus.Event) {
	msg, err := json.Marshal(wsEvent{
		Topic:     evt.Topic,
		Data:      evt.Data,
		Timestamp: evt.Timestamp,
	})
	if err != nil {
		L_error("ws: event marshal failed", "topic", evt.Topic, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			L_warn("ws: dropping slow client")
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// handleWS upgrades the request and attaches the client to the feed.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_warn("ws: upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	L_info("ws: client connected", "clients", count)

	go c.writePump()
	go h.readPump(c)
}

// readPump drains inbound frames so close and pong handling work. The
// feed is one-way; client payloads are discarded.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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

// drop removes a client after its read side fails.
func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	c.conn.Close()
}
