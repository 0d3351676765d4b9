// Package monitor fans decoded CW events out to websocket clients: a read
// goroutine plus the handler's write loop per connection, each connection
// tagged with a uuid session ID for logging (§11 domain stack, grounded on the
// teacher's audio-streaming websocket handler).
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ColonelBlimp/cwdecoder/internal/cw"
	"github.com/ColonelBlimp/cwdecoder/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is the JSON frame sent to every connected client for each
// decoded character or word space.
type Event struct {
	Character   string `json:"character,omitempty"`
	IsWordSpace bool   `json:"is_word_space"`
	IsError     bool   `json:"is_error"`
	WPM         int    `json:"wpm"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func eventFromDecoded(d cw.DecodedEvent) Event {
	evt := Event{
		IsWordSpace: d.IsWordSpace,
		IsError:     d.IsError,
		WPM:         d.WPM,
		TimestampMs: d.Timestamp.UnixMilli(),
	}
	if d.Character != 0 {
		evt.Character = string(d.Character)
	}
	return evt
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Event
}

// Hub fans out decoded events to every currently connected client. It
// satisfies cw.DecodedCallback via Broadcast, so a ToneEventBridge can
// drive it directly.
type Hub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]*client)}
}

// Broadcast sends d to every connected client's outbound queue,
// dropping it for any client whose queue is full rather than blocking
// the decode path.
func (h *Hub) Broadcast(d cw.DecodedEvent) {
	evt := eventFromDecoded(d)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- evt:
		default:
			logging.Warnf("monitor", "dropping event for slow client %s", id)
		}
	}
}

// ServeHTTP upgrades the connection to a websocket and registers a new
// client for the lifetime of the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("monitor", "upgrade failed: %v", err)
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan Event, 32)}
	h.register(c)
	logging.Infof("monitor", "client %s connected", c.id)

	defer func() {
		h.unregister(c.id)
		conn.Close()
		logging.Infof("monitor", "client %s disconnected", c.id)
	}()

	go c.readPump()
	c.writePump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		close(c.send)
		delete(h.clients, id)
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// readPump discards inbound messages but must run so gorilla's
// control-frame handling (pings, close) keeps working.
func (c *client) readPump() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

const pingInterval = 30 * time.Second

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
