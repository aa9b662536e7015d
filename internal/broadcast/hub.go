// README: Websocket hub: clients subscribe to a key (e.g. ride.<id>) and receive its location events.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dispatch/internal/modules/location"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	key  string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*client]struct{}
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{topics: make(map[string]map[*client]struct{}), log: log}
}

// Publish implements location.Publisher. Slow subscribers whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, key string, ev location.LocationChanged) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode location event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.topics[key] {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping slow websocket subscriber", zap.String("key", key))
			h.detachLocked(c)
		}
	}
	return nil
}

// Subscribers reports how many clients listen on key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[key])
}

// Serve upgrades the request and streams events for key until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, key string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{key: key, conn: conn, send: make(chan []byte, sendBuffer)}
	h.attach(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[c.key]
	if !ok {
		subs = make(map[*client]struct{})
		h.topics[c.key] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *client) {
	subs := h.topics[c.key]
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, c.key)
	}
	c.close()
}

// readPump only watches for close and pong frames; subscribers never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.detach(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", zap.String("key", c.key), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
