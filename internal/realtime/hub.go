// Package realtime pushes change events from the persistence gateway to
// connected clients over websockets, so a UI can refresh its queries when a
// record it shows mutates. Events are filtered per owner: a client only sees
// changes to records it owns.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/invoicerhq/invoicer/internal/identity"
	"github.com/invoicerhq/invoicer/internal/store"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens via the bearer token middleware, not the Origin header.
		return true
	},
}

// client is one connected websocket subscriber.
type client struct {
	owner string
	conn  *websocket.Conn
	send  chan []byte
}

// Hub maintains the set of active clients and fans events out to them.
// It implements store.Events.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan store.Event
	register   chan *client
	unregister chan *client
	// done is closed when Run exits so pending register/unregister sends
	// do not hang during shutdown.
	done chan struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan store.Event, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Publish queues an event for dispatch. It never blocks: when the queue is
// full the event is dropped, which a reconnecting client recovers from by
// re-running its queries.
func (h *Hub) Publish(e store.Event) {
	select {
	case h.broadcast <- e:
	default:
		h.log.Warn("event queue full, dropping event", zap.String("kind", e.Kind))
	}
}

// Run dispatches events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case e := <-h.broadcast:
			payload, err := json.Marshal(e)
			if err != nil {
				h.log.Error("marshal event", zap.Error(err))
				continue
			}
			for c := range h.clients {
				if c.owner != e.Owner {
					continue
				}
				select {
				case c.send <- payload:
				default:
					// Slow consumer: drop the connection.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// ServeHTTP upgrades the connection and subscribes it to the authenticated
// principal's events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{owner: principal.ID, conn: conn, send: make(chan []byte, 16)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	c.readPump(h)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains the connection until the client goes away. Clients do not
// send anything meaningful; reading only detects the close.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
