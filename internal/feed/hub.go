// Package feed streams committed ledger events to WebSocket clients.
// The hub subscribes to the engine event chain, so clients only see
// events that were durably committed.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tiervault/tiervault/internal/log"
	"github.com/tiervault/tiervault/internal/staking"
)

// Message is one frame on the feed connection. Events carry the channel
// they were published on; clients use the same shape for subscribe and
// unsubscribe requests.
type Message struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Hub manages connected feed clients and broadcasting.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *Message
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub creates a feed hub. Call Run before serving connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run drives the hub until ctx is cancelled, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Feed.Debug().Int("total_clients", n).Msg("Feed client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Feed.Debug().Int("total_clients", n).Msg("Feed client disconnected")

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}

			h.mu.RLock()
			stale := make([]*client, 0)
			for c := range h.clients {
				if !c.wants(msg.Channel) {
					continue
				}
				select {
				case c.send <- data:
				default:
					// Client cannot keep up, drop it.
					stale = append(stale, c)
				}
			}
			h.mu.RUnlock()

			if len(stale) > 0 {
				h.mu.Lock()
				for _, c := range stale {
					if _, ok := h.clients[c]; ok {
						delete(h.clients, c)
						close(c.send)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Publish broadcasts a committed engine event to subscribed clients.
// Implements staking.EventSink. The event kind is the channel name.
func (h *Hub) Publish(e *staking.Event) {
	msg := &Message{
		Type:    "event",
		Channel: string(e.Kind),
		Data:    e,
	}

	select {
	case h.broadcast <- msg:
	default:
		log.Feed.Warn().Msg("Feed broadcast buffer full, event dropped")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades an HTTP request to a feed connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Feed.Warn().Err(err).Msg("Feed upgrade failed")
		return
	}

	c := newClient(h, conn)
	h.register <- c

	go c.writePump()
	go c.readPump()
}
