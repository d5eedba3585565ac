package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiervault/tiervault/internal/log"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	maxFrameSize = 64 * 1024
)

// client is one feed connection. A client with no subscriptions
// receives every event; subscribing narrows the stream to the named
// channels.
type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	mu         sync.RWMutex
}

func newClient(hub *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		subscribed: make(map[string]bool),
	}
}

func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscribed) == 0 {
		return true
	}
	return c.subscribed[channel]
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Feed.Debug().Err(err).Msg("Feed read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handleMessage(msg *Message) {
	switch msg.Type {
	case "subscribe":
		for _, ch := range channelList(msg.Data) {
			c.mu.Lock()
			c.subscribed[ch] = true
			c.mu.Unlock()
		}
		c.sendMessage(&Message{Type: "subscribed", Data: map[string]interface{}{
			"channels": c.channels(),
		}})

	case "unsubscribe":
		for _, ch := range channelList(msg.Data) {
			c.mu.Lock()
			delete(c.subscribed, ch)
			c.mu.Unlock()
		}
		c.sendMessage(&Message{Type: "unsubscribed", Data: map[string]interface{}{
			"channels": c.channels(),
		}})

	case "ping":
		c.sendMessage(&Message{Type: "pong"})
	}
}

func (c *client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscribed))
	for ch := range c.subscribed {
		out = append(out, ch)
	}
	return out
}

// channelList extracts the channels field from a subscribe or
// unsubscribe payload.
func channelList(data interface{}) []string {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var req struct {
		Channels []string `json:"channels"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	return req.Channels
}
