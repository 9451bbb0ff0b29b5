// Package hub fans realtime events out to websocket clients grouped
// into rooms ("general" for chat, "live" for playback changes).
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/carnavalix/carnavalplay/internal/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Envelope is the wire shape of every outbound event.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type outbound struct {
	room string
	data []byte
}

// InboundHandler receives raw client messages per room. Nil disables
// inbound handling; the read pump then only drains the connection.
type InboundHandler func(room string, data []byte)

// Hub tracks connected clients and distributes messages.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	inbound    InboundHandler
	mu         sync.Mutex
}

// New builds a hub. Call Run before registering clients.
func New() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetInboundHandler wires the receiver for client messages. Must be
// called before Run.
func (h *Hub) SetInboundHandler(handler InboundHandler) {
	h.inbound = handler
}

// Publish sends an event to everyone in a room. Fire-and-forget: when
// the hub is saturated the event is dropped, never blocking the caller.
func (h *Hub) Publish(room, event string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		log.Error("hub payload marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{room: room, data: data}:
	default:
		log.Warn("hub broadcast dropped", zap.String("room", room), zap.String("event", event))
	}
}

// RoomSize reports how many clients are in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Run processes registration and broadcast traffic until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			size := len(h.rooms[client.room])
			h.mu.Unlock()
			log.Debug("client joined", zap.String("room", client.room), zap.Int("clients", size))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.rooms[client.room][client]; ok {
				delete(h.rooms[client.room], client)
				close(client.send)
				if len(h.rooms[client.room]) == 0 {
					delete(h.rooms, client.room)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[msg.room] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer, drop it.
					close(client.send)
					delete(h.rooms[msg.room], client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		for client := range clients {
			close(client.send)
		}
		delete(h.rooms, room)
	}
}

// Client is one websocket connection bound to a room.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	room string
}

// NewClient wraps an upgraded connection and registers it.
func NewClient(h *Hub, conn *websocket.Conn, room string) *Client {
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		room: room,
	}
	h.register <- client
	return client
}

// ReadPump drains the connection, feeding messages to the hub's
// inbound handler, until the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if c.hub.inbound != nil {
			c.hub.inbound(c.room, data)
		}
	}
}

// WritePump flushes outbound messages and keeps the connection alive
// with pings.
func (c *Client) WritePump() {
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
