package http

import (
	"sync"

	"github.com/gorilla/websocket"
)

// client is one live socket in a room. The send channel is drained by a
// single writer goroutine; deliver drops the oldest pending message when
// the buffer is full so slow readers never block a broadcast.
type client struct {
	conn          *websocket.Conn
	participantID string
	displayName   string
	isHost        bool

	mu     sync.Mutex
	closed bool
	send   chan outboundMessage[any]
}

func newClient(conn *websocket.Conn, participantID, displayName string, isHost bool) *client {
	return &client{
		conn:          conn,
		participantID: participantID,
		displayName:   displayName,
		isHost:        isHost,
		send:          make(chan outboundMessage[any], 16),
	}
}

func (c *client) deliver(msg outboundMessage[any]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub is the process-local registry mapping join codes to the sockets
// this instance owns. It only fans events out; cross-instance truth
// stays in the session store. Add-on-join and remove-on-disconnect are
// the only mutators.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

func (h *Hub) add(code string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[code]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[code] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) remove(code string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[code]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, code)
	}
}

func (h *Hub) broadcast(code string, msg outboundMessage[any]) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.rooms[code]))
	for c := range h.rooms[code] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.deliver(msg)
	}
}
