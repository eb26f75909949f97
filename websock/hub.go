// Package websock pushes live record snapshots to browser clients.
package websock

import (
	"sync"

	"github.com/gorilla/websocket"

	"coffeefarm/metrics"
)

// Client is one websocket connection. Room is the owner id.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
	Room string
}

type broadcastMsg struct {
	Room string
	Data []byte
}

type directMsg struct {
	Client *Client
	Data   []byte
}

// Hub serializes registration and delivery so Send channels are closed
// exactly once.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	direct     chan directMsg
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	metrics    *metrics.Metrics

	mu    sync.Mutex
	count int
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 64),
		direct:     make(chan directMsg, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

func (h *Hub) drop(c *Client) {
	conns := h.rooms[c.Room]
	if !conns[c] {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, c.Room)
	}
	close(c.Send)
	h.mu.Lock()
	h.count--
	h.mu.Unlock()
	h.metrics.ClientDisconnected()
}

func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		// slow consumer
		h.drop(c)
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			if h.rooms[c.Room] == nil {
				h.rooms[c.Room] = make(map[*Client]bool)
			}
			h.rooms[c.Room][c] = true
			h.mu.Lock()
			h.count++
			h.mu.Unlock()
			h.metrics.ClientConnected()

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.broadcast:
			for c := range h.rooms[m.Room] {
				h.deliver(c, m.Data)
			}

		case m := <-h.direct:
			if h.rooms[m.Client.Room][m.Client] {
				h.deliver(m.Client, m.Data)
			}

		case <-h.quit:
			for _, conns := range h.rooms {
				for c := range conns {
					h.drop(c)
				}
			}
			return
		}
	}
}

// Stop closes every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
		<-h.done
	})
}

func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Broadcast sends data to every client in room.
func (h *Hub) Broadcast(room string, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{Room: room, Data: data}:
	case <-h.quit:
	}
}

// SendTo sends data to one client if it is still registered.
func (h *Hub) SendTo(c *Client, data []byte) {
	select {
	case h.direct <- directMsg{Client: c, Data: data}:
	case <-h.quit:
	}
}

// Clients reports the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
