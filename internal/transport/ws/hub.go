package ws

import (
	"sync"
)

type Conn interface {
	Send(f Frame) error
	Close() error
	UserID() string
	RoomID() string
}

// Hub is the registry of live websocket connections grouped by room. Fan-out
// itself rides the broadcast channel; the hub exists for counting and for
// draining connections on shutdown.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{} // roomID -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Conn]struct{})}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomID()]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[c.RoomID()] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[c.RoomID()]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, c.RoomID())
		}
	}
}

func (h *Hub) CountRoom(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, rs := range h.rooms {
		n += len(rs)
	}
	return n
}

// CloseAll drains every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[Conn]struct{})
	h.mu.Unlock()

	for _, rs := range rooms {
		for c := range rs {
			_ = c.Close()
		}
	}
}
