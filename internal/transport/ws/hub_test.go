package ws

import (
	"sync"
	"testing"
)

type nopConn struct {
	roomID string
	userID string

	mu     sync.Mutex
	closed bool
}

func (c *nopConn) Send(f Frame) error { return nil }
func (c *nopConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *nopConn) UserID() string { return c.userID }
func (c *nopConn) RoomID() string { return c.roomID }

func TestHubAddRemove(t *testing.T) {
	h := NewHub()
	a := &nopConn{roomID: "r1", userID: "alice"}
	b := &nopConn{roomID: "r1", userID: "bob"}
	c := &nopConn{roomID: "r2", userID: "carol"}

	h.Add(a)
	h.Add(b)
	h.Add(c)

	if got := h.CountRoom("r1"); got != 2 {
		t.Fatalf("r1 count = %d, want 2", got)
	}
	if got := h.Count(); got != 3 {
		t.Fatalf("total = %d, want 3", got)
	}

	h.Remove(a)
	if got := h.CountRoom("r1"); got != 1 {
		t.Fatalf("r1 count after remove = %d, want 1", got)
	}

	// removing the last connection drops the room bucket entirely
	h.Remove(b)
	if got := h.CountRoom("r1"); got != 0 {
		t.Fatalf("r1 count = %d, want 0", got)
	}

	// removing an unknown connection is a no-op
	h.Remove(a)
}

func TestHubCloseAll(t *testing.T) {
	h := NewHub()
	conns := []*nopConn{
		{roomID: "r1", userID: "alice"},
		{roomID: "r1", userID: "bob"},
		{roomID: "r2", userID: "carol"},
	}
	for _, c := range conns {
		h.Add(c)
	}

	h.CloseAll()
	if got := h.Count(); got != 0 {
		t.Fatalf("count after CloseAll = %d, want 0", got)
	}
	for _, c := range conns {
		if !c.closed {
			t.Fatalf("connection %s not closed", c.userID)
		}
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &nopConn{roomID: "r1", userID: "u"}
			h.Add(c)
			h.CountRoom("r1")
			h.Remove(c)
		}(i)
	}
	wg.Wait()
	if got := h.Count(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}
