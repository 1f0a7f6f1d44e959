package handler

import (
	"io"
	"sync"
)

// callRegistry tracks live telephony connections and enforces the connection cap
type callRegistry struct {
	limit int

	mu    sync.Mutex
	calls map[string]io.Closer
}

func newCallRegistry(limit int) *callRegistry {
	return &callRegistry{limit: limit, calls: make(map[string]io.Closer)}
}

// Add registers a call unless the cap is reached. limit <= 0 means unlimited.
func (c *callRegistry) Add(id string, conn io.Closer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && len(c.calls) >= c.limit {
		return false
	}
	c.calls[id] = conn
	return true
}

func (c *callRegistry) Remove(id string) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

func (c *callRegistry) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Full reports whether a new call would be refused
func (c *callRegistry) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit > 0 && len(c.calls) >= c.limit
}

// CloseAll closes every live connection, ending their read loops
func (c *callRegistry) CloseAll() {
	c.mu.Lock()
	conns := make([]io.Closer, 0, len(c.calls))
	for _, conn := range c.calls {
		conns = append(conns, conn)
	}
	c.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}
