package roster

import (
	"context"
	"sync"
)

// MemoryCursor keeps positions in process memory.
type MemoryCursor struct {
	mu        sync.Mutex
	positions map[string]uint64
}

func NewMemoryCursor() *MemoryCursor {
	return &MemoryCursor{positions: make(map[string]uint64)}
}

func (c *MemoryCursor) Next(_ context.Context, key string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.positions[key]++

	return c.positions[key], nil
}
