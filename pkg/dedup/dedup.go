// Package dedup tracks recently processed packet ids so echoed and rebroadcast
// packets are handled at most once. The cache is bounded and in-memory only;
// suppression is best-effort across evictions and process restarts.
package dedup

import (
	"fmt"
	"sync"
)

// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 500

// Cache remembers the last N keys it was asked about. Keys are namespaced by a
// class string so identical packet ids from different packet kinds never
// collide. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	// order is a FIFO of keys in insertion order; the head is evicted first.
	order []string
}

// New creates a cache holding at most capacity keys. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Seen reports whether the (class, id) pair was already recorded, recording it
// if not. The check and record are a single atomic step.
func (c *Cache) Seen(class string, id uint32) bool {
	key := fmt.Sprintf("%s:%d", class, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return true
	}

	c.seen[key] = struct{}{}
	c.order = append(c.order, key)
	if len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	return false
}

// Len returns the number of keys currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
