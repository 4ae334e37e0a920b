package pipeline

import (
	"fmt"
	"sync"

	"github.com/victor-cakess/hometown/internal/domain"
)

// summaryCacheSize bounds how many output summaries Inspect remembers.
const summaryCacheSize = 8

// summaryKey identifies one version of a consolidated output. A rewritten
// file gets a new modification time and therefore a new key.
func summaryKey(f domain.FileInfo) string {
	return fmt.Sprintf("%s@%d", f.Name, f.ModTime.UnixNano())
}

// lru is a small thread-safe least-recently-used cache.
type lru[V any] struct {
	capacity int

	mu    sync.Mutex
	items map[string]*lruNode[V]
	front *lruNode[V] // most recently used
	back  *lruNode[V]
}

type lruNode[V any] struct {
	key        string
	value      V
	prev, next *lruNode[V]
}

func newLRU[V any](capacity int) *lru[V] {
	return &lru[V]{
		capacity: max(1, capacity),
		items:    make(map[string]*lruNode[V]),
	}
}

func (c *lru[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.touch(n)
	return n.value, true
}

func (c *lru[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		n.value = value
		c.touch(n)
		return
	}

	n := &lruNode[V]{key: key, value: value}
	c.items[key] = n
	c.pushFront(n)
	if len(c.items) > c.capacity {
		oldest := c.back
		c.unlink(oldest)
		delete(c.items, oldest.key)
	}
}

func (c *lru[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lru[V]) touch(n *lruNode[V]) {
	if n == c.front {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *lru[V]) pushFront(n *lruNode[V]) {
	n.prev, n.next = nil, c.front
	if c.front != nil {
		c.front.prev = n
	}
	c.front = n
	if c.back == nil {
		c.back = n
	}
}

func (c *lru[V]) unlink(n *lruNode[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.front = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.back = n.prev
	}
	n.prev, n.next = nil, nil
}
