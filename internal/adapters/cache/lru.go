package cache

import (
	"container/list"
	"sync"
)

// DefaultLRUSize bounds the location context cache.
const DefaultLRUSize = 256

type lruItem[V any] struct {
	key   string
	value V
}

// LRU is a bounded cache without expiry. The least recently used entry is
// evicted when a new key would exceed the capacity.
type LRU[V any] struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	items map[string]*list.Element
}

// NewLRU creates a cache holding at most size entries.
func NewLRU[V any](size int) *LRU[V] {
	if size <= 0 {
		size = DefaultLRUSize
	}
	return &LRU[V]{
		cap:   size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
	}
}

// Get returns the value for key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lruItem[V]).value, true
	}
	var zero V
	return zero, false
}

// Add stores value under key. It reports whether an entry was evicted.
func (c *LRU[V]) Add(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*lruItem[V]).value = value
		c.order.MoveToFront(elem)
		return false
	}

	c.items[key] = c.order.PushFront(&lruItem[V]{key: key, value: value})
	if c.order.Len() <= c.cap {
		return false
	}
	oldest := c.order.Back()
	c.order.Remove(oldest)
	delete(c.items, oldest.Value.(*lruItem[V]).key)
	return true
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every entry.
func (c *LRU[V]) Purge() {
	c.mu.Lock()
	c.order.Init()
	clear(c.items)
	c.mu.Unlock()
}
