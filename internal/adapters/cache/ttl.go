// Package cache holds the process-local caches used by forecast requests.
// Both caches are volatile and safe for concurrent use.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the lifetime of a cached forecast.
const DefaultTTL = 5 * time.Minute

// Clock returns the current time.
type Clock func() time.Time

type entry[V any] struct {
	value     V
	createdAt time.Time
}

// TTL is a key/value store whose entries expire a fixed duration after they
// were written. Expiry is checked lazily on Get; there is no sweeper.
type TTL[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	ttl   time.Duration
	now   Clock
}

// TTLOption configures a TTL cache.
type TTLOption func(*ttlOptions)

type ttlOptions struct {
	now Clock
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now Clock) TTLOption {
	return func(o *ttlOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewTTL creates a cache with the given lifetime. A non-positive ttl falls
// back to DefaultTTL.
func NewTTL[V any](ttl time.Duration, opts ...TTLOption) *TTL[V] {
	o := ttlOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   o.now,
	}
}

// Get returns the value for key. An entry whose age reached the TTL is
// deleted and reported absent.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.createdAt) >= c.ttl {
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, restarting its lifetime.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, createdAt: c.now()}
	c.mu.Unlock()
}

// Remove deletes key if present.
func (c *TTL[V]) Remove(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	clear(c.items)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet
// observed by Get.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// TTL returns the configured lifetime.
func (c *TTL[V]) TTL() time.Duration { return c.ttl }
