// Package cache provides a generic key/value store whose entries expire
// after a period without access and are recreated on the next miss.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	accessed time.Time
}

// Cache is an expiring key/value store. It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu     sync.Mutex
	ttl    time.Duration
	items  map[K]*entry[V]
	create func(K) V
	retain func(V) bool
	now    func() time.Time
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock replaces time.Now.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) { c.now = now }
}

// WithRetain keeps an expired entry alive while retain reports true,
// e.g. while the value is busy.
func WithRetain[K comparable, V any](retain func(V) bool) Option[K, V] {
	return func(c *Cache[K, V]) { c.retain = retain }
}

// New creates a cache whose entries expire ttl after their last access.
// create builds the value for a missing key.
func New[K comparable, V any](ttl time.Duration, create func(K) V, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		ttl:    ttl,
		items:  make(map[K]*entry[V]),
		create: create,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key, creating it when absent or expired.
// Every call refreshes the entry's expiry.
func (c *Cache[K, V]) Get(key K) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[key]; ok && !c.expired(e, now) {
		e.accessed = now
		return e.value
	}

	e := &entry[V]{value: c.create(key), accessed: now}
	c.items[key] = e
	return e.value
}

// Peek returns the live value for key without creating or refreshing it.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.expired(e, c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Invalidate removes key.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Cleanup drops expired entries and returns how many were removed.
func (c *Cache[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.items {
		if c.expired(e, now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet
// cleaned up.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// expired reports whether e should be dropped. Caller holds c.mu.
func (c *Cache[K, V]) expired(e *entry[V], now time.Time) bool {
	if now.Sub(e.accessed) < c.ttl {
		return false
	}
	return c.retain == nil || !c.retain(e.value)
}
