package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry holds a cached value with its expiry.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// LRU is a thread-safe least-recently-used cache with per-entry TTL.
// A zero TTL keeps entries until they are evicted by capacity.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	items    map[string]*list.Element
	order    *list.List

	hits, misses uint64
}

type node[V any] struct {
	key   string
	entry Entry[V]
}

// New creates an LRU holding at most capacity entries (minimum 1).
func New[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// WithClock replaces the time source; used by tests.
func (c *LRU[V]) WithClock(now func() time.Time) *LRU[V] {
	if now != nil {
		c.mu.Lock()
		c.now = now
		c.mu.Unlock()
	}
	return c
}

// Get returns the value for key if present and not expired.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	n := elem.Value.(*node[V])
	if c.expired(n.entry) {
		c.order.Remove(elem)
		delete(c.items, key)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return n.entry.Value, true
}

// Set inserts or refreshes key, evicting the least recently used entry when full.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry[V]{Value: value}
	if c.ttl > 0 {
		entry.ExpiresAt = c.now().Add(c.ttl)
	}
	if elem, ok := c.items[key]; ok {
		elem.Value.(*node[V]).entry = entry
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&node[V]{key: key, entry: entry})
	c.evict()
}

// Delete drops key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Clear removes all entries.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of stored entries, expired ones included until touched.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counters.
func (c *LRU[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Dump returns the live entries for persistence.
func (c *LRU[V]) Dump() map[string]Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Entry[V], len(c.items))
	for k, elem := range c.items {
		n := elem.Value.(*node[V])
		if !c.expired(n.entry) {
			out[k] = n.entry
		}
	}
	return out
}

// Restore replaces the contents with dump, skipping expired entries.
func (c *LRU[V]) Restore(dump map[string]Entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	for k, e := range dump {
		if c.expired(e) {
			continue
		}
		c.items[k] = c.order.PushFront(&node[V]{key: k, entry: e})
	}
	c.evict()
}

func (c *LRU[V]) expired(e Entry[V]) bool {
	return !e.ExpiresAt.IsZero() && c.now().After(e.ExpiresAt)
}

func (c *LRU[V]) evict() {
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*node[V]).key)
	}
}

// HashKey derives a fixed-size cache key from arbitrary text.
func HashKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
