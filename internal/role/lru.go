package role

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// LRU is a small in-memory LRU cache with per-entry TTL.
// It is the first tier of the role cache stack.
// Concurrency: methods are safe for concurrent use.
type LRU[V any] struct {
	mu     sync.Mutex
	cap    int
	ll     *list.List               // front = most-recently used
	items  map[string]*list.Element // key -> element
	now    func() time.Time         // injectable clock for tests
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type lruEntry[V any] struct {
	key    string
	value  V
	expiry time.Time // zero means no expiry
}

// LRUConfig groups constructor options.
type LRUConfig struct {
	Capacity int
	Now      func() time.Time
}

// DefaultLRUConfig returns sensible defaults.
func DefaultLRUConfig() LRUConfig {
	return LRUConfig{Capacity: 4096, Now: time.Now}
}

// NewLRU creates a new LRU with the given config.
func NewLRU[V any](cfg LRUConfig) *LRU[V] {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 4096
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &LRU[V]{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
		now:   nowFn,
	}
}

// Get returns the value for key if present and not expired.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, found := c.items[key]
	if !found {
		c.misses.Add(1)
		return zero, false
	}
	ent := el.Value.(*lruEntry[V])
	if c.isExpired(ent) {
		c.removeElement(el)
		c.misses.Add(1)
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return ent.value, true
}

// Set inserts or updates a value with TTL.
// ttl <= 0 means no expiration.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	if el, found := c.items[key]; found {
		ent := el.Value.(*lruEntry[V])
		ent.value = value
		ent.expiry = exp
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&lruEntry[V]{key: key, value: value, expiry: exp})
	c.items[key] = el
	c.evictIfNeeded()
}

// Delete removes a key from the cache.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
		return true
	}
	return false
}

// Len returns the current number of items in the cache.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// LRUStats are simple counters for observability.
type LRUStats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (c *LRU[V]) Stats() LRUStats {
	return LRUStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Size:      c.Len(),
		Capacity:  c.cap,
	}
}

// Helpers (caller must hold c.mu).
func (c *LRU[V]) isExpired(e *lruEntry[V]) bool {
	if e.expiry.IsZero() {
		return false
	}
	return c.now().After(e.expiry)
}

func (c *LRU[V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry[V]).key)
}

func (c *LRU[V]) evictIfNeeded() {
	for c.ll.Len() > c.cap {
		el := c.ll.Back()
		if el == nil {
			return
		}
		c.removeElement(el)
		c.evicts.Add(1)
	}
}
