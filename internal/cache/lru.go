// Package cache provides the bounded lookup caches used by the resolvers
// and the shared byte caches behind domain.Cache.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a thread-safe, size-bounded, time-expiring cache. Reads refresh
// recency only; writes refresh both the value age and recency. Stale
// entries are dropped on read.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	now      func() time.Time
	stats    Stats
}

type lruEntry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Stats are counters for observability. They never affect behavior.
type Stats struct {
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// HitRatio returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Default sizing for lookup caches.
const (
	DefaultCapacity = 512
	DefaultTTL      = 12 * time.Hour
)

// NewLRU creates a cache holding at most capacity entries for at most ttl.
// Non-positive arguments fall back to the defaults.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the value for key if present and fresh.
func (c *LRU[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	entry := elem.Value.(*lruEntry[V])
	if c.stale(entry) {
		c.removeElement(elem)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.stats.Hits++
	return entry.value, true
}

// Put stores value under key, evicting the least recently used entry
// when the cache is full.
func (c *LRU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[V])
		entry.value = value
		entry.insertedAt = now
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		c.removeOldest()
	}

	elem := c.order.PushFront(&lruEntry[V]{key: key, value: value, insertedAt: now})
	c.items[key] = elem
}

// Delete removes key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Purge removes every entry. Counters are kept.
func (c *LRU[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of entries, including stale ones not yet read.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU[V]) Capacity() int {
	return c.capacity
}

// TTL returns the maximum entry age.
func (c *LRU[V]) TTL() time.Duration {
	return c.ttl
}

// Stats returns a copy of the counters.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.order.Len()
	s.Capacity = c.capacity
	return s
}

// stale compares ages using the monotonic reading carried by time.Time,
// so wall-clock jumps cannot expire or resurrect entries. A negative age
// counts as zero.
func (c *LRU[V]) stale(entry *lruEntry[V]) bool {
	age := c.now().Sub(entry.insertedAt)
	if age < 0 {
		age = 0
	}
	return age > c.ttl
}

func (c *LRU[V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry[V]).key)
}

func (c *LRU[V]) removeOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
		c.stats.Evictions++
	}
}
