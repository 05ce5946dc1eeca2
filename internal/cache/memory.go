package cache

import (
	"context"
	"time"
)

// MemoryCache implements domain.Cache on top of an LRU. Entries expire at
// the earlier of their own TTL and the cache-wide TTL.
type MemoryCache struct {
	lru *LRU[memoryEntry]
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a byte cache with the given bounds.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: NewLRU[memoryEntry](maxSize, ttl)}
}

// Get returns nil, nil on a miss.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && c.lru.now().After(entry.expiresAt) {
		c.lru.Delete(key)
		return nil, nil
	}
	return entry.value, nil
}

// Set stores a value. A zero ttl uses only the cache-wide TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.lru.now().Add(ttl)
	}
	c.lru.Put(key, entry)
	return nil
}

// Delete removes a value.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.lru.Delete(key)
	return nil
}

// Ping always succeeds.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}

// Stats returns the underlying LRU counters.
func (c *MemoryCache) Stats() Stats {
	return c.lru.Stats()
}
