package domain

import (
	"context"
	"time"
)

// Cache is a shared byte cache. The in-process lookup caches are typed
// LRUs in package cache; this interface backs the optional second level
// shared between nodes.
type Cache interface {
	// Get returns nil, nil if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the shared cache type: "memory" or "redis".
	Type string `mapstructure:"type"`

	// LookupCapacity and LookupTTL size every in-process lookup cache.
	LookupCapacity int           `mapstructure:"lookup_capacity"`
	LookupTTL      time.Duration `mapstructure:"lookup_ttl"`

	LocalMaxSize int           `mapstructure:"local_max_size"`
	LocalTTL     time.Duration `mapstructure:"local_ttl"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// EnableTwoPhase checks a local LRU before Redis.
	EnableTwoPhase bool `mapstructure:"enable_two_phase"`
}
