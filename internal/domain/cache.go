package domain

import (
	"context"
	"time"
)

// Cache stores rendered aggregation payloads.
// Keys embed the snapshot id, so entries never need invalidation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "none", "memory" or "redis"
	Type string

	// Local LRU cache settings. LocalMaxBytes bounds the summed payload
	// size; zero means only LocalMaxSize applies.
	LocalMaxSize  int
	LocalMaxBytes int
	LocalTTL      time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
