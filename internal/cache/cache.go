package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates the payload cache named by cfg.Type: "none" stores nothing,
// "memory" keeps payloads in process and "redis" shares them between
// replicas, optionally behind a local LRU.
func New(ctx context.Context, cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "none", "":
		return NoopCache{}, nil

	case "memory":
		return NewLRUCache(cfg.LocalMaxSize, cfg.LocalMaxBytes), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(ctx, cfg)
		}
		return NewRedisCache(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// NoopCache never stores anything. Every Get is a miss.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, error)              { return nil, nil }
func (NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, string) error                     { return nil }
func (NoopCache) Ping(context.Context) error                               { return nil }
func (NoopCache) Close() error                                             { return nil }

// TwoPhaseCache reads the local LRU first and falls back to Redis.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache connects to Redis and puts a local LRU in front of it.
func NewTwoPhaseCache(ctx context.Context, cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize, cfg.LocalMaxBytes), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Usage reports the occupancy of the local level.
func (c *TwoPhaseCache) Usage() Usage {
	return c.local.Usage()
}

// Remember returns the JSON encoding of compute's result under key, computing
// and storing it on a miss. Cache failures fall back to computing; they are
// logged and never returned. hit reports whether the payload came from cache.
func Remember(ctx context.Context, c domain.Cache, key string, ttl time.Duration, compute func() (any, error)) (payload []byte, hit bool, err error) {
	if cached, gerr := c.Get(ctx, key); gerr != nil {
		slog.Warn("cache get failed", "key", key, "error", gerr)
	} else if cached != nil {
		return cached, true, nil
	}

	v, err := compute()
	if err != nil {
		return nil, false, err
	}
	payload, err = json.Marshal(v)
	if err != nil {
		return nil, false, err
	}

	if serr := c.Set(ctx, key, payload, ttl); serr != nil {
		slog.Warn("cache set failed", "key", key, "error", serr)
	}
	return payload, false, nil
}
