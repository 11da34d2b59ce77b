package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100, 0)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "key3", []byte("old"), time.Minute)
		_ = cache.Set(ctx, "key3", []byte("new"), time.Minute)

		val, _ := cache.Get(ctx, "key3")
		if string(val) != "new" {
			t.Errorf("expected 'new', got '%s'", string(val))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		expiring := NewLRUCache(10, 0)
		expiring.now = func() time.Time { return clock }

		_ = expiring.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		val, _ := expiring.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		clock = clock.Add(11 * time.Second)

		val, _ = expiring.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
		if u := expiring.Usage(); u.Entries != 0 || u.Bytes != 0 {
			t.Errorf("expired entry should be dropped, got %+v", u)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3, 0)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("Usage", func(t *testing.T) {
		usageCache := NewLRUCache(50, 0)
		_ = usageCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = usageCache.Set(ctx, "k2", []byte("v2"), time.Minute)
		_ = usageCache.Set(ctx, "k2", []byte("longer"), time.Minute)

		u := usageCache.Usage()
		if u.Entries != 2 || u.Bytes != 8 {
			t.Errorf("expected 2 entries and 8 bytes, got %+v", u)
		}
		if u.MaxEntries != 50 {
			t.Errorf("expected capacity 50, got %d", u.MaxEntries)
		}
	})

	t.Run("ByteBudget", func(t *testing.T) {
		budget := NewLRUCache(100, 10)

		_ = budget.Set(ctx, "a", []byte("1234"), time.Minute)
		_ = budget.Set(ctx, "b", []byte("1234"), time.Minute)
		_, _ = budget.Get(ctx, "a")

		// 12 bytes would exceed the budget, so the least recently read goes
		_ = budget.Set(ctx, "c", []byte("1234"), time.Minute)

		if val, _ := budget.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := budget.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
		if u := budget.Usage(); u.Bytes != 8 {
			t.Errorf("expected 8 bytes held, got %d", u.Bytes)
		}

		_ = budget.Set(ctx, "huge", make([]byte, 11), time.Minute)
		if val, _ := budget.Get(ctx, "huge"); val != nil {
			t.Error("a payload above the whole budget must not be kept")
		}
		if u := budget.Usage(); u.Entries != 2 {
			t.Errorf("oversized payload evicted others: %+v", u)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10, 0)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(context.Background(), domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		cache, err := New(context.Background(), domain.CacheConfig{Type: "none"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		_ = cache.Set(context.Background(), "k", []byte("v"), time.Minute)
		if val, _ := cache.Get(context.Background(), "k"); val != nil {
			t.Error("noop cache must never hit")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(context.Background(), domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10, 0)

	calls := 0
	compute := func() (any, error) {
		calls++
		return map[string]int{"total": 3}, nil
	}

	first, hit, err := Remember(ctx, cache, "summary:snap-1", time.Minute, compute)
	if err != nil {
		t.Fatalf("Remember failed: %v", err)
	}
	if hit {
		t.Error("first call must be a miss")
	}

	second, hit, err := Remember(ctx, cache, "summary:snap-1", time.Minute, compute)
	if err != nil {
		t.Fatalf("Remember failed: %v", err)
	}
	if !hit {
		t.Error("second call must hit")
	}
	if calls != 1 {
		t.Errorf("expected 1 compute call, got %d", calls)
	}
	if string(first) != string(second) || string(first) != `{"total":3}` {
		t.Errorf("unexpected payloads %s, %s", first, second)
	}

	t.Run("ComputeError", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := Remember(ctx, cache, "broken", time.Minute, func() (any, error) { return nil, boom })
		if !errors.Is(err, boom) {
			t.Errorf("expected compute error, got %v", err)
		}
		if val, _ := cache.Get(ctx, "broken"); val != nil {
			t.Error("failed computations must not be cached")
		}
	})

	t.Run("NoopCache", func(t *testing.T) {
		n := 0
		for i := 0; i < 2; i++ {
			_, _, _ = Remember(ctx, NoopCache{}, "k", time.Minute, func() (any, error) { n++; return 1, nil })
		}
		if n != 2 {
			t.Errorf("expected recompute on every call, got %d", n)
		}
	})
}
