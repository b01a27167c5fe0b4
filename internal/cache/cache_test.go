package cache

import (
	"context"
	"testing"
	"time"

	"github.com/openrisk/kestrel/internal/domain"
)

func domainCacheConfig(kind string) domain.CacheConfig {
	return domain.CacheConfig{Type: kind, LocalMaxSize: 10}
}

func TestLRUSetGet(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(val) != "v1" {
		t.Errorf("expected v1, got %s", val)
	}
}

func TestLRUMissReturnsNil(t *testing.T) {
	c := NewLRUCache(10)

	val, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil on miss, got %s", val)
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected expired entry to read as miss, got %s", val)
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(2)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Set(ctx, "k2", []byte("v2"), time.Minute)

	// Touch k1 so k2 is the eviction candidate.
	c.Get(ctx, "k1")
	c.Set(ctx, "k3", []byte("v3"), time.Minute)

	if val, _ := c.Get(ctx, "k2"); val != nil {
		t.Error("expected k2 to be evicted")
	}
	if val, _ := c.Get(ctx, "k1"); string(val) != "v1" {
		t.Errorf("expected k1 to survive, got %s", val)
	}

	size, capacity := c.Stats()
	if size != 2 || capacity != 2 {
		t.Errorf("expected size 2 / capacity 2, got %d / %d", size, capacity)
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if val, _ := c.Get(ctx, "k1"); val != nil {
		t.Error("expected key to be gone after delete")
	}
}

func TestLRUCounters(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "payer-1", time.Minute)
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if got != want {
			t.Errorf("expected count %d, got %d", want, got)
		}
	}

	got, err := c.GetCounter(ctx, "payer-1")
	if err != nil {
		t.Fatalf("get counter failed: %v", err)
	}
	if got != 3 {
		t.Errorf("expected counter read 3, got %d", got)
	}

	if got, _ := c.GetCounter(ctx, "payer-2"); got != 0 {
		t.Errorf("expected absent counter to read 0, got %d", got)
	}
}

func TestLRUCounterWindowExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	c.IncrementCounter(ctx, "payer-1", 10*time.Millisecond)
	c.IncrementCounter(ctx, "payer-1", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if got, _ := c.GetCounter(ctx, "payer-1"); got != 0 {
		t.Errorf("expected expired counter to read 0, got %d", got)
	}

	// A new window starts from one.
	got, err := c.IncrementCounter(ctx, "payer-1", time.Minute)
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected fresh window to count 1, got %d", got)
	}
}

func TestNewFactory(t *testing.T) {
	c, err := New(domainCacheConfig("memory"))
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected LRU cache for memory config, got %T", c)
	}

	if _, err := New(domainCacheConfig("carrier-pigeon")); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
