package rdapclient

import (
	"testing"
	"time"
)

func TestWithCacheMaxSize_ShrinksAndEvicts(t *testing.T) {
	c := New(DefaultConfig())
	mc := c.cache.(*memCache)
	mc.Set("a", CanonicalResponse{Handle: "a"}, time.Hour)
	mc.Set("b", CanonicalResponse{Handle: "b"}, time.Hour)
	mc.Set("c", CanonicalResponse{Handle: "c"}, time.Hour)

	WithCacheMaxSize(1)(c)

	stats := mc.Stats()
	if stats.Size != 1 {
		t.Fatalf("expected resize to evict down to 1 entry, got %d", stats.Size)
	}
	if stats.MaxSize != 1 {
		t.Fatalf("expected MaxSize to reflect new capacity, got %d", stats.MaxSize)
	}
}

func TestWithCacheMaxSize_IgnoresNonPositive(t *testing.T) {
	c := New(DefaultConfig())
	mc := c.cache.(*memCache)
	before := mc.Stats().MaxSize

	WithCacheMaxSize(0)(c)

	if mc.Stats().MaxSize != before {
		t.Fatalf("expected non-positive resize to be a no-op, got %d", mc.Stats().MaxSize)
	}
}
