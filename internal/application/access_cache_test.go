package application

import (
	"testing"
	"time"
)

func TestAccessCacheStoresAndReturnsCopies(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newAccessCache(time.Minute, 4, func() time.Time { return current })

	original := []string{"cal-1", "cal-2"}
	cache.Store("key", original)

	// Mutating the original slice should not affect the cached copy.
	original[0] = "mutated"

	cached, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached[0] != "cal-1" {
		t.Fatalf("expected cached id to remain unchanged, got %s", cached[0])
	}

	cached[0] = "changed"
	again, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit on second read")
	}
	if again[0] != "cal-1" {
		t.Fatalf("expected cache to return independent copy, got %s", again[0])
	}
}

func TestAccessCacheExpiresEntries(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newAccessCache(time.Second, 4, func() time.Time { return current })

	cache.Store("key", []string{"cal-1"})
	if _, ok := cache.Get("key"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestAccessCacheInvalidate(t *testing.T) {
	cache := newAccessCache(time.Minute, 4, time.Now)
	cache.Store("key", []string{"cal-1"})
	cache.Invalidate()
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache to be empty after invalidation")
	}
}

func TestAccessCacheDisabledWithZeroTTL(t *testing.T) {
	cache := newAccessCache(0, 4, time.Now)
	cache.Store("key", []string{"cal-1"})
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected disabled cache to miss")
	}
}
