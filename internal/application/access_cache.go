package application

import (
	"sync"
	"time"
)

// accessCache keeps recently aggregated calendar ids per user so rapid search
// keystrokes do not re-run both membership queries. A zero ttl disables it.
type accessCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]accessCacheEntry
}

type accessCacheEntry struct {
	ids       []string
	expiresAt time.Time
}

func newAccessCache(ttl time.Duration, maxEntries int, now func() time.Time) *accessCache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &accessCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]accessCacheEntry),
	}
}

func (c *accessCache) Get(key string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneIDs(entry.ids), true
}

func (c *accessCache) Store(key string, ids []string) {
	if c == nil {
		return
	}
	cloned := cloneIDs(ids)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = accessCacheEntry{ids: cloned, expiresAt: expiry}
}

func (c *accessCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]accessCacheEntry)
	c.mu.Unlock()
}

func (c *accessCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *accessCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func accessCacheKey(identity Identity) string {
	return identity.UID + "|" + normalizeEmail(identity.Email)
}
