// Package cache keeps acquired text so repeated runs over the same bytes skip
// OCR. Keys are content-derived document ids.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// MemoryTextCache is a process-local cache with per-entry expiry and a size
// cap. When full, expired entries are swept first, then the oldest entry goes.
type MemoryTextCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]memEntry
	now        func() time.Time
}

type memEntry struct {
	acq     entity.AcquiredText
	stored  time.Time
	expires time.Time
}

// NewMemoryTextCache returns a cache. ttl <= 0 disables expiry and
// maxEntries <= 0 disables the cap.
func NewMemoryTextCache(ttl time.Duration, maxEntries int) *MemoryTextCache {
	return &MemoryTextCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]memEntry{},
		now:        time.Now,
	}
}

func (c *MemoryTextCache) Get(_ context.Context, key string) (entity.AcquiredText, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return entity.AcquiredText{}, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return entity.AcquiredText{}, false, nil
	}
	return e.acq, true, nil
}

func (c *MemoryTextCache) Set(_ context.Context, key string, acq entity.AcquiredText) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	e := memEntry{acq: acq, stored: now}
	if c.ttl > 0 {
		e.expires = now.Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryTextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryTextCache) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.stored.Before(oldest) {
			oldestKey, oldest = k, e.stored
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
