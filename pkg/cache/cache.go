// Package cache implements the in-memory resolution cache.
//
// Entries carry an absolute expiry computed from the TTL in force at Set
// time. Expiry is lazy: an expired entry is treated exactly like an absent
// one and removed on the Get that notices it; there is no background sweep.
package cache

import (
	"strings"
	"sync"
	"time"

	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

// Key builds the composite cache key for an id and optional season/episode.
func Key(videoID, season, episode string) string {
	parts := []string{videoID}
	if season != "" {
		parts = append(parts, season)
	}
	if episode != "" {
		parts = append(parts, episode)
	}
	return strings.Join(parts, ":")
}

type entry struct {
	record    types.VideoRecord
	expiresAt time.Time
}

// Cache is a TTL-bounded map of resolution results.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	log     *logging.Logger
	now     func() time.Time
}

// New creates an empty cache.
func New(log *logging.Logger) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		log:     log.WithComponent("cache"),
		now:     time.Now,
	}
}

// Get returns the cached record for key. An entry past its expiry is a miss.
func (c *Cache) Get(key string) (types.VideoRecord, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return types.VideoRecord{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a fresher Set may have replaced it.
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return types.VideoRecord{}, false
	}
	return e.record, true
}

// Set stores a record under key for the given TTL. The TTL comes from the
// caller because it is read from current settings at insertion time, not
// fixed at construction.
func (c *Cache) Set(key string, rec types.VideoRecord, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{record: rec, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	c.log.Info("resolution cache cleared", "entries", n)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
