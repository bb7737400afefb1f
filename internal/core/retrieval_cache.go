// ABOUTME: RetrievalCache is a content-addressed cache of computed attachment context
// ABOUTME: Guarantees at most one computation per key via singleflight; failures are not cached
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harper/ragchat/internal/models"
	"golang.org/x/sync/singleflight"
)

// CacheStore persists cache entries across restarts. Implementations may lose
// entries; the cache treats the store as best effort.
type CacheStore interface {
	GetCacheEntry(key string) (*models.CacheEntry, error)
	SaveCacheEntry(entry *models.CacheEntry) error
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Computes int64 `json:"computes"`
}

// RetrievalCache maps sha256(key material) to context strings
type RetrievalCache struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
	group   singleflight.Group
	store   CacheStore

	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
}

// NewRetrievalCache creates a cache. store may be nil for a memory-only cache.
func NewRetrievalCache(store CacheStore) *RetrievalCache {
	return &RetrievalCache{
		entries: make(map[string]models.CacheEntry),
		store:   store,
	}
}

// CacheKey returns the hex sha256 digest of keyMaterial
func CacheKey(keyMaterial []byte) string {
	sum := sha256.Sum256(keyMaterial)
	return hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached value for keyMaterial, invoking compute at
// most once per key even under concurrent callers. Callers that lose the race
// wait for the winner's result. A failed compute leaves no entry behind.
func (c *RetrievalCache) GetOrCompute(ctx context.Context, keyMaterial []byte, compute func(ctx context.Context) (string, error)) (string, error) {
	key := CacheKey(keyMaterial)

	if value, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return value, nil
	}

	// The flight ignores caller cancellation; upstream calls inside compute
	// carry their own timeouts.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Another flight may have finished between lookup and DoChan.
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		if value, ok := c.loadPersisted(key); ok {
			return value, nil
		}

		c.computes.Add(1)
		value, err := compute(flightCtx)
		if err != nil {
			return "", err
		}

		entry := models.CacheEntry{Key: key, Value: value, CreatedAt: time.Now().UTC()}
		c.publish(entry)
		if c.store != nil {
			if err := c.store.SaveCacheEntry(&entry); err != nil {
				log.Printf("[Cache] Warning: failed to persist entry %s: %v", key[:12], err)
			}
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		c.misses.Add(1)
		return res.Val.(string), nil
	}
}

// Stats returns a snapshot of cache counters
func (c *RetrievalCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Entries:  n,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
	}
}

func (c *RetrievalCache) lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry.Value, ok
}

func (c *RetrievalCache) publish(entry models.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// First writer wins; entries are immutable.
	if _, exists := c.entries[entry.Key]; !exists {
		c.entries[entry.Key] = entry
	}
}

func (c *RetrievalCache) loadPersisted(key string) (string, bool) {
	if c.store == nil {
		return "", false
	}
	entry, err := c.store.GetCacheEntry(key)
	if err != nil {
		log.Printf("[Cache] Warning: failed to read persisted entry %s: %v", key[:12], err)
		return "", false
	}
	if entry == nil {
		return "", false
	}
	c.publish(*entry)
	return entry.Value, true
}
