// ABOUTME: Tests for persisted retrieval cache entries
// ABOUTME: Verifies lookups, write-once semantics and pruning
package sqlite

import (
	"testing"
	"time"

	"github.com/harper/ragchat/internal/models"
)

func newTestCacheStore(t *testing.T) *CacheStore {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewCacheStore(db)
}

func TestCacheStore_GetMissing(t *testing.T) {
	store := newTestCacheStore(t)

	entry, err := store.GetCacheEntry("missing")
	if err != nil {
		t.Fatalf("GetCacheEntry() error = %v", err)
	}
	if entry != nil {
		t.Errorf("GetCacheEntry() = %+v, want nil", entry)
	}
}

func TestCacheStore_SaveIsWriteOnce(t *testing.T) {
	store := newTestCacheStore(t)

	if err := store.SaveCacheEntry(&models.CacheEntry{Key: "k", Value: "first"}); err != nil {
		t.Fatalf("SaveCacheEntry() error = %v", err)
	}
	if err := store.SaveCacheEntry(&models.CacheEntry{Key: "k", Value: "second"}); err != nil {
		t.Fatalf("SaveCacheEntry() second error = %v", err)
	}

	entry, err := store.GetCacheEntry("k")
	if err != nil {
		t.Fatalf("GetCacheEntry() error = %v", err)
	}
	if entry == nil || entry.Value != "first" {
		t.Errorf("GetCacheEntry() = %+v, want first value kept", entry)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if err := store.SaveCacheEntry(&models.CacheEntry{Value: "no key"}); err == nil {
		t.Error("SaveCacheEntry() should reject an empty key")
	}
}

func TestCacheStore_Prune(t *testing.T) {
	store := newTestCacheStore(t)
	now := time.Now().UTC()

	entries := []models.CacheEntry{
		{Key: "old", Value: "v", CreatedAt: now.Add(-48 * time.Hour)},
		{Key: "new", Value: "v", CreatedAt: now},
	}
	for i := range entries {
		if err := store.SaveCacheEntry(&entries[i]); err != nil {
			t.Fatalf("SaveCacheEntry() error = %v", err)
		}
	}

	removed, err := store.PruneCache(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneCache() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PruneCache() removed %d, want 1", removed)
	}

	count, err := store.CountCache()
	if err != nil {
		t.Fatalf("CountCache() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountCache() = %d, want 1", count)
	}
	if entry, _ := store.GetCacheEntry("new"); entry == nil {
		t.Error("recent entry should survive pruning")
	}
}
