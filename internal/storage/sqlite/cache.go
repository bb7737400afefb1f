// ABOUTME: Retrieval cache persistence for SQLite
// ABOUTME: Entries are content addressed and written at most once
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harper/ragchat/internal/models"
)

// CacheStore persists retrieval cache entries
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a new CacheStore
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

// GetCacheEntry returns the entry for key, or nil if none was stored
func (s *CacheStore) GetCacheEntry(key string) (*models.CacheEntry, error) {
	entry := &models.CacheEntry{Key: key}
	err := s.db.QueryRow(`SELECT value, created_at FROM cache_entries WHERE key = ?`, key).
		Scan(&entry.Value, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return entry, nil
}

// SaveCacheEntry stores an entry. An existing entry for the key is kept.
func (s *CacheStore) SaveCacheEntry(entry *models.CacheEntry) error {
	if entry.Key == "" {
		return errors.New("cache key cannot be empty")
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (key, value, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, entry.Key, entry.Value, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// PruneCache removes entries created before cutoff and reports how many went
func (s *CacheStore) PruneCache(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	return res.RowsAffected()
}

// CountCache returns the number of persisted entries
func (s *CacheStore) CountCache() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&n)
	return n, err
}
