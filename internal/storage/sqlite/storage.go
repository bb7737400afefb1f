// ABOUTME: Unified Storage layer that wraps all SQLite stores
// ABOUTME: Serves as the session log, the persisted cache and the build recorder
package sqlite

import (
	"fmt"
	"log"
	"time"

	"github.com/harper/ragchat/internal/models"
)

// Storage manages all persistent ragchat data using SQLite
type Storage struct {
	db       *DB
	sessions *SessionStore
	cache    *CacheStore
	builds   *BuildStore
}

// NewStorageWithPath initializes storage with a database file
func NewStorageWithPath(dbPath string) (*Storage, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Printf("[Storage] Opened %s", dbPath)
	return newStorage(db), nil
}

// NewStorageInMemory creates an in-memory storage (for testing)
func NewStorageInMemory() (*Storage, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return newStorage(db), nil
}

func newStorage(db *DB) *Storage {
	return &Storage{
		db:       db,
		sessions: NewSessionStore(db),
		cache:    NewCacheStore(db),
		builds:   NewBuildStore(db),
	}
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database
func (s *Storage) DB() *DB {
	return s.db
}

// AppendTurns appends turns to a session's persisted log
func (s *Storage) AppendTurns(sessionID string, turns []models.ConversationTurn) error {
	return s.sessions.AppendTurns(sessionID, turns)
}

// GetSession returns a persisted session, or nil if it does not exist
func (s *Storage) GetSession(sessionID string) (*models.Session, error) {
	return s.sessions.GetSession(sessionID)
}

// ListSessions returns all persisted sessions, most recently updated first
func (s *Storage) ListSessions() ([]models.SessionSummary, error) {
	return s.sessions.ListSessions()
}

// GetCacheEntry returns a persisted cache entry, or nil if none exists
func (s *Storage) GetCacheEntry(key string) (*models.CacheEntry, error) {
	return s.cache.GetCacheEntry(key)
}

// SaveCacheEntry persists a cache entry
func (s *Storage) SaveCacheEntry(entry *models.CacheEntry) error {
	return s.cache.SaveCacheEntry(entry)
}

// PruneCache removes cache entries older than maxAge
func (s *Storage) PruneCache(maxAge time.Duration) (int64, error) {
	removed, err := s.cache.PruneCache(time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Printf("[Storage] Pruned %d cache entries older than %s", removed, maxAge)
	}
	return removed, nil
}

// CountCache returns the number of persisted cache entries
func (s *Storage) CountCache() (int, error) {
	return s.cache.CountCache()
}

// RecordBuild records a completed index build
func (s *Storage) RecordBuild(build *models.IndexBuild) error {
	return s.builds.RecordBuild(build)
}

// ListBuilds returns recorded index builds, newest first
func (s *Storage) ListBuilds(limit int) ([]models.IndexBuild, error) {
	return s.builds.ListBuilds(limit)
}

// LatestBuild returns the most recent index build, or nil
func (s *Storage) LatestBuild() (*models.IndexBuild, error) {
	return s.builds.LatestBuild()
}
