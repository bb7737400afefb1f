// ABOUTME: Index build history for SQLite
// ABOUTME: Records each completed ingest so persisted indexes can be audited
package sqlite

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harper/ragchat/internal/models"
)

// BuildStore handles index build records
type BuildStore struct {
	db *DB
}

// NewBuildStore creates a new BuildStore
func NewBuildStore(db *DB) *BuildStore {
	return &BuildStore{db: db}
}

// RecordBuild stores a completed build, minting an id if none was set
func (s *BuildStore) RecordBuild(build *models.IndexBuild) error {
	if build.IndexDir == "" {
		return errors.New("index directory cannot be empty")
	}
	if build.BuildID == "" {
		build.BuildID = "build_" + uuid.New().String()[:8]
	}
	if build.CreatedAt.IsZero() {
		build.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO index_builds (id, index_dir, source_file, documents, chunks, dimension,
			embedding_model, vectors_sha256, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, build.BuildID, build.IndexDir, build.SourceFile, build.Documents, build.Chunks, build.Dimension,
		build.EmbeddingModel, build.VectorsSHA256, build.Duration.Milliseconds(), build.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	return nil
}

// ListBuilds returns recorded builds, newest first. limit <= 0 returns all.
func (s *BuildStore) ListBuilds(limit int) ([]models.IndexBuild, error) {
	query := `
		SELECT id, index_dir, COALESCE(source_file, ''), documents, chunks, dimension,
			COALESCE(embedding_model, ''), COALESCE(vectors_sha256, ''), COALESCE(duration_ms, 0), created_at
		FROM index_builds
		ORDER BY created_at DESC, id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	builds := []models.IndexBuild{}
	for rows.Next() {
		var (
			b          models.IndexBuild
			durationMS int64
		)
		if err := rows.Scan(&b.BuildID, &b.IndexDir, &b.SourceFile, &b.Documents, &b.Chunks, &b.Dimension,
			&b.EmbeddingModel, &b.VectorsSHA256, &durationMS, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		b.Duration = time.Duration(durationMS) * time.Millisecond
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// LatestBuild returns the most recent build, or nil if none was recorded
func (s *BuildStore) LatestBuild() (*models.IndexBuild, error) {
	builds, err := s.ListBuilds(1)
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, nil
	}
	return &builds[0], nil
}
