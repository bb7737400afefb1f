// ABOUTME: IndexBuild records one completed ingest run
// ABOUTME: Build history is kept for listing and auditing persisted indexes
package models

import "time"

// IndexBuild describes a persisted index produced by an ingest run
type IndexBuild struct {
	BuildID        string        `json:"build_id" yaml:"build_id"`
	IndexDir       string        `json:"index_dir" yaml:"index_dir"`
	SourceFile     string        `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	Documents      int           `json:"documents" yaml:"documents"`
	Chunks         int           `json:"chunks" yaml:"chunks"`
	Dimension      int           `json:"dimension" yaml:"dimension"`
	EmbeddingModel string        `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	VectorsSHA256  string        `json:"vectors_sha256" yaml:"vectors_sha256"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	CreatedAt      time.Time     `json:"created_at" yaml:"created_at"`
}
