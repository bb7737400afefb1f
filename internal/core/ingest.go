// ABOUTME: Ingestor builds a persisted index from scraped JSONL documents
// ABOUTME: Chunks, embeds under a rate limit, saves atomically and records the build
package core

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/util"
)

const untitled = "Untitled"

// scrapedRecord is one line of scraper output
type scrapedRecord struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Source  string `json:"source"`
}

// ReadDocuments parses JSONL scraper output. Missing titles become "Untitled";
// the source is the record's source, then its link, then defaultSource.
// Blank lines and records without content are skipped.
func ReadDocuments(r io.Reader, defaultSource string) ([]models.Document, error) {
	if defaultSource == "" {
		defaultSource = models.DefaultSource
	}

	var docs []models.Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec scrapedRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}
		if strings.TrimSpace(rec.Content) == "" {
			continue
		}

		doc := models.Document{
			Title:  strings.TrimSpace(rec.Title),
			Source: strings.TrimSpace(rec.Source),
			Text:   rec.Content,
		}
		if doc.Title == "" {
			doc.Title = untitled
		}
		if doc.Source == "" {
			doc.Source = strings.TrimSpace(rec.Link)
		}
		if doc.Source == "" {
			doc.Source = defaultSource
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// ReadDocumentsFile is ReadDocuments over a file
func ReadDocumentsFile(path, defaultSource string) ([]models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadDocuments(f, defaultSource)
}

// BuildRecorder stores the history of completed builds
type BuildRecorder interface {
	RecordBuild(build *models.IndexBuild) error
}

// IngestOptions configures an ingest run
type IngestOptions struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	EmbeddingModel string
	Limiter        *util.RateLimiter
	Retry          util.RetryPolicy
	RetryAfter     func(error) (time.Duration, bool)
	Progress       func(done, total int)
}

// Ingestor turns documents into a persisted index
type Ingestor struct {
	embedder Embedder
	recorder BuildRecorder
	opts     IngestOptions
}

// NewIngestor creates an Ingestor. recorder may be nil. A zero chunk size
// selects the default chunking parameters.
func NewIngestor(embedder Embedder, recorder BuildRecorder, opts IngestOptions) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
		if opts.ChunkOverlap == 0 {
			opts.ChunkOverlap = DefaultChunkOverlap
		}
	}
	return &Ingestor{embedder: embedder, recorder: recorder, opts: opts}
}

// Ingest chunks and embeds docs, then saves the index to dir. Nothing is
// written unless every chunk embedded successfully.
func (in *Ingestor) Ingest(ctx context.Context, docs []models.Document, dir, sourceFile string) (*VectorIndex, *models.IndexBuild, error) {
	started := time.Now()

	chunker, err := NewChunker(in.opts.ChunkSize, in.opts.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	chunks := chunker.SplitAll(docs)
	if len(chunks) == 0 {
		return nil, nil, errors.New("no chunks produced: documents are empty")
	}
	log.Printf("[Ingest] Split %d documents into %d chunks", len(docs), len(chunks))

	ix, err := BuildIndex(ctx, chunks, in.embedder, BuildOptions{
		BatchSize:      in.opts.BatchSize,
		EmbeddingModel: in.opts.EmbeddingModel,
		Limiter:        in.opts.Limiter,
		Retry:          in.opts.Retry,
		RetryAfter:     in.opts.RetryAfter,
		Progress:       in.opts.Progress,
	})
	if err != nil {
		return nil, nil, err
	}

	manifest, err := ix.Save(dir)
	if err != nil {
		return nil, nil, err
	}

	build := &models.IndexBuild{
		BuildID:        "build_" + uuid.New().String()[:8],
		IndexDir:       dir,
		SourceFile:     sourceFile,
		Documents:      len(docs),
		Chunks:         manifest.Count,
		Dimension:      manifest.Dimension,
		EmbeddingModel: manifest.EmbeddingModel,
		VectorsSHA256:  manifest.VectorsSHA256,
		Duration:       time.Since(started),
		CreatedAt:      manifest.CreatedAt,
	}
	if in.recorder != nil {
		if err := in.recorder.RecordBuild(build); err != nil {
			log.Printf("[Ingest] Warning: failed to record build: %v", err)
		}
	}

	log.Printf("[Ingest] Saved %d vectors (dim %d) to %s in %s", manifest.Count, manifest.Dimension, dir, build.Duration.Round(time.Millisecond))
	return ix, build, nil
}
