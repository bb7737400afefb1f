// ABOUTME: VectorIndex stores chunk embeddings and answers diversity-aware (MMR) queries
// ABOUTME: Readers see an immutable snapshot; rebuilds and reloads swap it atomically
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/harper/ragchat/internal/util"
)

const (
	// DefaultTopK is the number of chunks retrieved per question
	DefaultTopK = 6
	// DefaultMMRLambda weights relevance against diversity
	DefaultMMRLambda = 0.25
	// DefaultEmbedBatchSize bounds inputs per batched embedding request
	DefaultEmbedBatchSize = 64
)

// indexSnapshot is never mutated after publication
type indexSnapshot struct {
	entries        []models.IndexedVector
	norms          []float64
	dimension      int
	embeddingModel string
	loadedAt       time.Time
}

func newSnapshot(entries []models.IndexedVector, embeddingModel string) *indexSnapshot {
	snap := &indexSnapshot{
		entries:        entries,
		norms:          make([]float64, len(entries)),
		embeddingModel: embeddingModel,
		loadedAt:       time.Now().UTC(),
	}
	if len(entries) > 0 {
		snap.dimension = len(entries[0].Embedding)
	}
	for i, e := range entries {
		snap.norms[i] = norm(e.Embedding)
	}
	return snap
}

// VectorIndex is safe for concurrent queries. Swap, Reload and Replace publish a
// complete new snapshot in a single atomic store.
type VectorIndex struct {
	current atomic.Pointer[indexSnapshot]
}

// BuildOptions tunes index construction
type BuildOptions struct {
	BatchSize      int
	EmbeddingModel string
	Limiter        *util.RateLimiter
	// Retry re-runs a failed batch. The zero policy makes one attempt.
	Retry util.RetryPolicy
	// RetryAfter reports how long the upstream asked callers to pause after
	// a rate-limited error. The limiter is held back for that long.
	RetryAfter func(error) (time.Duration, bool)
	Progress   func(done, total int)
}

// NewVectorIndex returns an empty index
func NewVectorIndex() *VectorIndex {
	ix := &VectorIndex{}
	ix.current.Store(newSnapshot(nil, ""))
	return ix
}

// BuildIndex embeds every chunk and returns a new index. The build is
// all-or-nothing: any embedding failure returns *models.EmbeddingError and no index.
func BuildIndex(ctx context.Context, chunks []models.Chunk, embedder Embedder, opts BuildOptions) (*VectorIndex, error) {
	entries, err := embedChunks(ctx, chunks, embedder, opts)
	if err != nil {
		return nil, err
	}

	ix := &VectorIndex{}
	ix.current.Store(newSnapshot(entries, opts.EmbeddingModel))
	log.Printf("[Index] Built index with %d chunks", len(entries))
	return ix, nil
}

func embedChunks(ctx context.Context, chunks []models.Chunk, embedder Embedder, opts BuildOptions) ([]models.IndexedVector, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if embedder == nil {
		return nil, &models.EmbeddingError{Err: errors.New("no embedder configured")}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}

	entries := make([]models.IndexedVector, 0, len(chunks))

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]

		var vectors [][]float32
		err := opts.Retry.Do(ctx, "embed batch", func(ctx context.Context) error {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(ctx); err != nil {
					return err
				}
			}
			v, err := embedBatch(ctx, embedder, batch)
			if err != nil {
				if opts.Limiter != nil && opts.RetryAfter != nil {
					if d, ok := opts.RetryAfter(err); ok {
						log.Printf("[Index] Rate limited, pausing embedding for %v", d)
						opts.Limiter.Backoff(d)
					}
				}
				return err
			}
			vectors = v
			return nil
		})
		if err != nil {
			return nil, &models.EmbeddingError{Err: fmt.Errorf("chunks %d-%d: %w", start, end-1, err)}
		}
		if len(vectors) != len(batch) {
			return nil, &models.EmbeddingError{Err: fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(batch))}
		}

		for i, v := range vectors {
			if len(v) == 0 {
				return nil, &models.EmbeddingError{Err: fmt.Errorf("chunk %d: empty embedding", start+i)}
			}
			if len(entries) > 0 && len(v) != len(entries[0].Embedding) {
				return nil, &models.EmbeddingError{Err: fmt.Errorf("chunk %d: dimension %d differs from %d", start+i, len(v), len(entries[0].Embedding))}
			}
			entries = append(entries, models.IndexedVector{Chunk: batch[i], Embedding: v})
		}

		if opts.Progress != nil {
			opts.Progress(len(entries), len(chunks))
		}
	}

	return entries, nil
}

// embedBatch embeds one batch, in a single call when the embedder supports it
func embedBatch(ctx context.Context, embedder Embedder, batch []models.Chunk) ([][]float32, error) {
	if batcher, ok := embedder.(BatchEmbedder); ok {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		return batcher.EmbedBatch(ctx, texts)
	}
	vectors := make([][]float32, len(batch))
	for i, c := range batch {
		v, err := embedder.Embed(ctx, c.Text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// LoadVectorIndex reads a persisted index directory
func LoadVectorIndex(dir string) (*VectorIndex, error) {
	entries, manifest, err := storage.LoadIndex(dir)
	if err != nil {
		return nil, err
	}
	ix := &VectorIndex{}
	ix.current.Store(newSnapshot(entries, manifest.EmbeddingModel))
	return ix, nil
}

// Save persists the current snapshot to dir
func (ix *VectorIndex) Save(dir string) (*storage.IndexManifest, error) {
	snap := ix.current.Load()
	manifest, err := storage.SaveIndex(dir, snap.embeddingModel, snap.entries)
	if err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}
	log.Printf("[Index] Saved %d vectors to %s", manifest.Count, dir)
	return manifest, nil
}

// Reload loads dir and swaps it in. On failure the current snapshot keeps serving.
func (ix *VectorIndex) Reload(dir string) error {
	loaded, err := LoadVectorIndex(dir)
	if err != nil {
		return err
	}
	ix.Swap(loaded)
	log.Printf("[Index] Reloaded %d vectors from %s", ix.Len(), dir)
	return nil
}

// Swap publishes other's snapshot as this index's snapshot
func (ix *VectorIndex) Swap(other *VectorIndex) {
	ix.current.Store(other.current.Load())
}

// Len returns the number of indexed chunks
func (ix *VectorIndex) Len() int {
	return len(ix.current.Load().entries)
}

// Dimension returns the embedding dimensionality, 0 for an empty index
func (ix *VectorIndex) Dimension() int {
	return ix.current.Load().dimension
}

// EmbeddingModel returns the model name recorded at build time
func (ix *VectorIndex) EmbeddingModel() string {
	return ix.current.Load().embeddingModel
}

// Query returns at most k chunks ranked by maximal marginal relevance
func (ix *VectorIndex) Query(ctx context.Context, text string, embedder Embedder, k int, lambda float64) ([]models.Chunk, error) {
	scored, err := ix.Search(ctx, text, embedder, k, lambda)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	return chunks, nil
}

// Search is Query with similarity and MMR scores attached
func (ix *VectorIndex) Search(ctx context.Context, text string, embedder Embedder, k int, lambda float64) ([]models.ScoredChunk, error) {
	if lambda < 0 || lambda > 1 || math.IsNaN(lambda) {
		return nil, &models.ValidationError{Field: "diversity_lambda", Message: "must be within [0, 1]"}
	}

	// Pin one snapshot for the whole query.
	snap := ix.current.Load()
	if len(snap.entries) == 0 || k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	if embedder == nil {
		return nil, &models.EmbeddingError{Err: errors.New("no embedder configured")}
	}
	query, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}
	if len(query) != snap.dimension {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("query dimension %d does not match index dimension %d", len(query), snap.dimension)}
	}

	return snap.mmr(query, k, lambda), nil
}

// mmr selects up to k entries. The first pick is the most similar entry; each
// later pick maximizes lambda*sim(q,c) - (1-lambda)*max sim(c, selected).
// Ties go to the smaller sequence index, then to the earlier entry.
func (s *indexSnapshot) mmr(query []float32, k int, lambda float64) []models.ScoredChunk {
	n := len(s.entries)
	k = min(k, n)

	qnorm := norm(query)
	sims := make([]float64, n)
	for i, e := range s.entries {
		sims[i] = cosine(query, e.Embedding, qnorm, s.norms[i])
	}

	selected := make([]bool, n)
	maxSel := make([]float64, n)
	results := make([]models.ScoredChunk, 0, k)

	for len(results) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if selected[i] {
				continue
			}
			score := sims[i]
			if len(results) > 0 {
				score = lambda*sims[i] - (1-lambda)*maxSel[i]
			}
			if best < 0 || score > bestScore ||
				(score == bestScore && s.entries[i].Chunk.SequenceIndex < s.entries[best].Chunk.SequenceIndex) {
				best = i
				bestScore = score
			}
		}

		selected[best] = true
		results = append(results, models.ScoredChunk{
			Chunk:      s.entries[best].Chunk,
			Similarity: sims[best],
			MMRScore:   bestScore,
		})

		chosen := s.entries[best].Embedding
		for i := 0; i < n; i++ {
			if selected[i] {
				continue
			}
			sim := cosine(s.entries[i].Embedding, chosen, s.norms[i], s.norms[best])
			if len(results) == 1 || sim > maxSel[i] {
				maxSel[i] = sim
			}
		}
	}

	return results
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity given precomputed norms; zero vectors score 0
func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

// CosineSimilarity calculates cosine similarity between two vectors
func CosineSimilarity(a, b []float32) float64 {
	return cosine(a, b, norm(a), norm(b))
}
