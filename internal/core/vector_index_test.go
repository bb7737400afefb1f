// ABOUTME: Tests for VectorIndex build, MMR query and persistence
// ABOUTME: Verifies all-or-nothing builds, MMR degeneracy, tie-breaks and round trips

package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/util"
)

func corpusChunks() []models.Chunk {
	texts := []string{
		"binary search works on sorted arrays",
		"binary search halves the search interval",
		"quicksort picks a pivot and partitions",
		"merge sort splits arrays and merges them",
		"a hash map offers constant time lookup",
		"linked lists store nodes with next pointers",
		"binary trees have left and right children",
		"dynamic programming stores subproblem results",
	}
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Title: fmt.Sprintf("doc%d", i/2), SequenceIndex: i%2 + 1, Source: "geeksforgeeks.org", Text: t}
	}
	return chunks
}

func buildTestIndex(t *testing.T, chunks []models.Chunk, emb Embedder) *VectorIndex {
	t.Helper()
	ix, err := BuildIndex(context.Background(), chunks, emb, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	return ix
}

func TestBuildIndex_AllChunksEmbedded(t *testing.T) {
	emb := &hashEmbedder{}
	ix := buildTestIndex(t, corpusChunks(), emb)

	if ix.Len() != 8 {
		t.Errorf("Len() = %d, want 8", ix.Len())
	}
	if ix.Dimension() != fakeDim {
		t.Errorf("Dimension() = %d, want %d", ix.Dimension(), fakeDim)
	}
	if emb.calls.Load() != 8 {
		t.Errorf("embed calls = %d, want 8", emb.calls.Load())
	}
}

func TestBuildIndex_UsesBatches(t *testing.T) {
	emb := &batchHashEmbedder{}
	var progress []int
	_, err := BuildIndex(context.Background(), corpusChunks(), emb, BuildOptions{
		BatchSize: 3,
		Progress:  func(done, total int) { progress = append(progress, done) },
	})
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if emb.batches.Load() != 3 {
		t.Errorf("batches = %d, want 3", emb.batches.Load())
	}
	if !reflect.DeepEqual(progress, []int{3, 6, 8}) {
		t.Errorf("progress = %v, want [3 6 8]", progress)
	}
}

func TestBuildIndex_AllOrNothing(t *testing.T) {
	emb := &hashEmbedder{failOn: "quicksort"}

	ix, err := BuildIndex(context.Background(), corpusChunks(), emb, BuildOptions{})
	if ix != nil {
		t.Error("BuildIndex() must not return a partial index")
	}
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("BuildIndex() error = %v, want *models.EmbeddingError", err)
	}
}

var errThrottled = errors.New("429 too many requests")

// throttledEmbedder rejects its first batches with errThrottled
type throttledEmbedder struct {
	batchHashEmbedder
	rejections atomic.Int64
	limit      int64
}

func (e *throttledEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.rejections.Add(1) <= e.limit {
		return nil, errThrottled
	}
	return e.batchHashEmbedder.EmbedBatch(ctx, texts)
}

func TestBuildIndex_RateLimitedBatchWaitsAndRetries(t *testing.T) {
	emb := &throttledEmbedder{limit: 1}
	pause := 50 * time.Millisecond
	var asked []error

	started := time.Now()
	ix, err := BuildIndex(context.Background(), corpusChunks(), emb, BuildOptions{
		Limiter: util.NewRateLimiter(0, 1),
		Retry:   util.RetryPolicy{MaxRetries: 2, Sleep: func(context.Context, time.Duration) error { return nil }},
		RetryAfter: func(err error) (time.Duration, bool) {
			asked = append(asked, err)
			return pause, errors.Is(err, errThrottled)
		},
	})
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if ix.Len() != 8 {
		t.Errorf("Len() = %d, want 8", ix.Len())
	}
	if emb.batches.Load() != 1 {
		t.Errorf("successful batches = %d, want 1", emb.batches.Load())
	}
	if len(asked) != 1 {
		t.Errorf("RetryAfter consulted %d times, want 1", len(asked))
	}
	if elapsed := time.Since(started); elapsed < pause {
		t.Errorf("build took %v, want the limiter to hold it back at least %v", elapsed, pause)
	}
}

func TestBuildIndex_ZeroRetryPolicyMakesOneAttempt(t *testing.T) {
	emb := &throttledEmbedder{limit: 1}

	_, err := BuildIndex(context.Background(), corpusChunks(), emb, BuildOptions{})
	if !errors.Is(err, errThrottled) {
		t.Fatalf("BuildIndex() error = %v, want errThrottled in chain", err)
	}
	if emb.rejections.Load() != 1 {
		t.Errorf("attempts = %d, want 1", emb.rejections.Load())
	}
}

func TestBuildIndex_RejectsMixedDimensions(t *testing.T) {
	emb := tableEmbedder{"a": {1, 0}, "b": {1, 0, 0}}
	chunks := []models.Chunk{
		{Title: "t", SequenceIndex: 1, Text: "a"},
		{Title: "t", SequenceIndex: 2, Text: "b"},
	}

	_, err := BuildIndex(context.Background(), chunks, emb, BuildOptions{})
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("BuildIndex() error = %v, want *models.EmbeddingError", err)
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	ix := buildTestIndex(t, nil, &hashEmbedder{})

	got, err := ix.Query(context.Background(), "anything", &hashEmbedder{}, 5, 0.5)
	if err != nil {
		t.Fatalf("Query() error = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Errorf("Query() returned %d chunks, want 0", len(got))
	}

	got, err = NewVectorIndex().Query(context.Background(), "anything", nil, 5, 0.5)
	if err != nil || len(got) != 0 {
		t.Errorf("NewVectorIndex().Query() = %v, %v; want empty, nil", got, err)
	}
}

func TestQuery_ValidatesLambda(t *testing.T) {
	ix := buildTestIndex(t, corpusChunks(), &hashEmbedder{})

	for _, lambda := range []float64{-0.1, 1.5} {
		_, err := ix.Query(context.Background(), "binary", &hashEmbedder{}, 3, lambda)
		var vErr *models.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("lambda=%v: error = %v, want *models.ValidationError", lambda, err)
		}
	}
}

func TestQuery_EmbeddingFailure(t *testing.T) {
	ix := buildTestIndex(t, corpusChunks(), &hashEmbedder{})

	_, err := ix.Query(context.Background(), "explode", &hashEmbedder{failOn: "explode"}, 3, 0.5)
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("Query() error = %v, want *models.EmbeddingError", err)
	}
}

func TestQuery_KLargerThanIndex(t *testing.T) {
	ix := buildTestIndex(t, corpusChunks(), &hashEmbedder{})

	got, err := ix.Query(context.Background(), "binary search", &hashEmbedder{}, 100, 0.25)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 8 {
		t.Errorf("len = %d, want all 8 chunks", len(got))
	}

	seen := map[string]bool{}
	for _, c := range got {
		if seen[c.Text] {
			t.Errorf("chunk %q returned twice", c.Text)
		}
		seen[c.Text] = true
	}
}

// plainTopK ranks by similarity with the same tie-breaks as MMR
func plainTopK(entries []models.IndexedVector, query []float32, k int) []models.Chunk {
	type ranked struct {
		pos int
		sim float64
	}
	rs := make([]ranked, len(entries))
	for i, e := range entries {
		rs[i] = ranked{pos: i, sim: CosineSimilarity(query, e.Embedding)}
	}
	sort.SliceStable(rs, func(a, b int) bool {
		if rs[a].sim != rs[b].sim {
			return rs[a].sim > rs[b].sim
		}
		return entries[rs[a].pos].Chunk.SequenceIndex < entries[rs[b].pos].Chunk.SequenceIndex
	})
	out := make([]models.Chunk, 0, k)
	for i := 0; i < k && i < len(rs); i++ {
		out = append(out, entries[rs[i].pos].Chunk)
	}
	return out
}

func TestQuery_LambdaOneIsPlainTopK(t *testing.T) {
	emb := &hashEmbedder{}
	chunks := corpusChunks()
	ix := buildTestIndex(t, chunks, emb)
	entries := ix.current.Load().entries

	for _, q := range []string{"binary search", "sort arrays", "hash lookup", "trees and lists", "nothing matches zzz"} {
		for _, k := range []int{1, 3, 8} {
			got, err := ix.Query(context.Background(), q, emb, k, 1)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			qv, _ := emb.Embed(context.Background(), q)
			want := plainTopK(entries, qv, k)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("q=%q k=%d: MMR(lambda=1) = %v, want %v", q, k, texts(got), texts(want))
			}
		}
	}
}

func texts(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestQuery_DiversityPrefersNovelChunks(t *testing.T) {
	emb := tableEmbedder{
		"q":     {1, 0, 0},
		"dup-a": {1, 0.1, 0},
		"dup-b": {1, 0.1, 0},
		"other": {0.6, 0, 0.8},
	}
	chunks := []models.Chunk{
		{Title: "t", SequenceIndex: 1, Text: "dup-a"},
		{Title: "t", SequenceIndex: 2, Text: "dup-b"},
		{Title: "t", SequenceIndex: 3, Text: "other"},
	}
	ix := buildTestIndex(t, chunks, emb)

	relevant, err := ix.Query(context.Background(), "q", emb, 2, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got := texts(relevant); !reflect.DeepEqual(got, []string{"dup-a", "dup-b"}) {
		t.Errorf("lambda=1 = %v, want [dup-a dup-b]", got)
	}

	diverse, err := ix.Query(context.Background(), "q", emb, 2, 0.25)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got := texts(diverse); !reflect.DeepEqual(got, []string{"dup-a", "other"}) {
		t.Errorf("lambda=0.25 = %v, want [dup-a other]", got)
	}
}

func TestQuery_TieBreaks(t *testing.T) {
	emb := tableEmbedder{
		"q":      {1, 0},
		"late":   {1, 0},
		"early":  {1, 0},
		"early2": {1, 0},
	}
	chunks := []models.Chunk{
		{Title: "a", SequenceIndex: 4, Text: "late"},
		{Title: "b", SequenceIndex: 1, Text: "early"},
		{Title: "c", SequenceIndex: 1, Text: "early2"},
	}
	ix := buildTestIndex(t, chunks, emb)

	got, err := ix.Query(context.Background(), "q", emb, 3, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []string{"early", "early2", "late"}
	if !reflect.DeepEqual(texts(got), want) {
		t.Errorf("tie order = %v, want %v", texts(got), want)
	}
}

func TestQuery_LambdaZeroFirstPickIsMostRelevant(t *testing.T) {
	emb := tableEmbedder{
		"q":    {1, 0},
		"weak": {0.2, 1},
		"best": {1, 0.05},
	}
	chunks := []models.Chunk{
		{Title: "t", SequenceIndex: 1, Text: "weak"},
		{Title: "t", SequenceIndex: 2, Text: "best"},
	}
	ix := buildTestIndex(t, chunks, emb)

	got, err := ix.Query(context.Background(), "q", emb, 1, 0)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "best" {
		t.Errorf("first pick = %v, want [best]", texts(got))
	}
}

func TestVectorIndex_SaveLoadRoundTrip(t *testing.T) {
	emb := &hashEmbedder{}
	ix := buildTestIndex(t, corpusChunks(), emb)
	dir := filepath.Join(t.TempDir(), "index")

	if _, err := ix.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadVectorIndex(dir)
	if err != nil {
		t.Fatalf("LoadVectorIndex() error = %v", err)
	}

	for _, q := range []string{"binary search", "merge sort", "hash map", "programming"} {
		for _, lambda := range []float64{0, 0.25, 1} {
			before, err := ix.Search(context.Background(), q, emb, 5, lambda)
			if err != nil {
				t.Fatal(err)
			}
			after, err := loaded.Search(context.Background(), q, emb, 5, lambda)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Errorf("q=%q lambda=%v: results differ after round trip", q, lambda)
			}
		}
	}
}

func TestVectorIndex_LoadCorruptedFails(t *testing.T) {
	_, err := LoadVectorIndex(filepath.Join(t.TempDir(), "missing"))
	var loadErr *models.IndexLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("LoadVectorIndex() error = %v, want *models.IndexLoadError", err)
	}
}

func TestVectorIndex_ReloadFailureKeepsServing(t *testing.T) {
	ix := buildTestIndex(t, corpusChunks(), &hashEmbedder{})

	if err := ix.Reload(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("Reload() of a missing directory should fail")
	}
	if ix.Len() != 8 {
		t.Errorf("Len() = %d after failed reload, want 8", ix.Len())
	}
}

func TestVectorIndex_ConcurrentQueriesDuringSwap(t *testing.T) {
	emb := &hashEmbedder{}
	small := buildTestIndex(t, corpusChunks()[:2], emb)
	large := buildTestIndex(t, corpusChunks(), emb)
	ix := buildTestIndex(t, corpusChunks()[:2], emb)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				ix.Swap(large)
			} else {
				ix.Swap(small)
			}
			got, err := ix.Query(context.Background(), "binary search", emb, 8, 0.5)
			if err != nil {
				errs <- err
				return
			}
			if len(got) != 2 && len(got) != 8 {
				errs <- fmt.Errorf("observed partial index with %d results", len(got))
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
