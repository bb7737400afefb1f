// ABOUTME: Deterministic embedder and generator fakes shared by core tests
// ABOUTME: Bag-of-words hashing gives stable vectors without a network call

package core

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

const fakeDim = 16

// hashEmbedder hashes each lowercase word into one of fakeDim buckets
type hashEmbedder struct {
	calls  atomic.Int64
	failOn string
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, errors.New("embedding service unavailable")
	}
	vec := make([]float32, fakeDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(word, ".,?!")))
		vec[h.Sum32()%fakeDim]++
	}
	return vec, nil
}

// batchHashEmbedder counts batched calls separately
type batchHashEmbedder struct {
	hashEmbedder
	batches atomic.Int64
}

func (e *batchHashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// tableEmbedder returns fixed vectors by exact text
type tableEmbedder map[string][]float32

func (e tableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := e[text]
	if !ok {
		return nil, errors.New("unknown text: " + text)
	}
	return v, nil
}

// recordingGenerator returns a canned answer and records prompts
type recordingGenerator struct {
	mu       sync.Mutex
	prompts  []string
	answer   string
	failures int
	err      error
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.failures > 0 {
		g.failures--
		if g.err != nil {
			return "", g.err
		}
		return "", errors.New("upstream timeout")
	}
	return g.answer, nil
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *recordingGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}
