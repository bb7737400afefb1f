// ABOUTME: Tests for ContextResolver dispatch over text and attachment sources
// ABOUTME: Attachment context is computed once per key and failures surface as RetrievalError
package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/util"
)

type countingDescriber struct {
	calls atomic.Int64
	err   error
}

func (d *countingDescriber) DescribeImage(ctx context.Context, image []byte, filename string) (string, error) {
	d.calls.Add(1)
	if d.err != nil {
		return "", d.err
	}
	return "a diagram of a binary tree (" + filename + ")", nil
}

func TestSourceFor(t *testing.T) {
	tests := []struct {
		name string
		att  *models.Attachment
		want string
	}{
		{"no attachment", nil, "text"},
		{"image", &models.Attachment{Kind: models.AttachmentImage}, "image"},
		{"csv", &models.Attachment{Kind: models.AttachmentCSV}, "csv"},
		{"pdf", &models.Attachment{Kind: models.AttachmentPDF}, "pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := SourceFor("q", tt.att)
			if src == nil || src.sourceName() != tt.want {
				t.Errorf("SourceFor() = %#v, want %s", src, tt.want)
			}
		})
	}

	if src := SourceFor("q", &models.Attachment{Kind: "docx"}); src != nil {
		t.Errorf("unknown kind should have no source, got %#v", src)
	}
	if tab, ok := SourceFor("which region?", &models.Attachment{Kind: models.AttachmentCSV}).(TabularAttachment); !ok || tab.Question != "which region?" {
		t.Error("tabular source should carry the question")
	}
}

func TestContextResolver_TextQuery(t *testing.T) {
	emb := &hashEmbedder{}
	ix := buildTestIndex(t, corpusChunks(), emb)
	r := NewContextResolver(ix, emb, nil, nil, nil, ResolverOptions{TopK: 2, Lambda: 1})

	got, err := r.Resolve(context.Background(), TextQuery{Question: "binary search sorted arrays"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.Contains(got, "binary search works on sorted arrays") {
		t.Errorf("context missing best chunk:\n%s", got)
	}
	if !strings.HasPrefix(got, "[doc0 #1] (geeksforgeeks.org)\n") {
		t.Errorf("context should start with the chunk header, got %q", got)
	}
	if n := strings.Count(got, "] (geeksforgeeks.org)"); n != 2 {
		t.Errorf("context holds %d chunks, want 2", n)
	}
}

func TestContextResolver_TextQueryEmptyIndex(t *testing.T) {
	r := NewContextResolver(NewVectorIndex(), &hashEmbedder{}, nil, nil, nil, ResolverOptions{})
	got, err := r.Resolve(context.Background(), TextQuery{Question: "anything"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "" {
		t.Errorf("Resolve() = %q, want empty context", got)
	}
}

func TestContextResolver_Failures(t *testing.T) {
	emb := &hashEmbedder{}
	ix := buildTestIndex(t, corpusChunks(), emb)

	tests := []struct {
		name   string
		r      *ContextResolver
		src    ContextSource
		source string
	}{
		{
			name:   "embedding failure",
			r:      NewContextResolver(ix, &hashEmbedder{failOn: "boom"}, nil, nil, nil, ResolverOptions{}),
			src:    TextQuery{Question: "boom"},
			source: "text",
		},
		{
			name:   "no index",
			r:      NewContextResolver(nil, emb, nil, nil, nil, ResolverOptions{}),
			src:    TextQuery{Question: "q"},
			source: "text",
		},
		{
			name:   "no describer",
			r:      NewContextResolver(ix, emb, nil, nil, nil, ResolverOptions{}),
			src:    ImageAttachment{Attachment: &models.Attachment{Kind: models.AttachmentImage, Payload: []byte("png")}},
			source: "image",
		},
		{
			name:   "describer failure",
			r:      NewContextResolver(ix, emb, nil, &countingDescriber{err: errors.New("vision timeout")}, nil, ResolverOptions{}),
			src:    ImageAttachment{Attachment: &models.Attachment{Kind: models.AttachmentImage, Payload: []byte("png")}},
			source: "image",
		},
		{
			name:   "malformed pdf",
			r:      NewContextResolver(ix, emb, nil, nil, nil, ResolverOptions{}),
			src:    DocumentAttachment{Attachment: &models.Attachment{Kind: models.AttachmentPDF, Payload: []byte("not a pdf")}},
			source: "pdf",
		},
		{
			name:   "nil source",
			r:      NewContextResolver(ix, emb, nil, nil, nil, ResolverOptions{}),
			src:    nil,
			source: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.r.Resolve(context.Background(), tt.src)
			var rerr *models.RetrievalError
			if !errors.As(err, &rerr) {
				t.Fatalf("error = %v, want *models.RetrievalError", err)
			}
			if rerr.Source != tt.source {
				t.Errorf("Source = %q, want %q", rerr.Source, tt.source)
			}
		})
	}

	t.Run("embedding failure keeps its type", func(t *testing.T) {
		r := NewContextResolver(ix, &hashEmbedder{failOn: "boom"}, nil, nil, nil, ResolverOptions{})
		_, err := r.Resolve(context.Background(), TextQuery{Question: "boom"})
		var eerr *models.EmbeddingError
		if !errors.As(err, &eerr) {
			t.Errorf("error = %v, want wrapped *models.EmbeddingError", err)
		}
	})
}

func TestContextResolver_ImageCachedByPayload(t *testing.T) {
	describer := &countingDescriber{}
	cache := NewRetrievalCache(nil)
	r := NewContextResolver(nil, nil, cache, describer, nil, ResolverOptions{})

	att := &models.Attachment{Kind: models.AttachmentImage, Filename: "tree.png", Payload: []byte("png-bytes")}
	first, err := r.Resolve(context.Background(), ImageAttachment{Attachment: att})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve(context.Background(), ImageAttachment{Attachment: att})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if first != second {
		t.Error("cached context should be identical")
	}
	if describer.calls.Load() != 1 {
		t.Errorf("describer calls = %d, want 1", describer.calls.Load())
	}
	if !strings.HasPrefix(first, "Image description:\n") {
		t.Errorf("unexpected context %q", first)
	}
}

func TestContextResolver_TableDependsOnQuestion(t *testing.T) {
	gen := &recordingGenerator{answer: "North sells the most units."}
	r := NewContextResolver(nil, nil, NewRetrievalCache(nil), nil, gen, ResolverOptions{})

	att := &models.Attachment{Kind: models.AttachmentCSV, Payload: []byte("region,units\nNorth,10\nSouth,5\n")}

	for _, q := range []string{"which region sells most?", "which region sells most?", "what is the average?"} {
		got, err := r.Resolve(context.Background(), TabularAttachment{Attachment: att, Question: q})
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !strings.Contains(got, "Shape: 2 rows x 2 columns") || !strings.Contains(got, "North sells the most units.") {
			t.Errorf("unexpected context:\n%s", got)
		}
	}

	if gen.calls() != 2 {
		t.Errorf("generator calls = %d, want 2 (one per distinct question)", gen.calls())
	}
	if !strings.Contains(gen.lastPrompt(), "what is the average?") {
		t.Error("analysis prompt should include the question")
	}
}

func TestContextResolver_TableAnalysisRetried(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{"transient failure recovers", 1, 2, false, 2},
		{"retries exhausted", 5, 2, true, 3},
		{"zero policy makes one attempt", 1, 0, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &recordingGenerator{answer: "North leads.", failures: tt.failures}
			r := NewContextResolver(nil, nil, nil, nil, gen, ResolverOptions{
				Retry: util.RetryPolicy{MaxRetries: tt.retries, Sleep: func(context.Context, time.Duration) error { return nil }},
			})
			att := &models.Attachment{Kind: models.AttachmentCSV, Payload: []byte("region,units\nNorth,10\n")}

			got, err := r.Resolve(context.Background(), TabularAttachment{Attachment: att, Question: "who leads?"})
			if tt.wantErr {
				var rerr *models.RetrievalError
				if !errors.As(err, &rerr) || rerr.Source != "csv" {
					t.Fatalf("Resolve() error = %v, want csv RetrievalError", err)
				}
			} else {
				if err != nil {
					t.Fatalf("Resolve() error = %v", err)
				}
				if !strings.Contains(got, "North leads.") {
					t.Errorf("Resolve() = %q", got)
				}
			}
			if gen.calls() != tt.wantCalls {
				t.Errorf("generator calls = %d, want %d", gen.calls(), tt.wantCalls)
			}
		})
	}
}

func TestContextResolver_TableWithoutGenerator(t *testing.T) {
	r := NewContextResolver(nil, nil, nil, nil, nil, ResolverOptions{MaxAttachmentChars: 20})
	att := &models.Attachment{Kind: models.AttachmentCSV, Payload: []byte("region,units\nNorth,10\n")}

	got, err := r.Resolve(context.Background(), TabularAttachment{Attachment: att, Question: "q"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := "CSV profile:\nShape: 1 rows x 2 co"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestAttachmentKey(t *testing.T) {
	img := attachmentKey(models.AttachmentImage, []byte("x"), "")
	pdf := attachmentKey(models.AttachmentPDF, []byte("x"), "")
	csvA := attachmentKey(models.AttachmentCSV, []byte("x"), "a")
	csvB := attachmentKey(models.AttachmentCSV, []byte("x"), "b")

	keys := map[string]bool{}
	for _, k := range [][]byte{img, pdf, csvA, csvB} {
		keys[CacheKey(k)] = true
	}
	if len(keys) != 4 {
		t.Errorf("expected 4 distinct keys, got %d", len(keys))
	}
}
