// ABOUTME: ContextResolver turns a request into prompt context
// ABOUTME: Text queries hit the vector index; attachments are extracted once through the cache
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harper/ragchat/internal/extract"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/util"
)

// ContextSource is the closed set of things context can be resolved from:
// TextQuery, ImageAttachment, TabularAttachment and DocumentAttachment.
type ContextSource interface {
	sourceName() string
}

// TextQuery resolves context by searching the vector index
type TextQuery struct {
	Question string
}

// ImageAttachment resolves context by describing an image
type ImageAttachment struct {
	Attachment *models.Attachment
}

// TabularAttachment resolves question-dependent context from a CSV file
type TabularAttachment struct {
	Attachment *models.Attachment
	Question   string
}

// DocumentAttachment resolves context from the text of a PDF
type DocumentAttachment struct {
	Attachment *models.Attachment
}

func (TextQuery) sourceName() string          { return "text" }
func (ImageAttachment) sourceName() string    { return "image" }
func (TabularAttachment) sourceName() string  { return "csv" }
func (DocumentAttachment) sourceName() string { return "pdf" }

// SourceFor picks the context source for a request
func SourceFor(question string, att *models.Attachment) ContextSource {
	if att == nil {
		return TextQuery{Question: question}
	}
	switch att.Kind {
	case models.AttachmentImage:
		return ImageAttachment{Attachment: att}
	case models.AttachmentCSV:
		return TabularAttachment{Attachment: att, Question: question}
	case models.AttachmentPDF:
		return DocumentAttachment{Attachment: att}
	}
	return nil
}

// ImageDescriber produces a textual description of an image
type ImageDescriber interface {
	DescribeImage(ctx context.Context, image []byte, filename string) (string, error)
}

// ResolverOptions tunes retrieval
type ResolverOptions struct {
	TopK               int
	Lambda             float64
	MaxAttachmentChars int
	// Retry wraps the CSV analysis model call. The zero policy makes one attempt.
	Retry util.RetryPolicy
}

// ContextResolver resolves context for every ContextSource variant
type ContextResolver struct {
	index     *VectorIndex
	embedder  Embedder
	cache     *RetrievalCache
	vision    ImageDescriber
	generator Generator
	opts      ResolverOptions
}

// NewContextResolver wires a resolver. vision and generator may be nil, in
// which case image attachments fail and CSV context is the bare profile.
func NewContextResolver(index *VectorIndex, embedder Embedder, cache *RetrievalCache, vision ImageDescriber, generator Generator, opts ResolverOptions) *ContextResolver {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if cache == nil {
		cache = NewRetrievalCache(nil)
	}
	return &ContextResolver{
		index:     index,
		embedder:  embedder,
		cache:     cache,
		vision:    vision,
		generator: generator,
		opts:      opts,
	}
}

// Resolve returns the context string for src. Every failure is a
// *models.RetrievalError naming the source.
func (r *ContextResolver) Resolve(ctx context.Context, src ContextSource) (string, error) {
	if src == nil {
		return "", &models.RetrievalError{Source: "unknown", Err: errors.New("unsupported context source")}
	}

	var (
		text string
		err  error
	)
	switch s := src.(type) {
	case TextQuery:
		text, err = r.resolveText(ctx, s)
	case ImageAttachment:
		text, err = r.resolveImage(ctx, s)
	case TabularAttachment:
		text, err = r.resolveTable(ctx, s)
	case DocumentAttachment:
		text, err = r.resolveDocument(ctx, s)
	}
	if err != nil {
		return "", &models.RetrievalError{Source: src.sourceName(), Err: err}
	}
	return text, nil
}

func (r *ContextResolver) resolveText(ctx context.Context, q TextQuery) (string, error) {
	if r.index == nil {
		return "", errors.New("no index loaded")
	}
	chunks, err := r.index.Query(ctx, q.Question, r.embedder, r.opts.TopK, r.opts.Lambda)
	if err != nil {
		return "", err
	}
	return FormatChunks(chunks), nil
}

func (r *ContextResolver) resolveImage(ctx context.Context, img ImageAttachment) (string, error) {
	if r.vision == nil {
		return "", errors.New("no image describer configured")
	}
	att := img.Attachment
	return r.cache.GetOrCompute(ctx, attachmentKey(att.Kind, att.Payload, ""), func(ctx context.Context) (string, error) {
		desc, err := r.vision.DescribeImage(ctx, att.Payload, att.Filename)
		if err != nil {
			return "", err
		}
		return "Image description:\n" + extract.Truncate(strings.TrimSpace(desc), r.opts.MaxAttachmentChars), nil
	})
}

// attachmentKey is the cache key material: kind, payload and, for
// question-dependent kinds, the question, separated by NUL bytes
func attachmentKey(kind models.AttachmentKind, payload []byte, question string) []byte {
	key := make([]byte, 0, len(kind)+len(payload)+len(question)+2)
	key = append(key, kind...)
	key = append(key, 0)
	key = append(key, payload...)
	if question != "" {
		key = append(key, 0)
		key = append(key, question...)
	}
	return key
}

func (r *ContextResolver) resolveTable(ctx context.Context, tab TabularAttachment) (string, error) {
	att := tab.Attachment
	return r.cache.GetOrCompute(ctx, attachmentKey(att.Kind, att.Payload, tab.Question), func(ctx context.Context) (string, error) {
		profile, err := extract.ProfileCSV(att.Payload, extract.DefaultSampleRows)
		if err != nil {
			return "", err
		}
		summary := extract.Truncate(profile.String(), r.opts.MaxAttachmentChars)
		if r.generator == nil {
			return "CSV profile:\n" + summary, nil
		}

		prompt := fmt.Sprintf("Here is a profile of a CSV file:\n%s\n\nList the facts from this data that are relevant to the question: %s", summary, tab.Question)
		var facts string
		err = r.opts.Retry.Do(ctx, "analyze csv", func(ctx context.Context) error {
			out, err := r.generator.Generate(ctx, prompt)
			if err != nil {
				return err
			}
			facts = out
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to analyze csv: %w", err)
		}
		return "CSV profile:\n" + summary + "\n\nRelevant facts:\n" + strings.TrimSpace(facts), nil
	})
}

func (r *ContextResolver) resolveDocument(ctx context.Context, doc DocumentAttachment) (string, error) {
	att := doc.Attachment
	return r.cache.GetOrCompute(ctx, attachmentKey(att.Kind, att.Payload, ""), func(ctx context.Context) (string, error) {
		text, err := extract.PDFText(att.Payload, r.opts.MaxAttachmentChars)
		if err != nil {
			return "", err
		}
		return "Document text:\n" + text, nil
	})
}

// FormatChunks renders retrieved chunks for the prompt, most relevant first
func FormatChunks(chunks []models.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[%s #%d] (%s)\n%s", c.Title, c.SequenceIndex, c.Source, strings.TrimSpace(c.Text))
	}
	return strings.Join(parts, "\n\n")
}
