// ABOUTME: Chunker splits scraped documents into overlapping character windows
// ABOUTME: Prefers paragraph, line and word boundaries before a hard cut
package core

import (
	"strings"

	"github.com/harper/ragchat/internal/models"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of characters shared by neighbouring chunks
	DefaultChunkOverlap = 50
)

// Break points in order of preference
var defaultSeparators = []string{"\n\n", "\n", " "}

// Chunker splits documents into overlapping chunks
type Chunker struct {
	chunkSize  int
	overlap    int
	separators [][]rune
}

// NewChunker creates a Chunker. overlap must be smaller than chunkSize.
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, &models.ValidationError{Field: "chunk_size", Message: "must be positive"}
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, &models.ValidationError{Field: "overlap", Message: "must be in [0, chunk_size)"}
	}

	seps := make([][]rune, len(defaultSeparators))
	for i, s := range defaultSeparators {
		seps[i] = []rune(s)
	}

	return &Chunker{chunkSize: chunkSize, overlap: overlap, separators: seps}, nil
}

// ChunkSize returns the configured maximum chunk length
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts a document into chunks of at most chunkSize characters.
// Chunk i+1 begins with the last overlap characters of chunk i.
// Empty text yields no chunks.
func (c *Chunker) Split(doc models.Document) []models.Chunk {
	if strings.TrimSpace(doc.Text) == "" {
		return nil
	}

	title := doc.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	source := doc.Source
	if source == "" {
		source = models.DefaultSource
	}

	runes := []rune(doc.Text)
	var chunks []models.Chunk
	seq := 1
	start := 0

	for {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.breakPoint(runes, start, end)
		}

		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, models.Chunk{
				Title:         title,
				SequenceIndex: seq,
				Source:        source,
				Text:          text,
			})
			seq++
		}

		if end == len(runes) {
			break
		}
		start = end - c.overlap
	}

	return chunks
}

// SplitAll chunks every document in order
func (c *Chunker) SplitAll(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.Split(doc)...)
	}
	return chunks
}

// breakPoint picks where a window ending at end should be cut. The cut must
// leave more than overlap characters in the chunk so the next window advances.
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	lo := start + c.overlap + 1
	if lo >= end {
		return end
	}

	for _, sep := range c.separators {
		if idx := lastIndexRunes(runes[lo:end], sep); idx >= 0 {
			return lo + idx + len(sep)
		}
	}
	return end
}

// lastIndexRunes returns the index of the last occurrence of sep in s, or -1
func lastIndexRunes(s, sep []rune) int {
	n := len(sep)
	if n == 0 || n > len(s) {
		return -1
	}
	for i := len(s) - n; i >= 0; i-- {
		match := true
		for j := 0; j < n; j++ {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
