// ABOUTME: Chunk represents a bounded slice of a scraped source document
// ABOUTME: Chunks are immutable once produced and owned by the index that embeds them
package models

import (
	"errors"
	"strings"
)

// DefaultSource is used when a document carries no source of its own
const DefaultSource = "geeksforgeeks.org"

// Document is a raw scraped document awaiting chunking
type Document struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Text   string `json:"content"`
}

// Chunk is a contiguous slice of a Document with stable metadata.
// SequenceIndex starts at 1 for each source document.
type Chunk struct {
	Title         string `json:"title"`
	SequenceIndex int    `json:"sequence_index"`
	Source        string `json:"source"`
	Text          string `json:"text"`
}

// Validate checks that the chunk carries usable metadata
func (c *Chunk) Validate() error {
	if c.SequenceIndex < 1 {
		return errors.New("sequence index must be >= 1")
	}
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("chunk text cannot be empty")
	}
	return nil
}
