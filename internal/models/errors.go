// ABOUTME: Error taxonomy shared by the retrieval pipeline and its callers
// ABOUTME: Every error type unwraps to its cause so errors.As works through wrapping
package models

import "fmt"

// ValidationError reports a bad or missing request field. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// EmbeddingError reports a failure of the embedding black box
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return "embedding failed: " + e.Err.Error() }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexLoadError reports a corrupted, missing or incompatible persisted index
type IndexLoadError struct {
	Path string
	Err  error
}

func (e *IndexLoadError) Error() string {
	return fmt.Sprintf("failed to load index from %s: %v", e.Path, e.Err)
}

func (e *IndexLoadError) Unwrap() error { return e.Err }

// RetrievalError wraps any failure to obtain context for a request
type RetrievalError struct {
	Source string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed (%s): %v", e.Source, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// PromptTooLargeError reports that the prompt cannot fit even with all history dropped
type PromptTooLargeError struct {
	Size  int
	Limit int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("prompt too large: %d characters exceeds limit of %d", e.Size, e.Limit)
}

// UpstreamError reports that the LLM call failed after all retries
type UpstreamError struct {
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream model call failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamUserMessage is the text shown to clients for upstream failures
const UpstreamUserMessage = "The language model is temporarily unavailable. Please try again."
