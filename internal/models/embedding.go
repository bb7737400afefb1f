// ABOUTME: Embedding models for the vector index
// ABOUTME: Defines IndexedVector and ScoredChunk structures
package models

// IndexedVector pairs a chunk with its embedding.
// All vectors of one index share the same dimensionality.
type IndexedVector struct {
	Chunk     Chunk     `json:"chunk"`
	Embedding []float32 `json:"embedding"`
}

// ScoredChunk is a query result with its relevance to the query vector
// and the MMR score it was selected with.
type ScoredChunk struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
	MMRScore   float64 `json:"mmr_score"`
}
