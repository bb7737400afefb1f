// ABOUTME: CacheEntry is a content-addressed retrieval result
// ABOUTME: Keys are hex sha256 digests of the normalized key material
package models

import "time"

// CacheEntry maps a digest to previously computed context.
// An entry is immutable once written.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
