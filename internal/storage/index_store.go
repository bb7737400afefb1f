// ABOUTME: On-disk persistence for the vector index as a versioned directory
// ABOUTME: Stores a manifest, row-major float32 vectors and an aligned JSONL payload table
package storage

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/harper/ragchat/internal/models"
)

const (
	// IndexFormat identifies directories written by SaveIndex
	IndexFormat = "ragchat-index"
	// IndexFormatVersion is bumped on any incompatible layout change
	IndexFormatVersion = 1

	ManifestFile = "manifest.json"
	VectorsFile  = "vectors.bin"
	PayloadFile  = "payload.jsonl"
)

// IndexManifest describes a persisted index
type IndexManifest struct {
	Format         string    `json:"format"`
	Version        int       `json:"version"`
	Dimension      int       `json:"dimension"`
	Count          int       `json:"count"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	VectorsSHA256  string    `json:"vectors_sha256"`
	CreatedAt      time.Time `json:"created_at"`
}

// SaveIndex writes entries to dir. The directory is assembled next to dir and
// swapped in with renames so a concurrent reader never sees a partial index.
func SaveIndex(dir string, embeddingModel string, entries []models.IndexedVector) (*IndexManifest, error) {
	dim := 0
	if len(entries) > 0 {
		dim = len(entries[0].Embedding)
	}

	var vectors bytes.Buffer
	vectors.Grow(len(entries) * dim * 4)
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)

	for i, entry := range entries {
		if len(entry.Embedding) != dim {
			return nil, fmt.Errorf("entry %d has dimension %d, expected %d", i, len(entry.Embedding), dim)
		}
		vectors.Write(vectorToBlob(entry.Embedding))
		if err := enc.Encode(entry.Chunk); err != nil {
			return nil, fmt.Errorf("failed to encode chunk %d: %w", i, err)
		}
	}

	sum := sha256.Sum256(vectors.Bytes())
	manifest := &IndexManifest{
		Format:         IndexFormat,
		Version:        IndexFormatVersion,
		Dimension:      dim,
		Count:          len(entries),
		EmbeddingModel: embeddingModel,
		VectorsSHA256:  hex.EncodeToString(sum[:]),
		CreatedAt:      time.Now().UTC(),
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index parent directory: %w", err)
	}

	suffix := uuid.New().String()[:8]
	tmp := filepath.Join(parent, "."+filepath.Base(dir)+".tmp-"+suffix)
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	files := []struct {
		name string
		data []byte
	}{
		{VectorsFile, vectors.Bytes()},
		{PayloadFile, payload.Bytes()},
		// Manifest last: its presence marks a complete directory.
		{ManifestFile, manifestJSON},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(tmp, f.name), f.data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	backup := ""
	if _, err := os.Stat(dir); err == nil {
		backup = filepath.Join(parent, "."+filepath.Base(dir)+".old-"+suffix)
		if err := os.Rename(dir, backup); err != nil {
			return nil, fmt.Errorf("failed to move previous index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if backup != "" {
			_ = os.Rename(backup, dir)
		}
		return nil, fmt.Errorf("failed to publish index: %w", err)
	}
	if backup != "" {
		_ = os.RemoveAll(backup)
	}

	return manifest, nil
}

// LoadIndex reads a directory written by SaveIndex. Any inconsistency is
// reported as *models.IndexLoadError; an empty result is never returned for a
// damaged store.
func LoadIndex(dir string) ([]models.IndexedVector, *IndexManifest, error) {
	fail := func(err error) ([]models.IndexedVector, *IndexManifest, error) {
		return nil, nil, &models.IndexLoadError{Path: dir, Err: err}
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		return fail(err)
	}

	blob, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		return fail(fmt.Errorf("failed to read vectors: %w", err))
	}
	sum := sha256.Sum256(blob)
	if hex.EncodeToString(sum[:]) != manifest.VectorsSHA256 {
		return fail(errors.New("vectors checksum mismatch"))
	}
	if want := manifest.Count * manifest.Dimension * 4; len(blob) != want {
		return fail(fmt.Errorf("vectors size %d does not match %d x %d", len(blob), manifest.Count, manifest.Dimension))
	}

	f, err := os.Open(filepath.Join(dir, PayloadFile))
	if err != nil {
		return fail(fmt.Errorf("failed to open payload: %w", err))
	}
	defer func() { _ = f.Close() }()

	entries := make([]models.IndexedVector, 0, manifest.Count)
	reader := bufio.NewReader(f)
	row := 0
	stride := manifest.Dimension * 4
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if row >= manifest.Count {
				return fail(fmt.Errorf("payload has more than %d rows", manifest.Count))
			}
			var chunk models.Chunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				return fail(fmt.Errorf("payload row %d: %w", row, err))
			}
			if err := chunk.Validate(); err != nil {
				return fail(fmt.Errorf("payload row %d: %w", row, err))
			}
			entries = append(entries, models.IndexedVector{
				Chunk:     chunk,
				Embedding: blobToVector(blob[row*stride : (row+1)*stride]),
			})
			row++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("failed to read payload: %w", err))
		}
	}
	if row != manifest.Count {
		return fail(fmt.Errorf("payload has %d rows, manifest declares %d", row, manifest.Count))
	}

	return entries, manifest, nil
}

// ReadManifest reads and checks the manifest of an index directory
func ReadManifest(dir string) (*IndexManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest IndexManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("malformed manifest: %w", err)
	}
	if manifest.Format != IndexFormat {
		return nil, fmt.Errorf("unknown index format %q", manifest.Format)
	}
	if manifest.Version != IndexFormatVersion {
		return nil, fmt.Errorf("index format version %d is not supported (want %d)", manifest.Version, IndexFormatVersion)
	}
	if manifest.Count < 0 || manifest.Dimension < 0 || (manifest.Count > 0 && manifest.Dimension == 0) {
		return nil, fmt.Errorf("invalid manifest shape %d x %d", manifest.Count, manifest.Dimension)
	}
	return &manifest, nil
}

// vectorToBlob converts a float32 slice to little-endian bytes
func vectorToBlob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// blobToVector converts little-endian bytes back to a float32 slice
func blobToVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
