package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arborcache/engine/internal/embed"
	"github.com/arborcache/engine/internal/store"
	"github.com/arborcache/engine/internal/vectorindex"
)

// ErrNilEmbedder is returned when attempting to create a VectorIndexer without an embedder.
var ErrNilEmbedder = errors.New("embedder is required")

// ErrNilVectorIndex is returned when attempting to create a VectorIndexer without a vector index.
var ErrNilVectorIndex = errors.New("vector index is required")

// VectorIndexer provides semantic indexing for document chunks.
//
// It generates embeddings via an [embed.Embedder] and stores them in a
// [vectorindex.Index]. This enables semantic similarity search over
// indexed content.
//
// VectorIndexer is safe for concurrent use. All methods may be called
// from multiple goroutines simultaneously.
type VectorIndexer struct {
	embedder embed.Embedder
	index    *vectorindex.Index
	mu       sync.RWMutex
	closed   bool
}

// VectorOption configures a VectorIndexer.
type VectorOption func(*VectorIndexer)

// WithEmbedder sets the embedder for generating embeddings.
//
// This is a required option; NewVectorIndexer will return an error
// if no embedder is provided.
func WithEmbedder(e embed.Embedder) VectorOption {
	return func(v *VectorIndexer) {
		v.embedder = e
	}
}

// WithVectorIndex sets the vector index backend.
//
// This is a required option; NewVectorIndexer will return an error
// if no index is provided.
func WithVectorIndex(idx *vectorindex.Index) VectorOption {
	return func(v *VectorIndexer) {
		v.index = idx
	}
}

// NewVectorIndexer creates a new vector indexer with the given options.
//
// At minimum, WithEmbedder and WithVectorIndex must be provided:
//
//	indexer, err := NewVectorIndexer(
//	    WithEmbedder(embedder),
//	    WithVectorIndex(vectorIdx),
//	)
func NewVectorIndexer(opts ...VectorOption) (*VectorIndexer, error) {
	v := &VectorIndexer{}

	for _, opt := range opts {
		opt(v)
	}

	if v.embedder == nil {
		return nil, ErrNilEmbedder
	}
	if v.index == nil {
		return nil, ErrNilVectorIndex
	}

	return v, nil
}

// Index generates embeddings for chunks and inserts them into the vector index.
//
// The process:
//  1. Extract text content from chunks
//  2. Generate embeddings via embedder.EmbedBatch()
//  3. Insert each vector under the chunk's ID
//
// Empty or nil slices are no-ops that return nil.
//
// This method is thread-safe.
func (v *VectorIndexer) Index(ctx context.Context, chunks []*store.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		ids[i] = c.ChunkID
	}

	embeddings, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("vector embed: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for i, id := range ids {
		if err := v.index.Insert(id, embeddings[i]); err != nil {
			return fmt.Errorf("vector index insert %s: %w", id, err)
		}
	}

	return nil
}

// Delete removes vectors by ID from the vector index.
//
// Non-existent IDs are silently ignored (no error).
// Empty or nil slices are no-ops that return nil.
//
// This method is thread-safe.
func (v *VectorIndexer) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range ids {
		v.index.Remove(id)
	}
	return nil
}

// Clear removes all vectors from the index.
//
// This method is thread-safe.
func (v *VectorIndexer) Clear(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.index.Clear()
	return nil
}

// Stats returns current index statistics.
//
// For vector indexes, only DocumentCount is meaningful (number of vectors).
// TermCount and AvgDocLength are not applicable and return 0.
//
// This method is thread-safe.
func (v *VectorIndexer) Stats() IndexStats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return IndexStats{
		DocumentCount: v.index.Len(),
	}
}

// Close releases all resources held by the indexer.
//
// This method is idempotent; calling it multiple times is safe.
//
// This method is thread-safe.
func (v *VectorIndexer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	return v.index.Close()
}

// Ensure VectorIndexer implements Indexer at compile time.
var _ Indexer = (*VectorIndexer)(nil)
