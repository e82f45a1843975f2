package searcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/arborcache/engine/internal/embed"
	"github.com/arborcache/engine/internal/vectorindex"
)

// VectorSearcher performs semantic search using embeddings.
//
// It wraps an embed.Embedder and a vectorindex.Index to provide the
// Searcher interface. Thread-safe for concurrent use.
type VectorSearcher struct {
	embedder embed.Embedder
	index    *vectorindex.Index
	mu       sync.RWMutex
}

// VectorOption configures VectorSearcher.
type VectorOption func(*VectorSearcher)

// WithSearchEmbedder sets the embedder for query embedding.
func WithSearchEmbedder(e embed.Embedder) VectorOption {
	return func(s *VectorSearcher) {
		s.embedder = e
	}
}

// WithSearchVectorIndex sets the vector index backend.
func WithSearchVectorIndex(idx *vectorindex.Index) VectorOption {
	return func(s *VectorSearcher) {
		s.index = idx
	}
}

// NewVectorSearcher creates a new vector searcher.
//
// Requires both WithSearchEmbedder and WithSearchVectorIndex options.
func NewVectorSearcher(opts ...VectorOption) (*VectorSearcher, error) {
	s := &VectorSearcher{}

	for _, opt := range opts {
		opt(s)
	}

	if s.embedder == nil {
		return nil, ErrNilEmbedder
	}
	if s.index == nil {
		return nil, ErrNilVectorIndex
	}

	return s, nil
}

// Search embeds the query and runs approximate nearest-neighbor search
// against the vector index. Per spec.md §4.11, callers asking for a
// Hybrid search should request k' = max(limit*3, 50) and post-filter;
// SearchK exposes that knob, Search uses limit directly.
func (s *VectorSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return s.SearchK(ctx, query, limit)
}

// SearchK is Search with an explicit candidate count, used by
// HybridSearcher's semantic search to over-fetch before filtering.
func (s *VectorSearcher) SearchK(ctx context.Context, query string, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query failed: %w", err)
	}

	hits, err := s.index.Search(embedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.ID, Score: float64(h.Score)}
	}
	return results, nil
}
