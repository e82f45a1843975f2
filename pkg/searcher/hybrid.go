package searcher

import (
	"context"

	"github.com/arborcache/engine/internal/store"
)

// ChunkLookup resolves a chunk ID to the store.DocumentChunk it was
// produced from, used both for post-filtering and to hydrate ChunkHit.
// A nil lookup disables filtering (Filters are ignored) and SearchChunks
// falls back to returning hits with only ChunkID and Score populated.
type ChunkLookup func(chunkID string) (*store.DocumentChunk, bool)

// ChunkHit is a single row of the query-planner-facing search result:
// the chunk identity, its rank score, and enough of the chunk to act on
// without a second round trip.
type ChunkHit struct {
	ChunkID     string
	Score       float64
	Text        string
	HeadingPath []string
	Metadata    map[string]string
}

// HybridSearcher is the external contract for the Retrieval Index (C11):
// given a query, a search_type, and optional filters, it produces a
// ranked, filtered chunk list.
type HybridSearcher struct {
	fusion *FusionSearcher
	lookup ChunkLookup
}

// NewHybridSearcher builds the C11 contract around an already-assembled
// FusionSearcher (itself wrapping BM25Searcher/VectorSearcher).
func NewHybridSearcher(fusion *FusionSearcher, lookup ChunkLookup) *HybridSearcher {
	return &HybridSearcher{fusion: fusion, lookup: lookup}
}

// Search dispatches on searchType (default Hybrid when empty) and applies
// filters to the ranked result set before truncating to limit.
func (h *HybridSearcher) Search(ctx context.Context, query string, limit int, searchType SearchType, filters Filters) ([]Result, error) {
	if searchType == "" {
		searchType = SearchHybrid
	}

	var (
		results []Result
		err     error
	)
	switch searchType {
	case SearchSemantic:
		if h.fusion.vector == nil {
			return nil, ErrNilVectorIndex
		}
		k := limit * 3
		if k < 50 {
			k = 50
		}
		if vs, ok := h.fusion.vector.(*VectorSearcher); ok {
			results, err = vs.SearchK(ctx, query, k)
		} else {
			results, err = h.fusion.vector.Search(ctx, query, k)
		}
	case SearchKeyword:
		if h.fusion.bm25 == nil {
			return nil, ErrNilBM25Store
		}
		results, err = h.fusion.bm25.Search(ctx, query, limit*3)
	default:
		results, err = h.fusion.Search(ctx, query, limit*3)
	}
	if err != nil {
		return nil, err
	}

	filtered := h.applyFilters(results, filters)
	return truncateResults(filtered, limit), nil
}

// SearchChunks is Search hydrated into the query planner's contract
// (spec.md §6): chunk_id, score, text, heading_path, metadata per hit.
// Hits whose chunk can't be resolved through lookup are dropped, since a
// ChunkHit with no text is useless to a caller that didn't index the
// chunk itself.
func (h *HybridSearcher) SearchChunks(ctx context.Context, query string, limit int, searchType SearchType, filters Filters) ([]ChunkHit, error) {
	results, err := h.Search(ctx, query, limit, searchType, filters)
	if err != nil {
		return nil, err
	}
	if h.lookup == nil {
		hits := make([]ChunkHit, len(results))
		for i, r := range results {
			hits[i] = ChunkHit{ChunkID: r.ID, Score: r.Score}
		}
		return hits, nil
	}

	hits := make([]ChunkHit, 0, len(results))
	for _, r := range results {
		chunk, ok := h.lookup(r.ID)
		if !ok {
			continue
		}
		hits = append(hits, ChunkHit{
			ChunkID:     chunk.ChunkID,
			Score:       r.Score,
			Text:        chunk.Text,
			HeadingPath: chunk.HeadingPath,
			Metadata:    chunk.Metadata,
		})
	}
	return hits, nil
}

func (h *HybridSearcher) applyFilters(results []Result, filters Filters) []Result {
	if h.lookup == nil || isZeroFilters(filters) {
		return results
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		chunk, ok := h.lookup(r.ID)
		if !ok {
			continue
		}
		if filters.Matches(chunk.Metadata) {
			out = append(out, r)
		}
	}
	return out
}

func isZeroFilters(f Filters) bool {
	return f.OperationKind == "" && len(f.Tags) == 0 && f.RepoID == "" &&
		f.SourceType == "" && !f.IndexedOnly && f.DateFrom == "" && f.DateTo == ""
}
