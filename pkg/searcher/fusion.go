package searcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FusionSearcher combines multiple searchers using Reciprocal Rank Fusion (RRF).
//
// Supports three modes:
//   - Hybrid: Both BM25 and Vector searchers (full fusion)
//   - BM25-only: Just BM25 searcher (lexical search)
//   - Vector-only: Just Vector searcher (semantic search)
//
// Thread-safe for concurrent use.
type FusionSearcher struct {
	bm25   Searcher
	vector Searcher
	config FusionConfig
	mu     sync.RWMutex
}

// FusionOption configures FusionSearcher.
type FusionOption func(*FusionSearcher)

// WithBM25Searcher sets the BM25 searcher for lexical search.
func WithBM25Searcher(s Searcher) FusionOption {
	return func(f *FusionSearcher) {
		f.bm25 = s
	}
}

// WithVectorSearcher sets the Vector searcher for semantic search.
func WithVectorSearcher(s Searcher) FusionOption {
	return func(f *FusionSearcher) {
		f.vector = s
	}
}

// WithFusionConfig sets the RRF fusion configuration.
func WithFusionConfig(config FusionConfig) FusionOption {
	return func(f *FusionSearcher) {
		f.config = config
	}
}

// NewFusionSearcher creates a new fusion searcher.
//
// At least one searcher (BM25 or Vector) must be provided.
// Returns ErrNoSearchers if no searchers are configured.
func NewFusionSearcher(opts ...FusionOption) (*FusionSearcher, error) {
	f := &FusionSearcher{
		config: DefaultFusionConfig(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.bm25 == nil && f.vector == nil {
		return nil, ErrNoSearchers
	}

	return f, nil
}

// Search executes search on all configured searchers and fuses results.
//
// Graceful degradation: if one searcher fails, results from the other are
// returned. An error is returned only if every configured searcher fails.
func (f *FusionSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.bm25 == nil {
		return f.vector.Search(ctx, query, limit)
	}
	if f.vector == nil {
		return f.bm25.Search(ctx, query, limit)
	}
	return f.hybridSearch(ctx, query, limit)
}

// hybridSearch runs both searchers in parallel and fuses results.
func (f *FusionSearcher) hybridSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	var (
		bm25Results   []Result
		vectorResults []Result
		bm25Err       error
		vectorErr     error
	)

	// k' = max(limit*3, 50) per spec.md §4.11's semantic headroom; applied
	// to both lists so fusion sees comparably sized candidate sets.
	fetchLimit := limit * 3
	if fetchLimit < 50 {
		fetchLimit = 50
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		bm25Results, err = f.bm25.Search(gctx, query, fetchLimit)
		bm25Err = err
		return nil
	})

	g.Go(func() error {
		var err error
		vectorResults, err = f.vector.Search(gctx, query, fetchLimit)
		vectorErr = err
		return nil
	})

	_ = g.Wait()

	if bm25Err != nil && vectorErr != nil {
		return nil, fmt.Errorf("all searchers failed: BM25: %v, Vector: %v", bm25Err, vectorErr)
	}
	if bm25Err != nil {
		return truncateResults(vectorResults, limit), nil
	}
	if vectorErr != nil {
		return truncateResults(bm25Results, limit), nil
	}

	fused := f.fuseResults(bm25Results, vectorResults)
	return truncateResults(fused, limit), nil
}

// fusedScore tracks score accumulation during RRF fusion.
type fusedScore struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// fuseResults applies Reciprocal Rank Fusion: score(c) = Σ 1/(k_rrf + rank_i(c)),
// the two lists weighted equally (spec.md §4.11).
func (f *FusionSearcher) fuseResults(bm25Results, vectorResults []Result) []Result {
	k := f.config.RRFConstant
	scores := make(map[string]*fusedScore)

	for rank, r := range bm25Results {
		scores[r.ID] = &fusedScore{
			ID:           r.ID,
			Score:        1.0 / float64(k+rank+1),
			MatchedTerms: r.MatchedTerms,
		}
	}

	for rank, r := range vectorResults {
		rrfScore := 1.0 / float64(k+rank+1)
		if existing, ok := scores[r.ID]; ok {
			existing.Score += rrfScore
		} else {
			scores[r.ID] = &fusedScore{ID: r.ID, Score: rrfScore}
		}
	}

	results := make([]Result, 0, len(scores))
	for _, s := range scores {
		results = append(results, Result{ID: s.ID, Score: s.Score, MatchedTerms: s.MatchedTerms})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results
}

// truncateResults returns at most limit results.
func truncateResults(results []Result, limit int) []Result {
	if len(results) <= limit {
		return results
	}
	return results[:limit]
}
