package searcher

import (
	"context"
	"errors"
)

// ErrNilBM25Store is returned when attempting to create a BM25Searcher without a store.
var ErrNilBM25Store = errors.New("BM25 store is required")

// ErrNilEmbedder is returned when attempting to create a VectorSearcher without an embedder.
var ErrNilEmbedder = errors.New("embedder is required")

// ErrNilVectorIndex is returned when attempting to create a VectorSearcher without an index.
var ErrNilVectorIndex = errors.New("vector index is required")

// ErrNoSearchers is returned when attempting to create a FusionSearcher without any searchers.
var ErrNoSearchers = errors.New("at least one searcher is required")

// Searcher performs search operations and returns ranked results.
//
// Implementations must be thread-safe for concurrent use.
type Searcher interface {
	// Search executes a search query and returns ranked results.
	//
	// Returns an empty slice (not nil) if no results match.
	// Returns an error if the search fails.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Result represents a single search result.
type Result struct {
	// ID is the unique identifier for the matched chunk.
	ID string

	// Score is the relevance score, always "higher is better".
	Score float64

	// MatchedTerms contains the query terms that matched (keyword search only).
	// May be empty for vector search results.
	MatchedTerms []string
}

// SearchType selects which ranking algorithm a query runs against.
type SearchType string

const (
	SearchSemantic SearchType = "semantic"
	SearchKeyword  SearchType = "keyword"
	SearchHybrid   SearchType = "hybrid"
)

// Filters narrows a search to chunks whose metadata satisfies every
// non-zero predicate except IndexedOnly, which Matches does not
// evaluate. Filters are applied after ranking, never before,
// so rank order within the surviving set is unaffected.
type Filters struct {
	OperationKind string
	Tags          []string
	RepoID        string
	SourceType    string
	IndexedOnly   bool
	DateFrom      string // RFC3339; empty means unbounded
	DateTo        string
}

// Matches reports whether a chunk's metadata satisfies every configured
// predicate. Metadata is the store.DocumentChunk.Metadata map.
func (f Filters) Matches(metadata map[string]string) bool {
	if f.OperationKind != "" && metadata["operation_kind"] != f.OperationKind {
		return false
	}
	if f.RepoID != "" && metadata["repo_id"] != f.RepoID {
		return false
	}
	if f.SourceType != "" && metadata["source_type"] != f.SourceType {
		return false
	}
	for _, tag := range f.Tags {
		if !hasTag(metadata["tags"], tag) {
			return false
		}
	}
	if f.DateFrom != "" && metadata["date"] < f.DateFrom {
		return false
	}
	if f.DateTo != "" && metadata["date"] > f.DateTo {
		return false
	}
	return true
}

func hasTag(csv, tag string) bool {
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if csv[start:i] == tag {
				return true
			}
			start = i + 1
		}
	}
	return false
}

// FusionConfig configures Reciprocal Rank Fusion (spec.md §4.11): the two
// ranked lists are weighted equally, smoothed by RRFConstant.
type FusionConfig struct {
	// RRFConstant is the smoothing constant k_rrf in 1/(k_rrf + rank).
	RRFConstant int
}

// DefaultFusionConfig returns the conventional RRF smoothing constant, 60.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{RRFConstant: 60}
}
