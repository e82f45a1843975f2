// Package cachestore implements the durable, indexed key→entry store
// (C5) that backs the cache and retrieval engine: SQLite-backed rows
// with compressed payloads, access-time bookkeeping on every get, and
// the secondary indexes needed for sub-linear stats and listing.
package cachestore

import "time"

// OperationKind is the closed set of cacheable operation categories.
type OperationKind string

const (
	OperationRefactor OperationKind = "refactor"
	OperationDocs     OperationKind = "docs"
	OperationAnalysis OperationKind = "analysis"
	OperationTodos    OperationKind = "todos"
	OperationReview   OperationKind = "review"
	OperationTestGen  OperationKind = "test_gen"
)

// Entry is one row of the cache_entries table (CacheEntry in spec.md §3).
// Payload is the codec-encoded blob as stored on disk; callers that want
// the decoded result must run it back through the codec themselves.
type Entry struct {
	CacheKey       string
	OperationKind  OperationKind
	RepoPath       string
	FilePath       string
	ContentHash    string
	Provider       string
	Model          string
	PromptHash     string
	SchemaVersion  int64
	Payload        []byte
	TokensInput    int64
	TokensOutput   int64
	TokensCached   int64
	InputSize      int64
	PayloadSize    int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	// Quarantined is true when the stored payload failed decode/integrity
	// validation; the row is retained (its size still counts toward
	// AggregateStats) but excluded from normal reads.
	Quarantined bool
}

// AggregateStats is the derived, recomputable view of store contents
// (spec.md §3 AggregateStats).
type AggregateStats struct {
	TotalEntries int64
	TotalBytes   int64
	TotalTokens  int64
	EstimatedCostTotal float64

	Hits   int64
	Misses int64

	ByOperation map[OperationKind]OperationBreakdown
	ByModel     map[string]OperationBreakdown
}

// OperationBreakdown is a per-operation-kind or per-model slice of
// AggregateStats.
type OperationBreakdown struct {
	Entries int64
	Bytes   int64
	Tokens  int64
}
