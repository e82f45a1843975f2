// Package eviction implements the Eviction Engine (C6): policy-driven
// pruning of the Cache Store to meet a target size, with interruptible,
// per-row commit progress.
package eviction

import (
	"context"
	"sort"

	"github.com/arborcache/engine/internal/async"
	"github.com/arborcache/engine/internal/cachestore"
)

// Policy is the closed set of victim-selection strategies (spec.md §4.6).
type Policy string

const (
	// PolicyLRU evicts the smallest last_accessed_at first.
	PolicyLRU Policy = "LRU"
	// PolicyOldestFirst evicts the smallest created_at first.
	PolicyOldestFirst Policy = "OldestFirst"
	// PolicyLargestFirst evicts the largest payload_size first.
	PolicyLargestFirst Policy = "LargestFirst"
	// PolicyMostExpensive evicts the largest tokens_input+tokens_output
	// first: it sheds the entries that would be most expensive to
	// refetch, prioritizing storage-cost reduction over refetch-cost
	// avoidance. This is the literal reading of spec.md §4.6; see
	// PolicyLeastExpensive for the other named semantic from the
	// open question in spec.md §9.
	PolicyMostExpensive Policy = "MostExpensive"
	// PolicyLeastExpensive evicts the smallest tokens_input+tokens_output
	// first, protecting expensive-to-regenerate entries by shedding the
	// cheap-to-regenerate ones instead. Exposed as a distinct named
	// policy rather than silently reinterpreting MostExpensive.
	PolicyLeastExpensive Policy = "LeastExpensive"
)

// Store is the subset of *cachestore.Store the eviction engine needs.
type Store interface {
	ListForEviction(ctx context.Context) ([]cachestore.VictimCandidate, error)
	TotalPayloadBytes(ctx context.Context) (int64, error)
	DeleteKey(ctx context.Context, key string) error
}

// Engine runs eviction passes against a Store.
type Engine struct {
	store Store
}

// New creates an Engine over store.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// Result is the outcome of one eviction pass.
type Result struct {
	Evicted    int
	BytesFreed int64
}

// Evict reduces the store to targetBytes of total payload_size using
// policy, reporting progress through sink (async.NoopEvictionSink if
// the caller doesn't need it). It is cooperative: cancelling ctx stops
// the pass after the current row's delete commits, and any progress
// already committed is preserved.
func (e *Engine) Evict(ctx context.Context, policy Policy, targetBytes int64, sink async.EvictionSink) (Result, error) {
	if sink == nil {
		sink = async.NoopEvictionSink
	}

	total, err := e.store.TotalPayloadBytes(ctx)
	if err != nil {
		return Result{}, err
	}
	if total <= targetBytes {
		return Result{}, nil
	}

	candidates, err := e.store.ListForEviction(ctx)
	if err != nil {
		return Result{}, err
	}
	sortVictims(candidates, policy)

	var result Result
	remaining := total
	for _, c := range candidates {
		if remaining <= targetBytes {
			break
		}
		select {
		case <-ctx.Done():
			return result, nil
		default:
		}

		if err := e.store.DeleteKey(ctx, c.CacheKey); err != nil {
			return result, err
		}
		remaining -= c.PayloadSize
		result.Evicted++
		result.BytesFreed += c.PayloadSize

		sink(async.EvictionProgress{
			Evicted:     result.Evicted,
			BytesFreed:  result.BytesFreed,
			TotalBytes:  remaining,
			TargetBytes: targetBytes,
		})
	}
	return result, nil
}

// sortVictims orders candidates so the first-evicted entry per policy
// is at index 0. Ties break by created_at ascending, then cache_key
// lexicographically, per spec.md §4.6.
func sortVictims(candidates []cachestore.VictimCandidate, policy Policy) {
	less := func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch policy {
		case PolicyLRU:
			if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
				return a.LastAccessedAt.Before(b.LastAccessedAt)
			}
		case PolicyOldestFirst:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case PolicyLargestFirst:
			if a.PayloadSize != b.PayloadSize {
				return a.PayloadSize > b.PayloadSize
			}
		case PolicyMostExpensive:
			if a.TotalTokens != b.TotalTokens {
				return a.TotalTokens > b.TotalTokens
			}
		case PolicyLeastExpensive:
			if a.TotalTokens != b.TotalTokens {
				return a.TotalTokens < b.TotalTokens
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CacheKey < b.CacheKey
	}
	sort.SliceStable(candidates, less)
}
