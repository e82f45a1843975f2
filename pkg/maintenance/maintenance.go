// Package maintenance is the external contract exposed to the
// maintenance tool: migrate, evict, stats, and clear(scope), per
// spec.md §6. It wires the Migration Tool and Eviction Engine against
// the Cache Store and reports exit-code-friendly errors for the CLI.
package maintenance

import (
	"context"
	"strings"

	"github.com/arborcache/engine/internal/async"
	"github.com/arborcache/engine/internal/cacheerr"
	"github.com/arborcache/engine/internal/cachestore"
	"github.com/arborcache/engine/internal/codec"
	"github.com/arborcache/engine/internal/eviction"
	"github.com/arborcache/engine/internal/migration"
)

// Scope selects what Clear removes: all entries, entries of one
// operation kind (kind=K), or one repository (repo=R). There is no
// type=T scope.
type Scope struct {
	All      bool
	Kind     cachestore.OperationKind
	RepoPath string
}

// ParseScope parses the CLI scope syntax `all | kind=K | repo=R`.
// `type=T` is rejected with BadInputs like any other unrecognised form,
// since the Cache Store has no "type" dimension separate from
// operation_kind; callers get an explicit error rather than a silent
// no-op.
func ParseScope(raw string) (Scope, error) {
	if raw == "all" {
		return Scope{All: true}, nil
	}
	if k, ok := strings.CutPrefix(raw, "kind="); ok && k != "" {
		return Scope{Kind: cachestore.OperationKind(k)}, nil
	}
	if r, ok := strings.CutPrefix(raw, "repo="); ok && r != "" {
		return Scope{RepoPath: r}, nil
	}
	return Scope{}, cacheerr.BadInputs("scope must be one of: all | kind=K | repo=R", nil)
}

// Tool is the maintenance-facing entry point used by cmd/cachectl.
type Tool struct {
	store     *cachestore.Store
	migration *migration.Tool
	eviction  *eviction.Engine
}

// New builds a Tool over store, using codec for migration payload
// compression.
func New(store *cachestore.Store, c *codec.Codec) *Tool {
	return &Tool{
		store:     store,
		migration: migration.New(store, c),
		eviction:  eviction.New(store),
	}
}

// Migrate converts a legacy file-per-entry cache tree into the Cache
// Store. There is no destination parameter: entries always go into the
// Tool's own store, and migrating into another, unopened file is not
// supported.
func (t *Tool) Migrate(ctx context.Context, source string, opts migration.Options, sink async.ProgressSink) (migration.Result, error) {
	return t.migration.Migrate(ctx, source, opts, sink)
}

// Evict runs one eviction pass against the store.
func (t *Tool) Evict(ctx context.Context, policy eviction.Policy, targetBytes int64, sink async.EvictionSink) (int, int64, error) {
	result, err := t.eviction.Evict(ctx, policy, targetBytes, sink)
	if err != nil {
		return 0, 0, err
	}
	return result.Evicted, result.BytesFreed, nil
}

// Stats returns the store's current AggregateStats.
func (t *Tool) Stats(ctx context.Context) (cachestore.AggregateStats, error) {
	return t.store.Stats(ctx)
}

// Clear removes entries matching scope, returning the number removed.
func (t *Tool) Clear(ctx context.Context, scope Scope) (int64, error) {
	switch {
	case scope.All:
		return t.store.Clear(ctx)
	case scope.Kind != "":
		return t.store.DeleteByKind(ctx, scope.Kind)
	case scope.RepoPath != "":
		return t.store.DeleteByRepo(ctx, scope.RepoPath)
	default:
		return 0, cacheerr.BadInputs("clear requires a non-empty scope", nil)
	}
}
