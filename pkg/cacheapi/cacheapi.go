// Package cacheapi is the external contract exposed to the LLM driver:
// cache.lookup(key) -> Result?, cache.store(meta, result, tokens) -> ().
//
// It wires the Fingerprinter, Compression Codec, Cache Store, In-Memory
// Hot Tier, Token & Cost Model, and Budget Monitor together into the
// control flow described in spec.md §2: the Hot Tier is consulted
// first; on miss, the Cache Store; a stored result populates the Hot
// Tier and updates the Budget Monitor.
package cacheapi

import (
	"context"
	"time"

	"github.com/arborcache/engine/internal/budget"
	"github.com/arborcache/engine/internal/cachestore"
	"github.com/arborcache/engine/internal/codec"
	"github.com/arborcache/engine/internal/fingerprint"
	"github.com/arborcache/engine/internal/hottier"
	"github.com/arborcache/engine/internal/pricing"
)

// RequestMeta identifies the request being cached or looked up.
type RequestMeta struct {
	OperationKind  cachestore.OperationKind
	RepoPath       string
	FilePath       string
	Content        []byte
	Provider       string
	Model          string
	PromptTemplate []byte
	SchemaVersion  int64
}

// TokenCounts carries token usage for a freshly produced result. Any
// field may be zero when the provider did not report it; the cost
// model's 50/50 estimation handles that case.
type TokenCounts struct {
	Input  int64
	Output int64
	Cached int64
	Total  int64
}

// Result is a decoded cache hit.
type Result struct {
	Payload      []byte
	TokensInput  int64
	TokensOutput int64
	TokensCached int64
	CreatedAt    time.Time
}

// Engine is the cache-facing entry point used by an LLM driver.
type Engine struct {
	store  *cachestore.Store
	hot    *hottier.Tier
	codec  *codec.Codec
	budget *budget.Monitor
	pricer *pricing.Pricer
}

// Option configures an Engine.
type Option func(*Engine)

func WithStore(s *cachestore.Store) Option { return func(e *Engine) { e.store = s } }
func WithHotTier(h *hottier.Tier) Option    { return func(e *Engine) { e.hot = h } }
func WithCodec(c *codec.Codec) Option       { return func(e *Engine) { e.codec = c } }
func WithBudget(b *budget.Monitor) Option   { return func(e *Engine) { e.budget = b } }
func WithPricer(p *pricing.Pricer) Option   { return func(e *Engine) { e.pricer = p } }

// New builds an Engine. Store is required; the Hot Tier, Budget
// Monitor, and Pricer are optional collaborators that degrade
// gracefully when absent (no hot-tier population, no budget tracking,
// no cost estimation, respectively).
func New(opts ...Option) *Engine {
	e := &Engine{codec: mustCodec()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func mustCodec() *codec.Codec {
	c, err := codec.New()
	if err != nil {
		// codec.New only fails on zstd encoder/decoder construction,
		// which cannot happen with the fixed options this package uses.
		panic(err)
	}
	return c
}

// Key computes the cache key for a request, per spec.md §4.1.
func Key(meta RequestMeta) (fingerprint.CacheKey, error) {
	return fingerprint.Key(meta.Content, meta.Model, meta.PromptTemplate, meta.SchemaVersion)
}

// Lookup consults the Hot Tier first, falling back to the Cache Store
// on miss; a store hit repopulates the Hot Tier. Returns (nil, nil) on
// a clean miss.
func (e *Engine) Lookup(ctx context.Context, key fingerprint.CacheKey) (*Result, error) {
	raw := string(key)

	if e.hot != nil {
		if payload, ok := e.hot.Get(raw); ok {
			decoded, err := e.codec.Decode(payload)
			if err != nil {
				return nil, err
			}
			return &Result{Payload: decoded}, nil
		}
	}

	entry, err := e.store.Get(ctx, raw)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	decoded, err := e.codec.Decode(entry.Payload)
	if err != nil {
		return nil, err
	}

	if e.hot != nil {
		e.hot.Set(raw, entry.Payload)
	}

	return &Result{
		Payload:      decoded,
		TokensInput:  entry.TokensInput,
		TokensOutput: entry.TokensOutput,
		TokensCached: entry.TokensCached,
		CreatedAt:    entry.CreatedAt,
	}, nil
}

// Store compresses and persists result under the key derived from meta,
// populates the Hot Tier, and records its cost against the Budget
// Monitor.
func (e *Engine) Store(ctx context.Context, meta RequestMeta, result []byte, tokens TokenCounts) error {
	key, err := Key(meta)
	if err != nil {
		return err
	}

	payload := e.codec.Encode(result)
	entry := cachestore.Entry{
		OperationKind: meta.OperationKind,
		RepoPath:      meta.RepoPath,
		FilePath:      meta.FilePath,
		ContentHash:   fingerprint.ContentHash(meta.Content),
		Provider:      meta.Provider,
		Model:         meta.Model,
		PromptHash:    fingerprint.PromptHash(meta.PromptTemplate),
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
		TokensInput:   tokens.Input,
		TokensOutput:  tokens.Output,
		TokensCached:  tokens.Cached,
		InputSize:     int64(len(meta.Content)),
	}

	if err := e.store.PutWithKey(ctx, string(key), entry); err != nil {
		return err
	}

	if e.hot != nil {
		e.hot.Set(string(key), payload)
	}

	if e.budget != nil && e.pricer != nil {
		sheet, _ := e.pricer.Lookup(meta.Provider, meta.Model)
		cost := pricing.EstimateCost(tokens.Input, tokens.Output, tokens.Cached, tokens.Total, sheet)
		e.budget.Observe(cost.TotalCost)
	}

	return nil
}
