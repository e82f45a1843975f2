// Package hottier implements the In-Memory Hot Tier (C12): a bounded,
// concurrent LRU cache in front of the Cache Store, with per-entry TTL
// and prefix-based pattern invalidation.
package hottier

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stats are advisory, in-process counters (spec.md §4.12); they reset
// on process restart and are distinct from the durable AggregateStats
// on the Cache Store.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns Hits / (Hits + Misses), or 0 when there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

// Tier is a bounded LRU cache with TTL and pattern invalidation. Safe
// for concurrent use; an in-flight reader never observes a partially
// inserted value because the whole read/write path holds a single
// mutex around the underlying LRU.
type Tier struct {
	mu         sync.Mutex
	cache      *lru.Cache[string, entry]
	defaultTTL time.Duration
	enableStats bool

	statsMu sync.Mutex
	stats   Stats

	now func() time.Time
}

// Config configures a new Tier.
type Config struct {
	Capacity    int
	DefaultTTL  time.Duration
	EnableStats bool
	// Now overrides the clock; nil uses time.Now. Exposed for tests.
	Now func() time.Time
}

const defaultCapacity = 1000

// New creates a Tier. Capacity <= 0 uses defaultCapacity.
func New(cfg Config) *Tier {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	t := &Tier{defaultTTL: cfg.DefaultTTL, enableStats: cfg.EnableStats, now: now}
	onEvict := func(key string, _ entry) {
		if t.enableStats {
			t.statsMu.Lock()
			t.stats.Evictions++
			t.statsMu.Unlock()
		}
	}
	cache, _ := lru.NewWithEvict[string, entry](capacity, onEvict)
	t.cache = cache
	return t
}

// Get returns the value for key if present and unexpired. TTL expiry
// is evaluated lazily on access: an expired entry is removed and
// treated as absent.
func (t *Tier) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	e, ok := t.cache.Get(key)
	if ok && e.hasTTL && t.now().After(e.expiresAt) {
		t.cache.Remove(key)
		ok = false
	}
	t.mu.Unlock()

	if t.enableStats {
		t.statsMu.Lock()
		if ok {
			t.stats.Hits++
		} else {
			t.stats.Misses++
		}
		t.statsMu.Unlock()
	}

	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set inserts or replaces key with the tier's default TTL (0 = no
// expiry). A write always resets the key's TTL to the full configured
// duration, per spec.md §9's stated default for "does a store write
// reset the hot-tier TTL of the same key".
func (t *Tier) Set(key string, value []byte) {
	t.SetWithTTL(key, value, t.defaultTTL)
}

// SetWithTTL inserts or replaces key with an explicit TTL (0 = no expiry).
func (t *Tier) SetWithTTL(key string, value []byte, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expiresAt = t.now().Add(ttl)
	}
	t.mu.Lock()
	t.cache.Add(key, e)
	t.mu.Unlock()
}

// Delete removes key if present.
func (t *Tier) Delete(key string) {
	t.mu.Lock()
	t.cache.Remove(key)
	t.mu.Unlock()
}

// InvalidatePattern removes every entry whose key starts with prefix,
// as a single logical operation (spec.md §4.12 "pattern invalidation").
func (t *Tier) InvalidatePattern(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var toRemove []string
	for _, key := range t.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		t.cache.Remove(key)
	}
	return len(toRemove)
}

// Len returns the current number of entries (including not-yet-expired
// ones that a lazy Get hasn't swept yet).
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}

// Sweep purges every expired entry proactively; callers may run this
// periodically in a background goroutine in addition to lazy,
// access-time expiry.
func (t *Tier) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []string
	for _, key := range t.cache.Keys() {
		if e, ok := t.cache.Peek(key); ok && e.hasTTL && now.After(e.expiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		t.cache.Remove(key)
	}
	return len(expired)
}

// Stats returns a snapshot of the advisory hit/miss/eviction counters.
func (t *Tier) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}
