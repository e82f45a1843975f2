package hottier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTier_SetGet(t *testing.T) {
	tier := New(Config{Capacity: 10})
	tier.Set("a", []byte("v"))

	v, ok := tier.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestTier_MissOnAbsentKey(t *testing.T) {
	tier := New(Config{Capacity: 10})
	_, ok := tier.Get("missing")
	assert.False(t, ok)
}

func TestTier_TTLExpiryIsLazy(t *testing.T) {
	now := time.Now()
	cur := now
	tier := New(Config{Capacity: 10, Now: func() time.Time { return cur }})
	tier.SetWithTTL("a", []byte("v"), time.Minute)

	cur = now.Add(2 * time.Minute)
	_, ok := tier.Get("a")
	assert.False(t, ok, "expired entry should be treated as absent")
}

func TestTier_PatternInvalidation(t *testing.T) {
	tier := New(Config{Capacity: 10})
	tier.Set("repo:a:1", []byte("x"))
	tier.Set("repo:a:2", []byte("y"))
	tier.Set("repo:b:1", []byte("z"))

	n := tier.InvalidatePattern("repo:a:")
	assert.Equal(t, 2, n)

	_, ok := tier.Get("repo:a:1")
	assert.False(t, ok)
	_, ok = tier.Get("repo:b:1")
	assert.True(t, ok)
}

func TestTier_BoundedCapacityEvicts(t *testing.T) {
	tier := New(Config{Capacity: 2, EnableStats: true})
	tier.Set("a", []byte("1"))
	tier.Set("b", []byte("2"))
	tier.Set("c", []byte("3"))

	assert.LessOrEqual(t, tier.Len(), 2)
	assert.GreaterOrEqual(t, tier.Stats().Evictions, int64(1))
}

func TestTier_StatsHitRate(t *testing.T) {
	tier := New(Config{Capacity: 10, EnableStats: true})
	tier.Set("a", []byte("1"))
	tier.Get("a")
	tier.Get("missing")

	s := tier.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 0.5, s.HitRate())
}

func TestTier_SweepRemovesExpired(t *testing.T) {
	now := time.Now()
	cur := now
	tier := New(Config{Capacity: 10, Now: func() time.Time { return cur }})
	tier.SetWithTTL("a", []byte("v"), time.Minute)
	tier.Set("b", []byte("v2"))

	cur = now.Add(2 * time.Minute)
	n := tier.Sweep()
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, tier.Len())
}
