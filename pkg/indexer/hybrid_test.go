package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborcache/engine/internal/store"
)

type mockIndexer struct {
	indexErr  error
	deleteErr error
	indexed   int
	deleted   int
	cleared   bool
	closed    bool
}

func (m *mockIndexer) Index(_ context.Context, chunks []*store.DocumentChunk) error {
	if m.indexErr != nil {
		return m.indexErr
	}
	m.indexed += len(chunks)
	return nil
}

func (m *mockIndexer) Delete(_ context.Context, ids []string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted += len(ids)
	return nil
}

func (m *mockIndexer) Clear(context.Context) error { m.cleared = true; return nil }
func (m *mockIndexer) Stats() IndexStats           { return IndexStats{DocumentCount: m.indexed} }
func (m *mockIndexer) Close() error                { m.closed = true; return nil }

func TestNewHybridIndexer_RequiresAtLeastOne(t *testing.T) {
	_, err := NewHybridIndexer()
	assert.ErrorIs(t, err, ErrNoIndexers)
}

func TestHybridIndexer_FansOutToBoth(t *testing.T) {
	bm25 := &mockIndexer{}
	vec := &mockIndexer{}
	h, err := NewHybridIndexer(WithBM25(bm25), WithVector(vec))
	require.NoError(t, err)

	chunks := []*store.DocumentChunk{{ChunkID: "a"}, {ChunkID: "b"}}
	require.NoError(t, h.Index(context.Background(), chunks))
	assert.Equal(t, 2, bm25.indexed)
	assert.Equal(t, 2, vec.indexed)
}

func TestHybridIndexer_IndexFailsFastOnBM25Error(t *testing.T) {
	bm25 := &mockIndexer{indexErr: errors.New("boom")}
	vec := &mockIndexer{}
	h, err := NewHybridIndexer(WithBM25(bm25), WithVector(vec))
	require.NoError(t, err)

	err = h.Index(context.Background(), []*store.DocumentChunk{{ChunkID: "a"}})
	require.Error(t, err)
	assert.Equal(t, 0, vec.indexed)
}

func TestHybridIndexer_DeleteIsBestEffort(t *testing.T) {
	bm25 := &mockIndexer{deleteErr: errors.New("boom")}
	vec := &mockIndexer{}
	h, err := NewHybridIndexer(WithBM25(bm25), WithVector(vec))
	require.NoError(t, err)

	err = h.Delete(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, 1, vec.deleted)
}

func TestHybridIndexer_CloseClosesBoth(t *testing.T) {
	bm25 := &mockIndexer{}
	vec := &mockIndexer{}
	h, err := NewHybridIndexer(WithBM25(bm25), WithVector(vec))
	require.NoError(t, err)

	require.NoError(t, h.Close())
	assert.True(t, bm25.closed)
	assert.True(t, vec.closed)
}

func TestHybridIndexer_BM25OnlyMode(t *testing.T) {
	bm25 := &mockIndexer{}
	h, err := NewHybridIndexer(WithBM25(bm25))
	require.NoError(t, err)
	require.NoError(t, h.Index(context.Background(), []*store.DocumentChunk{{ChunkID: "a"}}))
	assert.Equal(t, 1, bm25.indexed)
}
