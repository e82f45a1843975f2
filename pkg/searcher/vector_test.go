package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborcache/engine/internal/vectorindex"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}
func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = f.Embed(context.Background(), texts[i])
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int                  { return f.dim }
func (f *fakeEmbedder) ModelName() string                { return "fake" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { return nil }

func TestNewVectorSearcher_RequiresDeps(t *testing.T) {
	_, err := NewVectorSearcher()
	assert.ErrorIs(t, err, ErrNilEmbedder)

	_, err = NewVectorSearcher(WithSearchEmbedder(&fakeEmbedder{dim: 2}))
	assert.ErrorIs(t, err, ErrNilVectorIndex)
}

func TestVectorSearcher_Search(t *testing.T) {
	idx, err := vectorindex.New(vectorindex.Params{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, idx.Insert("a", []float32{1, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1}))

	s, err := NewVectorSearcher(WithSearchEmbedder(&fakeEmbedder{dim: 2}), WithSearchVectorIndex(idx))
	require.NoError(t, err)

	results, err := s.Search(context.Background(), "query", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}
