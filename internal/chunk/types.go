package chunk

import (
	"context"

	"github.com/arborcache/engine/internal/store"
)

// Chunk size defaults.
const (
	DefaultMaxChunkTokens    = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens     = 64  // ~12.5% overlap
	DefaultSplitHeadingLevel = 2   // split at h2 and shallower
	TokensPerChar            = 4   // rough approximation: 4 chars = 1 token
)

// Config configures the chunking algorithm. Zero or negative
// MaxChunkTokens and SplitHeadingLevel are replaced with the defaults
// above; a negative OverlapTokens is replaced with DefaultOverlapTokens,
// while zero means no overlap.
type Config struct {
	MaxChunkTokens    int
	OverlapTokens     int
	SplitHeadingLevel int
}

// WithDefaults fills unset fields with package defaults.
func (c Config) WithDefaults() Config {
	if c.MaxChunkTokens <= 0 {
		c.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = DefaultOverlapTokens
	}
	if c.SplitHeadingLevel <= 0 {
		c.SplitHeadingLevel = DefaultSplitHeadingLevel
	}
	return c
}

// DocumentInput is the input to a Chunker.
type DocumentInput struct {
	DocumentID string            // stable identifier for the source document
	Content    []byte            // raw document content
	Metadata   map[string]string // carried onto every emitted chunk
}

// Chunker splits a document into semantic-structure-aware DocumentChunks.
type Chunker interface {
	Chunk(ctx context.Context, doc *DocumentInput) ([]*ChunkResult, error)
}

// ChunkResult is the chunker's output before it is assigned an embedding
// reference; it carries everything store.DocumentChunk needs.
type ChunkResult struct {
	ChunkID       string
	DocumentID    string
	Ordinal       int
	Text          string
	TokenEstimate int
	HeadingPath   []string
	IsCodeBlock   bool
	Oversized     bool
	Metadata      map[string]string
}

// ToDocumentChunk converts a ChunkResult into the store.DocumentChunk form
// consumed by the indexers. EmbeddingRef is left empty; it is populated
// once the chunk has been embedded and inserted into the Vector Index.
func (r *ChunkResult) ToDocumentChunk() *store.DocumentChunk {
	return &store.DocumentChunk{
		ChunkID:       r.ChunkID,
		DocumentID:    r.DocumentID,
		Ordinal:       r.Ordinal,
		Text:          r.Text,
		TokenEstimate: r.TokenEstimate,
		HeadingPath:   r.HeadingPath,
		IsCodeBlock:   r.IsCodeBlock,
		Oversized:     r.Oversized,
		Metadata:      r.Metadata,
	}
}

// ToDocumentChunks converts a slice of ChunkResults in one call.
func ToDocumentChunks(results []*ChunkResult) []*store.DocumentChunk {
	out := make([]*store.DocumentChunk, len(results))
	for i, r := range results {
		out[i] = r.ToDocumentChunk()
	}
	return out
}
