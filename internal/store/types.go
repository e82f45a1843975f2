// Package store provides the keyword (BM25) half of the retrieval index.
// The vector half lives in internal/vectorindex; this package never imports it.
package store

import "context"

// DocumentChunk is a retrieval unit produced by the chunker and consumed by
// both the keyword index and the vector index.
type DocumentChunk struct {
	ChunkID       string
	DocumentID    string
	Ordinal       int
	Text          string
	TokenEstimate int
	HeadingPath   []string
	IsCodeBlock   bool
	Oversized     bool
	Metadata      map[string]string
	EmbeddingRef  string // empty until indexed into the Vector Index
}

// Document represents a document to be indexed in BM25.
type Document struct {
	ID      string // chunk ID
	Content string // text content
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search using BM25 algorithm.
type BM25Index interface {
	// Index adds documents to the index
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, scored by BM25
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	// Delete removes documents from index
	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns all document IDs in the index (for consistency checks)
	AllIDs() ([]string, error)

	// Stats returns index statistics
	Stats() *IndexStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the BM25 index. Only StopWords is read by the
// index implementations; K1, B and MinTokenLength are not read, and
// TokenizeCode always drops tokens shorter than 2 characters.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// StopWords is a list of words to filter out during tokenization
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords contains programming keywords to filter out.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}
