// Package vectorindex implements the Vector Index (C10): approximate
// nearest-neighbor search over a dynamic set of fixed-dimension
// vectors using a layered proximity graph (coder/hnsw), generalized
// from the teacher's single-metric HNSW store to the four metrics and
// tombstone/compact lifecycle spec.md §4.10 requires.
package vectorindex

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/arborcache/engine/internal/cacheerr"
)

// Metric is the closed set of similarity metrics (spec.md §4.10).
type Metric string

const (
	MetricCosine     Metric = "Cosine"
	MetricEuclidean  Metric = "Euclidean"
	MetricManhattan  Metric = "Manhattan"
	MetricDotProduct Metric = "DotProduct"
)

// formatVersion guards save/load compatibility.
const formatVersion = 1

// Params configures a new Index (spec.md §4.10 parameter enumeration).
type Params struct {
	Dimension      int
	M              int
	EfConstruction int
	EfSearch       int
	MaxLayers      int
	Metric         Metric
}

func (p Params) withDefaults() Params {
	if p.M <= 0 {
		p.M = 16
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = 200
	}
	if p.EfSearch <= 0 {
		p.EfSearch = 50
	}
	if p.MaxLayers <= 0 {
		p.MaxLayers = 16
	}
	if p.Metric == "" {
		p.Metric = MetricCosine
	}
	return p
}

// Hit is one scored result from Search; Score is always "higher is
// better" regardless of the underlying metric's natural direction
// (spec.md §4.10).
type Hit struct {
	ID    string
	Score float32
}

// Index is a single-exclusive-writer, many-shared-reader approximate
// nearest-neighbor index.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	params Params

	idToKey map[string]uint64
	keyToID map[uint64]string
	// vectors holds every live vector keyed by its graph key, kept
	// alongside the HNSW graph so Compact can rebuild a tombstone-free
	// graph by re-inserting without depending on the graph exposing
	// node enumeration itself.
	vectors map[uint64][]float32
	// tombstoned holds keys removed via Remove but not yet purged by
	// Compact; they are skipped in Search results. Their graph links are
	// not re-linked on search; they stay in place until Compact rebuilds
	// the graph.
	tombstoned map[uint64]bool
	nextKey    uint64

	closed bool
}

// New creates an empty Index with the given parameters.
func New(params Params) (*Index, error) {
	if params.Dimension <= 0 {
		return nil, cacheerr.BadInputs("vector index dimension must be positive", nil)
	}
	params = params.withDefaults()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = distanceFunc(params.Metric)
	graph.M = params.M
	graph.EfSearch = params.EfSearch
	// Ml is the layer-generation parameter 1/ln(M), matching the
	// geometric distribution spec.md §4.10 specifies for insert.
	graph.Ml = 1.0 / math.Log(float64(params.M))

	return &Index{
		graph:      graph,
		params:     params,
		idToKey:    make(map[string]uint64),
		keyToID:    make(map[uint64]string),
		vectors:    make(map[uint64][]float32),
		tombstoned: make(map[uint64]bool),
	}, nil
}

func distanceFunc(m Metric) func(a, b []float32) float32 {
	switch m {
	case MetricEuclidean:
		return hnsw.EuclideanDistance
	case MetricManhattan:
		return manhattanDistance
	case MetricDotProduct:
		return dotProductDistance
	default:
		return hnsw.CosineDistance
	}
}

func manhattanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// dotProductDistance turns dot product (higher = more similar) into a
// distance (lower = more similar) by negating it, so the underlying
// graph's "nearest" search still does the right thing; Search then
// un-negates when computing the public "higher is better" score.
func dotProductDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return -sum
}

// Insert adds or replaces the vector for id (spec.md §4.10 insert
// algorithm; layer assignment, neighbor selection, and symmetric
// linking are delegated to coder/hnsw, which implements the same
// layered-graph construction this operation specifies).
func (idx *Index) Insert(id string, vector []float32) error {
	if len(vector) != idx.params.Dimension {
		return cacheerr.DimensionMismatch(
			fmt.Sprintf("vector has dimension %d, index configured for %d", len(vector), idx.params.Dimension), nil)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return cacheerr.StoreUnavailable("vector index is closed", nil)
	}

	vec := normalizeIfCosine(vector, idx.params.Metric)

	if oldKey, exists := idx.idToKey[id]; exists {
		delete(idx.keyToID, oldKey)
		delete(idx.idToKey, id)
		idx.tombstoned[oldKey] = true
	}

	key := idx.nextKey
	idx.nextKey++
	idx.graph.Add(hnsw.MakeNode(key, vec))
	idx.idToKey[id] = key
	idx.keyToID[key] = id
	idx.vectors[key] = vec

	return nil
}

func normalizeIfCosine(v []float32, m Metric) []float32 {
	if m != MetricCosine {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	out := make([]float32, len(v))
	copy(out, v)
	var sumSquares float64
	for _, val := range out {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Search returns the top k approximate nearest neighbors of query,
// sorted by descending score. An empty index returns an empty slice,
// not an error (spec.md §4.10 EmptyIndex behavior / §8 invariant 11).
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.params.Dimension {
		return nil, cacheerr.DimensionMismatch(
			fmt.Sprintf("query has dimension %d, index configured for %d", len(query), idx.params.Dimension), nil)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, cacheerr.StoreUnavailable("vector index is closed", nil)
	}
	if idx.graph.Len() == 0 {
		return []Hit{}, nil
	}

	q := normalizeIfCosine(query, idx.params.Metric)
	// Over-fetch past tombstoned/orphaned nodes so a caller-requested k
	// is still honored after filtering.
	fetch := k
	if tomb := len(idx.tombstoned); tomb > 0 {
		fetch += tomb
	}
	if fetch > idx.graph.Len() {
		fetch = idx.graph.Len()
	}
	if fetch <= 0 {
		return []Hit{}, nil
	}

	nodes := idx.graph.Search(q, fetch)
	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		if idx.tombstoned[node.Key] {
			continue
		}
		id, ok := idx.keyToID[node.Key]
		if !ok {
			continue
		}
		d := idx.graph.Distance(q, node.Value)
		hits = append(hits, Hit{ID: id, Score: scoreFromDistance(d, idx.params.Metric)})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// scoreFromDistance normalizes every metric's native distance to a
// "higher is better" score, per spec.md §4.10's public API contract.
func scoreFromDistance(d float32, m Metric) float32 {
	switch m {
	case MetricEuclidean:
		return 1.0 / (1.0 + d)
	case MetricManhattan:
		return 1.0 / (1.0 + d)
	case MetricDotProduct:
		return -d // distance was negated dot product; un-negate
	default: // Cosine
		return 1.0 - d/2.0
	}
}

// Remove tombstones id; it is excluded from subsequent Search results
// but its graph links are only unwound on the next Compact.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if key, ok := idx.idToKey[id]; ok {
		idx.tombstoned[key] = true
		delete(idx.idToKey, id)
		delete(idx.keyToID, key)
	}
}

// Compact rebuilds the graph without tombstoned nodes, reclaiming
// their space. It is an exclusive-writer operation.
func (idx *Index) Compact() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(idx.tombstoned) == 0 {
		return nil
	}

	newGraph := hnsw.NewGraph[uint64]()
	newGraph.Distance = distanceFunc(idx.params.Metric)
	newGraph.M = idx.params.M
	newGraph.EfSearch = idx.params.EfSearch
	newGraph.Ml = idx.graph.Ml

	newIDToKey := make(map[string]uint64, len(idx.idToKey))
	newKeyToID := make(map[uint64]string, len(idx.keyToID))
	newVectors := make(map[uint64][]float32, len(idx.idToKey))
	var nextKey uint64

	for oldKey, vec := range idx.vectors {
		if idx.tombstoned[oldKey] {
			continue
		}
		id, ok := idx.keyToID[oldKey]
		if !ok {
			continue
		}
		key := nextKey
		nextKey++
		newGraph.Add(hnsw.MakeNode(key, vec))
		newIDToKey[id] = key
		newKeyToID[key] = id
		newVectors[key] = vec
	}

	idx.graph = newGraph
	idx.idToKey = newIDToKey
	idx.keyToID = newKeyToID
	idx.vectors = newVectors
	idx.nextKey = nextKey
	idx.tombstoned = make(map[uint64]bool)
	return nil
}

// Clear removes every vector, resetting the index to empty.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	newGraph := hnsw.NewGraph[uint64]()
	newGraph.Distance = distanceFunc(idx.params.Metric)
	newGraph.M = idx.params.M
	newGraph.EfSearch = idx.params.EfSearch
	newGraph.Ml = idx.graph.Ml

	idx.graph = newGraph
	idx.idToKey = make(map[string]uint64)
	idx.keyToID = make(map[uint64]string)
	idx.vectors = make(map[uint64][]float32)
	idx.tombstoned = make(map[uint64]bool)
	idx.nextKey = 0
}

// Len returns the number of live (non-tombstoned) vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.idToKey)
}

// persisted is the gob-encoded envelope written by Save.
type persisted struct {
	FormatVersion int
	Params        Params
	IDToKey       map[string]uint64
	NextKey       uint64
	Tombstoned    map[uint64]bool
	Vectors       map[uint64][]float32
}

// Save persists the graph, vectors, and parameters to path (graph) and
// path+".meta" (mappings), using an atomic temp-file-then-rename write
// on each, matching the teacher's HNSWStore.Save pattern.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return cacheerr.StoreUnavailable("vector index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cacheerr.StoreUnavailable("cannot create vector index directory", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return cacheerr.StoreUnavailable("cannot create vector index file", err)
	}
	if err := idx.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return cacheerr.StoreUnavailable("cannot export vector graph", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cacheerr.StoreUnavailable("cannot close vector index file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cacheerr.StoreUnavailable("cannot finalize vector index file", err)
	}

	metaTmp := path + ".meta.tmp"
	mf, err := os.Create(metaTmp)
	if err != nil {
		return cacheerr.StoreUnavailable("cannot create vector index metadata file", err)
	}
	p := persisted{
		FormatVersion: formatVersion,
		Params:        idx.params,
		IDToKey:       idx.idToKey,
		NextKey:       idx.nextKey,
		Tombstoned:    idx.tombstoned,
		Vectors:       idx.vectors,
	}
	if err := gob.NewEncoder(mf).Encode(p); err != nil {
		mf.Close()
		os.Remove(metaTmp)
		return cacheerr.StoreUnavailable("cannot encode vector index metadata", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(metaTmp)
		return cacheerr.StoreUnavailable("cannot close vector index metadata file", err)
	}
	return os.Rename(metaTmp, path+".meta")
}

// Load reads a graph previously written by Save. It rejects files
// whose dimension or format version differ from the index's current
// configuration with IndexCorrupted.
func (idx *Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return cacheerr.StoreUnavailable("vector index is closed", nil)
	}

	mf, err := os.Open(path + ".meta")
	if err != nil {
		return cacheerr.IndexCorrupted("cannot open vector index metadata", err)
	}
	defer mf.Close()

	var p persisted
	if err := gob.NewDecoder(mf).Decode(&p); err != nil {
		return cacheerr.IndexCorrupted("cannot decode vector index metadata", err)
	}
	if p.FormatVersion != formatVersion {
		return cacheerr.IndexCorrupted(
			fmt.Sprintf("vector index format version %d incompatible with %d", p.FormatVersion, formatVersion), nil)
	}
	if p.Params.Dimension != idx.params.Dimension {
		return cacheerr.IndexCorrupted(
			fmt.Sprintf("vector index dimension %d does not match configured %d", p.Params.Dimension, idx.params.Dimension), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return cacheerr.IndexCorrupted("cannot open vector index file", err)
	}
	defer f.Close()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = distanceFunc(idx.params.Metric)
	graph.M = idx.params.M
	graph.EfSearch = idx.params.EfSearch
	graph.Ml = 1.0 / math.Log(float64(idx.params.M))

	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return cacheerr.IndexCorrupted("cannot import vector graph", err)
	}

	idx.graph = graph
	idx.idToKey = p.IDToKey
	idx.nextKey = p.NextKey
	idx.tombstoned = p.Tombstoned
	if idx.tombstoned == nil {
		idx.tombstoned = make(map[uint64]bool)
	}
	idx.vectors = p.Vectors
	if idx.vectors == nil {
		idx.vectors = make(map[uint64][]float32)
	}
	idx.keyToID = make(map[uint64]string, len(idx.idToKey))
	for id, key := range idx.idToKey {
		idx.keyToID[key] = id
	}
	return nil
}

// Close releases the index; subsequent operations return an error.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}
