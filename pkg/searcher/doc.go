// Package searcher implements the Hybrid Searcher (C11): Semantic,
// Keyword, and Hybrid ranking over DocumentChunks, with post-filtering
// and Reciprocal Rank Fusion.
//
//   - [BM25Searcher]: keyword search over a store.BM25Index
//   - [VectorSearcher]: semantic search over a vectorindex.Index
//   - [FusionSearcher]: RRF fusion of the two, or either alone
//   - [HybridSearcher]: the external contract — search_type dispatch, Filters
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────┐
//	│                      HybridSearcher                        │
//	│  ┌────────────────────────────────────────────────────┐   │
//	│  │                   FusionSearcher                    │   │
//	│  │  ┌────────────────┐          ┌───────────────────┐ │   │
//	│  │  │  BM25Searcher  │──────────│  VectorSearcher   │ │   │
//	│  │  │ store.BM25Index│ RRF k=60 │ vectorindex.Index  │ │   │
//	│  │  └────────────────┘          └───────────────────┘ │   │
//	│  └────────────────────────────────────────────────────┘   │
//	└───────────────────────────────────────────────────────────┘
//
// # Usage
//
//	bm25, _ := searcher.NewBM25Searcher(searcher.WithBM25Store(bm25Index))
//	vector, _ := searcher.NewVectorSearcher(
//	    searcher.WithSearchEmbedder(embedder),
//	    searcher.WithSearchVectorIndex(vectorIdx),
//	)
//	fusion, _ := searcher.NewFusionSearcher(
//	    searcher.WithBM25Searcher(bm25),
//	    searcher.WithVectorSearcher(vector),
//	)
//	hybrid := searcher.NewHybridSearcher(fusion, chunkLookup)
//
//	hits, err := hybrid.SearchChunks(ctx, "how does eviction work", 10, searcher.SearchHybrid, searcher.Filters{RepoID: "r1"})
//
// # Thread Safety
//
// All Searcher implementations are safe for concurrent use.
package searcher
