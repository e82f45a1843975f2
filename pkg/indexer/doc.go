// Package indexer provides the write side of the Retrieval Index: keyword
// (BM25) and semantic (vector) indexers, composable into a hybrid indexer.
//
// # Architecture
//
//	┌─────────────────┐
//	│     caller      │  (orchestrates indexing)
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐
//	│    Indexer      │  ← this package
//	│   (interface)   │
//	└────────┬────────┘
//	         │
//	    ┌────┴────┐
//	    │         │
//	┌───▼───┐ ┌───▼───┐
//	│ BM25  │ │Vector │
//	└───────┘ └───────┘
//
// # Usage
//
//	bm25Store, _ := store.NewBM25IndexWithBackend(path, config, "sqlite")
//	bm25Idx, err := indexer.NewBM25Indexer(indexer.WithStore(bm25Store))
//	if err != nil {
//	    return err
//	}
//	defer bm25Idx.Close()
//
//	err = bm25Idx.Index(ctx, chunks)
//
// # Thread Safety
//
// All Indexer implementations are safe for concurrent use.
package indexer
