package database

// Tuning for the in-memory reference index and pgvector's HNSW scan.
const (
	// HNSWMaxNeighbors is the graph degree (M).
	HNSWMaxNeighbors = 16

	// HNSWEfSearch sizes the candidate list; pgvector gets the same value
	// through hnsw.ef_search.
	HNSWEfSearch = 100

	// HNSWMinSearch is the floor on neighbors fetched per query. Reference
	// corpora are small enough that this makes recall effectively exact.
	HNSWMinSearch = 64

	// HNSWSearchMultiplier over-fetches k before exact cosine re-ranking.
	HNSWSearchMultiplier = 3
)
