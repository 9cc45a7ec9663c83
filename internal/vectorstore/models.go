package vectorstore

import "time"

// Metadata identifies a chunk's position within its source document.
// TotalChunks is fixed per source after chunking completes and is the same
// for every chunk of that source.
type Metadata struct {
	SourceID    string `json:"source_id"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// Record is a stored chunk: content, its embedding, positional metadata and
// storage bookkeeping. The store exclusively owns persisted records; callers
// never mutate a record after handing it to the store.
type Record struct {
	// ID is the stable chunk identifier, "<sourceId>_chunk_<n>".
	ID string

	// Content is the chunk text.
	Content string

	// Embedding is the fixed-length vector for Content.
	Embedding []float32

	// Metadata locates the chunk within its source.
	Metadata Metadata

	// CreatedAt is set on first insert and preserved across upserts.
	CreatedAt time.Time

	// UpdatedAt is bumped on every upsert.
	UpdatedAt time.Time
}

// Scored pairs a record with its similarity to a query embedding.
// Similarity is cosine similarity: 1 - cosine distance, higher is closer.
type Scored struct {
	Record     Record
	Similarity float32
}
