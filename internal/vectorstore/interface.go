// Package vectorstore defines the interface for vector storage operations
// and provides three implementations: an in-process exact-scan store, an
// embedded persistent store (chromem-go), and a durable Qdrant store.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates an empty or nil record batch.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrDimensionMismatch is returned when an embedding's length disagrees
	// with the collection's established dimensionality. The whole batch is
	// rejected; vectors are never truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStoreUnavailable indicates a backend connectivity failure.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrInvalidQuery indicates malformed query parameters.
	ErrInvalidQuery = errors.New("invalid query")
)

// Store is the interface for vector storage operations.
//
// A store owns one collection of chunk records. Records are upserted by ID:
// re-adding an existing ID overwrites content, embedding and metadata and
// bumps the update timestamp, which makes re-indexing idempotent without a
// prior reset.
//
// All vectors in a collection share one fixed length, established by the
// first batch added. AddDocuments fails fast with ErrDimensionMismatch,
// rejecting the whole batch, if any embedding's length disagrees.
//
// Implementations:
//   - MemoryStore: in-process, exact linear-scan cosine similarity (default)
//   - ChromemStore: embedded chromem-go with persistence
//   - QdrantStore: external Qdrant server, ranking delegated via gRPC
type Store interface {
	// AddDocuments upserts records into the collection.
	// Records must carry their embeddings; the store never embeds.
	AddDocuments(ctx context.Context, records []Record) error

	// Query returns up to topK records ranked by cosine similarity to the
	// query embedding, descending, excluding results with similarity at or
	// below threshold.
	Query(ctx context.Context, embedding []float32, topK int, threshold float32) ([]Scored, error)

	// DeleteBySource deletes all records whose metadata source ID matches.
	// Deleting an unknown source is a no-op.
	DeleteBySource(ctx context.Context, sourceID string) error

	// DeleteCollection empties the collection. Idempotent: deleting a
	// non-existent collection is a no-op, not an error.
	DeleteCollection(ctx context.Context) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)

	// Name identifies the backend for observability ("memory", "chromem",
	// "qdrant").
	Name() string

	// Close closes the store and releases resources.
	Close() error
}
