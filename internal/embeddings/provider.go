// Package embeddings generates dense vector embeddings via an external
// provider speaking the OpenAI embeddings wire format.
//
// The provider is treated as a black box returning fixed-length numeric
// vectors. Requests are split into sub-batches below the provider's batch
// ceiling; a sub-batch failure aborts the whole call rather than silently
// skipping texts, so an index can never end up with partial coverage that
// looks complete. Retry and backoff are the caller's responsibility.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrProviderFailed indicates the embedding provider call failed
	// (non-2xx response, malformed body, or response length mismatch).
	ErrProviderFailed = errors.New("embedding provider call failed")

	// ErrTimeout indicates a caller-supplied timeout expired during a
	// provider call. Distinct from ErrProviderFailed so callers can choose
	// a longer timeout instead of treating it as a hard failure.
	ErrTimeout = errors.New("embedding provider call timed out")
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text, aligned by position.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// BatchError reports a failed embedding sub-batch. It identifies which
// sub-batch failed and how many texts had already been embedded, so the
// caller knows exactly how far the batched call got before aborting.
type BatchError struct {
	// Batch is the zero-based index of the failing sub-batch.
	Batch int

	// Succeeded is the number of texts embedded before the failure.
	Succeeded int

	// Err is the underlying provider error.
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("sub-batch %d failed after %d texts embedded: %v", e.Batch, e.Succeeded, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
