package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("knowledged.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/knowledged/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name.
	// Default: "knowledged_default"
	Collection string

	// VectorSize is the expected embedding dimension. Zero means the
	// dimension is established by the first batch added.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/knowledged/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "knowledged_default"
	}
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.VectorSize < 0 {
		return fmt.Errorf("%w: vector size cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, persistence to gob files.
// Records arrive with precomputed embeddings, so the collection's embedding
// function is never invoked; queries go through QueryEmbedding directly.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu  sync.Mutex
	dim int
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
		dim:    config.VectorSize,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Name identifies the backend.
func (s *ChromemStore) Name() string { return "chromem" }

// noEmbedding rejects text queries; all embeddings are precomputed upstream.
// chromem-go falls back to an OpenAI embedder when the function is nil, so a
// non-nil function must always be passed.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings are precomputed; text embedding is not available")
}

func (s *ChromemStore) getOrCreateCollection() (*chromem.Collection, error) {
	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return collection, nil
}

// checkDimensions validates the whole batch against the established
// dimensionality before any write.
func (s *ChromemStore) checkDimensions(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(records[0].Embedding)
	}
	if dim == 0 {
		return fmt.Errorf("%w: record %q has no embedding", ErrDimensionMismatch, records[0].ID)
	}
	for _, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: record %q has dimension %d, collection has %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
		}
	}
	s.dim = dim
	return nil
}

// AddDocuments upserts records into the collection.
func (s *ChromemStore) AddDocuments(ctx context.Context, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.Collection),
	)

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	if err := s.checkDimensions(records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	collection, err := s.getOrCreateCollection()
	if err != nil {
		span.RecordError(err)
		return err
	}

	now := timeNow()
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		createdAt := now
		// chromem upserts by plain overwrite, so the original creation
		// time has to be carried over explicitly.
		if existing, err := collection.GetByID(ctx, r.ID); err == nil {
			if ts, perr := time.Parse(time.RFC3339Nano, existing.Metadata["created_at"]); perr == nil {
				createdAt = ts
			}
		}

		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Embedding,
			Metadata: map[string]string{
				"source_id":    r.Metadata.SourceID,
				"chunk_index":  strconv.Itoa(r.Metadata.ChunkIndex),
				"total_chunks": strconv.Itoa(r.Metadata.TotalChunks),
				"created_at":   createdAt.Format(time.RFC3339Nano),
				"updated_at":   now.Format(time.RFC3339Nano),
			},
		}
	}

	// Concurrency 1: embeddings are already attached, nothing to parallelize.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added records to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(records)),
	)

	return nil
}

// Query ranks stored records by cosine similarity to the query embedding.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, topK int, threshold float32) ([]Scored, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidQuery, topK)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding cannot be empty", ErrInvalidQuery)
	}

	collection := s.db.GetCollection(s.config.Collection, noEmbedding)
	if collection == nil {
		return []Scored{}, nil
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return []Scored{}, nil
	}
	n := topK
	if n > count {
		n = count
	}

	results, err := collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	scored := make([]Scored, 0, len(results))
	for _, r := range results {
		if r.Similarity <= threshold {
			continue
		}
		scored = append(scored, Scored{
			Record:     recordFromChromem(r),
			Similarity: r.Similarity,
		})
	}

	// Re-sort stably with creation time as tie-break so equal similarities
	// rank deterministically across runs.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Record.CreatedAt.Before(scored[j].Record.CreatedAt)
	})

	span.SetAttributes(attribute.Int("results_count", len(scored)))
	span.SetStatus(codes.Ok, "success")

	return scored, nil
}

// recordFromChromem converts a chromem query result back into a Record.
func recordFromChromem(r chromem.Result) Record {
	chunkIndex, _ := strconv.Atoi(r.Metadata["chunk_index"])
	totalChunks, _ := strconv.Atoi(r.Metadata["total_chunks"])
	createdAt, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, r.Metadata["updated_at"])

	return Record{
		ID:        r.ID,
		Content:   r.Content,
		Embedding: r.Embedding,
		Metadata: Metadata{
			SourceID:    r.Metadata["source_id"],
			ChunkIndex:  chunkIndex,
			TotalChunks: totalChunks,
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// DeleteBySource deletes all records belonging to one source document.
func (s *ChromemStore) DeleteBySource(ctx context.Context, sourceID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteBySource")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.String("source_id", sourceID),
	)

	collection := s.db.GetCollection(s.config.Collection, noEmbedding)
	if collection == nil {
		return nil
	}

	if err := collection.Delete(ctx, map[string]string{"source_id": sourceID}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting records for source %s: %w", sourceID, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteCollection drops the collection and all its records. Idempotent.
func (s *ChromemStore) DeleteCollection(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", s.config.Collection))

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}

	s.mu.Lock()
	s.dim = s.config.VectorSize
	s.mu.Unlock()

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("deleted chromem collection",
		zap.String("collection", s.config.Collection),
	)

	return nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	collection := s.db.GetCollection(s.config.Collection, noEmbedding)
	if collection == nil {
		return 0, nil
	}
	return collection.Count(), nil
}

// Close closes the store.
// chromem-go persists automatically; no explicit close is needed.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
