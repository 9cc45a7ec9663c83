package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("knowledged.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// Collection is the collection name.
	Collection string

	// VectorSize is the dimensionality of embeddings. The collection schema
	// has a fixed-width vector column, so this MUST match the embedding
	// provider's output dimension.
	VectorSize uint64

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient
	// failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries, doubling
	// on each attempt. Default: 1s
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "knowledged_default"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability, false for
// invalid arguments, not found, and permission errors.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store using Qdrant's native gRPC client.
//
// Similarity ranking is delegated to the server: the collection carries a
// cosine-distance vector index and Query pushes the score threshold and
// result limit down to it. The store only validates dimensionality and
// converts between Records and Qdrant points.
//
// Qdrant point IDs must be UUIDs, so each chunk ID maps to a deterministic
// SHA1 UUID; re-indexing the same chunk therefore upserts the same point.
// The original chunk ID is preserved in the payload.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// mu guards ready, which caches whether the collection has been ensured.
	mu    sync.Mutex
	ready bool
}

// NewQdrantStore creates a QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrStoreUnavailable, err)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return store, nil
}

// Name identifies the backend.
func (s *QdrantStore) Name() string { return "qdrant" }

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on transient
// gRPC errors.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return fmt.Errorf("%w: %s failed after %d retries: %v", ErrStoreUnavailable, operationName, s.config.MaxRetries, err)
}

// ensureCollection creates the collection on first use.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrStoreUnavailable, s.config.Collection, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
		}

		s.logger.Info("created qdrant collection",
			zap.String("collection", s.config.Collection),
			zap.Uint64("vector_size", s.config.VectorSize),
		)
	}

	s.ready = true
	return nil
}

// pointIDFor maps a chunk ID to a deterministic Qdrant UUID.
func pointIDFor(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// AddDocuments upserts records as Qdrant points.
func (s *QdrantStore) AddDocuments(ctx context.Context, records []Record) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.Collection),
	)

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	// Reject the whole batch before any write on a dimension mismatch.
	for _, r := range records {
		if uint64(len(r.Embedding)) != s.config.VectorSize {
			err := fmt.Errorf("%w: record %q has dimension %d, collection has %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), s.config.VectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	createdAt, err := s.existingCreationTimes(ctx, records)
	if err != nil {
		span.RecordError(err)
		return err
	}

	now := timeNow()
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		created := now
		if ts, ok := createdAt[r.ID]; ok {
			created = ts
		}

		payload := map[string]*qdrant.Value{
			"id":           {Kind: &qdrant.Value_StringValue{StringValue: r.ID}},
			"content":      {Kind: &qdrant.Value_StringValue{StringValue: r.Content}},
			"source_id":    {Kind: &qdrant.Value_StringValue{StringValue: r.Metadata.SourceID}},
			"chunk_index":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.Metadata.ChunkIndex)}},
			"total_chunks": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.Metadata.TotalChunks)}},
			"created_at":   {Kind: &qdrant.Value_IntegerValue{IntegerValue: created.UnixNano()}},
			"updated_at":   {Kind: &qdrant.Value_IntegerValue{IntegerValue: now.UnixNano()}},
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointIDFor(r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: payload,
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.Int("points_added", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// existingCreationTimes fetches creation timestamps for records that already
// exist, so upserts preserve them.
func (s *QdrantStore) existingCreationTimes(ctx context.Context, records []Record) (map[string]time.Time, error) {
	ids := make([]*qdrant.PointId, len(records))
	for i, r := range records {
		ids[i] = qdrant.NewIDUUID(pointIDFor(r.ID))
	}

	existing, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.config.Collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching existing points: %w", err)
	}

	createdAt := make(map[string]time.Time, len(existing))
	for _, p := range existing {
		id := p.Payload["id"].GetStringValue()
		if ns := p.Payload["created_at"].GetIntegerValue(); ns > 0 {
			createdAt[id] = time.Unix(0, ns)
		}
	}
	return createdAt, nil
}

// Query delegates similarity ranking to the Qdrant server.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, topK int, threshold float32) ([]Scored, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidQuery, topK)
	}
	if uint64(len(embedding)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, collection has %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		var qerr error
		points, qerr = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(embedding...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			ScoreThreshold: qdrant.PtrOf(threshold),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return qerr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	scored := make([]Scored, 0, len(points))
	for _, p := range points {
		// Qdrant's threshold is inclusive; the contract excludes equals.
		if p.Score <= threshold {
			continue
		}
		scored = append(scored, Scored{
			Record:     recordFromPayload(p.Payload),
			Similarity: p.Score,
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(scored)))
	span.SetStatus(codes.Ok, "success")
	return scored, nil
}

// recordFromPayload converts a Qdrant payload back into a Record.
// The embedding is not returned; callers rank by the score Qdrant computed.
func recordFromPayload(payload map[string]*qdrant.Value) Record {
	return Record{
		ID:      payload["id"].GetStringValue(),
		Content: payload["content"].GetStringValue(),
		Metadata: Metadata{
			SourceID:    payload["source_id"].GetStringValue(),
			ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
			TotalChunks: int(payload["total_chunks"].GetIntegerValue()),
		},
		CreatedAt: time.Unix(0, payload["created_at"].GetIntegerValue()),
		UpdatedAt: time.Unix(0, payload["updated_at"].GetIntegerValue()),
	}
}

// DeleteBySource deletes all points whose payload source_id matches.
func (s *QdrantStore) DeleteBySource(ctx context.Context, sourceID string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteBySource")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.String("source_id", sourceID),
	)

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		return nil
	}

	err = s.retryOperation(ctx, "delete_by_source", func() error {
		_, derr := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatch("source_id", sourceID),
				},
			}),
			Wait: qdrant.PtrOf(true),
		})
		return derr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points for source %s: %w", sourceID, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteCollection drops the collection. Idempotent: a missing collection is
// not an error.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", s.config.Collection))

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		return nil
	}

	if err := s.client.DeleteCollection(ctx, s.config.Collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}

	// Allow the collection to be recreated on next use.
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("deleted qdrant collection",
		zap.String("collection", s.config.Collection),
	)

	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return 0, fmt.Errorf("%w: checking collection: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(count), nil
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
