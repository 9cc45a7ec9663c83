// Package retrieval orchestrates the indexing and search pipeline: documents
// are split into overlapping word windows, embedded in batches, and upserted
// into the configured vector store. Search embeds the query once and ranks
// stored chunks by cosine similarity.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/chunker"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
	"go.uber.org/zap"
)

var (
	// ErrEmptyQuery indicates a Search call with a blank query string.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrMissingSourceID indicates a document without a source identifier.
	ErrMissingSourceID = errors.New("document source id must not be empty")

	// ErrAllDocumentsFailed indicates an Index run in which no document
	// could be indexed.
	ErrAllDocumentsFailed = errors.New("all documents failed to index")
)

// State describes the lifecycle of the managed collection.
type State string

const (
	// StateEmpty means no content has been indexed yet.
	StateEmpty State = "empty"
	// StateIndexing means an Index run is in flight.
	StateIndexing State = "indexing"
	// StateReady means the collection holds searchable content.
	StateReady State = "ready"
)

// Document is a unit of source content to index. SourceID must be stable
// across runs; chunk IDs are derived from it.
type Document struct {
	SourceID string
	Content  string
}

// DocumentFailure records a document that could not be indexed.
type DocumentFailure struct {
	SourceID string
	Err      error
}

// IndexSummary reports the outcome of an Index run. A run with failures is
// still a success as long as at least one document was indexed.
type IndexSummary struct {
	Indexed int
	Chunks  int
	Failed  []DocumentFailure
}

// SearchResponse carries ranked results plus the backend that served them.
type SearchResponse struct {
	Results []vectorstore.Scored
	Backend string
}

type searchOptions struct {
	topK      int
	threshold float32
}

// SearchOption overrides a per-query search parameter.
type SearchOption func(*searchOptions)

// WithTopK caps the number of results returned.
func WithTopK(k int) SearchOption {
	return func(o *searchOptions) { o.topK = k }
}

// WithThreshold sets the minimum (exclusive) similarity for a result.
func WithThreshold(threshold float32) SearchOption {
	return func(o *searchOptions) { o.threshold = threshold }
}

// Sanitizer converts raw document content to plain text before chunking.
type Sanitizer func(string) string

// Option configures a Service.
type Option func(*Service)

// WithSanitizer installs a content sanitizer applied before chunking.
func WithSanitizer(fn Sanitizer) Option {
	return func(s *Service) { s.sanitize = fn }
}

// WithDefaultTopK sets the top-k used when a Search call does not override it.
func WithDefaultTopK(k int) Option {
	return func(s *Service) { s.defaultTopK = k }
}

// WithDefaultThreshold sets the similarity threshold used when a Search call
// does not override it.
func WithDefaultThreshold(threshold float32) Option {
	return func(s *Service) { s.defaultThreshold = threshold }
}

// Service composes the splitter, the embedding provider, and the vector
// store. Writes (Index, ReindexSource, Reset) assume a single caller; reads
// may run concurrently.
type Service struct {
	splitter *chunker.Splitter
	provider embeddings.Provider
	store    vectorstore.Store
	logger   *zap.Logger

	sanitize         Sanitizer
	defaultTopK      int
	defaultThreshold float32

	mu    sync.RWMutex
	state State
}

// NewService creates the orchestrator. The store is probed once so that a
// persistent backend with existing content starts out ready.
func NewService(splitter *chunker.Splitter, provider embeddings.Provider, store vectorstore.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if splitter == nil {
		return nil, errors.New("splitter is required")
	}
	if provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		splitter:    splitter,
		provider:    provider,
		store:       store,
		logger:      logger,
		defaultTopK: 5,
		state:       StateEmpty,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultTopK <= 0 {
		return nil, fmt.Errorf("default top-k must be positive, got %d", s.defaultTopK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if count, err := store.Count(ctx); err == nil && count > 0 {
		s.state = StateReady
	}

	logger.Info("retrieval service initialized",
		zap.String("backend", store.Name()),
		zap.String("state", string(s.state)))

	return s, nil
}

// State reports the current collection lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Index chunks, embeds, and stores the given documents. Each document is
// indexed atomically: either all of its chunks are written or none are. A
// document failure does not stop the run; failures are reported in the
// summary. The returned error is non-nil only when the context is canceled
// or every document failed.
func (s *Service) Index(ctx context.Context, docs []Document) (*IndexSummary, error) {
	summary := &IndexSummary{}
	if len(docs) == 0 {
		return summary, nil
	}

	prev := s.State()
	s.setState(StateIndexing)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			s.restoreState(prev, summary)
			return summary, err
		}

		chunks, err := s.indexDocument(ctx, doc)
		if err != nil {
			s.logger.Warn("document indexing failed",
				zap.String("source_id", doc.SourceID),
				zap.Error(err))
			summary.Failed = append(summary.Failed, DocumentFailure{SourceID: doc.SourceID, Err: err})
			continue
		}
		summary.Indexed++
		summary.Chunks += chunks
	}

	s.restoreState(prev, summary)

	if summary.Indexed == 0 && len(summary.Failed) > 0 {
		return summary, fmt.Errorf("%w: %d failures, first: %v",
			ErrAllDocumentsFailed, len(summary.Failed), summary.Failed[0].Err)
	}

	s.logger.Info("indexing complete",
		zap.Int("indexed", summary.Indexed),
		zap.Int("chunks", summary.Chunks),
		zap.Int("failed", len(summary.Failed)))

	return summary, nil
}

// restoreState leaves the collection ready if this run or a previous one
// put content in it, empty otherwise.
func (s *Service) restoreState(prev State, summary *IndexSummary) {
	if summary.Indexed > 0 && summary.Chunks > 0 {
		s.setState(StateReady)
		return
	}
	if prev == StateReady {
		s.setState(StateReady)
		return
	}
	s.setState(StateEmpty)
}

// indexDocument runs the per-document pipeline: sanitize, split, embed the
// chunks in one provider call, and upsert all records in one store call.
// Chunk IDs and TotalChunks are fixed before embedding so a retry of the
// same document overwrites rather than duplicates.
func (s *Service) indexDocument(ctx context.Context, doc Document) (int, error) {
	if doc.SourceID == "" {
		return 0, ErrMissingSourceID
	}

	content := doc.Content
	if s.sanitize != nil {
		content = s.sanitize(content)
	}

	chunks := s.splitter.Split(content)
	if len(chunks) == 0 {
		s.logger.Debug("document produced no chunks, skipping",
			zap.String("source_id", doc.SourceID))
		return 0, nil
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:      fmt.Sprintf("%s_chunk_%d", doc.SourceID, i),
			Content: chunk,
			Metadata: vectorstore.Metadata{
				SourceID:    doc.SourceID,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
			},
		}
	}

	vectors, err := s.provider.EmbedDocuments(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	for i := range records {
		records[i].Embedding = vectors[i]
	}

	if err := s.store.AddDocuments(ctx, records); err != nil {
		return 0, fmt.Errorf("storing %d chunks: %w", len(records), err)
	}

	return len(records), nil
}

// Search embeds the query and returns chunks ranked by similarity. Results
// above the threshold (strictly) are returned in descending order, at most
// topK of them.
func (s *Service) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	o := searchOptions{topK: s.defaultTopK, threshold: s.defaultThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	if o.topK <= 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", vectorstore.ErrInvalidQuery, o.topK)
	}

	embedding, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.store.Query(ctx, embedding, o.topK, o.threshold)
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}

	return &SearchResponse{Results: results, Backend: s.store.Name()}, nil
}

// ReindexSource removes all chunks of the document's source and indexes the
// document afresh. Returns the number of chunks written.
func (s *Service) ReindexSource(ctx context.Context, doc Document) (int, error) {
	if doc.SourceID == "" {
		return 0, ErrMissingSourceID
	}

	if err := s.store.DeleteBySource(ctx, doc.SourceID); err != nil {
		return 0, fmt.Errorf("removing stale chunks for %q: %w", doc.SourceID, err)
	}

	chunks, err := s.indexDocument(ctx, doc)
	if err != nil {
		return 0, err
	}

	if chunks > 0 {
		s.setState(StateReady)
	}

	s.logger.Info("source reindexed",
		zap.String("source_id", doc.SourceID),
		zap.Int("chunks", chunks))

	return chunks, nil
}

// Reset drops the whole collection and returns the service to the empty
// state. Idempotent.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.DeleteCollection(ctx); err != nil {
		return fmt.Errorf("resetting collection: %w", err)
	}
	s.setState(StateEmpty)
	s.logger.Info("collection reset", zap.String("backend", s.store.Name()))
	return nil
}
