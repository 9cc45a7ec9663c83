package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// MemoryStore implements Store with an in-process exact scan.
//
// Every query computes cosine similarity against all stored vectors. That is
// O(n) per query, which is fine at this system's scale of low thousands of
// chunks; it also makes the store the reference implementation for ranking
// semantics. Records keep their insertion order, so equal similarities rank
// deterministically: first added wins.
type MemoryStore struct {
	logger *zap.Logger

	mu      sync.RWMutex
	records []Record
	byID    map[string]int
	dim     int
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		logger: logger,
		byID:   make(map[string]int),
	}
}

// Name identifies the backend.
func (s *MemoryStore) Name() string { return "memory" }

// AddDocuments upserts records into the collection.
//
// The batch is validated against the collection's established dimensionality
// before anything is written, so a mismatch never leaves partial state.
func (s *MemoryStore) AddDocuments(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}

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

	now := timeNow()
	for _, r := range records {
		if pos, ok := s.byID[r.ID]; ok {
			// Upsert: overwrite in place, keep insertion position and
			// original creation time.
			r.CreatedAt = s.records[pos].CreatedAt
			r.UpdatedAt = now
			s.records[pos] = r
			continue
		}
		r.CreatedAt = now
		r.UpdatedAt = now
		s.byID[r.ID] = len(s.records)
		s.records = append(s.records, r)
	}

	s.logger.Debug("added records to memory store",
		zap.Int("count", len(records)),
		zap.Int("total", len(s.records)),
	)

	return nil
}

// Query ranks all stored records by cosine similarity to the query embedding.
func (s *MemoryStore) Query(ctx context.Context, embedding []float32, topK int, threshold float32) ([]Scored, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidQuery, topK)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding cannot be empty", ErrInvalidQuery)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return []Scored{}, nil
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, collection has %d",
			ErrDimensionMismatch, len(embedding), s.dim)
	}

	scored := make([]Scored, 0, len(s.records))
	for _, r := range s.records {
		sim := cosineSimilarity(embedding, r.Embedding)
		if sim > threshold {
			scored = append(scored, Scored{Record: r, Similarity: sim})
		}
	}

	// Stable sort keeps insertion order for equal similarities, so repeated
	// queries against an unchanged collection return identical rankings.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	return scored, nil
}

// DeleteBySource deletes all records belonging to one source document.
func (s *MemoryStore) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, r := range s.records {
		if r.Metadata.SourceID != sourceID {
			kept = append(kept, r)
		}
	}
	removed := len(s.records) - len(kept)
	s.records = kept

	// Rebuild the ID index; positions shifted.
	s.byID = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.byID[r.ID] = i
	}

	if removed > 0 {
		s.logger.Debug("deleted records by source",
			zap.String("source_id", sourceID),
			zap.Int("removed", removed),
		)
	}

	return nil
}

// DeleteCollection empties the store. Idempotent.
func (s *MemoryStore) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.byID = make(map[string]int)
	s.dim = 0

	return nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error {
	return nil
}

// cosineSimilarity computes 1 - cosine distance between two equal-length
// vectors. Zero vectors yield similarity 0.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
