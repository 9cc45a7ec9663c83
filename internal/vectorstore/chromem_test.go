package vectorstore_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChromemStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		Compress:   false, // Faster for tests
		Collection: "test_collection",
	}, zap.NewNop())
	require.NoError(t, err)

	return store
}

func TestChromemConfig_ApplyDefaults(t *testing.T) {
	cfg := vectorstore.ChromemConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "~/.config/knowledged/vectorstore", cfg.Path)
	assert.Equal(t, "knowledged_default", cfg.Collection)
}

func TestChromemStore_Name(t *testing.T) {
	store := newTestChromemStore(t)
	assert.Equal(t, "chromem", store.Name())
}

func TestChromemStore_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.AddDocuments(ctx, []vectorstore.Record{
		makeRecord("a", 0, 2, vec(1, 0)),
		makeRecord("a", 1, 2, vec(0, 1)),
		makeRecord("b", 0, 1, vec(1, 0.2)),
	}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Query(ctx, vec(1, 0), 2, 0.1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)

	assert.Equal(t, "a_chunk_0", results[0].Record.ID)
	assert.Equal(t, "a", results[0].Record.Metadata.SourceID)
	assert.Equal(t, 2, results[0].Record.Metadata.TotalChunks)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
	}
	for _, r := range results {
		assert.Greater(t, r.Similarity, float32(0.1))
	}
}

func TestChromemStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.AddDocuments(ctx, []vectorstore.Record{
		makeRecord("doc", 0, 1, vec(1)),
	}))

	err := store.AddDocuments(ctx, []vectorstore.Record{
		{ID: "doc_chunk_1", Embedding: []float32{1, 2}, Metadata: vectorstore.Metadata{SourceID: "doc"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChromemStore_Upsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	records := []vectorstore.Record{
		makeRecord("doc", 0, 1, vec(1, 0)),
	}
	require.NoError(t, store.AddDocuments(ctx, records))
	require.NoError(t, store.AddDocuments(ctx, records))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChromemStore_DeleteBySource(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.AddDocuments(ctx, []vectorstore.Record{
		makeRecord("keep", 0, 1, vec(1, 0)),
		makeRecord("drop", 0, 1, vec(0, 1)),
	}))

	require.NoError(t, store.DeleteBySource(ctx, "drop"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Unknown source is a no-op.
	require.NoError(t, store.DeleteBySource(ctx, "never-indexed"))
}

func TestChromemStore_DeleteCollection_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.DeleteCollection(ctx))

	require.NoError(t, store.AddDocuments(ctx, []vectorstore.Record{
		makeRecord("doc", 0, 1, vec(1)),
	}))
	require.NoError(t, store.DeleteCollection(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	results, err := store.Query(ctx, vec(1), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_QueryEmptyCollection(t *testing.T) {
	store := newTestChromemStore(t)

	results, err := store.Query(context.Background(), vec(1), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
