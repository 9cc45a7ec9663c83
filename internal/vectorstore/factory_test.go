package vectorstore_test

import (
	"testing"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewStore_Memory(t *testing.T) {
	cfg := &config.Config{}
	cfg.VectorStore.Provider = "memory"

	store, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "memory", store.Name())
}

func TestNewStore_DefaultsToMemory(t *testing.T) {
	cfg := &config.Config{}

	store, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "memory", store.Name())
}

func TestNewStore_Chromem(t *testing.T) {
	cfg := &config.Config{}
	cfg.VectorStore.Provider = "chromem"
	cfg.VectorStore.Collection = "test_collection"
	cfg.VectorStore.Chromem.Path = t.TempDir()
	cfg.Embeddings.Dimension = 4

	store, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "chromem", store.Name())
}

func TestNewStore_UnsupportedProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.VectorStore.Provider = "pinecone"

	_, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
