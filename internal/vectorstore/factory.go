package vectorstore

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"go.uber.org/zap"
)

// NewStore creates a Store based on the configuration.
//
// The factory examines cfg.VectorStore.Provider and creates the matching
// implementation:
//   - "memory" (default): in-process exact-scan store, nothing persisted
//   - "chromem": embedded persistent store, no external service needed
//   - "qdrant": external Qdrant server over gRPC
//
// The backend is selected once at startup and never switched at runtime;
// callers depend only on the Store interface.
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "memory", "":
		return NewMemoryStore(logger), nil

	case "chromem":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			Collection: cfg.VectorStore.Collection,
			VectorSize: cfg.Embeddings.Dimension,
		}, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:         cfg.VectorStore.Qdrant.Host,
			Port:         cfg.VectorStore.Qdrant.Port,
			Collection:   cfg.VectorStore.Collection,
			VectorSize:   uint64(cfg.Embeddings.Dimension),
			UseTLS:       cfg.VectorStore.Qdrant.UseTLS,
			RetryBackoff: time.Second,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: memory, chromem, qdrant)",
			ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
