// Package config provides configuration loading for knowledged.
package config

import (
	"fmt"
)

// Config is the top-level application configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Search      SearchConfig      `koanf:"search"`
	Loader      LoaderConfig      `koanf:"loader"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is the encoder format: json or console.
	Format string `koanf:"format"`
}

// ChunkingConfig configures the word-window chunker.
type ChunkingConfig struct {
	// ChunkSize is the window width in words.
	ChunkSize int `koanf:"chunk_size"`

	// Overlap is the number of words shared between consecutive chunks.
	// Defaults to 50 when the key is absent; an explicit zero disables
	// overlap.
	Overlap int `koanf:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// BaseURL is the base URL for the OpenAI-compatible embeddings API.
	BaseURL string `koanf:"base_url"`

	// APIKey is the bearer token for the embeddings API.
	APIKey Secret `koanf:"api_key"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// Dimension is the embedding dimension produced by the model.
	Dimension int `koanf:"dimension"`

	// MaxBatchSize is the maximum number of texts per provider request.
	MaxBatchSize int `koanf:"max_batch_size"`

	// Concurrency is the number of sub-batch requests in flight at once.
	Concurrency int `koanf:"concurrency"`

	// Timeout bounds each provider request.
	Timeout Duration `koanf:"timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is the backend: memory, chromem, or qdrant.
	// Selected once at startup, never switched at runtime.
	Provider string `koanf:"provider"`

	// Collection is the logical collection name shared by all backends.
	Collection string `koanf:"collection"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig configures the durable Qdrant backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`
}

// SearchConfig holds query-time defaults.
type SearchConfig struct {
	// TopK is the default maximum number of results per query.
	TopK int `koanf:"top_k"`

	// Threshold is the default minimum similarity; results at or below it
	// are excluded.
	Threshold float64 `koanf:"threshold"`
}

// LoaderConfig configures the content loader.
type LoaderConfig struct {
	// MaxFileSize is the largest document file the loader will read, in bytes.
	MaxFileSize int64 `koanf:"max_file_size"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 300
	}
	// Chunking.Overlap is defaulted in Load: zero is a valid explicit
	// value, so the default applies only when the key is absent.

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 1536
	}
	if cfg.Embeddings.MaxBatchSize == 0 {
		cfg.Embeddings.MaxBatchSize = 100
	}
	if cfg.Embeddings.Concurrency == 0 {
		cfg.Embeddings.Concurrency = 1
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30_000_000_000) // 30s
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "memory"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "knowledged_default"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/knowledged/vectorstore"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}

	if cfg.Loader.MaxFileSize == 0 {
		cfg.Loader.MaxFileSize = 1024 * 1024 // 1MB
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q (expected json or console)", c.Logging.Format)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, chunk_size)")
	}

	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive")
	}
	if c.Embeddings.MaxBatchSize <= 0 {
		return fmt.Errorf("embeddings.max_batch_size must be positive")
	}

	switch c.VectorStore.Provider {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %q (supported: memory, chromem, qdrant)", c.VectorStore.Provider)
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive")
	}

	return nil
}
