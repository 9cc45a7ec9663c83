package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the OpenAI-compatible embedding provider.
type Config struct {
	// BaseURL is the base URL for the embedding API.
	// Default: "https://api.openai.com"
	BaseURL string

	// APIKey is the bearer token sent with each request. Optional for
	// self-hosted OpenAI-compatible servers.
	APIKey config.Secret

	// Model is the embedding model name.
	// Default: "text-embedding-3-small"
	Model string

	// Dimension is the expected embedding dimension for the model.
	// Default: 1536
	Dimension int

	// MaxBatchSize is the maximum number of texts per provider request.
	// Kept conservatively below the provider's own ceiling.
	// Default: 100
	MaxBatchSize int

	// Concurrency is the number of sub-batch requests in flight at once.
	// Default: 1 (sequential)
	Concurrency int

	// Timeout bounds each provider request.
	// Default: 30s
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 100
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: max batch size must be positive", ErrInvalidConfig)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider generates embeddings via an OpenAI-compatible HTTP API.
type OpenAIProvider struct {
	config  Config
	client  *http.Client
	logger  *zap.Logger
	metrics *Metrics
}

// NewOpenAIProvider creates a provider with the given configuration.
func NewOpenAIProvider(cfg Config, logger *zap.Logger) (*OpenAIProvider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIProvider{
		config:  cfg,
		client:  &http.Client{},
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// embeddingRequest is the request body for the embeddings endpoint.
type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

// embeddingResponse is the response body from the embeddings endpoint.
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Dimension returns the embedding dimension for the configured model.
func (p *OpenAIProvider) Dimension() int {
	return p.config.Dimension
}

// Close is a no-op; the provider holds no long-lived resources.
func (p *OpenAIProvider) Close() error {
	return nil
}

// EmbedDocuments generates embeddings for multiple texts.
//
// The input is split into sub-batches of at most MaxBatchSize texts, each
// issued as one provider request. Sub-batches may run concurrently up to the
// configured limit; results are reassembled by input offset, never by
// completion order, preserving 1:1 positional alignment with the input.
//
// Any sub-batch failure aborts the whole call with a BatchError. Partial
// progress is not reused across retries.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	batches := splitBatches(texts, p.config.MaxBatchSize)
	vectors := make([][]float32, len(texts))

	var succeeded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for i, b := range batches {
		g.Go(func() error {
			embs, err := p.embedBatch(gctx, b.texts)
			if err != nil {
				return &BatchError{
					Batch:     i,
					Succeeded: int(succeeded.Load()),
					Err:       err,
				}
			}
			copy(vectors[b.offset:], embs)
			succeeded.Add(int64(len(b.texts)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		genErr = err
		return nil, genErr
	}

	p.logger.Debug("embedded documents",
		zap.Int("texts", len(texts)),
		zap.Int("sub_batches", len(batches)),
		zap.String("model", p.config.Model),
	)

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := p.embedBatch(ctx, []string{text})
	if err != nil {
		genErr = err
		return nil, genErr
	}

	return vectors[0], nil
}

// batch is a contiguous slice of the input with its original offset.
type batch struct {
	offset int
	texts  []string
}

// splitBatches splits texts into sub-batches of at most maxSize texts.
func splitBatches(texts []string, maxSize int) []batch {
	batches := make([]batch, 0, (len(texts)+maxSize-1)/maxSize)
	for offset := 0; offset < len(texts); offset += maxSize {
		end := offset + maxSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{offset: offset, texts: texts[offset:end]})
	}
	return batches
}

// embedBatch issues one provider request for a single sub-batch.
// The response must contain exactly one embedding per input text.
func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req := embeddingRequest{
		Model:          p.config.Model,
		Input:          texts,
		EncodingFormat: "float",
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey.Value())
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, resp.StatusCode, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrProviderFailed, err)
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: response has %d embeddings for %d inputs", ErrProviderFailed, len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}

	return vectors, nil
}

// Ensure OpenAIProvider implements Provider.
var _ Provider = (*OpenAIProvider)(nil)
