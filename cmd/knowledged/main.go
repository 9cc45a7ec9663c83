// Package main implements the knowledged CLI: index content directories,
// search them semantically, and keep the index current as files change.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/knowledged/internal/chunker"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/loader"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	version    = "dev"

	// search flags
	topK      int
	threshold float64

	// reindex flags
	reindexRoot string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "knowledged",
	Short: "Content indexing and semantic retrieval",
	Long: `knowledged chunks documents, embeds them with an OpenAI-compatible
provider, and stores the vectors in a pluggable backend (memory, chromem,
or qdrant) for similarity search.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/knowledged/config.yaml)")

	searchCmd.Flags().IntVar(&topK, "top-k", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&threshold, "threshold", -1, "minimum similarity, exclusive (default from config)")

	reindexCmd.Flags().StringVar(&reindexRoot, "root", ".", "content root the file's source ID is relative to")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(watchCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index all documents under a directory",
	Long: `Index walks the directory, chunks every eligible document, embeds the
chunks, and upserts them into the configured vector store.

Examples:
  knowledged index ./docs
  knowledged index --config ./knowledged.yaml ./notes`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed content by semantic similarity",
	Long: `Search embeds the query and returns the most similar chunks.

Examples:
  knowledged search "how do retries work"
  knowledged search --top-k 3 --threshold 0.5 "connection pooling"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <file>",
	Short: "Reindex a single document, replacing its stored chunks",
	Long: `Reindex replaces one document's stored chunks. Pass the same --root the
directory was indexed from so the source ID matches what index assigned;
otherwise the store ends up with two copies of the file under different IDs.

Examples:
  knowledged index ./docs
  knowledged reindex --root ./docs ./docs/guide.md`,
	Args: cobra.ExactArgs(1),
	RunE: runReindex,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the entire collection",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Index a directory and reindex documents as they change",
	Long: `Watch indexes the directory once, then keeps the collection in sync:
changed files are reindexed and deleted files are removed. Runs until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

// app bundles everything a command needs, built once per invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *retrieval.Service
	loader  *loader.Loader
	store   vectorstore.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.NewSplitter(chunker.Config{
		ChunkSize: cfg.Chunking.ChunkSize,
		Overlap:   cfg.Chunking.Overlap,
	})
	if err != nil {
		return nil, err
	}

	provider, err := embeddings.NewOpenAIProvider(embeddings.Config{
		BaseURL:      cfg.Embeddings.BaseURL,
		APIKey:       cfg.Embeddings.APIKey,
		Model:        cfg.Embeddings.Model,
		Dimension:    cfg.Embeddings.Dimension,
		MaxBatchSize: cfg.Embeddings.MaxBatchSize,
		Concurrency:  cfg.Embeddings.Concurrency,
		Timeout:      cfg.Embeddings.Timeout.Duration(),
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	service, err := retrieval.NewService(splitter, provider, store, logger,
		retrieval.WithSanitizer(loader.StripMarkup),
		retrieval.WithDefaultTopK(cfg.Search.TopK),
		retrieval.WithDefaultThreshold(float32(cfg.Search.Threshold)),
	)
	if err != nil {
		return nil, err
	}

	contentLoader, err := loader.NewLoader(loader.Config{
		MaxFileSize: cfg.Loader.MaxFileSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		service: service,
		loader:  contentLoader,
		store:   store,
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
	_ = logging.Sync(a.logger)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	docs, err := a.loader.LoadDir(ctx, args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	summary, err := a.service.Index(ctx, docs)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d documents (%d chunks) into %s.\n",
		summary.Indexed, summary.Chunks, a.store.Name())
	for _, failure := range summary.Failed {
		fmt.Printf("  failed: %s: %v\n", failure.SourceID, failure.Err)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	var opts []retrieval.SearchOption
	if cmd.Flags().Changed("top-k") {
		opts = append(opts, retrieval.WithTopK(topK))
	}
	if cmd.Flags().Changed("threshold") {
		opts = append(opts, retrieval.WithThreshold(float32(threshold)))
	}

	resp, err := a.service.Search(cmd.Context(), args[0], opts...)
	if err != nil {
		return err
	}

	if len(resp.Results) == 0 {
		fmt.Printf("No results (backend: %s).\n", resp.Backend)
		return nil
	}

	fmt.Printf("%d results (backend: %s):\n\n", len(resp.Results), resp.Backend)
	for i, result := range resp.Results {
		meta := result.Record.Metadata
		fmt.Printf("%d. [%.4f] %s (chunk %d/%d)\n",
			i+1, result.Similarity, meta.SourceID, meta.ChunkIndex+1, meta.TotalChunks)
		fmt.Printf("   %s\n\n", excerpt(result.Record.Content, 200))
	}
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.loader.LoadFile(reindexRoot, args[0])
	if err != nil {
		return err
	}

	chunks, err := a.service.ReindexSource(cmd.Context(), doc)
	if err != nil {
		return err
	}

	fmt.Printf("Reindexed %s (%d chunks).\n", doc.SourceID, chunks)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.Reset(cmd.Context()); err != nil {
		return err
	}

	fmt.Printf("Collection reset (backend: %s).\n", a.store.Name())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := a.loader.LoadDir(ctx, args[0])
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		summary, err := a.service.Index(ctx, docs)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d documents (%d chunks). Watching %s...\n",
			summary.Indexed, summary.Chunks, args[0])
	} else {
		fmt.Printf("Watching %s...\n", args[0])
	}

	watcher, err := loader.NewWatcher(args[0], a.loader, a.logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	watcher.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping.")
			return nil
		case doc := <-watcher.Documents():
			chunks, err := a.service.ReindexSource(ctx, doc)
			if err != nil {
				a.logger.Warn("reindex failed",
					zap.String("source_id", doc.SourceID),
					zap.Error(err))
				continue
			}
			fmt.Printf("Reindexed %s (%d chunks).\n", doc.SourceID, chunks)
		case sourceID := <-watcher.Removed():
			if err := a.store.DeleteBySource(ctx, sourceID); err != nil {
				a.logger.Warn("removal failed",
					zap.String("source_id", sourceID),
					zap.Error(err))
				continue
			}
			fmt.Printf("Removed %s.\n", sourceID)
		}
	}
}

// excerpt truncates content for display. Truncation happens on rune
// boundaries so multi-byte characters are never split mid-sequence.
func excerpt(content string, max int) string {
	if len(content) <= max {
		return content
	}
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}
