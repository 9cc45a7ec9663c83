// Package loader reads source content from the filesystem and prepares it
// for indexing: directory walks with filtering, markup stripping, and a
// filesystem watcher for incremental reindexing.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"go.uber.org/zap"
)

// ErrNotDirectory indicates a LoadDir path that is not a directory.
var ErrNotDirectory = errors.New("path is not a directory")

// defaultSkipDirs are directories never descended into during a walk. They
// hold generated code, dependencies, or version control data.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

var defaultExtensions = []string{".md", ".markdown", ".txt", ".html", ".htm"}

// Config configures the content loader.
type Config struct {
	// MaxFileSize is the largest file read, in bytes.
	MaxFileSize int64

	// Extensions are the file extensions loaded, with leading dot.
	Extensions []string
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 1024 * 1024 // 1MB
	}
	if len(c.Extensions) == 0 {
		c.Extensions = defaultExtensions
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxFileSize > 10*1024*1024 {
		return fmt.Errorf("max file size cannot exceed 10MB, got %d", c.MaxFileSize)
	}
	return nil
}

// Loader reads documents from the filesystem.
type Loader struct {
	config Config
	logger *zap.Logger
}

// NewLoader creates a content loader.
func NewLoader(config Config, logger *zap.Logger) (*Loader, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{config: config, logger: logger}, nil
}

// LoadDir walks root and returns a document per eligible file. Source IDs
// are slash-separated paths relative to root, so the same tree indexed from
// a different machine produces the same IDs. Binary files, oversized files,
// and unrecognized extensions are skipped, not errors.
func (l *Loader) LoadDir(ctx context.Context, root string) ([]retrieval.Document, error) {
	cleanRoot := filepath.Clean(root)

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, cleanRoot)
	}

	var docs []retrieval.Document
	err = filepath.WalkDir(cleanRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			if defaultSkipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(cleanRoot, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		doc, ok, err := l.loadFile(path, filepath.ToSlash(relPath))
		if err != nil {
			return err
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", cleanRoot, err)
	}

	l.logger.Info("directory loaded",
		zap.String("root", cleanRoot),
		zap.Int("documents", len(docs)))

	return docs, nil
}

// LoadFile reads a single file as a document. The source ID is the file's
// slash path relative to root, exactly what LoadDir over the same root
// assigns it, so reindexing one file replaces the chunks the full index
// wrote rather than adding a second generation beside them.
func (l *Loader) LoadFile(root, path string) (retrieval.Document, error) {
	cleanRoot := filepath.Clean(root)

	relPath, err := filepath.Rel(cleanRoot, filepath.Clean(path))
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return retrieval.Document{}, fmt.Errorf("file %s is outside content root %s", path, root)
	}
	sourceID := filepath.ToSlash(relPath)

	doc, ok, err := l.loadFile(path, sourceID)
	if err != nil {
		return retrieval.Document{}, err
	}
	if !ok {
		return retrieval.Document{}, fmt.Errorf("file %s is not loadable content", path)
	}
	return doc, nil
}

// loadFile reads one file, returning ok=false for files that should be
// silently skipped.
func (l *Loader) loadFile(path, sourceID string) (retrieval.Document, bool, error) {
	if !l.eligible(path) {
		return retrieval.Document{}, false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return retrieval.Document{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > l.config.MaxFileSize {
		l.logger.Debug("skipping oversized file",
			zap.String("path", path),
			zap.Int64("size", info.Size()))
		return retrieval.Document{}, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return retrieval.Document{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	// gRPC payloads and the embeddings API require valid UTF-8.
	if !utf8.Valid(content) {
		l.logger.Debug("skipping binary file", zap.String("path", path))
		return retrieval.Document{}, false, nil
	}

	return retrieval.Document{SourceID: sourceID, Content: string(content)}, true, nil
}

func (l *Loader) eligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range l.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
