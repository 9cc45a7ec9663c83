// Package chunker splits plain text into overlapping word windows.
//
// Chunks are the unit of embedding and retrieval. The splitter is pure and
// stateless: the same input always produces the same chunk sequence, which
// keeps chunk identity stable across re-indexing runs.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidWindow indicates a malformed chunk-size/overlap configuration.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Config holds chunking parameters.
type Config struct {
	// ChunkSize is the window width in words.
	// Default: 300
	ChunkSize int

	// Overlap is the number of words shared between consecutive chunks.
	// Must be strictly smaller than ChunkSize; zero means consecutive
	// chunks share no words.
	Overlap int
}

// ApplyDefaults sets default values for unset fields. A zero Config gets
// the standard 300/50 window; an explicit ChunkSize with Overlap zero is a
// deliberate no-overlap configuration and is left alone.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 300
		if c.Overlap == 0 {
			c.Overlap = 50
		}
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidWindow, c.ChunkSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidWindow, c.Overlap)
	}
	if c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidWindow, c.Overlap, c.ChunkSize)
	}
	return nil
}

// Splitter performs sliding-window chunking over whitespace-delimited words.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a Splitter from the given configuration.
func NewSplitter(cfg Config) (*Splitter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Splitter{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
	}, nil
}

// ChunkSize returns the configured window width in words.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap in words.
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks text into overlapping word windows.
//
// The window advances by ChunkSize-Overlap words per step. A trailing window
// shorter than half the chunk size is dropped when at least one chunk has
// already been emitted; the tail is already covered by the previous chunk's
// overlap, and terminal micro-chunks dilute retrieval quality. Text shorter
// than one window yields exactly one chunk; empty input yields none.
func (s *Splitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := s.chunkSize - s.overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		remaining := len(words) - start
		// Strictly fewer than half the window; 2*remaining avoids the
		// integer floor for odd chunk sizes.
		if 2*remaining < s.chunkSize && len(chunks) > 0 {
			break
		}

		end := start + s.chunkSize
		if end > len(words) {
			end = len(words)
		}

		chunk := strings.Join(words[start:end], " ")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(words) {
			break
		}
	}

	return chunks
}
