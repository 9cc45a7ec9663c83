package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/knowledged/internal/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeWords returns n distinct words "w0 w1 ... wN-1" joined by spaces.
func makeWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := chunker.Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 300, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.Overlap)
}

func TestConfig_ApplyDefaults_KeepsExplicitZeroOverlap(t *testing.T) {
	cfg := chunker.Config{ChunkSize: 100}
	cfg.ApplyDefaults()

	assert.Equal(t, 100, cfg.ChunkSize)
	assert.Equal(t, 0, cfg.Overlap, "an explicit chunk size with zero overlap stays at zero")
}

func TestNewSplitter_ZeroOverlap(t *testing.T) {
	s, err := chunker.NewSplitter(chunker.Config{ChunkSize: 10, Overlap: 0})
	require.NoError(t, err)

	assert.Equal(t, 10, s.ChunkSize())
	assert.Equal(t, 0, s.Overlap())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    chunker.Config
		wantError bool
	}{
		{
			name:      "valid config",
			config:    chunker.Config{ChunkSize: 300, Overlap: 50},
			wantError: false,
		},
		{
			name:      "zero overlap is valid",
			config:    chunker.Config{ChunkSize: 10, Overlap: 0},
			wantError: false,
		},
		{
			name:      "negative chunk size",
			config:    chunker.Config{ChunkSize: -1, Overlap: 0},
			wantError: true,
		},
		{
			name:      "negative overlap",
			config:    chunker.Config{ChunkSize: 10, Overlap: -1},
			wantError: true,
		},
		{
			name:      "overlap equals chunk size",
			config:    chunker.Config{ChunkSize: 10, Overlap: 10},
			wantError: true,
		},
		{
			name:      "overlap exceeds chunk size",
			config:    chunker.Config{ChunkSize: 10, Overlap: 20},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				require.Error(t, err)
				assert.ErrorIs(t, err, chunker.ErrInvalidWindow)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSplitter_InvalidConfig(t *testing.T) {
	_, err := chunker.NewSplitter(chunker.Config{ChunkSize: 100, Overlap: 100})
	require.Error(t, err)
	assert.ErrorIs(t, err, chunker.ErrInvalidWindow)
}

func TestSplitter_Split(t *testing.T) {
	tests := []struct {
		name       string
		chunkSize  int
		overlap    int
		words      int
		wantChunks int
	}{
		{
			name:      "empty input",
			chunkSize: 300, overlap: 50,
			words: 0, wantChunks: 0,
		},
		{
			name:      "shorter than one window",
			chunkSize: 300, overlap: 50,
			words: 42, wantChunks: 1,
		},
		{
			name:      "exactly one window",
			chunkSize: 300, overlap: 50,
			words: 300, wantChunks: 1,
		},
		{
			// Offsets 0, 250, 500. Remaining at 500 is 200 >= 150,
			// so the last window is emitted.
			name:      "700 words keeps the tail window",
			chunkSize: 300, overlap: 50,
			words: 700, wantChunks: 3,
		},
		{
			// Offsets 0, 250. Remaining at 500 is 120 < 150, so the
			// short tail is absorbed by the previous chunk's overlap.
			name:      "620 words drops the short tail",
			chunkSize: 300, overlap: 50,
			words: 620, wantChunks: 2,
		},
		{
			// Tail of 50 words is exactly chunkSize/2, so it is kept.
			name:      "no overlap keeps half-size tail",
			chunkSize: 100, overlap: 0,
			words: 250, wantChunks: 3,
		},
		{
			// Tail of 49 words falls below chunkSize/2 and is dropped.
			name:      "no overlap drops sub-half tail",
			chunkSize: 100, overlap: 0,
			words: 249, wantChunks: 2,
		},
		{
			// Half of 7 is 3.5: a 3-word tail is below it and dropped,
			// not kept by integer flooring.
			name:      "odd chunk size drops tail below true half",
			chunkSize: 7, overlap: 0,
			words: 10, wantChunks: 1,
		},
		{
			// A 4-word tail clears half of 7 and is kept.
			name:      "odd chunk size keeps tail above true half",
			chunkSize: 7, overlap: 0,
			words: 11, wantChunks: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := chunker.NewSplitter(chunker.Config{ChunkSize: tt.chunkSize, Overlap: tt.overlap})
			require.NoError(t, err)

			chunks := s.Split(makeWords(tt.words))
			assert.Len(t, chunks, tt.wantChunks)
		})
	}
}

func TestSplitter_Split_WindowBoundaries(t *testing.T) {
	s, err := chunker.NewSplitter(chunker.Config{ChunkSize: 300, Overlap: 50})
	require.NoError(t, err)

	chunks := s.Split(makeWords(700))
	require.Len(t, chunks, 3)

	// Each chunk starts at offset i*(chunkSize-overlap).
	assert.True(t, strings.HasPrefix(chunks[0], "w0 "))
	assert.True(t, strings.HasPrefix(chunks[1], "w250 "))
	assert.True(t, strings.HasPrefix(chunks[2], "w500 "))

	// Full windows are exactly chunkSize words; the last runs to the end.
	assert.Len(t, strings.Fields(chunks[0]), 300)
	assert.Len(t, strings.Fields(chunks[1]), 300)
	assert.Len(t, strings.Fields(chunks[2]), 200)
}

func TestSplitter_Split_Coverage(t *testing.T) {
	// Every word must appear in at least one chunk, except a dropped tail
	// strictly shorter than chunkSize/2.
	s, err := chunker.NewSplitter(chunker.Config{ChunkSize: 20, Overlap: 5})
	require.NoError(t, err)

	for _, n := range []int{1, 19, 20, 21, 35, 50, 100, 157} {
		text := makeWords(n)
		chunks := s.Split(text)

		covered := make(map[string]bool)
		for _, c := range chunks {
			for _, w := range strings.Fields(c) {
				covered[w] = true
			}
		}

		missing := 0
		for _, w := range strings.Fields(text) {
			if !covered[w] {
				missing++
			}
		}
		assert.Less(t, missing, 10, "n=%d: dropped tail must be shorter than chunkSize/2", n)
	}
}

func TestSplitter_Split_Deterministic(t *testing.T) {
	s, err := chunker.NewSplitter(chunker.Config{ChunkSize: 30, Overlap: 10})
	require.NoError(t, err)

	text := makeWords(123)
	first := s.Split(text)
	second := s.Split(text)

	assert.Equal(t, first, second)
}

func TestSplitter_Split_NormalizesWhitespace(t *testing.T) {
	s, err := chunker.NewSplitter(chunker.Config{ChunkSize: 10, Overlap: 2})
	require.NoError(t, err)

	chunks := s.Split("  alpha \t beta\n\ngamma  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "alpha beta gamma", chunks[0])
}
