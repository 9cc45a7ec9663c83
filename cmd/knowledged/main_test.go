package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    string
	}{
		{
			name:    "short content passes through",
			content: "hello",
			max:     10,
			want:    "hello",
		},
		{
			name:    "long content is truncated with ellipsis",
			content: "abcdefghij",
			max:     5,
			want:    "abcde...",
		},
		{
			name:    "multi-byte runes are not split",
			content: strings.Repeat("é", 10),
			max:     5,
			want:    strings.Repeat("é", 5) + "...",
		},
		{
			name:    "rune count within limit despite byte length",
			content: strings.Repeat("世", 6),
			max:     8,
			want:    strings.Repeat("世", 6),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := excerpt(tt.content, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
