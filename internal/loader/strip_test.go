package loader_test

import (
	"testing"

	"github.com/fyrsmithlabs/knowledged/internal/loader"
	"github.com/stretchr/testify/assert"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "just some plain words",
			want:  "just some plain words",
		},
		{
			name:  "headings",
			input: "# Title\n\n## Section\n\nbody text",
			want:  "Title Section body text",
		},
		{
			name:  "emphasis",
			input: "this is **bold** and *italic* and ___very strong___",
			want:  "this is bold and italic and very strong",
		},
		{
			name:  "links keep text drop url",
			input: "see [the docs](https://example.com/docs) for details",
			want:  "see the docs for details",
		},
		{
			name:  "images keep alt text",
			input: "diagram: ![system overview](img/overview.png)",
			want:  "diagram: system overview",
		},
		{
			name:  "inline code markers removed",
			input: "run `make test` before pushing",
			want:  "run make test before pushing",
		},
		{
			name:  "fences removed code kept",
			input: "example:\n```go\nfunc main() {}\n```\ndone",
			want:  "example: func main() {} done",
		},
		{
			name:  "html tags",
			input: "<p>hello <strong>world</strong></p>",
			want:  "hello world",
		},
		{
			name:  "blockquotes and lists",
			input: "> quoted wisdom\n\n- first item\n- second item\n1. numbered",
			want:  "quoted wisdom first item second item numbered",
		},
		{
			name:  "horizontal rule",
			input: "above\n\n---\n\nbelow",
			want:  "above below",
		},
		{
			name:  "whitespace normalized",
			input: "too   many\n\n\nblank    lines",
			want:  "too many blank lines",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "snake_case identifiers survive",
			input: "the max_file_size setting",
			want:  "the max_file_size setting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loader.StripMarkup(tt.input))
		})
	}
}
