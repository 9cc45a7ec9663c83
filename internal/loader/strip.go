package loader

import (
	"regexp"
	"strings"
)

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	imagePattern       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkPattern        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	fencePattern       = regexp.MustCompile("(?m)^\\s*```[^\n]*$")
	headingPattern     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquotePattern  = regexp.MustCompile(`(?m)^\s*>\s?`)
	listMarkerPattern  = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
	asteriskEmphPtrn   = regexp.MustCompile(`\*{1,3}([^*]+)\*{1,3}`)
	// Underscore emphasis must sit at word boundaries so snake_case
	// identifiers in technical prose survive.
	underscoreEmphPtrn = regexp.MustCompile(`(\s|^)_{1,3}([^_]+)_{1,3}(\s|$)`)
	inlineCodePattern  = regexp.MustCompile("`([^`]*)`")
	horizontalRulePtrn = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
)

// StripMarkup converts markdown or HTML content to whitespace-normalized
// plain text. Code inside fences is kept; the markers around it are not.
func StripMarkup(raw string) string {
	text := raw

	text = imagePattern.ReplaceAllString(text, "$1")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = fencePattern.ReplaceAllString(text, "")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	text = blockquotePattern.ReplaceAllString(text, "")
	text = horizontalRulePtrn.ReplaceAllString(text, "")
	text = listMarkerPattern.ReplaceAllString(text, "")
	text = asteriskEmphPtrn.ReplaceAllString(text, "$1")
	text = underscoreEmphPtrn.ReplaceAllString(text, " $2 ")

	return strings.Join(strings.Fields(text), " ")
}
