// Package sanitize cleans free text before it is stored.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTagRegex   = regexp.MustCompile(`<[^>]*>`)
	blankLineRegex = regexp.MustCompile(`\n{3,}`)
)

// StripHTML removes markup, including tags that were entity-encoded.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = html.UnescapeString(result)
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text is applied to notes, descriptions and outcome notes. It strips markup,
// normalizes line endings and collapses runs of blank lines.
func Text(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ReplaceAll(s, "\r\n", "\n")
	result = StripHTML(result)
	return blankLineRegex.ReplaceAllString(result, "\n\n")
}
