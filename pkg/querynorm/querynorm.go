// Package querynorm normalizes title/artist strings into search queries for
// the external video-search backend.
package querynorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Everything outside letters, digits, whitespace and comma is stripped.
	disallowedRegex = regexp.MustCompile(`[^\p{L}\p{N}\s,]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize strips punctuation except commas, folds accented characters to
// their base form, collapses whitespace and trims. Case is preserved; scoring
// lower-cases independently.
func Normalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = disallowedRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// Terms splits a normalized query into lower-cased scoring terms.
func Terms(normalized string) []string {
	return strings.Fields(strings.ToLower(normalized))
}
