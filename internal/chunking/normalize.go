// Package chunking turns document content into ordered, size-bounded text
// chunks ready for embedding.
package chunking

import (
	"regexp"
	"strings"
)

var (
	tabsRX         = regexp.MustCompile(`[\t\r]+`)
	spaceNewlineRX = regexp.MustCompile(`[^\S\n]+\n`)
	newlinesRX     = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses tab and carriage-return runs to a space, strips
// whitespace before line breaks, limits blank lines to one and trims the result.
func Normalize(text string) string {
	text = tabsRX.ReplaceAllString(text, " ")
	text = spaceNewlineRX.ReplaceAllString(text, "\n")
	text = newlinesRX.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
