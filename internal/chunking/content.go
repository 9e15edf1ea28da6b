package chunking

import "strings"

// ChunkContent is the document-level entry point. HTML is split into
// sections and each section is chunked under its own heading; anything else
// is treated as one unheaded section of plain text. Chunks come back in
// document order with empty ones removed.
func ChunkContent(content string, maxChars, overlapChars int) []string {
	var chunks []string
	if IsHTML(content) {
		for _, s := range SplitSections(content) {
			text := HTMLToPlainText(s.HTML)
			chunks = append(chunks, BuildChunks(text, s.Heading, maxChars, overlapChars)...)
		}
	} else {
		chunks = BuildChunks(Normalize(content), "", maxChars, overlapChars)
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// PlainText returns the whole document as normalized plain text, the input
// for the full-document embedding.
func PlainText(content string) string {
	if IsHTML(content) {
		return HTMLToPlainText(content)
	}
	return Normalize(content)
}
