package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxChars     = 4500
	DefaultOverlapChars = 680

	paragraphSep = "\n\n"
)

// Config controls chunk sizes. Lengths are counted in characters (runes).
type Config struct {
	MaxChars     int
	OverlapChars int
}

// DefaultConfig returns the production chunk sizes.
func DefaultConfig() Config {
	return Config{
		MaxChars:     DefaultMaxChars,
		OverlapChars: DefaultOverlapChars,
	}
}

// Chunk runs ChunkContent with the configured sizes.
func (c Config) Chunk(content string) []string {
	return ChunkContent(content, c.MaxChars, c.OverlapChars)
}

// BuildChunks packs the paragraphs of one section into chunks of at most
// maxChars characters. Text that already fits is returned unchanged as a
// single chunk. Otherwise every chunk is prefixed with the heading, and a
// paragraph longer than the remaining budget is cut into windows that share
// overlapChars characters with their neighbour.
func BuildChunks(text, heading string, maxChars, overlapChars int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	heading = strings.TrimSpace(heading)
	paragraphs := strings.Split(text, paragraphSep)
	if heading != "" && strings.TrimSpace(paragraphs[0]) == heading {
		paragraphs = paragraphs[1:]
	}

	prefix := ""
	if heading != "" {
		prefix = heading + paragraphSep
	}
	budget := maxChars - utf8.RuneCountInString(prefix)
	if budget <= 0 {
		prefix, budget = "", maxChars
	}

	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= budget {
		overlapChars = budget / 4
	}

	var (
		chunks  []string
		current strings.Builder
		curLen  int
	)
	emit := func(body string) {
		if c := strings.TrimSpace(prefix + body); c != "" {
			chunks = append(chunks, c)
		}
	}
	flush := func() {
		if curLen > 0 {
			emit(current.String())
		}
		current.Reset()
		curLen = 0
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pl := utf8.RuneCountInString(p)

		if pl > budget {
			flush()
			for _, w := range windows(p, budget, overlapChars) {
				emit(w)
			}
			continue
		}

		sep := 0
		if curLen > 0 {
			sep = len(paragraphSep)
		}
		if curLen+sep+pl > budget {
			flush()
			sep = 0
		}
		if sep > 0 {
			current.WriteString(paragraphSep)
		}
		current.WriteString(p)
		curLen += sep + pl
	}
	flush()

	return chunks
}

// windows cuts s into size-rune slices, each starting overlap runes before
// the end of the previous one.
func windows(s string, size, overlap int) []string {
	runes := []rune(s)
	step := size - overlap
	if step <= 0 {
		step = size
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
