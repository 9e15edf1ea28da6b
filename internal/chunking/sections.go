package chunking

import "regexp"

// Only h2 and h3 delimit sections; h1 is the document title.
var sectionHeadingRX = regexp.MustCompile(`(?is)<h2\b[^>]*>(.*?)</h2\s*>|<h3\b[^>]*>(.*?)</h3\s*>`)

// Section is a heading-delimited slice of an HTML document.
type Section struct {
	Level   int // 2 or 3; 0 for content before the first heading
	Heading string
	HTML    string
}

// SplitSections partitions markup at h2/h3 tags. Each section runs from its
// heading tag to the next heading tag or the end of the document, so joining
// the HTML of every section reproduces the input.
func SplitSections(markup string) []Section {
	matches := sectionHeadingRX.FindAllStringSubmatchIndex(markup, -1)
	if len(matches) == 0 {
		return []Section{{HTML: markup}}
	}

	sections := make([]Section, 0, len(matches)+1)
	if matches[0][0] > 0 {
		sections = append(sections, Section{HTML: markup[:matches[0][0]]})
	}

	for i, m := range matches {
		end := len(markup)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		level, inner := 3, ""
		if m[2] >= 0 {
			level, inner = 2, markup[m[2]:m[3]]
		} else if m[4] >= 0 {
			inner = markup[m[4]:m[5]]
		}

		sections = append(sections, Section{
			Level:   level,
			Heading: HTMLToPlainText(inner),
			HTML:    markup[m[0]:end],
		})
	}
	return sections
}
