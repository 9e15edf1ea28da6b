package chunking

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	htmlTagRX = regexp.MustCompile(`(?i)<(/?)([a-z][a-z0-9]*)(?:\s[^<>]*)?/?>`)
	inlineWS  = regexp.MustCompile(`\s+`)
)

// Elements whose content never reaches the plain text.
const skipSelector = "script, style, img, noscript, head, svg, template"

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Nav: true, atom.Main: true,
	atom.Aside: true, atom.Blockquote: true, atom.Pre: true, atom.Table: true,
	atom.Ul: true, atom.Ol: true, atom.Dl: true, atom.Figure: true,
	atom.Figcaption: true, atom.Form: true, atom.Fieldset: true,
	atom.Address: true, atom.Details: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var voidElements = map[atom.Atom]bool{
	atom.Br: true, atom.Hr: true, atom.Img: true, atom.Input: true, atom.Meta: true,
	atom.Link: true, atom.Wbr: true, atom.Source: true, atom.Col: true, atom.Area: true,
	atom.Base: true, atom.Embed: true, atom.Track: true, atom.Param: true,
}

var lineElements = map[atom.Atom]bool{
	atom.Li: true, atom.Tr: true, atom.Dt: true, atom.Dd: true, atom.Summary: true,
}

// IsHTML reports whether content contains markup: a closing tag or a void
// tag of a known HTML element. A bare opening tag such as "<b and c>" in
// prose is not enough.
func IsHTML(content string) bool {
	for _, m := range htmlTagRX.FindAllStringSubmatch(content, -1) {
		a := atom.Lookup([]byte(strings.ToLower(m[2])))
		if a == 0 {
			continue
		}
		if m[1] == "/" || voidElements[a] {
			return true
		}
	}
	return false
}

// HTMLToPlainText renders markup as normalized plain text. Block elements
// become paragraphs separated by a blank line; list items, table rows and
// <br> become single line breaks.
func HTMLToPlainText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Normalize(markup)
	}
	doc.Find(skipSelector).Remove()

	w := &textWriter{}
	for _, n := range doc.Nodes {
		w.walk(n)
	}
	return Normalize(w.String())
}

// ExtractTitle returns the plain text of the first <h1>, or "".
func ExtractTitle(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	h1 := doc.Find("h1").First()
	if h1.Length() == 0 {
		return ""
	}
	return collapse(h1.Text())
}

func collapse(s string) string {
	return strings.TrimSpace(inlineWS.ReplaceAllString(s, " "))
}

type textWriter struct {
	b        strings.Builder
	newlines int // trailing newlines written
	space    bool
	pre      int
}

func (w *textWriter) String() string {
	return w.b.String()
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c)
		}
		return
	}

	switch {
	case n.DataAtom == atom.Br:
		w.lineBreak(1)
		return
	case n.DataAtom == atom.A:
		w.link(n)
		return
	case blockElements[n.DataAtom]:
		w.lineBreak(2)
		if n.DataAtom == atom.Pre {
			w.pre++
			defer func() { w.pre-- }()
		}
		defer w.lineBreak(2)
	case lineElements[n.DataAtom]:
		w.lineBreak(1)
		defer w.lineBreak(1)
	case n.DataAtom == atom.Td || n.DataAtom == atom.Th:
		defer func() { w.space = true }()
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

// link writes the anchor text and appends the target when it adds information.
func (w *textWriter) link(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	var href string
	for _, a := range n.Attr {
		if a.Key == "href" {
			href = strings.TrimSpace(a.Val)
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	text := collapse(goquery.NewDocumentFromNode(n).Text())
	if text == href || "mailto:"+text == href {
		return
	}
	if text == "" {
		w.text(href)
		return
	}
	w.text(" [" + href + "]")
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	if w.pre > 0 {
		if w.space && w.newlines == 0 && w.b.Len() > 0 {
			w.b.WriteByte(' ')
		}
		w.space = false
		w.write(s)
		return
	}

	s = inlineWS.ReplaceAllString(s, " ")
	if strings.HasPrefix(s, " ") {
		w.space = true
		s = s[1:]
	}
	trailing := strings.HasSuffix(s, " ")
	s = strings.TrimSuffix(s, " ")
	if s == "" {
		return
	}

	if w.space && w.newlines == 0 && w.b.Len() > 0 {
		w.b.WriteByte(' ')
	}
	w.write(s)
	w.space = trailing
}

func (w *textWriter) write(s string) {
	w.b.WriteString(s)
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		w.newlines += len(s)
		return
	}
	w.newlines = len(s) - len(trimmed)
}

// lineBreak ensures the output ends with at least n newlines. Nothing is
// written at the start of the output.
func (w *textWriter) lineBreak(n int) {
	w.space = false
	if w.b.Len() == 0 {
		return
	}
	for w.newlines < n {
		w.b.WriteByte('\n')
		w.newlines++
	}
}
