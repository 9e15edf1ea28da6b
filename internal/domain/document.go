package domain

import (
	"fmt"
	"strings"
	"time"
)

// Document is a unit of knowledge-base content that can be chunked and embedded.
type Document struct {
	ID             string
	DocID          int64 // Display id, assigned as max+1 on insert
	Title          string
	Parent         string // Optional category label
	SourceFilename string
	HTML           string
	Transcript     string
	Embedding      Embedding
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewDocument creates a new Document instance
func NewDocument(
	id string,
	docID int64,
	title, parent, sourceFilename, html, transcript string,
	createdAt, updatedAt time.Time,
) *Document {
	return &Document{
		ID:             id,
		DocID:          docID,
		Title:          title,
		Parent:         parent,
		SourceFilename: sourceFilename,
		HTML:           html,
		Transcript:     transcript,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
}

// Content returns the HTML body when present, otherwise the transcript.
func (d *Document) Content() string {
	if strings.TrimSpace(d.HTML) != "" {
		return d.HTML
	}
	return d.Transcript
}

// HasContent reports whether the document has anything to embed.
func (d *Document) HasContent() bool {
	return strings.TrimSpace(d.Content()) != ""
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("document Title is required")
	}

	if d.DocID < 0 {
		return fmt.Errorf("document DocID cannot be negative")
	}

	return nil
}

// TitleFromFilename derives a readable title from an uploaded file name:
// the extension is stripped, dashes and underscores become spaces and each
// word is capitalized.
func TitleFromFilename(filename string) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)

	words := strings.Fields(name)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
