package domain

import (
	"time"
	"unicode/utf8"
)

// Chunk is a bounded slice of a document's text together with its embedding.
// SourceID and ChunkIndex form the identity.
type Chunk struct {
	SourceID       string
	ChunkIndex     int
	Content        string
	ChunkLength    int
	Title          string
	Parent         string
	SourceFilename string
	DocID          int64
	Embedding      []float32
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewChunk builds a chunk record for doc at index, copying the document
// metadata needed for filtering without a join.
func NewChunk(doc *Document, title string, index int, content string, embedding []float32) Chunk {
	return Chunk{
		SourceID:       doc.ID,
		ChunkIndex:     index,
		Content:        content,
		ChunkLength:    utf8.RuneCountInString(content),
		Title:          title,
		Parent:         doc.Parent,
		SourceFilename: doc.SourceFilename,
		DocID:          doc.DocID,
		Embedding:      embedding,
	}
}
