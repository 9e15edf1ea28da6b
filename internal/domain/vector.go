package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

type embeddingKind uint8

const (
	embeddingNone embeddingKind = iota
	embeddingVector
	embeddingUnparsed
)

// Embedding is a stored vector in one of two shapes: a native numeric array
// or the bracketed text form some stores return ("[0.1,0.2]"). Callers read
// it through Vector or Floats only.
type Embedding struct {
	kind   embeddingKind
	vector []float32
	raw    string
}

// NewVectorEmbedding wraps a native vector. A nil or empty slice is no embedding.
func NewVectorEmbedding(v []float32) Embedding {
	if len(v) == 0 {
		return Embedding{}
	}
	return Embedding{kind: embeddingVector, vector: v}
}

// NewUnparsedEmbedding wraps the serialized form. Blank input is no embedding.
func NewUnparsedEmbedding(s string) Embedding {
	if strings.TrimSpace(s) == "" {
		return Embedding{}
	}
	return Embedding{kind: embeddingUnparsed, raw: s}
}

// IsZero reports whether no embedding is stored.
func (e Embedding) IsZero() bool {
	return e.kind == embeddingNone
}

// Vector resolves the embedding to a numeric vector.
func (e Embedding) Vector() ([]float32, error) {
	switch e.kind {
	case embeddingVector:
		return e.vector, nil
	case embeddingUnparsed:
		return ParseVector(e.raw)
	}
	return nil, nil
}

// Floats is Vector with malformed input treated as no embedding.
func (e Embedding) Floats() []float32 {
	v, err := e.Vector()
	if err != nil {
		return nil
	}
	return v
}

// Raw returns the serialized form as stored.
func (e Embedding) Raw() string {
	if e.kind == embeddingUnparsed {
		return e.raw
	}
	return FormatVector(e.vector)
}

// ParseVector reads the bracketed text form of a vector.
func ParseVector(s string) ([]float32, error) {
	body := strings.TrimSpace(s)
	if !strings.HasPrefix(body, "[") || !strings.HasSuffix(body, "]") {
		return nil, &ParseError{Input: s, Err: errors.New("missing brackets")}
	}
	body = strings.TrimSpace(body[1 : len(body)-1])
	if body == "" {
		return nil, nil
	}

	parts := strings.Split(body, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, &ParseError{Input: s, Err: err}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &ParseError{Input: s, Err: errors.New("non-finite component")}
		}
		out = append(out, float32(f))
	}
	return out, nil
}

// FormatVector writes v in the bracketed text form read by ParseVector.
func FormatVector(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
