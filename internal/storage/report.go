package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/kbvec/internal/similarity"
)

const reportPrefix = "reports/similar-pairs/"

// ObjectWriter is the part of S3Client the report export needs.
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

type ReportDocument struct {
	DocumentID string `json:"document_id"`
	DocID      int64  `json:"doc_id"`
	Title      string `json:"title"`
	Parent     string `json:"parent,omitempty"`
}

type ReportPair struct {
	A          ReportDocument `json:"a"`
	B          ReportDocument `json:"b"`
	Similarity float64        `json:"similarity"`
}

// PairReport is the near-duplicate listing written by `kbvecd pairs --upload`.
type PairReport struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Threshold   float64      `json:"threshold"`
	Count       int          `json:"count"`
	Pairs       []ReportPair `json:"pairs"`
}

func NewPairReport(pairs []similarity.Pair, threshold float64, generatedAt time.Time) *PairReport {
	report := &PairReport{
		GeneratedAt: generatedAt.UTC(),
		Threshold:   threshold,
		Count:       len(pairs),
		Pairs:       make([]ReportPair, 0, len(pairs)),
	}
	for _, p := range pairs {
		report.Pairs = append(report.Pairs, ReportPair{
			A:          reportDocument(p.A),
			B:          reportDocument(p.B),
			Similarity: similarity.Round(p.Similarity),
		})
	}
	return report
}

func reportDocument(r similarity.Ref) ReportDocument {
	return ReportDocument{DocumentID: r.ID, DocID: r.DocID, Title: r.Title, Parent: r.Parent}
}

// Key is the object key of the report, unique per generation second.
func (r *PairReport) Key() string {
	return reportPrefix + r.GeneratedAt.Format("20060102T150405Z") + ".json"
}

// UploadPairReport writes the report as JSON and returns its key.
func UploadPairReport(ctx context.Context, w ObjectWriter, report *PairReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := report.Key()
	if err := w.PutObject(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}
