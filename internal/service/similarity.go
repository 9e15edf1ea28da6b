package service

import (
	"context"
	"log"

	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/similarity"
	"github.com/cloo-solutions/kbvec/internal/telemetry"
)

// SimilarityDocumentRepository defines the document reads similarity queries need
type SimilarityDocumentRepository interface {
	DocumentLookup
	ListWithEmbeddings(ctx context.Context) ([]*domain.Document, error)
}

// SimilarityService ranks documents by their full-document embeddings.
type SimilarityService struct {
	docRepo SimilarityDocumentRepository
}

// NewSimilarityService creates a new SimilarityService instance
func NewSimilarityService(docRepo SimilarityDocumentRepository) *SimilarityService {
	return &SimilarityService{docRepo: docRepo}
}

// SimilarResult is the ranked neighbourhood of one document.
type SimilarResult struct {
	Source  *domain.Document
	Matches []similarity.Match
	Status  string
}

// FindSimilar resolves ref and returns the topK most similar documents.
// A topK of 0 or less uses the default.
func (s *SimilarityService) FindSimilar(ctx context.Context, ref string, topK int) (*SimilarResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SimilarityService.FindSimilar", telemetry.SpanAttributes{
		Operation: "similar",
	})
	defer span.End()

	source, err := ResolveDocument(ctx, s.docRepo, ref)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = similarity.DefaultTopK
	}

	result := &SimilarResult{Source: source}

	target, err := source.Embedding.Vector()
	if err != nil {
		log.Printf("[similar] unreadable embedding on document %s: %v", source.ID, err)
	}
	if len(target) == 0 {
		result.Status = similarity.StatusNoEmbedding
		result.Matches = []similarity.Match{}
		return result, nil
	}

	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	if !containsCandidate(candidates, source.ID) {
		candidates = append([]similarity.Candidate{{
			Ref:    refOf(source),
			Vector: target,
		}}, candidates...)
	}

	ranked := similarity.FindSimilar(source.ID, candidates, topK)
	result.Matches = ranked.Matches
	result.Status = ranked.Status
	span.SetData("matches", len(result.Matches))
	return result, nil
}

// FindSimilarPairs returns every pair of documents at or above threshold.
func (s *SimilarityService) FindSimilarPairs(ctx context.Context, threshold float64) ([]similarity.Pair, error) {
	ctx, span := telemetry.StartSpan(ctx, "SimilarityService.FindSimilarPairs", telemetry.SpanAttributes{
		Operation: "pairs",
	})
	defer span.End()

	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}
	pairs := similarity.FindSimilarPairs(candidates, threshold)
	span.SetData("pairs", len(pairs))
	return pairs, nil
}

// candidates loads embedded documents, skipping rows whose stored vector
// does not parse.
func (s *SimilarityService) candidates(ctx context.Context) ([]similarity.Candidate, error) {
	docs, err := s.docRepo.ListWithEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]similarity.Candidate, 0, len(docs))
	for _, d := range docs {
		vec, err := d.Embedding.Vector()
		if err != nil {
			log.Printf("[similar] skipping document %s: %v", d.ID, err)
			continue
		}
		if len(vec) == 0 {
			continue
		}
		out = append(out, similarity.Candidate{Ref: refOf(d), Vector: vec})
	}
	return out, nil
}

func refOf(d *domain.Document) similarity.Ref {
	return similarity.Ref{ID: d.ID, DocID: d.DocID, Title: d.Title, Parent: d.Parent}
}

func containsCandidate(candidates []similarity.Candidate, id string) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}
