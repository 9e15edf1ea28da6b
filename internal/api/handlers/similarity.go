package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/kbvec/internal/api"
	"github.com/cloo-solutions/kbvec/internal/service"
	"github.com/cloo-solutions/kbvec/internal/similarity"
)

type SimilarityService interface {
	FindSimilar(ctx context.Context, ref string, topK int) (*service.SimilarResult, error)
	FindSimilarPairs(ctx context.Context, threshold float64) ([]similarity.Pair, error)
}

type SimilarityHandler struct {
	svc           SimilarityService
	topK          int
	pairThreshold float64
}

// NewSimilarityHandler uses topK and pairThreshold when a request names none.
func NewSimilarityHandler(svc SimilarityService, topK int, pairThreshold float64) *SimilarityHandler {
	if topK <= 0 {
		topK = similarity.DefaultTopK
	}
	return &SimilarityHandler{svc: svc, topK: topK, pairThreshold: pairThreshold}
}

type DocumentRefResponse struct {
	DocumentID string `json:"document_id"`
	DocID      int64  `json:"doc_id"`
	Title      string `json:"title"`
	Parent     string `json:"parent,omitempty"`
}

type SimilarDocumentResponse struct {
	DocumentRefResponse
	Similarity float64 `json:"similarity"`
}

type SimilarResponse struct {
	Source  DocumentRefResponse       `json:"source"`
	Results []SimilarDocumentResponse `json:"results"`
	Message string                    `json:"message,omitempty"`
}

type PairResponse struct {
	A          DocumentRefResponse `json:"a"`
	B          DocumentRefResponse `json:"b"`
	Similarity float64             `json:"similarity"`
}

type PairsResponse struct {
	Threshold float64        `json:"threshold"`
	Count     int            `json:"count"`
	Pairs     []PairResponse `json:"pairs"`
}

func refToResponse(r similarity.Ref) DocumentRefResponse {
	return DocumentRefResponse{DocumentID: r.ID, DocID: r.DocID, Title: r.Title, Parent: r.Parent}
}

func (h *SimilarityHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	topK := h.topK
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		topK = n
	}

	res, err := h.svc.FindSimilar(r.Context(), id, topK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SimilarResponse{
		Source: DocumentRefResponse{
			DocumentID: res.Source.ID,
			DocID:      res.Source.DocID,
			Title:      res.Source.Title,
			Parent:     res.Source.Parent,
		},
		Results: make([]SimilarDocumentResponse, 0, len(res.Matches)),
		Message: res.Status,
	}
	for _, m := range res.Matches {
		resp.Results = append(resp.Results, SimilarDocumentResponse{
			DocumentRefResponse: refToResponse(m.Ref),
			Similarity:          similarity.Round(m.Similarity),
		})
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *SimilarityHandler) Pairs(w http.ResponseWriter, r *http.Request) {
	threshold := h.pairThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < -1 || f > 1 {
			api.Error(w, http.StatusBadRequest, "threshold must be a number in [-1, 1]")
			return
		}
		threshold = f
	}

	pairs, err := h.svc.FindSimilarPairs(r.Context(), threshold)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, pairsToResponse(pairs, threshold))
}

func pairsToResponse(pairs []similarity.Pair, threshold float64) PairsResponse {
	resp := PairsResponse{
		Threshold: threshold,
		Count:     len(pairs),
		Pairs:     make([]PairResponse, 0, len(pairs)),
	}
	for _, p := range pairs {
		resp.Pairs = append(resp.Pairs, PairResponse{
			A:          refToResponse(p.A),
			B:          refToResponse(p.B),
			Similarity: similarity.Round(p.Similarity),
		})
	}
	return resp
}
