package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/kbvec/internal/api"
	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/service"
)

type DocumentService interface {
	Create(ctx context.Context, input service.CreateInput) (*service.DocumentResult, error)
	Get(ctx context.Context, ref string) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]*domain.Document, error)
	Update(ctx context.Context, input service.UpdateInput) (*service.DocumentResult, error)
	Delete(ctx context.Context, ref string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentRequest struct {
	Title          string `json:"title"`
	Parent         string `json:"parent"`
	SourceFilename string `json:"source_filename"`
	HTML           string `json:"html"`
	Transcript     string `json:"transcript"`
}

type DocumentResponse struct {
	ID             string `json:"id"`
	DocID          int64  `json:"doc_id"`
	Title          string `json:"title"`
	Parent         string `json:"parent,omitempty"`
	SourceFilename string `json:"source_filename,omitempty"`
	HTML           string `json:"html,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	HasEmbedding   bool   `json:"has_embedding"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type EmbedStatusResponse struct {
	Attempted bool   `json:"attempted"`
	Chunks    int    `json:"chunks"`
	TimedOut  bool   `json:"timed_out,omitempty"`
	Error     string `json:"error,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}

type DocumentWriteResponse struct {
	Document *DocumentResponse   `json:"document"`
	Embed    EmbedStatusResponse `json:"embed"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:             d.ID,
		DocID:          d.DocID,
		Title:          d.Title,
		Parent:         d.Parent,
		SourceFilename: d.SourceFilename,
		HTML:           d.HTML,
		Transcript:     d.Transcript,
		HasEmbedding:   !d.Embedding.IsZero(),
		CreatedAt:      d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func writeResultToResponse(res *service.DocumentResult) *DocumentWriteResponse {
	return &DocumentWriteResponse{
		Document: documentToResponse(res.Document),
		Embed: EmbedStatusResponse{
			Attempted: res.Embed.Attempted,
			Chunks:    res.Embed.Chunks,
			TimedOut:  res.Embed.TimedOut,
			Error:     res.Embed.Error,
			JobID:     res.Embed.JobID,
		},
	}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Create(r.Context(), service.CreateInput{
		Title:          req.Title,
		Parent:         req.Parent,
		SourceFilename: req.SourceFilename,
		HTML:           req.HTML,
		Transcript:     req.Transcript,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, writeResultToResponse(res))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	docs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	// listings leave the bodies out
	out := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		resp := documentToResponse(d)
		resp.HTML = ""
		resp.Transcript = ""
		out = append(out, resp)
	}

	api.Success(w, http.StatusOK, out)
}

func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Update(r.Context(), service.UpdateInput{
		Ref:            id,
		Title:          req.Title,
		Parent:         req.Parent,
		SourceFilename: req.SourceFilename,
		HTML:           req.HTML,
		Transcript:     req.Transcript,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, writeResultToResponse(res))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
