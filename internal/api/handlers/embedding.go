package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/kbvec/internal/api"
	"github.com/cloo-solutions/kbvec/internal/domain"
)

type DocumentGetter interface {
	Get(ctx context.Context, ref string) (*domain.Document, error)
}

type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, documentID string, rebuild bool) (int, error)
	DeleteDocumentEmbeddings(ctx context.Context, documentID string) error
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// EmbeddingHandler exposes the embedding orchestrator for one document.
type EmbeddingHandler struct {
	docs     DocumentGetter
	embedder DocumentEmbedder
}

func NewEmbeddingHandler(docs DocumentGetter, embedder DocumentEmbedder) *EmbeddingHandler {
	return &EmbeddingHandler{docs: docs, embedder: embedder}
}

type EmbedResponse struct {
	DocumentID     string `json:"document_id"`
	DocID          int64  `json:"doc_id"`
	Rebuild        bool   `json:"rebuild"`
	ChunksEmbedded int    `json:"chunks_embedded"`
}

func (h *EmbeddingHandler) Embed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	rebuild := false
	if raw := r.URL.Query().Get("rebuild"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "rebuild must be a boolean")
			return
		}
		rebuild = b
	}

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	n, err := h.embedder.EmbedDocument(r.Context(), doc.ID, rebuild)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, EmbedResponse{
		DocumentID:     doc.ID,
		DocID:          doc.DocID,
		Rebuild:        rebuild,
		ChunksEmbedded: n,
	})
}

func (h *EmbeddingHandler) DeleteEmbeddings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.embedder.DeleteDocumentEmbeddings(r.Context(), doc.ID); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type ChunkResponse struct {
	ChunkIndex   int    `json:"chunk_index"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	ChunkLength  int    `json:"chunk_length"`
	HasEmbedding bool   `json:"has_embedding"`
	UpdatedAt    string `json:"updated_at"`
}

type ChunkListResponse struct {
	DocumentID string          `json:"document_id"`
	DocID      int64           `json:"doc_id"`
	Chunks     []ChunkResponse `json:"chunks"`
	Count      int             `json:"count"`
}

// ListChunks returns the stored chunks of a document without their vectors.
func (h *EmbeddingHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	chunks, err := h.embedder.ListChunks(r.Context(), doc.ID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := ChunkListResponse{
		DocumentID: doc.ID,
		DocID:      doc.DocID,
		Chunks:     make([]ChunkResponse, 0, len(chunks)),
		Count:      len(chunks),
	}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, ChunkResponse{
			ChunkIndex:   c.ChunkIndex,
			Title:        c.Title,
			Content:      c.Content,
			ChunkLength:  c.ChunkLength,
			HasEmbedding: len(c.Embedding) > 0,
			UpdatedAt:    c.UpdatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	api.Success(w, http.StatusOK, resp)
}
