package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/kbvec/internal/api/handlers"
	"github.com/cloo-solutions/kbvec/internal/repository/sqlite"
	"github.com/cloo-solutions/kbvec/internal/service"
)

// topicEmbedder scores texts on two topics so similar documents land close together.
type topicEmbedder struct{}

func (topicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		out[i] = []float32{
			float32(strings.Count(lower, "refund")),
			float32(strings.Count(lower, "invoice")),
			0.1,
		}
	}
	return out, nil
}

func (e topicEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (topicEmbedder) MaxBatchSize() int { return 100 }

func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "kbvec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embeddingSvc := service.NewEmbeddingService(topicEmbedder{}, store.Documents(), store.Chunks())
	documentSvc := service.NewDocumentService(store.Documents(), store.EmbeddingJobs(), store, embeddingSvc, 5*time.Second)
	similaritySvc := service.NewSimilarityService(store.Documents())

	return NewRouter(RouterConfig{
		DocumentHandler:   handlers.NewDocumentHandler(documentSvc),
		EmbeddingHandler:  handlers.NewEmbeddingHandler(documentSvc, embeddingSvc),
		SimilarityHandler: handlers.NewSimilarityHandler(similaritySvc, 15, 0.7),
	})
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func data(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, into))
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var resp map[string]string
	data(t, w, &resp)
	assert.Equal(t, "ok", resp["status"])
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	router := setupRouter(t)

	docs := []handlers.DocumentRequest{
		{Title: "Refunds", Parent: "Billing", Transcript: "How a refund works. Refund timing."},
		{HTML: "<h1>Refund policy</h1><p>Every refund is reviewed.</p>"},
		{SourceFilename: "invoice_basics.txt", Transcript: "Invoice numbering. Invoice delivery."},
	}
	for _, d := range docs {
		w := do(t, router, http.MethodPost, "/documents", d)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var resp handlers.DocumentWriteResponse
		data(t, w, &resp)
		assert.True(t, resp.Embed.Attempted)
		assert.Empty(t, resp.Embed.Error)
	}

	w := do(t, router, http.MethodGet, "/documents/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var third handlers.DocumentResponse
	data(t, w, &third)
	assert.Equal(t, "Invoice Basics", third.Title)
	assert.True(t, third.HasEmbedding)

	w = do(t, router, http.MethodGet, "/documents/2", nil)
	var second handlers.DocumentResponse
	data(t, w, &second)
	assert.Equal(t, "Refund policy", second.Title)

	w = do(t, router, http.MethodGet, "/documents/1/similar?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var similar handlers.SimilarResponse
	data(t, w, &similar)
	require.Len(t, similar.Results, 1)
	assert.Equal(t, int64(2), similar.Results[0].DocID)
	assert.Equal(t, 1.0, similar.Results[0].Similarity)

	w = do(t, router, http.MethodGet, "/similar-pairs?threshold=0.9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pairs handlers.PairsResponse
	data(t, w, &pairs)
	require.Equal(t, 1, pairs.Count)
	assert.ElementsMatch(t, []int64{1, 2}, []int64{pairs.Pairs[0].A.DocID, pairs.Pairs[0].B.DocID})

	w = do(t, router, http.MethodPost, "/documents/"+second.ID+"/embed?rebuild=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var embedded handlers.EmbedResponse
	data(t, w, &embedded)
	assert.Equal(t, 1, embedded.ChunksEmbedded)

	w = do(t, router, http.MethodGet, "/documents/2/chunks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var chunks handlers.ChunkListResponse
	data(t, w, &chunks)
	require.Equal(t, 1, chunks.Count)
	assert.Equal(t, 0, chunks.Chunks[0].ChunkIndex)
	assert.Contains(t, chunks.Chunks[0].Content, "Every refund is reviewed.")
	assert.True(t, chunks.Chunks[0].HasEmbedding)

	w = do(t, router, http.MethodDelete, "/documents/2/embeddings", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/documents/2/chunks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	chunks = handlers.ChunkListResponse{}
	data(t, w, &chunks)
	assert.Equal(t, 0, chunks.Count)
	assert.Empty(t, chunks.Chunks)

	w = do(t, router, http.MethodDelete, "/documents/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/documents/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/documents", nil)
	var listed []handlers.DocumentResponse
	data(t, w, &listed)
	assert.Len(t, listed, 2)
}

func TestRouter_UpdateClearsEmbeddings(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, http.MethodPost, "/documents", handlers.DocumentRequest{Title: "Draft", Transcript: "refund"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, http.MethodPut, "/documents/1", handlers.DocumentRequest{Title: "Draft"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.DocumentWriteResponse
	data(t, w, &resp)
	assert.False(t, resp.Document.HasEmbedding)

	w = do(t, router, http.MethodGet, "/documents/1/similar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var similar handlers.SimilarResponse
	data(t, w, &similar)
	assert.Empty(t, similar.Results)
	assert.NotEmpty(t, similar.Message)
}

func TestRouter_BadReference(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, http.MethodGet, "/documents/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/documents/42/similar", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, http.MethodGet, "/knowledge", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
