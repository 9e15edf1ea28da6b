package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/service"
	"github.com/cloo-solutions/kbvec/internal/similarity"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Create(ctx context.Context, input service.CreateInput) (*service.DocumentResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, ref string) (*domain.Document, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, limit int) ([]*domain.Document, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Update(ctx context.Context, input service.UpdateInput) (*service.DocumentResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentResult), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

type MockDocumentEmbedder struct {
	mock.Mock
}

func (m *MockDocumentEmbedder) EmbedDocument(ctx context.Context, documentID string, rebuild bool) (int, error) {
	args := m.Called(ctx, documentID, rebuild)
	return args.Int(0), args.Error(1)
}

func (m *MockDocumentEmbedder) DeleteDocumentEmbeddings(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockDocumentEmbedder) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Chunk), args.Error(1)
}

type MockSimilarityService struct {
	mock.Mock
}

func (m *MockSimilarityService) FindSimilar(ctx context.Context, ref string, topK int) (*service.SimilarResult, error) {
	args := m.Called(ctx, ref, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SimilarResult), args.Error(1)
}

func (m *MockSimilarityService) FindSimilarPairs(ctx context.Context, threshold float64) ([]similarity.Pair, error) {
	args := m.Called(ctx, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]similarity.Pair), args.Error(1)
}

func newTestDocument() *domain.Document {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Document{
		ID:         "8f14e45f-ceea-4c67-9a3b-2d0aa5f0c001",
		DocID:      7,
		Title:      "Billing FAQ",
		Parent:     "Support",
		Transcript: "How refunds work.",
		Embedding:  domain.NewVectorEmbedding([]float32{1, 0}),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// serve routes req through chi so URL params resolve.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, into))
}

func TestDocumentHandler_Create_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	doc := newTestDocument()
	input := service.CreateInput{Title: "Billing FAQ", Parent: "Support", Transcript: "How refunds work."}
	mockSvc.On("Create", mock.Anything, input).Return(&service.DocumentResult{
		Document: doc,
		Embed:    service.EmbedStatus{Attempted: true, Chunks: 1},
	}, nil)

	body, _ := json.Marshal(DocumentRequest{Title: "Billing FAQ", Parent: "Support", Transcript: "How refunds work."})
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
	w := serve(http.MethodPost, "/documents", handler.Create, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp DocumentWriteResponse
	decodeData(t, w, &resp)
	assert.Equal(t, doc.ID, resp.Document.ID)
	assert.Equal(t, int64(7), resp.Document.DocID)
	assert.True(t, resp.Document.HasEmbedding)
	assert.True(t, resp.Embed.Attempted)
	assert.Equal(t, 1, resp.Embed.Chunks)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Create_EmbedQueued(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Create", mock.Anything, mock.Anything).Return(&service.DocumentResult{
		Document: newTestDocument(),
		Embed:    service.EmbedStatus{Attempted: true, TimedOut: true, JobID: "job-1"},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte(`{"transcript":"x"}`)))
	w := serve(http.MethodPost, "/documents", handler.Create, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp DocumentWriteResponse
	decodeData(t, w, &resp)
	assert.True(t, resp.Embed.TimedOut)
	assert.Equal(t, "job-1", resp.Embed.JobID)
}

func TestDocumentHandler_Create_InvalidBody(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService))

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte("{")))
	w := serve(http.MethodPost, "/documents", handler.Create, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestDocumentHandler_Create_ValidationError(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("Create", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid document"))

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte(`{}`)))
	w := serve(http.MethodPost, "/documents", handler.Create, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Get(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("Get", mock.Anything, "7").Return(newTestDocument(), nil)

	w := serve(http.MethodGet, "/documents/{id}", handler.Get, httptest.NewRequest(http.MethodGet, "/documents/7", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp DocumentResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "Billing FAQ", resp.Title)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.CreatedAt)
}

func TestDocumentHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("Get", mock.Anything, "99").Return(nil, domain.ErrDocumentNotFound)

	w := serve(http.MethodGet, "/documents/{id}", handler.Get, httptest.NewRequest(http.MethodGet, "/documents/99", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_List(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("List", mock.Anything, 5).Return([]*domain.Document{newTestDocument()}, nil)

	w := serve(http.MethodGet, "/documents", handler.List, httptest.NewRequest(http.MethodGet, "/documents?limit=5", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []DocumentResponse
	decodeData(t, w, &resp)
	require.Len(t, resp, 1)
	assert.Empty(t, resp[0].Transcript)
}

func TestDocumentHandler_List_BadLimit(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentService))

	w := serve(http.MethodGet, "/documents", handler.List, httptest.NewRequest(http.MethodGet, "/documents?limit=-1", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Update(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	input := service.UpdateInput{Ref: "7", Title: "Billing FAQ", HTML: "<p>new</p>"}
	mockSvc.On("Update", mock.Anything, input).Return(&service.DocumentResult{
		Document: newTestDocument(),
		Embed:    service.EmbedStatus{Attempted: true, Chunks: 2},
	}, nil)

	req := httptest.NewRequest(http.MethodPut, "/documents/7", bytes.NewReader([]byte(`{"title":"Billing FAQ","html":"<p>new</p>"}`)))
	w := serve(http.MethodPut, "/documents/{id}", handler.Update, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Delete(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("Delete", mock.Anything, "7").Return(nil)

	w := serve(http.MethodDelete, "/documents/{id}", handler.Delete, httptest.NewRequest(http.MethodDelete, "/documents/7", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestEmbeddingHandler_Embed(t *testing.T) {
	docs := new(MockDocumentService)
	embedder := new(MockDocumentEmbedder)
	handler := NewEmbeddingHandler(docs, embedder)

	doc := newTestDocument()
	docs.On("Get", mock.Anything, "7").Return(doc, nil)
	embedder.On("EmbedDocument", mock.Anything, doc.ID, true).Return(3, nil)

	req := httptest.NewRequest(http.MethodPost, "/documents/7/embed?rebuild=true", nil)
	w := serve(http.MethodPost, "/documents/{id}/embed", handler.Embed, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp EmbedResponse
	decodeData(t, w, &resp)
	assert.Equal(t, doc.ID, resp.DocumentID)
	assert.True(t, resp.Rebuild)
	assert.Equal(t, 3, resp.ChunksEmbedded)
	embedder.AssertExpectations(t)
}

func TestEmbeddingHandler_Embed_ProviderFailure(t *testing.T) {
	docs := new(MockDocumentService)
	embedder := new(MockDocumentEmbedder)
	handler := NewEmbeddingHandler(docs, embedder)

	doc := newTestDocument()
	docs.On("Get", mock.Anything, doc.ID).Return(doc, nil)
	embedder.On("EmbedDocument", mock.Anything, doc.ID, false).
		Return(0, &domain.ProviderError{StatusCode: 429, Body: "rate limited"})

	req := httptest.NewRequest(http.MethodPost, "/documents/"+doc.ID+"/embed", nil)
	w := serve(http.MethodPost, "/documents/{id}/embed", handler.Embed, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "rate limited")
}

func TestEmbeddingHandler_Embed_BadRebuildFlag(t *testing.T) {
	handler := NewEmbeddingHandler(new(MockDocumentService), new(MockDocumentEmbedder))

	req := httptest.NewRequest(http.MethodPost, "/documents/7/embed?rebuild=maybe", nil)
	w := serve(http.MethodPost, "/documents/{id}/embed", handler.Embed, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEmbeddingHandler_DeleteEmbeddings(t *testing.T) {
	docs := new(MockDocumentService)
	embedder := new(MockDocumentEmbedder)
	handler := NewEmbeddingHandler(docs, embedder)

	doc := newTestDocument()
	docs.On("Get", mock.Anything, "7").Return(doc, nil)
	embedder.On("DeleteDocumentEmbeddings", mock.Anything, doc.ID).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/documents/7/embeddings", nil)
	w := serve(http.MethodDelete, "/documents/{id}/embeddings", handler.DeleteEmbeddings, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	embedder.AssertExpectations(t)
}

func TestEmbeddingHandler_ListChunks(t *testing.T) {
	docs := new(MockDocumentService)
	embedder := new(MockDocumentEmbedder)
	handler := NewEmbeddingHandler(docs, embedder)

	doc := newTestDocument()
	docs.On("Get", mock.Anything, "7").Return(doc, nil)
	embedder.On("ListChunks", mock.Anything, doc.ID).Return([]domain.Chunk{
		{SourceID: doc.ID, ChunkIndex: 0, Title: "Billing FAQ", Content: "How refunds work.", ChunkLength: 17, Embedding: []float32{1, 0}, UpdatedAt: doc.UpdatedAt},
		{SourceID: doc.ID, ChunkIndex: 1, Title: "Billing FAQ", Content: "Invoices.", ChunkLength: 9, UpdatedAt: doc.UpdatedAt},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents/7/chunks", nil)
	w := serve(http.MethodGet, "/documents/{id}/chunks", handler.ListChunks, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "embedding\":[")
	var resp ChunkListResponse
	decodeData(t, w, &resp)
	assert.Equal(t, doc.ID, resp.DocumentID)
	assert.Equal(t, int64(7), resp.DocID)
	require.Len(t, resp.Chunks, 2)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 1, resp.Chunks[1].ChunkIndex)
	assert.Equal(t, "Invoices.", resp.Chunks[1].Content)
	assert.True(t, resp.Chunks[0].HasEmbedding)
	assert.False(t, resp.Chunks[1].HasEmbedding)
	embedder.AssertExpectations(t)
}

func TestEmbeddingHandler_ListChunks_UnknownDocument(t *testing.T) {
	docs := new(MockDocumentService)
	embedder := new(MockDocumentEmbedder)
	handler := NewEmbeddingHandler(docs, embedder)

	docs.On("Get", mock.Anything, "99").Return(nil, domain.ErrDocumentNotFound)

	req := httptest.NewRequest(http.MethodGet, "/documents/99/chunks", nil)
	w := serve(http.MethodGet, "/documents/{id}/chunks", handler.ListChunks, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	embedder.AssertNotCalled(t, "ListChunks", mock.Anything, mock.Anything)
}

func TestSimilarityHandler_Similar(t *testing.T) {
	mockSvc := new(MockSimilarityService)
	handler := NewSimilarityHandler(mockSvc, 15, 0.7)

	source := newTestDocument()
	mockSvc.On("FindSimilar", mock.Anything, "7", 3).Return(&service.SimilarResult{
		Source: source,
		Matches: []similarity.Match{
			{Ref: similarity.Ref{ID: "b", DocID: 8, Title: "Refunds"}, Similarity: 0.912345},
			{Ref: similarity.Ref{ID: "c", DocID: 9, Title: "Invoices"}, Similarity: 0.5004},
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents/7/similar?limit=3", nil)
	w := serve(http.MethodGet, "/documents/{id}/similar", handler.Similar, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp SimilarResponse
	decodeData(t, w, &resp)
	assert.Equal(t, source.ID, resp.Source.DocumentID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 0.912, resp.Results[0].Similarity)
	assert.Equal(t, 0.5, resp.Results[1].Similarity)
	assert.Equal(t, int64(8), resp.Results[0].DocID)
	assert.Empty(t, resp.Message)
}

func TestSimilarityHandler_Similar_DefaultLimitAndNoEmbedding(t *testing.T) {
	mockSvc := new(MockSimilarityService)
	handler := NewSimilarityHandler(mockSvc, 0, 0.7)

	mockSvc.On("FindSimilar", mock.Anything, "7", similarity.DefaultTopK).Return(&service.SimilarResult{
		Source:  newTestDocument(),
		Matches: []similarity.Match{},
		Status:  similarity.StatusNoEmbedding,
	}, nil)

	w := serve(http.MethodGet, "/documents/{id}/similar", handler.Similar, httptest.NewRequest(http.MethodGet, "/documents/7/similar", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp SimilarResponse
	decodeData(t, w, &resp)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, similarity.StatusNoEmbedding, resp.Message)
}

func TestSimilarityHandler_Similar_UnknownRef(t *testing.T) {
	mockSvc := new(MockSimilarityService)
	handler := NewSimilarityHandler(mockSvc, 15, 0.7)
	mockSvc.On("FindSimilar", mock.Anything, "abc", 15).
		Return(nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid document id"))

	w := serve(http.MethodGet, "/documents/{id}/similar", handler.Similar, httptest.NewRequest(http.MethodGet, "/documents/abc/similar", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSimilarityHandler_Pairs(t *testing.T) {
	mockSvc := new(MockSimilarityService)
	handler := NewSimilarityHandler(mockSvc, 15, 0.7)

	mockSvc.On("FindSimilarPairs", mock.Anything, 0.9).Return([]similarity.Pair{
		{A: similarity.Ref{ID: "a", DocID: 1}, B: similarity.Ref{ID: "b", DocID: 2}, Similarity: 0.99951},
	}, nil)

	w := serve(http.MethodGet, "/similar-pairs", handler.Pairs, httptest.NewRequest(http.MethodGet, "/similar-pairs?threshold=0.9", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp PairsResponse
	decodeData(t, w, &resp)
	assert.Equal(t, 0.9, resp.Threshold)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 1.0, resp.Pairs[0].Similarity)
	assert.Equal(t, "a", resp.Pairs[0].A.DocumentID)
}

func TestSimilarityHandler_Pairs_DefaultThreshold(t *testing.T) {
	mockSvc := new(MockSimilarityService)
	handler := NewSimilarityHandler(mockSvc, 15, 0.7)
	mockSvc.On("FindSimilarPairs", mock.Anything, 0.7).Return([]similarity.Pair{}, nil)

	w := serve(http.MethodGet, "/similar-pairs", handler.Pairs, httptest.NewRequest(http.MethodGet, "/similar-pairs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestSimilarityHandler_Pairs_BadThreshold(t *testing.T) {
	handler := NewSimilarityHandler(new(MockSimilarityService), 15, 0.7)

	w := serve(http.MethodGet, "/similar-pairs", handler.Pairs, httptest.NewRequest(http.MethodGet, "/similar-pairs?threshold=2", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
