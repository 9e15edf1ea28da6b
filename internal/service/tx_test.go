package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/kbvec/internal/domain"
)

type testTxRepos struct {
	documents     DocumentRepositoryInterface
	chunks        ChunkRepositoryInterface
	embeddingJobs EmbeddingJobRepositoryInterface
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) EmbeddingJobs() EmbeddingJobRepositoryInterface {
	return t.embeddingJobs
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}

// MockEmbeddingClient mocks the embedding provider client
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingClient) MaxBatchSize() int {
	args := m.Called()
	return args.Int(0)
}

// MockDocumentRepository mocks DocumentRepositoryInterface
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) GetByDocID(ctx context.Context, docID int64) (*domain.Document, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, limit int) ([]*domain.Document, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListWithEmbeddings(ctx context.Context) ([]*domain.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) Update(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	args := m.Called(ctx, id, embedding)
	return args.Error(0)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockChunkRepository mocks EmbeddingChunkRepository
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) ListIndexes(ctx context.Context, sourceID string) ([]int, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockChunkRepository) ListByDocument(ctx context.Context, sourceID string) ([]domain.Chunk, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Chunk), args.Error(1)
}

func (m *MockChunkRepository) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) DeleteByDocument(ctx context.Context, sourceID string) (int64, error) {
	args := m.Called(ctx, sourceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChunkRepository) DeleteFromIndex(ctx context.Context, sourceID string, fromIndex int) (int64, error) {
	args := m.Called(ctx, sourceID, fromIndex)
	return args.Get(0).(int64), args.Error(1)
}

// MockEmbeddingJobRepository mocks EmbeddingJobRepositoryInterface
type MockEmbeddingJobRepository struct {
	mock.Mock
}

func (m *MockEmbeddingJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// MockDocumentEmbedder mocks DocumentEmbedder
type MockDocumentEmbedder struct {
	mock.Mock
}

func (m *MockDocumentEmbedder) EmbedWithTimeout(ctx context.Context, documentID string, rebuild bool, timeout time.Duration) EmbedOutcome {
	args := m.Called(ctx, documentID, rebuild, timeout)
	return args.Get(0).(EmbedOutcome)
}

func (m *MockDocumentEmbedder) DeleteDocumentEmbeddings(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

type fixedUUIDGenerator struct {
	ids []string
	n   int
}

func (g *fixedUUIDGenerator) NewString() string {
	id := g.ids[g.n%len(g.ids)]
	g.n++
	return id
}
