package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/kbvec/internal/chunking"
	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/telemetry"
)

const defaultTitle = "Untitled"

// EmbeddingClient turns texts into vectors, one per text and in input order.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	MaxBatchSize() int
}

// EmbeddingDocumentRepository defines the document operations the embedding service needs
type EmbeddingDocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

// EmbeddingChunkRepository defines the repository interface for chunk embeddings
type EmbeddingChunkRepository interface {
	ListIndexes(ctx context.Context, sourceID string) ([]int, error)
	ListByDocument(ctx context.Context, sourceID string) ([]domain.Chunk, error)
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, sourceID string) (int64, error)
	DeleteFromIndex(ctx context.Context, sourceID string, fromIndex int) (int64, error)
}

// EmbeddingService computes and stores the full-document embedding and the
// chunk embeddings of a document.
type EmbeddingService struct {
	client    EmbeddingClient
	docRepo   EmbeddingDocumentRepository
	chunkRepo EmbeddingChunkRepository
	chunkCfg  chunking.Config
	batchSize int
	locks     *keyedMutex
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(client EmbeddingClient, docRepo EmbeddingDocumentRepository, chunkRepo EmbeddingChunkRepository) *EmbeddingService {
	return NewEmbeddingServiceWithConfig(client, docRepo, chunkRepo, chunking.DefaultConfig(), 0)
}

// NewEmbeddingServiceWithConfig creates an EmbeddingService with explicit chunk
// sizes and batch size. A batchSize of 0 uses the client's maximum.
func NewEmbeddingServiceWithConfig(
	client EmbeddingClient,
	docRepo EmbeddingDocumentRepository,
	chunkRepo EmbeddingChunkRepository,
	chunkCfg chunking.Config,
	batchSize int,
) *EmbeddingService {
	if chunkCfg.MaxChars <= 0 {
		chunkCfg = chunking.DefaultConfig()
	}
	return &EmbeddingService{
		client:    client,
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		chunkCfg:  chunkCfg,
		batchSize: batchSize,
		locks:     newKeyedMutex(),
	}
}

// EmbedDocument embeds the chunks of a document that are not stored yet, or
// all of them when rebuild is set, and returns how many were embedded.
// A document without content is a no-op.
func (s *EmbeddingService) EmbedDocument(ctx context.Context, documentID string, rebuild bool) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingService.EmbedDocument", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "embed",
		Rebuild:    rebuild,
	})
	defer span.End()

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if !doc.HasContent() {
		log.Printf("[embed-doc] document %s has no content, skipping", documentID)
		return 0, nil
	}
	content := doc.Content()

	s.embedFullDocument(ctx, doc, content)

	texts := s.chunkCfg.Chunk(content)

	if rebuild {
		if _, err := s.chunkRepo.DeleteByDocument(ctx, doc.ID); err != nil {
			return 0, fmt.Errorf("failed to clear chunks: %w", err)
		}
	} else if pruned, err := s.chunkRepo.DeleteFromIndex(ctx, doc.ID, len(texts)); err != nil {
		return 0, fmt.Errorf("failed to prune stale chunks: %w", err)
	} else if pruned > 0 {
		log.Printf("[embed-doc] pruned %d stale chunks of document %s", pruned, doc.ID)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	targets, err := s.targetIndexes(ctx, doc.ID, len(texts), rebuild)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	title := chunkTitle(doc, content)
	batchSize := s.effectiveBatchSize()
	embedded := 0

	for start := 0; start < len(targets); start += batchSize {
		end := min(start+batchSize, len(targets))
		batch := targets[start:end]

		inputs := make([]string, len(batch))
		for i, idx := range batch {
			inputs[i] = texts[idx]
		}

		vectors, err := s.client.EmbedBatch(ctx, inputs)
		if err != nil {
			span.SetError(err)
			return embedded, fmt.Errorf("failed to embed chunks %d-%d: %w", batch[0], batch[len(batch)-1], err)
		}

		records := make([]domain.Chunk, len(batch))
		for i, idx := range batch {
			records[i] = domain.NewChunk(doc, title, idx, texts[idx], vectors[i])
		}
		if err := s.chunkRepo.Upsert(ctx, records); err != nil {
			return embedded, fmt.Errorf("failed to store chunks: %w", err)
		}
		embedded += len(batch)
	}

	span.SetData("chunks_embedded", embedded)
	log.Printf("[embed-doc] document %s: embedded %d of %d chunks", doc.ID, embedded, len(texts))
	return embedded, nil
}

// embedFullDocument stores the whole-document vector. Failures are logged
// and reported, never returned.
func (s *EmbeddingService) embedFullDocument(ctx context.Context, doc *domain.Document, content string) {
	text := chunking.PlainText(content)
	if text == "" {
		return
	}

	vector, err := s.client.GenerateEmbedding(ctx, text)
	if err == nil {
		err = s.docRepo.UpdateEmbedding(ctx, doc.ID, vector)
	}
	if err != nil {
		log.Printf("[embed-doc] full-document embedding failed for %s: %v", doc.ID, err)
		telemetry.CaptureError(ctx, fmt.Errorf("full-document embedding %s: %w", doc.ID, err))
	}
}

func (s *EmbeddingService) targetIndexes(ctx context.Context, documentID string, n int, rebuild bool) ([]int, error) {
	existing := map[int]bool{}
	if !rebuild {
		indexes, err := s.chunkRepo.ListIndexes(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored chunk indexes: %w", err)
		}
		for _, i := range indexes {
			existing[i] = true
		}
	}

	targets := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !existing[i] {
			targets = append(targets, i)
		}
	}
	return targets, nil
}

func (s *EmbeddingService) effectiveBatchSize() int {
	size := s.batchSize
	if limit := s.client.MaxBatchSize(); limit > 0 && (size <= 0 || size > limit) {
		size = limit
	}
	if size <= 0 {
		size = 1
	}
	return size
}

// EmbedPlan describes what EmbedDocument would do without calling the provider.
type EmbedPlan struct {
	DocumentID string
	Title      string
	ChunkCount int
	Pending    []int
	Stale      int
}

// Plan chunks a document and diffs it against stored chunks.
func (s *EmbeddingService) Plan(ctx context.Context, documentID string, rebuild bool) (*EmbedPlan, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	plan := &EmbedPlan{DocumentID: doc.ID, Title: doc.Title}
	if !doc.HasContent() {
		return plan, nil
	}

	texts := s.chunkCfg.Chunk(doc.Content())
	plan.ChunkCount = len(texts)

	stored, err := s.chunkRepo.ListIndexes(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored chunk indexes: %w", err)
	}
	if rebuild {
		plan.Stale = len(stored)
	} else {
		for _, i := range stored {
			if i >= len(texts) {
				plan.Stale++
			}
		}
	}

	plan.Pending, err = s.targetIndexes(ctx, doc.ID, len(texts), rebuild)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// ListChunks returns the stored chunks of a document in index order.
func (s *EmbeddingService) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	chunks, err := s.chunkRepo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// DeleteDocumentEmbeddings removes every chunk record of a document. The
// document's own embedding is left as is.
func (s *EmbeddingService) DeleteDocumentEmbeddings(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingService.DeleteDocumentEmbeddings", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "delete_embeddings",
	})
	defer span.End()

	unlock := s.locks.Lock(documentID)
	defer unlock()

	n, err := s.chunkRepo.DeleteByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	log.Printf("[embed-doc] deleted %d chunks of document %s", n, documentID)
	return nil
}

// EmbedOutcome is the result of a bounded embed run.
type EmbedOutcome struct {
	Embedded int
	TimedOut bool
	Err      error
}

// OK reports whether the run finished without error.
func (o EmbedOutcome) OK() bool {
	return o.Err == nil && !o.TimedOut
}

// EmbedWithTimeout runs EmbedDocument with an overall deadline. Running out
// of time is reported in the outcome; the run is cancelled and whatever was
// stored so far stays, so a later pass can finish it.
func (s *EmbeddingService) EmbedWithTimeout(ctx context.Context, documentID string, rebuild bool, timeout time.Duration) EmbedOutcome {
	if timeout <= 0 {
		n, err := s.EmbedDocument(ctx, documentID, rebuild)
		return EmbedOutcome{Embedded: n, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan EmbedOutcome, 1)
	go func() {
		n, err := s.EmbedDocument(ctx, documentID, rebuild)
		done <- EmbedOutcome{Embedded: n, Err: err}
	}()

	select {
	case out := <-done:
		if errors.Is(out.Err, context.DeadlineExceeded) {
			out.TimedOut = true
		}
		return out
	case <-ctx.Done():
		return EmbedOutcome{
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:      ctx.Err(),
		}
	}
}

// chunkTitle is the title copied onto chunk records.
func chunkTitle(doc *domain.Document, content string) string {
	if t := strings.TrimSpace(doc.Title); t != "" {
		return t
	}
	if chunking.IsHTML(content) {
		if t := chunking.ExtractTitle(content); t != "" {
			return t
		}
	}
	return defaultTitle
}
