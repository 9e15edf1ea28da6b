package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/kbvec/internal/chunking"
	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/telemetry"
)

// DefaultEmbedTimeout bounds the inline embed after a create or update.
const DefaultEmbedTimeout = 60 * time.Second

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByDocID(ctx context.Context, docID int64) (*domain.Document, error)
	List(ctx context.Context, limit int) ([]*domain.Document, error)
	Update(ctx context.Context, d *domain.Document) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
}

// ChunkRepositoryInterface is the chunk cleanup used inside document transactions
type ChunkRepositoryInterface interface {
	DeleteByDocument(ctx context.Context, sourceID string) (int64, error)
}

// EmbeddingJobRepositoryInterface defines the repository interface for embedding job persistence
type EmbeddingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// DocumentEmbedder runs bounded embeds for the CRUD layer.
type DocumentEmbedder interface {
	EmbedWithTimeout(ctx context.Context, documentID string, rebuild bool, timeout time.Duration) EmbedOutcome
	DeleteDocumentEmbeddings(ctx context.Context, documentID string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// DocumentService handles document create, update and delete, embedding
// content on a best-effort basis.
type DocumentService struct {
	docRepo      DocumentRepositoryInterface
	jobRepo      EmbeddingJobRepositoryInterface
	txRunner     TxRunner
	embedder     DocumentEmbedder
	embedTimeout time.Duration
	uuidGen      UUIDGenerator
}

// NewDocumentService creates a new DocumentService instance. jobRepo may be
// nil, in which case failed embeds are only logged.
func NewDocumentService(
	docRepo DocumentRepositoryInterface,
	jobRepo EmbeddingJobRepositoryInterface,
	txRunner TxRunner,
	embedder DocumentEmbedder,
	embedTimeout time.Duration,
) *DocumentService {
	return NewDocumentServiceWithUUIDGen(docRepo, jobRepo, txRunner, embedder, embedTimeout, &DefaultUUIDGenerator{})
}

// NewDocumentServiceWithUUIDGen creates a new DocumentService with custom UUID generator (for testing)
func NewDocumentServiceWithUUIDGen(
	docRepo DocumentRepositoryInterface,
	jobRepo EmbeddingJobRepositoryInterface,
	txRunner TxRunner,
	embedder DocumentEmbedder,
	embedTimeout time.Duration,
	uuidGen UUIDGenerator,
) *DocumentService {
	return &DocumentService{
		docRepo:      docRepo,
		jobRepo:      jobRepo,
		txRunner:     txRunner,
		embedder:     embedder,
		embedTimeout: embedTimeout,
		uuidGen:      uuidGen,
	}
}

// CreateInput represents the input for creating a document
type CreateInput struct {
	Title          string
	Parent         string
	SourceFilename string
	HTML           string
	Transcript     string
}

// UpdateInput represents the input for updating a document
type UpdateInput struct {
	Ref            string
	Title          string
	Parent         string
	SourceFilename string
	HTML           string
	Transcript     string
}

// EmbedStatus reports the inline embed that followed a write.
type EmbedStatus struct {
	Attempted bool
	Chunks    int
	TimedOut  bool
	Error     string
	JobID     string // set when a retry job was queued
}

// DocumentResult is a written document with its embed status.
type DocumentResult struct {
	Document *domain.Document
	Embed    EmbedStatus
}

// Create stores a new document and embeds it. The document is created even
// when embedding fails or runs out of time; a rebuild job is queued instead.
func (s *DocumentService) Create(ctx context.Context, input CreateInput) (*DocumentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Create", telemetry.SpanAttributes{
		Operation: "create",
	})
	defer span.End()

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:             s.uuidGen.NewString(),
		Title:          DeriveTitle(input.Title, input.HTML, input.SourceFilename),
		Parent:         strings.TrimSpace(input.Parent),
		SourceFilename: input.SourceFilename,
		HTML:           input.HTML,
		Transcript:     input.Transcript,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}

	result := &DocumentResult{Document: doc}
	if doc.HasContent() {
		result.Embed = s.embed(ctx, doc.ID, false)
	}
	return result, nil
}

// Get resolves a document by UUID or display id.
func (s *DocumentService) Get(ctx context.Context, ref string) (*domain.Document, error) {
	return ResolveDocument(ctx, s.docRepo, ref)
}

// List returns up to limit documents, oldest display id first. 0 means no limit.
func (s *DocumentService) List(ctx context.Context, limit int) ([]*domain.Document, error) {
	return s.docRepo.List(ctx, limit)
}

// Update replaces a document's fields. Changed content triggers a rebuild
// of its embeddings; cleared content removes them.
func (s *DocumentService) Update(ctx context.Context, input UpdateInput) (*DocumentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Update", telemetry.SpanAttributes{
		Operation: "update",
	})
	defer span.End()

	doc, err := ResolveDocument(ctx, s.docRepo, input.Ref)
	if err != nil {
		return nil, err
	}

	contentChanged := doc.HTML != input.HTML || doc.Transcript != input.Transcript

	doc.Title = DeriveTitle(input.Title, input.HTML, input.SourceFilename)
	doc.Parent = strings.TrimSpace(input.Parent)
	doc.SourceFilename = input.SourceFilename
	doc.HTML = input.HTML
	doc.Transcript = input.Transcript
	doc.UpdatedAt = time.Now().UTC()

	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	if err := s.docRepo.Update(ctx, doc); err != nil {
		return nil, err
	}

	result := &DocumentResult{Document: doc}
	switch {
	case !contentChanged:
	case doc.HasContent():
		result.Embed = s.embed(ctx, doc.ID, true)
	default:
		if err := s.clearEmbeddings(ctx, doc.ID); err != nil {
			log.Printf("[documents] failed to clear embeddings of %s: %v", doc.ID, err)
			telemetry.CaptureError(ctx, err)
		}
		doc.Embedding = domain.Embedding{}
	}
	return result, nil
}

// Delete removes a document and its chunk embeddings in one transaction,
// chunks first.
func (s *DocumentService) Delete(ctx context.Context, ref string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		Operation: "delete",
	})
	defer span.End()

	doc, err := ResolveDocument(ctx, s.docRepo, ref)
	if err != nil {
		return err
	}

	if s.txRunner == nil {
		if err := s.embedder.DeleteDocumentEmbeddings(ctx, doc.ID); err != nil {
			return err
		}
		return s.docRepo.Delete(ctx, doc.ID)
	}

	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.Chunks().DeleteByDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return repos.Documents().Delete(ctx, doc.ID)
	})
}

func (s *DocumentService) clearEmbeddings(ctx context.Context, documentID string) error {
	if err := s.embedder.DeleteDocumentEmbeddings(ctx, documentID); err != nil {
		return err
	}
	return s.docRepo.UpdateEmbedding(ctx, documentID, nil)
}

// embed runs the bounded inline embed and queues a job when it does not finish.
func (s *DocumentService) embed(ctx context.Context, documentID string, rebuild bool) EmbedStatus {
	timeout := s.embedTimeout
	if timeout <= 0 {
		timeout = DefaultEmbedTimeout
	}

	out := s.embedder.EmbedWithTimeout(ctx, documentID, rebuild, timeout)
	status := EmbedStatus{Attempted: true, Chunks: out.Embedded, TimedOut: out.TimedOut}
	if out.OK() {
		return status
	}

	if out.TimedOut {
		log.Printf("[documents] embedding %s timed out after %s", documentID, timeout)
	} else {
		status.Error = out.Err.Error()
		log.Printf("[documents] embedding %s failed: %v", documentID, out.Err)
		telemetry.CaptureError(ctx, out.Err)
	}

	if s.jobRepo == nil {
		return status
	}
	// The request context may be past its deadline; the job must still be stored.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	job := &domain.EmbeddingJob{
		ID:         s.uuidGen.NewString(),
		DocumentID: documentID,
		Rebuild:    rebuild,
		Status:     domain.EmbeddingJobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.jobRepo.Create(jobCtx, job); err != nil {
		log.Printf("[documents] failed to queue embedding job for %s: %v", documentID, err)
		telemetry.CaptureError(ctx, err)
		return status
	}
	status.JobID = job.ID
	return status
}

// DeriveTitle picks the explicit title, else the first <h1>, else a title
// made from the file name, else "Untitled".
func DeriveTitle(title, html, filename string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if html != "" {
		if t := chunking.ExtractTitle(html); t != "" {
			return t
		}
	}
	if t := domain.TitleFromFilename(filename); t != "" {
		return t
	}
	return defaultTitle
}

// DocumentLookup finds documents by either identifier.
type DocumentLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByDocID(ctx context.Context, docID int64) (*domain.Document, error)
}

// ResolveDocument accepts a UUID or a numeric display id.
func ResolveDocument(ctx context.Context, repo DocumentLookup, ref string) (*domain.Document, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document id is required")
	}
	if _, err := uuid.Parse(ref); err == nil {
		return repo.GetByID(ctx, ref)
	}
	docID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || docID <= 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("invalid document id %q", ref))
	}
	return repo.GetByDocID(ctx, docID)
}
