package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/telemetry"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3
)

// EmbeddingJobRepository defines the interface for embedding job persistence
type EmbeddingJobRepository interface {
	// GetPendingJobs retrieves and claims pending embedding jobs
	GetPendingJobs(ctx context.Context) ([]*domain.EmbeddingJob, error)

	// UpdateJobStatus updates the status of an embedding job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.EmbeddingJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// DocumentEmbedder re-embeds one document.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, documentID string, rebuild bool) (int, error)
}

// EmbeddingWorker drains queued document embed jobs
type EmbeddingWorker struct {
	repo       EmbeddingJobRepository
	embedder   DocumentEmbedder
	jobTimeout time.Duration
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance. A jobTimeout of
// 0 leaves each job unbounded.
func NewEmbeddingWorker(repo EmbeddingJobRepository, embedder DocumentEmbedder, jobTimeout time.Duration) *EmbeddingWorker {
	return &EmbeddingWorker{
		repo:       repo,
		embedder:   embedder,
		jobTimeout: jobTimeout,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("[worker] processing %d pending embedding jobs", len(jobs))

	for i, job := range jobs {
		if ctx.Err() != nil {
			w.releaseJobs(ctx, jobs[i:])
			return ctx.Err()
		}
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("[worker] error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

// releaseJobs hands claimed but unfinished jobs back to the queue. Claims
// only pick pending jobs, so anything left in processing would never run.
func (w *EmbeddingWorker) releaseJobs(ctx context.Context, jobs []*domain.EmbeddingJob) {
	bookCtx := context.WithoutCancel(ctx)
	for _, job := range jobs {
		if err := w.repo.UpdateJobStatus(bookCtx, job.ID, domain.EmbeddingJobStatusPending, job.Error); err != nil {
			log.Printf("[worker] failed to release job %s: %v", job.ID, err)
			continue
		}
		log.Printf("[worker] job %s released back to pending", job.ID)
	}
}

func (w *EmbeddingWorker) processJob(ctx context.Context, job *domain.EmbeddingJob) error {
	// status writes must land even when shutdown cancels ctx
	bookCtx := context.WithoutCancel(ctx)

	if job.DocumentID == "" {
		return w.repo.UpdateJobStatus(bookCtx, job.ID, domain.EmbeddingJobStatusFailed, "job has no document_id")
	}

	ctx, span := telemetry.StartSpan(ctx, "EmbeddingWorker.processJob", telemetry.SpanAttributes{
		DocumentID: job.DocumentID,
		JobID:      job.ID,
		Operation:  "embed_job",
		Rebuild:    job.Rebuild,
	})
	defer span.End()

	runCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	log.Printf("[worker] job %s: embedding document %s (rebuild=%t)", job.ID, job.DocumentID, job.Rebuild)
	n, err := w.embedder.EmbedDocument(runCtx, job.DocumentID, job.Rebuild)
	if err != nil {
		span.SetError(err)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return w.repo.UpdateJobStatus(bookCtx, job.ID, domain.EmbeddingJobStatusFailed, "document no longer exists")
		}
		if ctx.Err() != nil {
			// interrupted, not failed: no retry is spent
			w.releaseJobs(ctx, []*domain.EmbeddingJob{job})
			return nil
		}
		return w.handleJobFailure(bookCtx, job, err)
	}

	if err := w.repo.UpdateJobStatus(bookCtx, job.ID, domain.EmbeddingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Printf("[worker] job %s completed: %d chunks embedded", job.ID, n)
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *EmbeddingWorker) handleJobFailure(ctx context.Context, job *domain.EmbeddingJob, jobErr error) error {
	log.Printf("[worker] job %s failed: %v", job.ID, jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("[worker] job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		telemetry.CaptureError(ctx, fmt.Errorf("embedding job %s for document %s: %w", job.ID, job.DocumentID, jobErr))
		return nil
	}

	// Reset to pending for retry
	log.Printf("[worker] job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.EmbeddingJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
