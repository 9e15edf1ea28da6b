package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cloo-solutions/kbvec/internal/domain"
)

const embeddingJobColumns = `id, document_id, rebuild, status, retries, error, created_at, processed_at`

const defaultClaimLimit = 100

type EmbeddingJobStore struct {
	db querier
}

func (s *EmbeddingJobStore) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	if err := domain.ValidateEmbeddingJob(job); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid embedding job", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embedding_jobs (`+embeddingJobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.DocumentID, job.Rebuild, job.Status, job.Retries, nullString(job.Error), job.CreatedAt, job.ProcessedAt)
	if err != nil {
		return fmt.Errorf("inserting embedding job: %w", err)
	}
	return nil
}

func (s *EmbeddingJobStore) GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	job, err := scanEmbeddingJob(s.db.QueryRowContext(ctx,
		`SELECT `+embeddingJobColumns+` FROM embedding_jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEmbeddingJobNotFound
		}
		return nil, fmt.Errorf("scanning embedding job: %w", err)
	}
	return job, nil
}

// GetPendingJobs claims up to 100 pending jobs, oldest first. SQLite
// serializes writers, so the UPDATE is the claim.
func (s *EmbeddingJobStore) GetPendingJobs(ctx context.Context) ([]*domain.EmbeddingJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE embedding_jobs
		SET status = ?, processed_at = NULL
		WHERE id IN (
			SELECT id FROM embedding_jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?
		)
		RETURNING `+embeddingJobColumns,
		domain.EmbeddingJobStatusProcessing, domain.EmbeddingJobStatusPending, defaultClaimLimit)
	if err != nil {
		return nil, fmt.Errorf("claiming embedding jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.EmbeddingJob
	for rows.Next() {
		job, err := scanEmbeddingJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning embedding job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING order is unspecified
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (s *EmbeddingJobStore) UpdateJobStatus(ctx context.Context, jobID string, status domain.EmbeddingJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.EmbeddingJobStatusCompleted || status == domain.EmbeddingJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE embedding_jobs SET status = ?, error = ?, processed_at = ? WHERE id = ?`,
		status, nullString(errMsg), processedAt, jobID)
	if err != nil {
		return fmt.Errorf("updating embedding job: %w", err)
	}
	return requireRow(res, domain.ErrEmbeddingJobNotFound)
}

func (s *EmbeddingJobStore) IncrementRetries(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE embedding_jobs SET retries = retries + 1 WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("incrementing retries: %w", err)
	}
	return requireRow(res, domain.ErrEmbeddingJobNotFound)
}

func scanEmbeddingJob(s rowScanner) (*domain.EmbeddingJob, error) {
	var (
		job         domain.EmbeddingJob
		errMsg      sql.NullString
		processedAt sql.NullTime
	)
	if err := s.Scan(&job.ID, &job.DocumentID, &job.Rebuild, &job.Status, &job.Retries, &errMsg,
		&job.CreatedAt, &processedAt); err != nil {
		return nil, err
	}
	job.Error = errMsg.String
	if processedAt.Valid {
		t := processedAt.Time
		job.ProcessedAt = &t
	}
	return &job, nil
}
