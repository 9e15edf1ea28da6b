package domain

import (
	"fmt"
	"time"
)

// EmbeddingJobStatus represents the status of an embedding job
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusPending    EmbeddingJobStatus = "pending"
	EmbeddingJobStatusProcessing EmbeddingJobStatus = "processing"
	EmbeddingJobStatusCompleted  EmbeddingJobStatus = "completed"
	EmbeddingJobStatusFailed     EmbeddingJobStatus = "failed"
)

// EmbeddingJob is a queued request to (re)embed one document, created when
// an inline embed after create or update failed or timed out.
type EmbeddingJob struct {
	ID          string
	DocumentID  string
	Rebuild     bool
	Status      EmbeddingJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewEmbeddingJob creates a new EmbeddingJob instance
func NewEmbeddingJob(
	id, documentID string,
	rebuild bool,
	status EmbeddingJobStatus,
	retries int32,
	errMsg string,
	createdAt time.Time,
	processedAt *time.Time,
) *EmbeddingJob {
	return &EmbeddingJob{
		ID:          id,
		DocumentID:  documentID,
		Rebuild:     rebuild,
		Status:      status,
		Retries:     retries,
		Error:       errMsg,
		CreatedAt:   createdAt,
		ProcessedAt: processedAt,
	}
}

// ValidateEmbeddingJob validates an EmbeddingJob instance
func ValidateEmbeddingJob(j *EmbeddingJob) error {
	if j == nil {
		return fmt.Errorf("embedding job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("embedding job ID is required")
	}

	if j.DocumentID == "" {
		return fmt.Errorf("embedding job DocumentID is required")
	}

	if !isValidEmbeddingJobStatus(j.Status) {
		return fmt.Errorf("embedding job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("embedding job Retries cannot be negative")
	}

	return nil
}

// isValidEmbeddingJobStatus checks if an EmbeddingJobStatus is valid
func isValidEmbeddingJobStatus(s EmbeddingJobStatus) bool {
	switch s {
	case EmbeddingJobStatusPending, EmbeddingJobStatusProcessing,
		EmbeddingJobStatusCompleted, EmbeddingJobStatusFailed:
		return true
	}
	return false
}
