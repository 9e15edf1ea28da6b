package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/kbvec/internal/domain"
)

const (
	documentColumns = `id, doc_id, title, parent, source_filename, html, transcript, embedding::text, created_at, updated_at`

	// body columns are left empty for similarity scans
	documentSummaryColumns = `id, doc_id, title, parent, source_filename, '', '', embedding::text, created_at, updated_at`

	insertAttempts = 3
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

// Create inserts d. A zero DocID is assigned as the current maximum plus one
// and written back to d.
func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	var err error
	for attempt := 0; attempt < insertAttempts; attempt++ {
		err = r.db.QueryRow(ctx,
			`INSERT INTO documents (id, doc_id, title, parent, source_filename, html, transcript, created_at, updated_at)
			 VALUES ($1, COALESCE(NULLIF($2::bigint, 0), (SELECT COALESCE(MAX(doc_id), 0) + 1 FROM documents)),
			         $3, $4, $5, $6, $7, $8, $9)
			 RETURNING doc_id`,
			d.ID, d.DocID, d.Title, nullableString(d.Parent), nullableString(d.SourceFilename),
			d.HTML, d.Transcript, d.CreatedAt, d.UpdatedAt,
		).Scan(&d.DocID)
		// a concurrent insert can take the same doc_id
		if err == nil || d.DocID != 0 || !isUniqueViolation(err) {
			break
		}
	}
	if isUniqueViolation(err) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeAlreadyExists, "document already exists", err)
	}
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocumentRow(row)
}

func (r *DocumentRepository) GetByDocID(ctx context.Context, docID int64) (*domain.Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = $1`, docID)
	return scanDocumentRow(row)
}

// List returns documents ordered by display id. limit <= 0 returns all.
func (r *DocumentRepository) List(ctx context.Context, limit int) ([]*domain.Document, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY doc_id ASC LIMIT $1`, limit)
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY doc_id ASC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

// ListWithEmbeddings returns every document that has a full-document
// embedding, without the document bodies.
func (r *DocumentRepository) ListWithEmbeddings(ctx context.Context) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentSummaryColumns+` FROM documents WHERE embedding IS NOT NULL ORDER BY doc_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

func (r *DocumentRepository) Update(ctx context.Context, d *domain.Document) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET title = $1, parent = $2, source_filename = $3, html = $4, transcript = $5, updated_at = $6
		 WHERE id = $7`,
		d.Title, nullableString(d.Parent), nullableString(d.SourceFilename), d.HTML, d.Transcript, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// UpdateEmbedding stores the full-document vector; nil clears it.
func (r *DocumentRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	var vec any
	if embedding != nil {
		vec = pgvector.NewVector(embedding)
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET embedding = $1, updated_at = $2 WHERE id = $3`,
		vec, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to store document embedding: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes the document row. Chunks must be deleted first.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*domain.Document, error) {
	var (
		d                       domain.Document
		parent, filename, embed *string
	)
	if err := s.Scan(&d.ID, &d.DocID, &d.Title, &parent, &filename, &d.HTML, &d.Transcript, &embed, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Parent = derefString(parent)
	d.SourceFilename = derefString(filename)
	if embed != nil {
		d.Embedding = domain.NewUnparsedEmbedding(*embed)
	}
	return &d, nil
}

func scanDocumentRow(row pgx.Row) (*domain.Document, error) {
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
