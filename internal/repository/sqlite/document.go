package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/kbvec/internal/domain"
)

const documentColumns = `id, doc_id, title, parent, source_filename, html, transcript, embedding, created_at, updated_at`

// DocumentStore persists documents. Embeddings are stored as bracketed
// text and come back unparsed.
type DocumentStore struct {
	db querier
}

// Create inserts d, assigning DocID as max+1 when it is zero.
func (s *DocumentStore) Create(ctx context.Context, d *domain.Document) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, doc_id, title, parent, source_filename, html, transcript, created_at, updated_at)
		VALUES (?, COALESCE(NULLIF(?, 0), (SELECT COALESCE(MAX(doc_id), 0) + 1 FROM documents)), ?, ?, ?, ?, ?, ?, ?)
		RETURNING doc_id
	`, d.ID, d.DocID, d.Title, nullString(d.Parent), nullString(d.SourceFilename),
		d.HTML, d.Transcript, d.CreatedAt, d.UpdatedAt).Scan(&d.DocID)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return scanDocumentRow(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
}

func (s *DocumentStore) GetByDocID(ctx context.Context, docID int64) (*domain.Document, error) {
	return scanDocumentRow(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = ?`, docID))
}

func (s *DocumentStore) List(ctx context.Context, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY doc_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

func (s *DocumentStore) ListWithEmbeddings(ctx context.Context) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, title, parent, source_filename, '', '', embedding, created_at, updated_at
		FROM documents WHERE embedding IS NOT NULL ORDER BY doc_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying embedded documents: %w", err)
	}
	defer rows.Close()
	return scanDocumentRows(rows)
}

func (s *DocumentStore) Update(ctx context.Context, d *domain.Document) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title = ?, parent = ?, source_filename = ?, html = ?, transcript = ?, updated_at = ?
		WHERE id = ?
	`, d.Title, nullString(d.Parent), nullString(d.SourceFilename), d.HTML, d.Transcript, d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	return requireRow(res, domain.ErrDocumentNotFound)
}

func (s *DocumentStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET embedding = ?, updated_at = ? WHERE id = ?`,
		nullString(domain.FormatVector(embedding)), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("storing document embedding: %w", err)
	}
	return requireRow(res, domain.ErrDocumentNotFound)
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return requireRow(res, domain.ErrDocumentNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*domain.Document, error) {
	var (
		d                           domain.Document
		parent, filename, embedding sql.NullString
	)
	if err := s.Scan(&d.ID, &d.DocID, &d.Title, &parent, &filename, &d.HTML, &d.Transcript,
		&embedding, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Parent = parent.String
	d.SourceFilename = filename.String
	if embedding.Valid {
		d.Embedding = domain.NewUnparsedEmbedding(embedding.String)
	}
	return &d, nil
}

func scanDocumentRow(row *sql.Row) (*domain.Document, error) {
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return d, nil
}

func scanDocumentRows(rows *sql.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
