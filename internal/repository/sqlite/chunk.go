package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cloo-solutions/kbvec/internal/domain"
)

// ChunkStore persists chunk embeddings keyed by (source_id, chunk_index).
type ChunkStore struct {
	db querier
}

func (s *ChunkStore) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	now := time.Now().UTC()
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO document_chunks
				(source_id, chunk_index, content, chunk_length, title, parent, source_filename, doc_id, embedding, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id, chunk_index) DO UPDATE SET
				content = excluded.content,
				chunk_length = excluded.chunk_length,
				title = excluded.title,
				parent = excluded.parent,
				source_filename = excluded.source_filename,
				doc_id = excluded.doc_id,
				embedding = excluded.embedding,
				updated_at = excluded.updated_at
		`, c.SourceID, c.ChunkIndex, c.Content, c.ChunkLength, c.Title, nullString(c.Parent),
			nullString(c.SourceFilename), c.DocID, domain.FormatVector(c.Embedding), createdAt, updatedAt)
		if err != nil {
			return fmt.Errorf("upserting chunk %s/%d: %w", c.SourceID, c.ChunkIndex, err)
		}
	}
	return nil
}

func (s *ChunkStore) ListIndexes(ctx context.Context, sourceID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index FROM document_chunks WHERE source_id = ? ORDER BY chunk_index ASC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying chunk indexes: %w", err)
	}
	defer rows.Close()

	indexes := []int{}
	for rows.Next() {
		var i int
		if err := rows.Scan(&i); err != nil {
			return nil, fmt.Errorf("scanning chunk index: %w", err)
		}
		indexes = append(indexes, i)
	}
	return indexes, rows.Err()
}

func (s *ChunkStore) ListByDocument(ctx context.Context, sourceID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, chunk_index, content, chunk_length, title, parent, source_filename, doc_id, embedding, created_at, updated_at
		FROM document_chunks WHERE source_id = ? ORDER BY chunk_index ASC
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			c                domain.Chunk
			parent, filename sql.NullString
			embedding        string
		)
		if err := rows.Scan(&c.SourceID, &c.ChunkIndex, &c.Content, &c.ChunkLength, &c.Title, &parent,
			&filename, &c.DocID, &embedding, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Parent = parent.String
		c.SourceFilename = filename.String
		if c.Embedding, err = domain.ParseVector(embedding); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *ChunkStore) DeleteByDocument(ctx context.Context, sourceID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	return res.RowsAffected()
}

func (s *ChunkStore) DeleteFromIndex(ctx context.Context, sourceID string, fromIndex int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE source_id = ? AND chunk_index >= ?`, sourceID, fromIndex)
	if err != nil {
		return 0, fmt.Errorf("pruning chunks: %w", err)
	}
	return res.RowsAffected()
}
