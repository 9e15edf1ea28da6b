package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/kbvec/internal/domain"
)

// ChunkRepository handles persistence of chunk embeddings, keyed by
// (source_id, chunk_index).
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// Upsert writes chunks in one batch, replacing rows with the same key.
func (r *ChunkRepository) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		batch.Queue(
			`INSERT INTO document_chunks
				(source_id, chunk_index, content, chunk_length, title, parent, source_filename, doc_id, embedding, created_at, updated_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (source_id, chunk_index) DO UPDATE SET
				content = EXCLUDED.content,
				chunk_length = EXCLUDED.chunk_length,
				title = EXCLUDED.title,
				parent = EXCLUDED.parent,
				source_filename = EXCLUDED.source_filename,
				doc_id = EXCLUDED.doc_id,
				embedding = EXCLUDED.embedding,
				updated_at = EXCLUDED.updated_at`,
			c.SourceID,
			c.ChunkIndex,
			c.Content,
			c.ChunkLength,
			c.Title,
			nullableString(c.Parent),
			nullableString(c.SourceFilename),
			c.DocID,
			pgvector.NewVector(c.Embedding),
			createdAt,
			updatedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for _, c := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert chunk %s/%d: %w", c.SourceID, c.ChunkIndex, err)
		}
	}
	return br.Close()
}

// ListIndexes returns the stored chunk indexes of a document in ascending order.
func (r *ChunkRepository) ListIndexes(ctx context.Context, sourceID string) ([]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT chunk_index FROM document_chunks WHERE source_id = $1 ORDER BY chunk_index ASC`,
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := []int{}
	for rows.Next() {
		var i int
		if err := rows.Scan(&i); err != nil {
			return nil, err
		}
		indexes = append(indexes, i)
	}
	return indexes, rows.Err()
}

// ListByDocument returns the stored chunks of a document in index order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, sourceID string) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT source_id, chunk_index, content, chunk_length, title, parent, source_filename, doc_id, embedding::text, created_at, updated_at
		 FROM document_chunks WHERE source_id = $1 ORDER BY chunk_index ASC`,
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			c                domain.Chunk
			parent, filename *string
			embedding        string
		)
		if err := rows.Scan(&c.SourceID, &c.ChunkIndex, &c.Content, &c.ChunkLength, &c.Title, &parent, &filename,
			&c.DocID, &embedding, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Parent = derefString(parent)
		c.SourceFilename = derefString(filename)
		if c.Embedding, err = domain.ParseVector(embedding); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, sourceID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// DeleteFromIndex removes chunks at fromIndex and above.
func (r *ChunkRepository) DeleteFromIndex(ctx context.Context, sourceID string, fromIndex int) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE source_id = $1 AND chunk_index >= $2`,
		sourceID, fromIndex,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
