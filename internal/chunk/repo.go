package chunk

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// BulkInsert writes all chunks of one ingestion run inside a single
// transaction, so a partially written chunk set is never left behind.
func (r *PostgresRepo) BulkInsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO document_chunks (document_id, chunk_index, content, page_number, char_start, char_end, embedding, token_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, query,
			c.DocumentID, c.Index, c.Content, c.PageNumber, c.CharStart, c.CharEnd,
			pq.Array(toFloat64(c.Embedding)), c.TokenCount); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PostgresRepo) ListByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	query := `SELECT id, document_id, chunk_index, content, page_number, char_start, char_end, embedding, token_count, created_at
		FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index ASC`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var embedding []float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.PageNumber,
			&c.CharStart, &c.CharEnd, pq.Array(&embedding), &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = toFloat32(embedding)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	query := `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}

func (r *PostgresRepo) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&count)
	return count, err
}

// Embeddings are stored as float8[]; lib/pq has no float4 array support.
func toFloat64(in []float32) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func toFloat32(in []float64) []float32 {
	if in == nil {
		return nil
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
