package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"avatar/backend/internal/apperr"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (r *PostgresRepo) Save(ctx context.Context, src *Source) error {
	meta, err := marshalMetadata(src.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO content_sources (name, type, status, raw_content, source_url, metadata)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		src.Name, src.Type, src.Status, src.RawContent, src.SourceURL, meta).
		Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Source, error) {
	query := `SELECT id, name, type, status, source_url, metadata, created_at, updated_at
		FROM content_sources ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		var url sql.NullString
		var meta []byte
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.Status, &url, &meta, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.SourceURL = url.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &s.Metadata); err != nil {
				return nil, err
			}
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Source, error) {
	s := &Source{}
	var url sql.NullString
	var meta []byte
	query := `SELECT id, name, type, status, raw_content, source_url, metadata, created_at, updated_at
		FROM content_sources WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.Name, &s.Type, &s.Status, &s.RawContent, &url, &meta, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("source %s", id)
	}
	if err != nil {
		return nil, err
	}
	s.SourceURL = url.String
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Delete removes the source row; chunks cascade via the foreign key.
func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM content_sources WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("source %s", id)
	}
	return nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE content_sources SET status = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("source %s", id)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_sources`).Scan(&count)
	return count, err
}

// BulkCreateChunks inserts a source's chunks in one transaction so a partial
// chunking run never leaves a half-written sequence behind.
func (r *PostgresRepo) BulkCreateChunks(ctx context.Context, chunks []Chunk) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO content_chunks (source_id, chunk_index, content, token_count, domain, metadata)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		meta, err := marshalMetadata(c.Metadata)
		if err != nil {
			return nil, err
		}
		var id string
		if err := stmt.QueryRowContext(ctx, c.SourceID, c.ChunkIndex, c.Content, c.TokenCount, c.Domain, meta).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepo) DeleteChunksBySource(ctx context.Context, sourceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM content_chunks WHERE source_id = $1`, sourceID)
	return err
}

func (r *PostgresRepo) GetChunks(ctx context.Context, sourceID string) ([]Chunk, error) {
	query := `SELECT id, source_id, chunk_index, content, token_count, domain, embedded, created_at
		FROM content_chunks WHERE source_id = $1 ORDER BY chunk_index`
	return r.queryChunks(ctx, query, sourceID)
}

func (r *PostgresRepo) GetPendingChunks(ctx context.Context, sourceID string) ([]Chunk, error) {
	query := `SELECT id, source_id, chunk_index, content, token_count, domain, embedded, created_at
		FROM content_chunks WHERE source_id = $1 AND NOT embedded ORDER BY chunk_index`
	return r.queryChunks(ctx, query, sourceID)
}

func (r *PostgresRepo) queryChunks(ctx context.Context, query, sourceID string) ([]Chunk, error) {
	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.SourceID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.Domain, &c.Embedded, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresRepo) MarkEmbedded(ctx context.Context, chunkID string, tokenCount int) error {
	query := `UPDATE content_chunks SET embedded = TRUE, token_count = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, tokenCount, chunkID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("chunk %s", chunkID)
	}
	return nil
}

func (r *PostgresRepo) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_chunks`).Scan(&count)
	return count, err
}
