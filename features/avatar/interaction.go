package avatar

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"avatar/backend/internal/apperr"
	"avatar/backend/internal/persona"
)

// Interaction is one recorded query-response cycle, plus optional feedback
// attached later by the client.
type Interaction struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	UserQuery         string    `json:"user_query"`
	RetrievedChunks   []string  `json:"retrieved_chunks"`
	GeneratedResponse string    `json:"generated_response"`
	ResponseTimeMs    int64     `json:"response_time_ms"`
	ResponseRating    *int      `json:"response_rating,omitempty"`
	FeedbackText      string    `json:"feedback_text,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Record(ctx context.Context, rec persona.InteractionRecord) error {
	query := `INSERT INTO avatar_interactions (session_id, user_query, retrieved_chunks, generated_response, response_time_ms)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		rec.SessionID, rec.UserQuery, pq.Array(rec.RetrievedChunks), rec.GeneratedResponse, rec.ResponseTimeMs)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, user_query, retrieved_chunks, generated_response, response_time_ms, response_rating, feedback_text, created_at
		FROM avatar_interactions ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interactions []Interaction
	for rows.Next() {
		var it Interaction
		var rating sql.NullInt64
		var feedback sql.NullString
		if err := rows.Scan(&it.ID, &it.SessionID, &it.UserQuery, pq.Array(&it.RetrievedChunks),
			&it.GeneratedResponse, &it.ResponseTimeMs, &rating, &feedback, &it.CreatedAt); err != nil {
			return nil, err
		}
		if rating.Valid {
			v := int(rating.Int64)
			it.ResponseRating = &v
		}
		it.FeedbackText = feedback.String
		interactions = append(interactions, it)
	}
	return interactions, rows.Err()
}

func (r *PostgresRepo) SaveFeedback(ctx context.Context, id string, rating int, feedback string) error {
	query := `UPDATE avatar_interactions SET response_rating = $1, feedback_text = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, rating, feedback, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("interaction %s", id)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM avatar_interactions`).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}
