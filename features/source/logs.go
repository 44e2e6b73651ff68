package source

import (
	"context"
	"database/sql"
)

// PostgresLogRepo appends and reads the per-source processing audit trail.
type PostgresLogRepo struct {
	db *sql.DB
}

func NewPostgresLogRepo(db *sql.DB) *PostgresLogRepo {
	return &PostgresLogRepo{db: db}
}

func (r *PostgresLogRepo) Append(ctx context.Context, sourceID, stage, status, message string, durationMs int64) error {
	query := `INSERT INTO processing_logs (source_id, stage, status, message, duration_ms)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, sourceID, stage, status, message, durationMs)
	return err
}

func (r *PostgresLogRepo) ListBySource(ctx context.Context, sourceID string) ([]ProcessingLog, error) {
	query := `SELECT id, source_id, stage, status, message, duration_ms, created_at
		FROM processing_logs WHERE source_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ProcessingLog
	for rows.Next() {
		var l ProcessingLog
		var msg sql.NullString
		var dur sql.NullInt64
		if err := rows.Scan(&l.ID, &l.SourceID, &l.Stage, &l.Status, &msg, &dur, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Message = msg.String
		l.DurationMs = dur.Int64
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
