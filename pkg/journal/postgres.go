package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresLogPrefix = "journal:postgres"

// PostgresRecorder stores entries in the call_journal table.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder creates a recorder writing through pool.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// Record inserts one entry.
func (r *PostgresRecorder) Record(ctx context.Context, entry *Entry) error {
	var errText *string
	if entry.Error != "" {
		errText = &entry.Error
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO call_journal (request_id, method, status, error, attempts, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.RequestID, entry.Method, entry.Status, errText, entry.Attempts, entry.StartedAt, entry.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("%s - failed to record %s: %w", postgresLogPrefix, entry.RequestID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty method matches all methods.
func (r *PostgresRecorder) Recent(ctx context.Context, method string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT request_id, method, status, COALESCE(error, ''), attempts, started_at, duration_ms
		FROM call_journal`
	args := []interface{}{}
	if method != "" {
		query += ` WHERE method = $1`
		args = append(args, method)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to query journal: %w", postgresLogPrefix, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.RequestID, &e.Method, &e.Status, &e.Error, &e.Attempts, &e.StartedAt, &ms); err != nil {
			return nil, fmt.Errorf("%s - failed to scan journal row: %w", postgresLogPrefix, err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - journal rows: %w", postgresLogPrefix, err)
	}
	return out, nil
}

// Prune deletes entries older than cutoff and returns how many were removed.
func (r *PostgresRecorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM call_journal WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - failed to prune journal: %w", postgresLogPrefix, err)
	}
	return tag.RowsAffected(), nil
}
