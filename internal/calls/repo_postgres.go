package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"matchcall/pkg/utils"
)

// PostgresRepo persists sessions in the call_sessions table (migrations/0001_init.sql).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const sessionColumns = `id, caller_id, receiver_id, call_type, status, created_at, started_at, ended_at, duration_seconds, end_reason, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s         Session
		startedAt sql.NullTime
		endedAt   sql.NullTime
		duration  sql.NullInt64
		reason    sql.NullString
	)
	if err := row.Scan(
		&s.ID,
		&s.CallerID,
		&s.ReceiverID,
		&s.CallType,
		&s.Status,
		&s.CreatedAt,
		&startedAt,
		&endedAt,
		&duration,
		&reason,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		s.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		s.EndedAt = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		s.DurationSeconds = &d
	}
	s.EndReason = reason.String
	return s, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, s Session) error {
	const q = `
INSERT INTO call_sessions (
  id, caller_id, receiver_id, call_type, status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
)
`
	_, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.CallerID,
		s.ReceiverID,
		s.CallType,
		s.Status,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	return scanSession(r.db.QueryRowContext(ctx, q, id))
}

// Update locks the row so concurrent terminal writes from both participants serialize.
func (r *PostgresRepo) Update(ctx context.Context, id string, fn func(*Session) (bool, error)) (Session, bool, error) {
	var (
		out     Session
		changed bool
	)
	err := utils.WithTxRetry(ctx, r.db, nil, 0, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1 FOR UPDATE`
		cur, err := scanSession(tx.QueryRowContext(ctx, q, id))
		if err != nil {
			return err
		}
		changed, err = fn(&cur)
		if err != nil {
			return err
		}
		out = cur
		if !changed {
			return nil
		}
		const uq = `
UPDATE call_sessions
SET status = $2, started_at = $3, ended_at = $4, duration_seconds = $5, end_reason = $6, updated_at = $7
WHERE id = $1
`
		_, err = tx.ExecContext(ctx, uq,
			cur.ID,
			cur.Status,
			nullTime(cur.StartedAt),
			nullTime(cur.EndedAt),
			nullInt(cur.DurationSeconds),
			nullString(cur.EndReason),
			cur.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return Session{}, false, err
	}
	return out, changed, nil
}

func (r *PostgresRepo) ListForUser(ctx context.Context, userID string, from, to time.Time) ([]Session, error) {
	q := `SELECT ` + sessionColumns + `
FROM call_sessions
WHERE (caller_id = $1 OR receiver_id = $1) AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
