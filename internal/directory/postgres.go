package directory

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory reads the profiles table owned by the profile service.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory { return &PostgresDirectory{db: db} }

func (d *PostgresDirectory) Profile(ctx context.Context, userID string) (Profile, error) {
	const q = `
SELECT id, display_name, COALESCE(photo_url, '')
FROM profiles
WHERE id = $1
`
	var p Profile
	if err := d.db.QueryRowContext(ctx, q, userID).Scan(&p.ID, &p.DisplayName, &p.PhotoURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}
