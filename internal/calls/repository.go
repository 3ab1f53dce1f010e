package calls

import (
	"context"
	"time"
)

// Repository is the persistence contract for call sessions.
type Repository interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)

	// Update loads the row, applies fn and persists the result when fn reports a change.
	// Implementations must serialize concurrent updates of the same row.
	Update(ctx context.Context, id string, fn func(*Session) (bool, error)) (Session, bool, error)

	// ListForUser returns sessions where userID is caller or receiver, created in [from, to), newest first.
	ListForUser(ctx context.Context, userID string, from, to time.Time) ([]Session, error)
}
