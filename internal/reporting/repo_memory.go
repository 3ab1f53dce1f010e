package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"matchcall/internal/calls"
)

// MemoryRepo is a fixed slice of sessions for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	Sessions []calls.Session
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListForUser(ctx context.Context, userID string, from, to time.Time) ([]calls.Session, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Session, 0)
	for _, s := range r.Sessions {
		if !s.HasParticipant(userID) {
			continue
		}
		if s.CreatedAt.Before(from) || !s.CreatedAt.Before(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
