package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListForCall(ctx context.Context, callID string) ([]Event, error)
}

// Service records call lifecycle events. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" || e.Type == "" || e.ToStatus == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Timeline returns the events of one call in insertion order.
func (s *Service) Timeline(ctx context.Context, callID string) ([]Event, error) {
	if callID == "" {
		return nil, ErrInvalidEvent
	}
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.ListForCall(ctx, callID)
}
