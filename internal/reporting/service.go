package reporting

import (
	"context"
	"errors"
	"time"

	"matchcall/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository reads call history. calls.MemoryRepo and calls.PostgresRepo satisfy it.
type Repository interface {
	ListForUser(ctx context.Context, userID string, from, to time.Time) ([]calls.Session, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListForUser(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID, Range: req.Range}
	for _, c := range rows {
		out.TotalCalls++
		if c.CallerID == req.UserID {
			out.OutgoingCalls++
		} else {
			out.IncomingCalls++
		}
		if c.CallType == calls.CallTypeVideo {
			out.VideoCalls++
		}
		if c.StartedAt != nil {
			out.ConnectedCalls++
		}
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
		}
		switch c.Status {
		case calls.StatusEnded:
			out.EndedCalls++
		case calls.StatusDeclined:
			out.DeclinedCalls++
		case calls.StatusBusy:
			out.BusyCalls++
		case calls.StatusMissed:
			out.MissedCalls++
		case calls.StatusNoAnswer:
			out.NoAnswerCalls++
		case calls.StatusRinging, calls.StatusActive:
			out.OpenCalls++
		}
	}
	if out.ConnectedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.ConnectedCalls
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.ConnectedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
