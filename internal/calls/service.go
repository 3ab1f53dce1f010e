package calls

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"matchcall/internal/audit"
	"matchcall/internal/auth"
	"matchcall/internal/metrics"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrNotFound        = errors.New("calls: session not found")
	ErrConflict        = errors.New("calls: session already exists")
)

// Store is the session store contract used by call clients.
// Service implements it in-process; apiclient.Client implements it over HTTP.
type Store interface {
	CreateSession(ctx context.Context, callerID, receiverID string, callType CallType) (Session, error)
	MarkActive(ctx context.Context, id string) (Session, error)
	MarkTerminal(ctx context.Context, id string, status Status, reason string, durationSeconds int) (Session, error)
}

// EventLog receives one event per applied status change.
type EventLog interface {
	Append(ctx context.Context, e audit.Event) error
}

// Service is the authoritative session store.
//
// Terminal writes are idempotent: once a session is terminal every later
// MarkActive/MarkTerminal returns the stored row and a nil error, so the first
// terminal writer wins.
type Service struct {
	repo   Repository
	events EventLog
	log    *slog.Logger

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

func NewService(repo Repository, events EventLog, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, events: events, log: log, Now: time.Now}
}

func (s *Service) CreateSession(ctx context.Context, callerID, receiverID string, callType CallType) (Session, error) {
	callerID = strings.TrimSpace(callerID)
	receiverID = strings.TrimSpace(receiverID)
	if callerID == "" || receiverID == "" || callerID == receiverID {
		return Session{}, ErrInvalidArgument
	}
	if !callType.Valid() {
		return Session{}, ErrInvalidArgument
	}

	now := s.Now().UTC()
	sess := Session{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		CallType:   callType,
		Status:     StatusRinging,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return Session{}, err
	}
	metrics.SessionsCreatedTotal.WithLabelValues(string(callType)).Inc()
	s.record(ctx, sess, audit.EventTypeCreated, "", callerID)
	return sess, nil
}

// MarkActive moves a ringing session to active and stamps StartedAt.
// Active and terminal sessions are returned unchanged.
func (s *Service) MarkActive(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, ErrInvalidArgument
	}
	var from Status
	sess, changed, err := s.repo.Update(ctx, id, func(cur *Session) (bool, error) {
		if cur.Status != StatusRinging {
			return false, nil
		}
		now := s.Now().UTC()
		from = cur.Status
		cur.Status = StatusActive
		cur.StartedAt = &now
		cur.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return Session{}, err
	}
	if changed {
		s.record(ctx, sess, audit.EventTypeActivated, from, sess.ReceiverID)
	}
	return sess, nil
}

// MarkTerminal ends a session. durationSeconds is kept only when the call reached
// active; a negative value is treated as zero.
func (s *Service) MarkTerminal(ctx context.Context, id string, status Status, reason string, durationSeconds int) (Session, error) {
	if strings.TrimSpace(id) == "" || !status.IsTerminal() {
		return Session{}, ErrInvalidArgument
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	var from Status
	sess, changed, err := s.repo.Update(ctx, id, func(cur *Session) (bool, error) {
		if cur.Status.IsTerminal() {
			return false, nil
		}
		now := s.Now().UTC()
		from = cur.Status
		cur.Status = status
		cur.EndedAt = &now
		cur.EndReason = reason
		cur.UpdatedAt = now
		if cur.StartedAt != nil {
			d := durationSeconds
			cur.DurationSeconds = &d
		} else {
			cur.DurationSeconds = nil
		}
		return true, nil
	})
	if err != nil {
		return Session{}, err
	}
	if !changed {
		metrics.DuplicateTerminationsTotal.Inc()
		s.log.Debug("terminal write ignored", "call_id", id, "stored_status", sess.Status, "requested_status", status)
		return sess, nil
	}

	metrics.SessionsTerminatedTotal.WithLabelValues(string(status)).Inc()
	if sess.DurationSeconds != nil {
		metrics.CallDurationSeconds.Observe(float64(*sess.DurationSeconds))
	}
	s.record(ctx, sess, audit.EventTypeTerminated, from, "")
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, id)
}

// ListForUser returns the call history of userID in [from, to).
func (s *Service) ListForUser(ctx context.Context, userID string, from, to time.Time) ([]Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidArgument
	}
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListForUser(ctx, userID, from, to)
}

// record is best-effort; a failed audit write never fails the status change.
// The actor is the authenticated user when the write came through the API.
func (s *Service) record(ctx context.Context, sess Session, typ audit.EventType, from Status, actor string) {
	if s.events == nil {
		return
	}
	if uid, err := auth.UserID(ctx); err == nil {
		actor = uid
	}
	err := s.events.Append(ctx, audit.Event{
		CallID:      sess.ID,
		Type:        typ,
		ActorUserID: actor,
		FromStatus:  string(from),
		ToStatus:    string(sess.Status),
		Reason:      sess.EndReason,
	})
	if err != nil {
		s.log.Warn("audit append failed", "call_id", sess.ID, "type", typ, "err", err)
	}
}
