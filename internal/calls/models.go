package calls

import "time"

// Session is the durable record of one call attempt between two users.
//
// Invariants:
// - One row per attempt, created by the caller before any signaling.
// - Status only moves toward a terminal value; ringing/active are never re-entered.
// - StartedAt is set iff the call reached active.
// - DurationSeconds is non-nil iff the status is terminal and StartedAt is set.
type Session struct {
	ID         string   `json:"id" db:"id"`
	CallerID   string   `json:"caller_id" db:"caller_id"`
	ReceiverID string   `json:"receiver_id" db:"receiver_id"`
	CallType   CallType `json:"call_type" db:"call_type"`
	Status     Status   `json:"status" db:"status"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds *int   `json:"duration_seconds,omitempty" db:"duration_seconds"`
	EndReason       string `json:"end_reason,omitempty" db:"end_reason"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether userID is the caller or the receiver.
func (s Session) HasParticipant(userID string) bool {
	return userID != "" && (s.CallerID == userID || s.ReceiverID == userID)
}

// Peer returns the other participant.
func (s Session) Peer(userID string) string {
	if s.CallerID == userID {
		return s.ReceiverID
	}
	return s.CallerID
}

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

type Status string

const (
	StatusRinging  Status = "ringing"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
	StatusDeclined Status = "declined"
	StatusBusy     Status = "busy"
	StatusMissed   Status = "missed"
	StatusNoAnswer Status = "no_answer"
)

// IsTerminal reports whether no further lifecycle transition may occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusEnded, StatusDeclined, StatusBusy, StatusMissed, StatusNoAnswer:
		return true
	default:
		return false
	}
}

// End reasons written by the call clients.
const (
	ReasonUserHangup        = "user_hangup"
	ReasonNoAnswer          = "no_answer"
	ReasonConnectionLost    = "connection_lost"
	ReasonDeclined          = "declined"
	ReasonBusy              = "User is busy"
	ReasonCallerCancelled   = "caller_cancelled"
	ReasonMediaUnavailable  = "media_unavailable"
	ReasonSetupFailed       = "setup_failed"
	ReasonNegotiationFailed = "negotiation_failed"
)
