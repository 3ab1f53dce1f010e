package audit

import "time"

// Event is one append-only record of a call session status change.
//
// Events are never updated or deleted. Actor capture is best-effort and
// audit failures never block the call lifecycle.
type Event struct {
	ID     string    `json:"id" db:"id"`
	CallID string    `json:"call_id" db:"call_id"`
	Type   EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated participant causing the change, if known.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status" db:"to_status"`
	Reason     string `json:"reason,omitempty" db:"reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCreated    EventType = "call_created"
	EventTypeActivated  EventType = "call_activated"
	EventTypeTerminated EventType = "call_terminated"
)
