package signaling

import (
	"errors"
	"strings"

	"matchcall/internal/calls"

	"github.com/pion/webrtc/v4"
)

// Kind is the type tag of a signaling message.
type Kind string

const (
	KindIncomingCall Kind = "incoming-call"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindAccepted     Kind = "call-accepted"
	KindDeclined     Kind = "call-declined"
	KindEnded        Kind = "call-ended"
	KindBusy         Kind = "call-busy"
)

func (k Kind) Valid() bool {
	switch k {
	case KindIncomingCall, KindOffer, KindAnswer, KindICECandidate, KindAccepted, KindDeclined, KindEnded, KindBusy:
		return true
	default:
		return false
	}
}

var ErrInvalidMessage = errors.New("signaling: invalid message")

// Message is the JSON envelope exchanged on call and inbox topics.
// Every message names both participants; receivers drop anything not addressed to them.
type Message struct {
	Type   Kind   `json:"type"`
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`

	CallType  calls.CallType             `json:"call_type,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
}

// Validate checks the envelope and the payload required by each kind.
func (m Message) Validate() error {
	if !m.Type.Valid() || m.CallID == "" || m.From == "" || m.To == "" {
		return ErrInvalidMessage
	}
	switch m.Type {
	case KindIncomingCall:
		if !m.CallType.Valid() {
			return ErrInvalidMessage
		}
	case KindOffer, KindAnswer:
		if m.SDP == nil || m.SDP.SDP == "" {
			return ErrInvalidMessage
		}
	case KindICECandidate:
		if m.Candidate == nil {
			return ErrInvalidMessage
		}
	}
	return nil
}

const (
	callTopicPrefix  = "call:"
	inboxTopicPrefix = "inbox:"
)

// CallTopic is the per-call topic shared by both participants.
func CallTopic(callID string) string { return callTopicPrefix + callID }

// InboxTopic is the per-user notification topic.
func InboxTopic(userID string) string { return inboxTopicPrefix + userID }

// ParseCallTopic returns the call id of a call topic.
func ParseCallTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, callTopicPrefix)
	return id, ok && id != ""
}

// ParseInboxTopic returns the owner of an inbox topic.
func ParseInboxTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, inboxTopicPrefix)
	return id, ok && id != ""
}
