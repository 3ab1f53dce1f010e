package callclient

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("callclient: invalid transition")

// Status is the local lifecycle state. Idle is both initial and resting.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusCalling Status = "calling"
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
)

type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

type event string

const (
	eventDial     event = "dial"
	eventIncoming event = "incoming"

	eventRemoteAccept  event = "remote_accept"
	eventRemoteDecline event = "remote_decline"
	eventRemoteBusy    event = "remote_busy"
	eventRemoteEnd     event = "remote_end"
	eventTimeout       event = "timeout"

	eventAccept  event = "accept"
	eventDecline event = "decline"
	eventHangup  event = "hangup"

	eventOffer     event = "offer"
	eventAnswer    event = "answer"
	eventCandidate event = "candidate"

	eventConnectionLost event = "connection_lost"
	eventFail           event = "fail"
)

var transitions = map[Role]map[Status]map[event]Status{
	RoleCaller: {
		StatusIdle: {
			eventDial: StatusCalling,
		},
		StatusCalling: {
			eventRemoteAccept:  StatusActive,
			eventRemoteDecline: StatusIdle,
			eventRemoteBusy:    StatusIdle,
			eventRemoteEnd:     StatusIdle,
			eventTimeout:       StatusIdle,
			eventHangup:        StatusIdle,
			eventFail:          StatusIdle,
		},
		StatusActive: {
			eventAnswer:         StatusActive,
			eventCandidate:      StatusActive,
			eventHangup:         StatusIdle,
			eventRemoteEnd:      StatusIdle,
			eventConnectionLost: StatusIdle,
			eventFail:           StatusIdle,
		},
	},
	RoleCallee: {
		StatusIdle: {
			eventIncoming: StatusRinging,
		},
		StatusRinging: {
			eventAccept:    StatusActive,
			eventDecline:   StatusIdle,
			eventRemoteEnd: StatusIdle,
			eventFail:      StatusIdle,
		},
		StatusActive: {
			eventOffer:          StatusActive,
			eventCandidate:      StatusActive,
			eventHangup:         StatusIdle,
			eventRemoteEnd:      StatusIdle,
			eventConnectionLost: StatusIdle,
			eventFail:           StatusIdle,
		},
	},
}

// next is the single transition function. Pairs missing from the table are rejected.
func next(role Role, from Status, ev event) (Status, error) {
	if to, ok := transitions[role][from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s %s on %s", ErrInvalidTransition, role, from, ev)
}
