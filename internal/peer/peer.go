// Package peer wraps the WebRTC negotiation object used for one call.
package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

var ErrClosed = errors.New("peer: connection closed")

// State is the connection state as seen by the call state machine.
type State string

const (
	StateNew        State = "new"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	// StateLost covers both disconnected and failed; the call ends with connection_lost.
	StateLost   State = "lost"
	StateClosed State = "closed"
)

func stateOf(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		return StateLost
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

// Handlers are invoked from the negotiation object's own goroutines.
type Handlers struct {
	OnLocalCandidate func(webrtc.ICECandidateInit)
	OnRemoteTrack    func(*webrtc.TrackRemote)
	OnStateChange    func(State)
}

// Factory builds one Conn per call.
type Factory interface {
	New(h Handlers) (Conn, error)
}

// Conn is the negotiation surface the call state machine drives.
type Conn interface {
	AddTracks(tracks []webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	// AcceptOffer applies a remote offer and returns the local answer.
	AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AcceptAnswer(answer webrtc.SessionDescription) error
	// AddRemoteCandidate buffers candidates that arrive before the remote description.
	AddRemoteCandidate(c webrtc.ICECandidateInit) error
	Close() error
}
