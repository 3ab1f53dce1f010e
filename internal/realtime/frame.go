// Package realtime exposes the signaling bus to websocket clients. The
// gateway runs inside the API process; Transport is the client half and
// satisfies signaling.Transport, so a remote call agent opens channels
// exactly as an in-process one would.
package realtime

import (
	"time"

	"matchcall/internal/signaling"
)

type Op string

const (
	// client -> server
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpPublish     Op = "publish"

	// server -> client
	OpSubscribed Op = "subscribed"
	OpMessage    Op = "message"
	OpError      Op = "error"
)

// Frame is the websocket envelope. Sub is a client-chosen subscription id,
// so one connection can hold several subscriptions on the same topic.
type Frame struct {
	Op      Op                 `json:"op"`
	Sub     string             `json:"sub,omitempty"`
	Topic   string             `json:"topic,omitempty"`
	Message *signaling.Message `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	maxFrameSize     = 64 << 10
	sendBufferSize   = 64
	subscribeTimeout = 5 * time.Second
	ackWait          = 2 * time.Second

	// Trickle ICE sends a burst of candidates right after each description.
	publishRate  = 20
	publishBurst = 60
)
