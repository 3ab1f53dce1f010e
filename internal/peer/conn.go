package peer

import (
	"fmt"
	"log/slog"
	"sync"

	"matchcall/internal/metrics"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// negotiator is the subset of *webrtc.PeerConnection that conn drives.
type negotiator interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

type conn struct {
	pc  negotiator
	log *slog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
	closeErr  error
}

func newConn(pc negotiator, log *slog.Logger) *conn {
	if log == nil {
		log = slog.Default()
	}
	return &conn{pc: pc, log: log}
}

func (c *conn) AddTracks(tracks []webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for _, t := range tracks {
		sender, err := c.pc.AddTrack(t)
		if err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
		if sender != nil {
			go drainRTCP(sender)
		}
	}
	return nil
}

// drainRTCP keeps the interceptors (NACK, reports) fed until the sender stops
// and counts the feedback the remote side asks for.
func drainRTCP(sender *webrtc.RTPSender) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range pkts {
			if kind := feedbackKind(p); kind != "" {
				metrics.RTCPFeedbackTotal.WithLabelValues(kind).Inc()
			}
		}
	}
}

func feedbackKind(p rtcp.Packet) string {
	switch p.(type) {
	case *rtcp.PictureLossIndication:
		return "pli"
	case *rtcp.FullIntraRequest:
		return "fir"
	case *rtcp.TransportLayerNack:
		return "nack"
	case *rtcp.ReceiverEstimatedMaximumBitrate:
		return "remb"
	}
	return ""
}

func (c *conn) CreateOffer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *conn) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	if err := c.setRemoteLocked(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *conn) AcceptAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.setRemoteLocked(answer)
}

func (c *conn) AddRemoteCandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.remoteSet {
		c.pending = append(c.pending, cand)
		return nil
	}
	return c.pc.AddICECandidate(cand)
}

// setRemoteLocked applies desc and flushes buffered candidates in arrival order.
// A candidate that fails to apply is skipped; ICE can still complete on the others.
func (c *conn) setRemoteLocked(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	for _, cand := range pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropCandidateRejected).Inc()
			c.log.Debug("skipping buffered candidate", "err", err)
		}
	}
	return nil
}

func (c *conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.closeErr
	}
	c.closed = true
	c.pending = nil
	c.closeErr = c.pc.Close()
	return c.closeErr
}
