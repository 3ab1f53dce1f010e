package callclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"matchcall/internal/calls"
	"matchcall/internal/directory"
	"matchcall/internal/media"
	"matchcall/internal/metrics"
	"matchcall/internal/peer"
	"matchcall/internal/signaling"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
)

var (
	ErrBusy      = errors.New("callclient: already in a call")
	ErrCancelled = errors.New("callclient: call ended during setup")
	ErrClosed    = errors.New("callclient: machine closed")
)

const (
	DefaultRingTimeout = 30 * time.Second
	DefaultIOTimeout   = 5 * time.Second
)

// Deps are the collaborators a Machine cannot run without.
type Deps struct {
	Store   calls.Store
	Dialer  signaling.Dialer
	Devices media.Devices
	Peers   peer.Factory
}

type Options struct {
	Clock       clock.Clock
	Logger      *slog.Logger
	RingTimeout time.Duration
	// IOTimeout bounds each store write and publish made while tearing down.
	IOTimeout time.Duration

	Notifier  Notifier
	Tones     Tones
	Directory directory.Directory

	// OnChange is called on the machine goroutine after every state change.
	// It must not call back into the Machine.
	OnChange func(Snapshot)
}

// Snapshot is the read-only view UIs render.
type Snapshot struct {
	Status       Status
	Role         Role
	CallID       string
	CallType     calls.CallType
	PeerID       string
	Peer         directory.Profile
	Muted        bool
	VideoOff     bool
	StartedAt    time.Time
	Elapsed      time.Duration
	RemoteTracks int
}

// call is one attempt. Everything except res is owned by the machine goroutine.
type call struct {
	id        uint64
	role      Role
	peerID    string
	callType  calls.CallType
	sessionID string
	profile   directory.Profile
	res       *resources

	stream  *media.Stream
	conn    peer.Conn
	channel *signaling.Channel

	invited      bool
	accepting    bool
	startedAt    time.Time
	elapsed      time.Duration
	muted        bool
	videoOff     bool
	remoteTracks int
}

// Machine is the per-user call state machine. All state lives on a single
// goroutine fed through mailbox; public methods and transport callbacks post
// closures to it. Slow setup steps (media, subscribe, session create) run on
// the calling goroutine and re-enter with an identity check, so a hangup that
// lands mid-setup always wins.
type Machine struct {
	self  string
	deps  Deps
	opts  Options
	clock clock.Clock
	log   *slog.Logger

	mailbox   chan func()
	done      chan struct{}
	closeOnce sync.Once
	snap      atomic.Pointer[Snapshot]
	inboxOn   atomic.Bool

	status   Status
	call     *call
	attempts uint64
}

func New(self string, deps Deps, opts Options) (*Machine, error) {
	if self == "" {
		return nil, errors.New("callclient: user id is required")
	}
	if deps.Store == nil || deps.Devices == nil || deps.Peers == nil || deps.Dialer.Transport == nil {
		return nil, errors.New("callclient: store, devices, peers and transport are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = DefaultRingTimeout
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = DefaultIOTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Log: opts.Logger}
	}
	if opts.Tones == nil {
		opts.Tones = SilentTones{}
	}

	m := &Machine{
		self:    self,
		deps:    deps,
		opts:    opts,
		clock:   opts.Clock,
		log:     opts.Logger.With("component", "callclient", "user_id", self),
		mailbox: make(chan func(), 64),
		done:    make(chan struct{}),
		status:  StatusIdle,
	}
	m.snap.Store(&Snapshot{Status: StatusIdle})
	go m.run()
	return m, nil
}

func (m *Machine) Self() string { return m.self }

// Snapshot never blocks.
func (m *Machine) Snapshot() Snapshot { return *m.snap.Load() }

// Close hangs up whatever is in progress and stops the machine.
func (m *Machine) Close() error {
	m.closeOnce.Do(func() {
		_ = m.do(m.hangup)
		close(m.done)
	})
	return nil
}

func (m *Machine) run() {
	for {
		select {
		case fn := <-m.mailbox:
			fn()
		case <-m.done:
			return
		}
	}
}

func (m *Machine) post(fn func()) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.mailbox <- fn:
		return true
	case <-m.done:
		return false
	}
}

// do runs fn on the machine goroutine and waits for its result.
func (m *Machine) do(fn func() error) error {
	errc := make(chan error, 1)
	if !m.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-m.done:
		return ErrClosed
	}
}

func (m *Machine) ioContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.opts.IOTimeout)
}

func (m *Machine) newCall(role Role, peerID string, t calls.CallType) *call {
	m.attempts++
	return &call{id: m.attempts, role: role, peerID: peerID, callType: t, res: newResources(m.opts.Tones)}
}

func (m *Machine) publish() {
	s := Snapshot{Status: m.status}
	if c := m.call; c != nil {
		s.Role = c.role
		s.CallID = c.sessionID
		s.CallType = c.callType
		s.PeerID = c.peerID
		s.Peer = c.profile
		s.Muted = c.muted
		s.VideoOff = c.videoOff
		s.StartedAt = c.startedAt
		s.Elapsed = c.elapsed
		s.RemoteTracks = c.remoteTracks
	}
	m.snap.Store(&s)
	if m.opts.OnChange != nil {
		m.opts.OnChange(s)
	}
}

func (m *Machine) notify(n Notice) {
	if n.Kind == "" {
		return
	}
	m.opts.Notifier.Notify(n)
}

func (m *Machine) invalid(ev event) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, ev, m.status)
}

// Dial starts an outgoing call and returns once the invite is out and the
// ring timer is running. Media is acquired before the session exists, so a
// refused permission prompt leaves no trace in the store.
func (m *Machine) Dial(ctx context.Context, peerID string, callType calls.CallType) error {
	if peerID == "" || peerID == m.self || !callType.Valid() {
		return fmt.Errorf("%w: bad dial target", calls.ErrInvalidArgument)
	}

	var c *call
	err := m.do(func() error {
		if m.status != StatusIdle {
			return ErrBusy
		}
		to, err := next(RoleCaller, m.status, eventDial)
		if err != nil {
			return err
		}
		c = m.newCall(RoleCaller, peerID, callType)
		m.status, m.call = to, c
		m.publish()
		return nil
	})
	if err != nil {
		return err
	}
	m.lookupPeer(c)

	stream, err := m.deps.Devices.Acquire(ctx, media.ConstraintsFor(callType))
	if err != nil {
		return m.abort(c, err)
	}
	c.res.attachStream(stream)

	sess, err := m.deps.Store.CreateSession(ctx, m.self, peerID, callType)
	if err != nil {
		return m.abort(c, err)
	}
	err = m.do(func() error {
		if m.call != c {
			return ErrCancelled
		}
		c.sessionID = sess.ID
		m.publish()
		return nil
	})
	if err != nil {
		// Hung up before the session existed locally; close it out here.
		ioCtx, cancel := m.ioContext()
		defer cancel()
		if _, werr := m.deps.Store.MarkTerminal(ioCtx, sess.ID, calls.StatusMissed, calls.ReasonCallerCancelled, 0); werr != nil {
			m.log.Warn("close abandoned session failed", "call_id", sess.ID, "err", werr)
		}
		return err
	}

	ch, err := m.deps.Dialer.Open(ctx, signaling.CallTopic(sess.ID), m.self)
	if err != nil {
		return m.abort(c, err)
	}
	c.res.attachChannel(ch)
	conn, err := m.deps.Peers.New(m.handlersFor(c))
	if err != nil {
		return m.abort(c, err)
	}
	c.res.attachConn(conn)
	if err := conn.AddTracks(stream.TrackLocals()); err != nil {
		return m.abort(c, err)
	}

	return m.do(func() error {
		if m.call != c {
			return ErrCancelled
		}
		c.stream, c.channel, c.conn = stream, ch, conn
		m.applyTrackFlags(c)
		m.startPump(c)

		ioCtx, cancel := m.ioContext()
		defer cancel()
		invite := signaling.Message{
			Type:     signaling.KindIncomingCall,
			CallID:   sess.ID,
			From:     m.self,
			To:       peerID,
			CallType: callType,
		}
		if err := m.deps.Dialer.SendOnce(ioCtx, signaling.InboxTopic(peerID), m.self, invite); err != nil {
			_ = m.finish(m.failure(c, err))
			return err
		}
		c.invited = true
		c.res.playTone(ToneRingback)
		c.res.setRingTimer(m.clock.AfterFunc(m.opts.RingTimeout, func() {
			m.post(func() { m.onRingTimeout(c) })
		}))
		return nil
	})
}

// Accept answers the ringing call. Like Dial it acquires media first; a
// failure there declines the call on the caller's side.
func (m *Machine) Accept(ctx context.Context) error {
	var c *call
	err := m.do(func() error {
		if m.call == nil || m.status != StatusRinging || m.call.accepting {
			return m.invalid(eventAccept)
		}
		c = m.call
		c.accepting = true
		return nil
	})
	if err != nil {
		return err
	}

	stream, err := m.deps.Devices.Acquire(ctx, media.ConstraintsFor(c.callType))
	if err != nil {
		return m.abort(c, err)
	}
	c.res.attachStream(stream)
	ch, err := m.deps.Dialer.Open(ctx, signaling.CallTopic(c.sessionID), m.self)
	if err != nil {
		return m.abort(c, err)
	}
	c.res.attachChannel(ch)
	conn, err := m.deps.Peers.New(m.handlersFor(c))
	if err != nil {
		return m.abort(c, err)
	}
	c.res.attachConn(conn)
	if err := conn.AddTracks(stream.TrackLocals()); err != nil {
		return m.abort(c, err)
	}

	return m.do(func() error {
		if m.call != c {
			return ErrCancelled
		}
		c.stream, c.channel, c.conn = stream, ch, conn
		m.applyTrackFlags(c)
		m.startPump(c)

		ioCtx, cancel := m.ioContext()
		defer cancel()
		sess, err := m.deps.Store.MarkActive(ioCtx, c.sessionID)
		if err != nil {
			_ = m.finish(m.failure(c, err))
			return err
		}
		if sess.Status.IsTerminal() {
			// The caller gave up while we were opening devices.
			_ = m.finish(outcome{event: eventRemoteEnd, notice: NoticeMissed, text: "Missed call"})
			return ErrCancelled
		}
		to, err := next(RoleCallee, m.status, eventAccept)
		if err != nil {
			return err
		}
		c.res.stopTone()
		m.status = to
		c.startedAt = m.clock.Now()
		m.startTicker(c)
		m.publish()

		accepted := signaling.Message{Type: signaling.KindAccepted, CallID: c.sessionID, To: c.peerID}
		if err := ch.Send(ioCtx, accepted); err != nil {
			_ = m.finish(m.failure(c, err))
			return err
		}
		return nil
	})
}

func (m *Machine) Decline() error {
	return m.do(func() error {
		if m.call == nil || m.status != StatusRinging {
			return m.invalid(eventDecline)
		}
		return m.finish(declineOutcome())
	})
}

// Hangup ends whatever is in progress. In idle it does nothing; while ringing
// it declines.
func (m *Machine) Hangup() error { return m.do(m.hangup) }

func (m *Machine) hangup() error {
	c := m.call
	switch {
	case c == nil:
		return nil
	case m.status == StatusRinging:
		return m.finish(declineOutcome())
	case m.status == StatusCalling:
		o := outcome{
			event:  eventHangup,
			status: calls.StatusMissed,
			reason: calls.ReasonCallerCancelled,
			notice: NoticeCancelled,
			text:   "Call cancelled",
		}
		if c.invited {
			o.tell, o.inbox = signaling.KindEnded, true
		}
		return m.finish(o)
	default:
		return m.finish(outcome{
			event:  eventHangup,
			status: calls.StatusEnded,
			reason: calls.ReasonUserHangup,
			tell:   signaling.KindEnded,
			notice: NoticeEnded,
			text:   "Call ended",
		})
	}
}

// ToggleMute flips the outgoing audio and reports the new muted flag.
func (m *Machine) ToggleMute() (bool, error) {
	var muted bool
	err := m.do(func() error {
		c := m.call
		if c == nil {
			return fmt.Errorf("%w: mute while idle", ErrInvalidTransition)
		}
		c.muted = !c.muted
		muted = c.muted
		m.applyTrackFlags(c)
		m.publish()
		return nil
	})
	return muted, err
}

// ToggleVideo flips the outgoing camera and reports the new video-off flag.
func (m *Machine) ToggleVideo() (bool, error) {
	var off bool
	err := m.do(func() error {
		c := m.call
		if c == nil {
			return fmt.Errorf("%w: video toggle while idle", ErrInvalidTransition)
		}
		c.videoOff = !c.videoOff
		off = c.videoOff
		m.applyTrackFlags(c)
		m.publish()
		return nil
	})
	return off, err
}

func (m *Machine) applyTrackFlags(c *call) {
	if c.stream == nil {
		return
	}
	c.stream.SetEnabled(media.KindAudio, !c.muted)
	c.stream.SetEnabled(media.KindVideo, !c.videoOff)
}

// abort tears down a call whose setup failed outside the machine goroutine.
func (m *Machine) abort(c *call, cause error) error {
	_ = m.do(func() error {
		if m.call != c {
			return nil
		}
		return m.finish(m.failure(c, cause))
	})
	return cause
}

func (m *Machine) lookupPeer(c *call) {
	if m.opts.Directory == nil {
		return
	}
	peerID := c.peerID
	go func() {
		ctx, cancel := m.ioContext()
		defer cancel()
		p, err := m.opts.Directory.Profile(ctx, peerID)
		if err != nil {
			m.log.Debug("peer profile lookup failed", "peer_id", peerID, "err", err)
			return
		}
		m.post(func() {
			if m.call == c {
				c.profile = p
				m.publish()
			}
		})
	}()
}

func (m *Machine) handlersFor(c *call) peer.Handlers {
	return peer.Handlers{
		OnLocalCandidate: func(cand webrtc.ICECandidateInit) {
			m.post(func() { m.sendCandidate(c, cand) })
		},
		OnRemoteTrack: func(*webrtc.TrackRemote) {
			m.post(func() {
				if m.call == c {
					c.remoteTracks++
					m.publish()
				}
			})
		},
		OnStateChange: func(s peer.State) {
			if s != peer.StateLost {
				return
			}
			m.post(func() { m.onConnectionLost(c) })
		},
	}
}

func (m *Machine) startPump(c *call) {
	ch := c.channel
	go func() {
		for msg := range ch.Messages() {
			msg := msg
			if !m.post(func() { m.handleSignal(c, msg) }) {
				return
			}
		}
	}()
}

func (m *Machine) startTicker(c *call) {
	t := m.clock.Ticker(time.Second)
	stop := make(chan struct{})
	c.res.setTicker(t, stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				m.post(func() {
					if m.call == c && !c.startedAt.IsZero() {
						c.elapsed = m.clock.Since(c.startedAt)
						m.publish()
					}
				})
			}
		}
	}()
}

func (m *Machine) stale(reason string, msg signaling.Message) {
	metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropStale).Inc()
	m.log.Debug("ignoring signal", "reason", reason, "type", msg.Type, "call_id", msg.CallID)
}

// handleSignal processes one message from the current call's channel.
func (m *Machine) handleSignal(c *call, msg signaling.Message) {
	if m.call != c || msg.CallID != c.sessionID || msg.From != c.peerID {
		m.stale("not the current call", msg)
		return
	}
	var err error
	switch msg.Type {
	case signaling.KindAccepted:
		err = m.onAccepted(c)
	case signaling.KindDeclined:
		err = m.finish(outcome{event: eventRemoteDecline, notice: NoticeDeclined, text: "Call declined"})
	case signaling.KindBusy:
		err = m.finish(outcome{event: eventRemoteBusy, notice: NoticeBusy, text: "User is busy"})
	case signaling.KindEnded:
		err = m.onRemoteEnd()
	case signaling.KindOffer:
		err = m.onOffer(c, msg)
	case signaling.KindAnswer:
		err = m.onAnswer(c, msg)
	case signaling.KindICECandidate:
		err = m.onCandidate(c, msg)
	default:
		m.stale("unexpected on call channel", msg)
	}
	if err != nil {
		m.log.Debug("signal rejected", "type", msg.Type, "call_id", msg.CallID, "err", err)
	}
}

// handleInbox processes one message from the user's inbox.
func (m *Machine) handleInbox(msg signaling.Message) {
	switch msg.Type {
	case signaling.KindIncomingCall:
		m.onIncoming(msg)
	case signaling.KindEnded:
		c := m.call
		if c == nil || c.sessionID != msg.CallID || c.peerID != msg.From {
			m.stale("not the current call", msg)
			return
		}
		if err := m.onRemoteEnd(); err != nil {
			m.log.Debug("inbox end rejected", "call_id", msg.CallID, "err", err)
		}
	default:
		m.stale("unexpected in inbox", msg)
	}
}

func (m *Machine) onIncoming(msg signaling.Message) {
	if c := m.call; c != nil && c.sessionID == msg.CallID {
		return
	}
	if m.status != StatusIdle {
		go m.rejectBusy(msg)
		return
	}
	to, err := next(RoleCallee, m.status, eventIncoming)
	if err != nil {
		m.log.Debug("incoming call rejected", "err", err)
		return
	}
	c := m.newCall(RoleCallee, msg.From, msg.CallType)
	c.sessionID = msg.CallID
	m.status, m.call = to, c
	c.res.playTone(ToneRingtone)
	m.lookupPeer(c)
	m.publish()
}

// rejectBusy answers a second invite without touching the current call.
func (m *Machine) rejectBusy(msg signaling.Message) {
	ctx, cancel := m.ioContext()
	defer cancel()
	busy := signaling.Message{
		Type:   signaling.KindBusy,
		CallID: msg.CallID,
		From:   m.self,
		To:     msg.From,
		Reason: calls.ReasonBusy,
	}
	if err := m.deps.Dialer.SendOnce(ctx, signaling.CallTopic(msg.CallID), m.self, busy); err != nil {
		m.log.Warn("busy reply failed", "call_id", msg.CallID, "err", err)
	}
	if _, err := m.deps.Store.MarkTerminal(ctx, msg.CallID, calls.StatusBusy, calls.ReasonBusy, 0); err != nil {
		m.log.Warn("mark busy failed", "call_id", msg.CallID, "err", err)
	}
}

func (m *Machine) onRingTimeout(c *call) {
	if m.call != c || m.status != StatusCalling {
		return
	}
	err := m.finish(outcome{
		event:  eventTimeout,
		status: calls.StatusNoAnswer,
		reason: calls.ReasonNoAnswer,
		tell:   signaling.KindEnded,
		inbox:  true,
		notice: NoticeNoAnswer,
		text:   "No answer",
	})
	if err != nil {
		m.log.Debug("ring timeout rejected", "err", err)
	}
}

func (m *Machine) onAccepted(c *call) error {
	to, err := next(c.role, m.status, eventRemoteAccept)
	if err != nil {
		return err
	}
	c.res.stopRingTimer()
	c.res.stopTone()
	c.res.playTone(ToneConnect)
	m.status = to
	c.startedAt = m.clock.Now()
	m.startTicker(c)
	m.publish()

	offer, err := c.conn.CreateOffer()
	if err != nil {
		return m.finish(m.failure(c, err))
	}
	ctx, cancel := m.ioContext()
	defer cancel()
	msg := signaling.Message{Type: signaling.KindOffer, CallID: c.sessionID, To: c.peerID, SDP: &offer}
	if err := c.channel.Send(ctx, msg); err != nil {
		return m.finish(m.failure(c, err))
	}
	return nil
}

func (m *Machine) onRemoteEnd() error {
	o := outcome{event: eventRemoteEnd, notice: NoticeEnded, text: "Call ended"}
	if m.status == StatusRinging {
		o.notice, o.text = NoticeMissed, "Missed call"
	}
	return m.finish(o)
}

func (m *Machine) onOffer(c *call, msg signaling.Message) error {
	if _, err := next(c.role, m.status, eventOffer); err != nil {
		return err
	}
	answer, err := c.conn.AcceptOffer(*msg.SDP)
	if err != nil {
		return m.finish(m.failure(c, err))
	}
	ctx, cancel := m.ioContext()
	defer cancel()
	reply := signaling.Message{Type: signaling.KindAnswer, CallID: c.sessionID, To: c.peerID, SDP: &answer}
	if err := c.channel.Send(ctx, reply); err != nil {
		return m.finish(m.failure(c, err))
	}
	return nil
}

func (m *Machine) onAnswer(c *call, msg signaling.Message) error {
	if _, err := next(c.role, m.status, eventAnswer); err != nil {
		return err
	}
	if err := c.conn.AcceptAnswer(*msg.SDP); err != nil {
		return m.finish(m.failure(c, err))
	}
	return nil
}

func (m *Machine) onCandidate(c *call, msg signaling.Message) error {
	if _, err := next(c.role, m.status, eventCandidate); err != nil {
		return err
	}
	if err := c.conn.AddRemoteCandidate(*msg.Candidate); err != nil {
		metrics.SignalsDroppedTotal.WithLabelValues(metrics.DropCandidateRejected).Inc()
		m.log.Debug("remote candidate rejected", "call_id", c.sessionID, "err", err)
	}
	return nil
}

func (m *Machine) sendCandidate(c *call, cand webrtc.ICECandidateInit) {
	if m.call != c || c.channel == nil {
		return
	}
	ctx, cancel := m.ioContext()
	defer cancel()
	msg := signaling.Message{Type: signaling.KindICECandidate, CallID: c.sessionID, To: c.peerID, Candidate: &cand}
	if err := c.channel.Send(ctx, msg); err != nil {
		m.log.Debug("send candidate failed", "call_id", c.sessionID, "err", err)
	}
}

func (m *Machine) onConnectionLost(c *call) {
	if m.call != c || m.status != StatusActive {
		return
	}
	err := m.finish(outcome{
		event:  eventConnectionLost,
		status: calls.StatusEnded,
		reason: calls.ReasonConnectionLost,
		tell:   signaling.KindEnded,
		notice: NoticeConnectionLost,
		text:   "Connection lost",
	})
	if err != nil {
		m.log.Debug("connection loss rejected", "err", err)
	}
}

// outcome describes how a call attempt ends.
type outcome struct {
	event event
	// status is written to the store; empty when the peer owns the write.
	status calls.Status
	reason string
	// tell is sent to the peer; empty sends nothing.
	tell  signaling.Kind
	inbox bool

	notice NoticeKind
	text   string
}

func declineOutcome() outcome {
	return outcome{
		event:  eventDecline,
		status: calls.StatusDeclined,
		reason: calls.ReasonDeclined,
		tell:   signaling.KindDeclined,
		notice: NoticeDeclined,
		text:   "Call declined",
	}
}

func (m *Machine) failure(c *call, cause error) outcome {
	o := outcome{event: eventFail, notice: NoticeFailed, text: "Call failed"}
	mediaErr := false
	switch {
	case errors.Is(cause, media.ErrPermissionDenied):
		o.notice, o.text, mediaErr = NoticePermissionDenied, "Camera or microphone permission denied", true
	case errors.Is(cause, media.ErrDeviceNotFound):
		o.notice, o.text, mediaErr = NoticeDeviceNotFound, "No camera or microphone found", true
	}

	switch {
	case m.status == StatusActive:
		o.status, o.reason, o.tell = calls.StatusEnded, calls.ReasonNegotiationFailed, signaling.KindEnded
	case c.role == RoleCallee:
		o.status, o.reason, o.tell = calls.StatusDeclined, calls.ReasonSetupFailed, signaling.KindDeclined
		if mediaErr {
			o.reason = calls.ReasonMediaUnavailable
		}
	default:
		o.status, o.reason = calls.StatusMissed, calls.ReasonSetupFailed
		if c.invited {
			o.tell, o.inbox = signaling.KindEnded, true
		}
	}
	m.log.Warn("call failed", "call_id", c.sessionID, "role", c.role, "status", m.status, "err", cause)
	return o
}

// finish is the single exit path of a call attempt: tell the peer, release
// every resource, write the terminal status once, go idle and notify once.
func (m *Machine) finish(o outcome) error {
	c := m.call
	if c == nil {
		return m.invalid(o.event)
	}
	to, err := next(c.role, m.status, o.event)
	if err != nil {
		return err
	}
	c.res.stopRingTimer()

	ctx, cancel := m.ioContext()
	defer cancel()
	if o.tell != "" && c.sessionID != "" {
		m.tell(ctx, c, o)
	}

	duration := 0
	if !c.startedAt.IsZero() {
		duration = int(m.clock.Since(c.startedAt) / time.Second)
	}
	c.res.release()

	if o.status != "" && c.sessionID != "" {
		if _, err := m.deps.Store.MarkTerminal(ctx, c.sessionID, o.status, o.reason, duration); err != nil {
			m.log.Warn("terminal write failed", "call_id", c.sessionID, "status", o.status, "err", err)
		}
	}

	m.status, m.call = to, nil
	m.publish()
	m.notify(Notice{Kind: o.notice, CallID: c.sessionID, Message: o.text})
	m.log.Info("call finished", "call_id", c.sessionID, "role", c.role, "event", o.event, "status", o.status, "duration_seconds", duration)
	return nil
}

func (m *Machine) tell(ctx context.Context, c *call, o outcome) {
	msg := signaling.Message{Type: o.tell, CallID: c.sessionID, From: m.self, To: c.peerID, Reason: o.reason}
	if c.channel != nil {
		if err := c.channel.Send(ctx, msg); err != nil {
			m.log.Debug("peer notice on call channel failed", "call_id", c.sessionID, "err", err)
		}
	}
	if !o.inbox && c.channel != nil {
		return
	}
	topic := signaling.CallTopic(c.sessionID)
	if o.inbox {
		topic = signaling.InboxTopic(c.peerID)
	}
	if err := m.deps.Dialer.SendOnce(ctx, topic, m.self, msg); err != nil {
		m.log.Debug("peer notice failed", "call_id", c.sessionID, "topic", topic, "err", err)
	}
}
