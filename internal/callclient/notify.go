package callclient

import "log/slog"

// NoticeKind classifies the one user-facing message emitted per terminal outcome.
type NoticeKind string

const (
	NoticeEnded            NoticeKind = "ended"
	NoticeDeclined         NoticeKind = "declined"
	NoticeBusy             NoticeKind = "busy"
	NoticeNoAnswer         NoticeKind = "no_answer"
	NoticeMissed           NoticeKind = "missed"
	NoticeCancelled        NoticeKind = "cancelled"
	NoticeConnectionLost   NoticeKind = "connection_lost"
	NoticePermissionDenied NoticeKind = "permission_denied"
	NoticeDeviceNotFound   NoticeKind = "device_not_found"
	NoticeFailed           NoticeKind = "failed"
)

type Notice struct {
	Kind    NoticeKind
	CallID  string
	Message string
}

// Notifier is fire-and-forget.
type Notifier interface {
	Notify(n Notice)
}

type Tone string

const (
	ToneRingback Tone = "ringback"
	ToneRingtone Tone = "ringtone"
	ToneConnect  Tone = "connect"
)

// Tones plays call-progress audio. Play replaces the current tone.
type Tones interface {
	Play(t Tone)
	Stop()
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(x Notice) {
	l := n.Log
	if l == nil {
		l = slog.Default()
	}
	l.Info("call notice", "kind", x.Kind, "call_id", x.CallID, "message", x.Message)
}

// SilentTones is used by headless clients.
type SilentTones struct{}

func (SilentTones) Play(Tone) {}
func (SilentTones) Stop() {}
