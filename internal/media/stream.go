package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// VideoSettings are the parameters a video track was opened with.
type VideoSettings struct {
	Width      int
	Height     int
	FrameRate  float64
	FacingMode FacingMode
}

// Track is one local capture track.
type Track struct {
	kind     Kind
	local    *webrtc.TrackLocalStaticSample
	settings VideoSettings

	enabled atomic.Bool
	stopped atomic.Bool
}

func newTrack(kind Kind, streamID string, settings VideoSettings) (*Track, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == KindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	local, err := webrtc.NewTrackLocalStaticSample(capability, string(kind), streamID)
	if err != nil {
		return nil, err
	}
	t := &Track{kind: kind, local: local, settings: settings}
	t.enabled.Store(true)
	return t, nil
}

func (t *Track) Kind() Kind { return t.kind }
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// Settings is zero for audio tracks.
func (t *Track) Settings() VideoSettings { return t.settings }

func (t *Track) Enabled() bool { return t.enabled.Load() }
func (t *Track) SetEnabled(v bool) { t.enabled.Store(v) }
func (t *Track) Stopped() bool { return t.stopped.Load() }

// Stop ends capture. Stopping twice is a no-op.
func (t *Track) Stop() { t.stopped.Store(true) }

// WriteSample forwards a captured sample. Disabled tracks (mute, video off) drop it.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.local.WriteSample(s)
}

// Stream groups the tracks returned by one Acquire.
type Stream struct {
	ID string

	mu     sync.Mutex
	tracks []*Track
}

func (s *Stream) add(t *Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// TrackLocals returns the tracks in the form the peer connection attaches.
func (s *Stream) TrackLocals() []webrtc.TrackLocal {
	tracks := s.Tracks()
	out := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Local())
	}
	return out
}

// SetEnabled flips every track of kind.
func (s *Stream) SetEnabled(kind Kind, v bool) {
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			t.SetEnabled(v)
		}
	}
}

func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Live counts tracks that have not been stopped.
func (s *Stream) Live() int {
	n := 0
	for _, t := range s.Tracks() {
		if !t.Stopped() {
			n++
		}
	}
	return n
}
