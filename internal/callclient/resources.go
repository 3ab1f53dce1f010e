package callclient

import (
	"sync"

	"matchcall/internal/media"
	"matchcall/internal/peer"
	"matchcall/internal/signaling"

	"github.com/benbjohnson/clock"
)

// resources owns everything one call attempt acquires. release runs once, in a
// fixed order; anything attached afterwards is released on the spot, which covers
// setup steps that finish after the call already ended.
type resources struct {
	tones Tones

	mu       sync.Mutex
	released bool
	toneOn   bool
	ring     *clock.Timer
	ticker   *clock.Ticker
	tickStop chan struct{}
	stream   *media.Stream
	conn     peer.Conn
	channel  *signaling.Channel
}

func newResources(tones Tones) *resources { return &resources{tones: tones} }

func (r *resources) playTone(t Tone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.toneOn = true
	r.tones.Play(t)
}

func (r *resources) stopTone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.toneOn {
		r.toneOn = false
		r.tones.Stop()
	}
}

func (r *resources) setRingTimer(t *clock.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		t.Stop()
		return
	}
	r.ring = t
}

func (r *resources) stopRingTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ring != nil {
		r.ring.Stop()
		r.ring = nil
	}
}

func (r *resources) setTicker(t *clock.Ticker, stop chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		t.Stop()
		close(stop)
		return
	}
	r.ticker, r.tickStop = t, stop
}

func (r *resources) attachStream(s *media.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		s.Stop()
		return
	}
	r.stream = s
}

func (r *resources) attachConn(c peer.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		_ = c.Close()
		return
	}
	r.conn = c
}

func (r *resources) attachChannel(ch *signaling.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		_ = ch.Close()
		return
	}
	r.channel = ch
}

// release stops the tone, cancels the timers, stops local tracks, closes the
// peer connection and finally unsubscribes the call channel.
func (r *resources) release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	toneOn := r.toneOn
	ring, ticker, tickStop := r.ring, r.ticker, r.tickStop
	stream, conn, channel := r.stream, r.conn, r.channel
	r.toneOn, r.ring, r.ticker, r.tickStop = false, nil, nil, nil
	r.stream, r.conn, r.channel = nil, nil, nil
	r.mu.Unlock()

	if toneOn {
		r.tones.Stop()
	}
	if ring != nil {
		ring.Stop()
	}
	if ticker != nil {
		ticker.Stop()
		close(tickStop)
	}
	if stream != nil {
		stream.Stop()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if channel != nil {
		_ = channel.Close()
	}
}

func (r *resources) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
