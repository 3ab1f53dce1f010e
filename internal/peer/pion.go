package peer

import (
	"errors"
	"log/slog"
	"time"

	"matchcall/internal/metrics"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Config holds the ICE settings for every connection built by a PionFactory.
type Config struct {
	STUNURLs []string

	// Zero values use 30s / 120s / 2s.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

// PionFactory builds pion peer connections sharing one API instance.
type PionFactory struct {
	api *webrtc.API
	cfg webrtc.Configuration
	log *slog.Logger
}

func NewPionFactory(cfg Config, log *slog.Logger) (*PionFactory, error) {
	if len(cfg.STUNURLs) == 0 {
		return nil, errors.New("peer: at least one stun url required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.DisconnectedTimeout <= 0 {
		cfg.DisconnectedTimeout = 30 * time.Second
	}
	if cfg.FailedTimeout <= 0 {
		cfg.FailedTimeout = 120 * time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 2 * time.Second
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)
	return &PionFactory{
		api: api,
		cfg: webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: cfg.STUNURLs}}},
		log: log,
	}, nil
}

func (f *PionFactory) New(h Handlers) (Conn, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || h.OnLocalCandidate == nil {
			return
		}
		h.OnLocalCandidate(c.ToJSON())
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f.log.Debug("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if h.OnRemoteTrack != nil {
			h.OnRemoteTrack(track)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		st := stateOf(s)
		metrics.PeerStateChangesTotal.WithLabelValues(string(st)).Inc()
		f.log.Debug("peer connection state", "state", s.String())
		if h.OnStateChange != nil {
			h.OnStateChange(st)
		}
	})
	return newConn(pc, f.log), nil
}
