// Package metrics holds the process-wide Prometheus collectors for call signaling.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "sessions_created_total",
		Help:      "Call sessions created, by call type.",
	}, []string{"call_type"})

	SessionsTerminatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "sessions_terminated_total",
		Help:      "Call sessions that reached a terminal status, by status.",
	}, []string{"status"})

	// Terminal writes that hit an already terminal row.
	DuplicateTerminationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "duplicate_terminations_total",
		Help:      "Terminal writes ignored because the session was already terminal.",
	})

	CallDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "matchcall",
		Name:      "call_duration_seconds",
		Help:      "Duration of calls that reached active.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	})

	SignalsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "signals_published_total",
		Help:      "Signaling messages published, by message type.",
	}, []string{"type"})

	SignalsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "signals_dropped_total",
		Help:      "Inbound signaling messages discarded, by reason.",
	}, []string{"reason"})

	SubscribeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "subscribe_failures_total",
		Help:      "Signaling subscribe handshakes that failed, by reason.",
	}, []string{"reason"})

	PeerStateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "peer_state_changes_total",
		Help:      "Peer connection state transitions.",
	}, []string{"state"})

	RTCPFeedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchcall",
		Name:      "rtcp_feedback_total",
		Help:      "RTCP feedback received on local senders, by kind.",
	}, []string{"kind"})

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "matchcall",
		Name:      "realtime_connections",
		Help:      "Open realtime websocket connections.",
	})
)

// Dropped-signal reasons.
const (
	DropMisaddressed = "misaddressed"
	DropSelfEcho     = "self_echo"
	DropMalformed    = "malformed"
	DropStale        = "stale"
	DropBackpressure = "backpressure"
	DropRateLimited  = "rate_limited"

	DropCandidateRejected = "candidate_rejected"
)
