package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call history for one user.
type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type CallsSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalCalls    int `json:"total_calls"`
	OutgoingCalls int `json:"outgoing_calls"`
	IncomingCalls int `json:"incoming_calls"`
	VideoCalls    int `json:"video_calls"`

	EndedCalls    int `json:"ended_calls"`
	DeclinedCalls int `json:"declined_calls"`
	BusyCalls     int `json:"busy_calls"`
	MissedCalls   int `json:"missed_calls"`
	NoAnswerCalls int `json:"no_answer_calls"`
	OpenCalls     int `json:"open_calls"`

	// ConnectedCalls reached active at some point.
	ConnectedCalls int     `json:"connected_calls"`
	ConnectionRate float64 `json:"connection_rate"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}
