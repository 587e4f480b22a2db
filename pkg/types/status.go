package types

import "math"

// StatusCode is the lifecycle stage reported for one file.
type StatusCode string

const (
	StatusStart    StatusCode = "start"
	StatusComplete StatusCode = "complete"
	StatusFailure  StatusCode = "failure"
)

// CompletionStatus is the terminal outcome of one file.
type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "success"
	CompletionFailure CompletionStatus = "failure"
)

// StatusEvent is one lifecycle notification sent to the coordinating service.
type StatusEvent struct {
	FileID string
	Code   StatusCode
	Info   string
}

// CompletionRecord is the terminal summary sent once per file.
type CompletionRecord struct {
	FilePath    string           `json:"file-path"`
	FileID      string           `json:"file-id"`
	Status      CompletionStatus `json:"status"`
	NumMessages int64            `json:"num-messages"`
	TotalTime   float64          `json:"total-time"` // seconds
	TotalEvents int64            `json:"total-events"`
	TotalBytes  int64            `json:"total-bytes"`
	AvgRate     float64          `json:"avg-rate"`
}

// RoundSeconds rounds a duration in seconds to two decimal places.
func RoundSeconds(s float64) float64 {
	return math.Round(s*100) / 100
}

// Outcome is the bookkeeping view of a finished file.
type Outcome struct {
	Status     CompletionStatus
	OutputName string
	Error      string
	TotalTime  float64 // seconds
	Rows       int64
}
