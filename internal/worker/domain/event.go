package domain

import "time"

// EventType names a state change pushed to notifiers
type EventType string

const (
	EventPollingChanged EventType = "polling_changed"
	EventJobStarted     EventType = "job_started"
	EventJobProgress    EventType = "job_progress"
	EventJobFinalized   EventType = "job_finalized"
	EventStateChanged   EventType = "state_changed"
)

// Event describes one state change
type Event struct {
	Type      EventType     `json:"type"`
	JobID     string        `json:"jobId,omitempty"`
	Mode      Mode          `json:"mode,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Polling   *PollingState `json:"polling,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
