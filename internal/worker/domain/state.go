package domain

import "time"

// PollingState holds the per-mode enable flags
type PollingState struct {
	ChatPollingEnabled  bool `json:"chatPollingEnabled"`
	VideoPollingEnabled bool `json:"videoPollingEnabled"`
}

// Enabled reports whether mode is switched on
func (p PollingState) Enabled(mode Mode) bool {
	switch mode {
	case ModeChat:
		return p.ChatPollingEnabled
	case ModeVideo:
		return p.VideoPollingEnabled
	}
	return false
}

// Set switches a single mode flag
func (p *PollingState) Set(mode Mode, enabled bool) {
	switch mode {
	case ModeChat:
		p.ChatPollingEnabled = enabled
	case ModeVideo:
		p.VideoPollingEnabled = enabled
	}
}

// Any reports whether at least one mode is enabled
func (p PollingState) Any() bool {
	return p.ChatPollingEnabled || p.VideoPollingEnabled
}

// EnabledModes lists enabled modes in poll priority order
func (p PollingState) EnabledModes() []Mode {
	modes := make([]Mode, 0, len(PollPriority))
	for _, m := range PollPriority {
		if p.Enabled(m) {
			modes = append(modes, m)
		}
	}
	return modes
}

// Stats counts terminal outcomes
type Stats struct {
	TotalCompleted int `json:"totalCompleted"`
	TotalFailed    int `json:"totalFailed"`
}

// HistoryEntry summarises one finished job
type HistoryEntry struct {
	JobID        string    `json:"jobId"`
	ClientID     string    `json:"clientId"`
	Mode         Mode      `json:"mode"`
	Prompt       string    `json:"prompt"`
	Status       string    `json:"status"`
	VideoURL     string    `json:"videoUrl,omitempty"`
	TextResponse string    `json:"textResponse,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// State is the whole persisted worker document. It is read and written as
// one unit by the state store.
type State struct {
	Polling    PollingState   `json:"polling"`
	ClientID   string         `json:"clientId"`
	CurrentJob *CurrentJob    `json:"currentJob,omitempty"`
	Stats      Stats          `json:"stats"`
	History    []HistoryEntry `json:"history"`
}

// PushHistory prepends e and drops entries beyond HistoryCapacity
func (s *State) PushHistory(e HistoryEntry) {
	history := make([]HistoryEntry, 0, HistoryCapacity)
	history = append(history, e)
	for _, old := range s.History {
		if len(history) == HistoryCapacity {
			break
		}
		history = append(history, old)
	}
	s.History = history
}

// Clone returns a deep copy safe to hand outside the store
func (s State) Clone() State {
	out := s
	if s.CurrentJob != nil {
		job := *s.CurrentJob
		if s.CurrentJob.Request != nil {
			job.Request = append([]byte(nil), s.CurrentJob.Request...)
		}
		out.CurrentJob = &job
	}
	if s.History != nil {
		out.History = append([]HistoryEntry(nil), s.History...)
	}
	return out
}
