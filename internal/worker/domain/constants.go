package domain

import (
	"fmt"
	"time"
)

// Mode is the job category a worker polls for
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeVideo Mode = "video"
)

// PollPriority is the order modes are polled in during one cycle
var PollPriority = []Mode{ModeVideo, ModeChat}

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeChat, ModeVideo:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Job status and outcome constants
const (
	JobStatusProcessing = "processing"

	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

const (
	// HistoryCapacity bounds the persisted history, most recent first
	HistoryCapacity = 10

	// DefaultStuckGrace is added to a job's timeout before it counts as stuck
	DefaultStuckGrace = 60 * time.Second

	ClientIDLength = 5
)

// Failure reasons reported to the job source
const (
	ReasonStuck          = "Job timed out - stuck in processing state"
	ReasonAdapterMissing = "Content script not loaded. Please refresh the Grok tab and try again."
	ReasonSendFailed     = "Failed to communicate with Grok tab. Please refresh the page."
	ReasonReset          = "Reset by user"
	ReasonEmptyPayload   = "Failed to upload video: Invalid video blob - size is 0"
)

// CancelReason is the failure recorded when a mode is switched off mid-job
func CancelReason(mode Mode) string {
	return fmt.Sprintf("Cancelled by user (%s worker stopped)", mode)
}

// UploadFailureReason is the failure recorded when a finished result cannot be delivered
func UploadFailureReason(mode Mode, err error) string {
	if mode == ModeChat {
		return "Failed to complete chat job: " + err.Error()
	}
	return "Failed to upload video: " + err.Error()
}
