package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Job types
const (
	JobTypeVideo = "video"
	JobTypeChat  = "chat"
)

// Job statuses
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ReasonTimedOut is recorded on processing jobs failed by the stale sweep
const ReasonTimedOut = "Job timed out"

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrVideoNotFound   = errors.New("video not found")
	ErrInvalidJobType  = errors.New("invalid job type")
	ErrInvalidStatus   = errors.New("invalid job status")
	ErrJobNotClaimable = errors.New("job is no longer pending")
)

// ParseJobType validates a job type, defaulting to video
func ParseJobType(s string) (string, error) {
	switch s {
	case "", JobTypeVideo:
		return JobTypeVideo, nil
	case JobTypeChat:
		return JobTypeChat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidJobType, s)
	}
}

// ValidStatus reports whether s is a known job status
func ValidStatus(s string) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// NewJobID returns an id of the form job_<12 hex>
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
