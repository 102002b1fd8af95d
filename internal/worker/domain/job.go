package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job is a unit of work as handed out by the job source poll endpoint
type Job struct {
	JobID    string          `json:"job_id"`
	Mode     Mode            `json:"job_type"`
	Prompt   string          `json:"prompt"`
	Image    string          `json:"image,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	Request  json.RawMessage `json:"request,omitempty"`
}

// CurrentJob is the single in-flight job held in the persisted state
type CurrentJob struct {
	JobID          string          `json:"jobId"`
	Mode           Mode            `json:"mode"`
	Prompt         string          `json:"prompt"`
	Image          string          `json:"image,omitempty"`
	ClientID       string          `json:"clientId"`
	Request        json.RawMessage `json:"request,omitempty"`
	Status         string          `json:"status"`
	StartedAt      time.Time       `json:"startedAt"`
	TimeoutSeconds int             `json:"timeoutSeconds"`
	ProgressStatus string          `json:"progressStatus,omitempty"`
}

// NewCurrentJob starts tracking job at now
func NewCurrentJob(job *Job, clientID string, now time.Time, timeoutSeconds int) *CurrentJob {
	mode := job.Mode
	if mode == "" {
		mode = ModeVideo
	}
	return &CurrentJob{
		JobID:          job.JobID,
		Mode:           mode,
		Prompt:         job.Prompt,
		Image:          job.Image,
		ClientID:       clientID,
		Request:        job.Request,
		Status:         JobStatusProcessing,
		StartedAt:      now,
		TimeoutSeconds: timeoutSeconds,
	}
}

// Deadline is the instant after which the job counts as stuck
func (j *CurrentJob) Deadline(grace time.Duration) time.Time {
	return j.StartedAt.Add(time.Duration(j.TimeoutSeconds)*time.Second + grace)
}

// Stuck reports whether elapsed processing time exceeds timeout plus grace
func (j *CurrentJob) Stuck(now time.Time, grace time.Duration) bool {
	return j.Status == JobStatusProcessing && now.After(j.Deadline(grace))
}

// Processing reports whether the job is still in flight
func (j *CurrentJob) Processing() bool {
	return j != nil && j.Status == JobStatusProcessing
}

// NewClientID returns a fresh 5-character upper-case worker identifier
func NewClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:ClientIDLength])
}
