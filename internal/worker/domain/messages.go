package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Adapter message type tags
const (
	MsgJobCompleted     = "JOB_COMPLETED"
	MsgJobChatCompleted = "JOB_CHAT_COMPLETED"
	MsgJobFailed        = "JOB_FAILED"
	MsgUpdateStatus     = "UPDATE_STATUS"

	MsgPing         = "PING"
	MsgStartJob     = "START_JOB"
	MsgStartChatJob = "START_CHAT_JOB"
)

// AdapterMessage is a message sent by the page adapter. The set of
// implementations is closed: JobCompleted, JobChatCompleted, JobFailed and
// StatusUpdate.
type AdapterMessage interface {
	adapterMessage()
}

// JobCompleted carries a finished video
type JobCompleted struct {
	JobID     string
	VideoData []byte
	VideoType string
}

// JobChatCompleted carries a finished chat answer
type JobChatCompleted struct {
	JobID   string
	Content string
}

// JobFailed reports an execution error
type JobFailed struct {
	JobID string
	Error string
}

// StatusUpdate reports the adapter's current phase
type StatusUpdate struct {
	Status string
}

func (JobCompleted) adapterMessage()     {}
func (JobChatCompleted) adapterMessage() {}
func (JobFailed) adapterMessage()        {}
func (StatusUpdate) adapterMessage()     {}

// TerminalJobID returns the job a terminal message refers to
func TerminalJobID(msg AdapterMessage) (string, bool) {
	switch m := msg.(type) {
	case JobCompleted:
		return m.JobID, true
	case JobChatCompleted:
		return m.JobID, true
	case JobFailed:
		return m.JobID, true
	default:
		return "", false
	}
}

type rawAdapterMessage struct {
	Type      string       `json:"type"`
	JobID     string       `json:"jobId"`
	VideoData videoPayload `json:"videoData"`
	VideoType string       `json:"videoType"`
	Content   string       `json:"content"`
	Error     string       `json:"error"`
	Status    string       `json:"status"`
}

// videoPayload accepts the byte array the page sends or a base64 string
type videoPayload []byte

func (v *videoPayload) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*v = nil
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("failed to decode video data: %w", err)
		}
		*v = b
		return nil
	case '[':
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return err
		}
		b := make([]byte, len(ints))
		for i, n := range ints {
			if n < 0 || n > 255 {
				return fmt.Errorf("video data byte %d out of range: %d", i, n)
			}
			b[i] = byte(n)
		}
		*v = b
		return nil
	default:
		return fmt.Errorf("unsupported video data encoding")
	}
}

// DecodeAdapterMessage parses a JSON message from the page adapter
func DecodeAdapterMessage(data []byte) (AdapterMessage, error) {
	var raw rawAdapterMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode adapter message: %w", err)
	}

	switch raw.Type {
	case MsgJobCompleted:
		videoType := raw.VideoType
		if videoType == "" {
			videoType = "video/mp4"
		}
		return JobCompleted{JobID: raw.JobID, VideoData: raw.VideoData, VideoType: videoType}, nil
	case MsgJobChatCompleted:
		return JobChatCompleted{JobID: raw.JobID, Content: raw.Content}, nil
	case MsgJobFailed:
		return JobFailed{JobID: raw.JobID, Error: raw.Error}, nil
	case MsgUpdateStatus:
		return StatusUpdate{Status: raw.Status}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, raw.Type)
	}
}

// ChatSettings is forwarded with every chat job
type ChatSettings struct {
	TimeoutSeconds     int `json:"timeoutSeconds"`
	ImageUploadDelayMs int `json:"imageUploadDelayMs"`
}

// StartJob is the job payload inside a start message
type StartJob struct {
	JobID               string          `json:"job_id"`
	JobType             Mode            `json:"job_type"`
	Prompt              string          `json:"prompt"`
	Image               string          `json:"image,omitempty"`
	ClientID            string          `json:"client_id,omitempty"`
	Request             json.RawMessage `json:"request,omitempty"`
	Mode                Mode            `json:"mode"`
	VideoTimeoutSeconds int             `json:"videoTimeoutSeconds,omitempty"`
	ChatConfig          *ChatSettings   `json:"chatConfig,omitempty"`
}

// StartMessage hands a job to the page adapter
type StartMessage struct {
	Type string   `json:"type"`
	Job  StartJob `json:"job"`
}

// NewStartMessage builds the mode-specific start message for job
func NewStartMessage(job *CurrentJob, image string, videoTimeoutSeconds int, chat ChatSettings) StartMessage {
	start := StartJob{
		JobID:    job.JobID,
		JobType:  job.Mode,
		Prompt:   job.Prompt,
		Image:    image,
		ClientID: job.ClientID,
		Request:  job.Request,
		Mode:     job.Mode,
	}

	if job.Mode == ModeChat {
		start.ChatConfig = &chat
		return StartMessage{Type: MsgStartChatJob, Job: start}
	}

	start.VideoTimeoutSeconds = videoTimeoutSeconds
	return StartMessage{Type: MsgStartJob, Job: start}
}
