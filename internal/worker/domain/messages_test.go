package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAdapterMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    AdapterMessage
		wantErr error
	}{
		{
			name:  "completed with byte array",
			input: `{"type":"JOB_COMPLETED","jobId":"job_1","videoData":[0,1,255],"videoType":"video/webm"}`,
			want:  JobCompleted{JobID: "job_1", VideoData: []byte{0, 1, 255}, VideoType: "video/webm"},
		},
		{
			name:  "completed with base64 and default type",
			input: `{"type":"JOB_COMPLETED","jobId":"job_1","videoData":"AAEC"}`,
			want:  JobCompleted{JobID: "job_1", VideoData: []byte{0, 1, 2}, VideoType: "video/mp4"},
		},
		{
			name:  "completed with empty payload",
			input: `{"type":"JOB_COMPLETED","jobId":"job_1","videoData":[]}`,
			want:  JobCompleted{JobID: "job_1", VideoData: []byte{}, VideoType: "video/mp4"},
		},
		{
			name:  "chat completed",
			input: `{"type":"JOB_CHAT_COMPLETED","jobId":"job_2","content":"hello"}`,
			want:  JobChatCompleted{JobID: "job_2", Content: "hello"},
		},
		{
			name:  "failed",
			input: `{"type":"JOB_FAILED","jobId":"job_3","error":"Rate limit reached"}`,
			want:  JobFailed{JobID: "job_3", Error: "Rate limit reached"},
		},
		{
			name:  "status update",
			input: `{"type":"UPDATE_STATUS","status":"Uploading image..."}`,
			want:  StatusUpdate{Status: "Uploading image..."},
		},
		{
			name:    "unknown type",
			input:   `{"type":"EXTRACT_VIDEO"}`,
			wantErr: ErrUnknownMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAdapterMessage([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAdapterMessage_BadVideoData(t *testing.T) {
	_, err := DecodeAdapterMessage([]byte(`{"type":"JOB_COMPLETED","jobId":"j","videoData":[300]}`))
	assert.Error(t, err)

	_, err = DecodeAdapterMessage([]byte(`{"type":"JOB_COMPLETED","jobId":"j","videoData":"***"}`))
	assert.Error(t, err)
}

func TestTerminalJobID(t *testing.T) {
	id, ok := TerminalJobID(JobFailed{JobID: "job_1"})
	assert.True(t, ok)
	assert.Equal(t, "job_1", id)

	_, ok = TerminalJobID(StatusUpdate{Status: "x"})
	assert.False(t, ok)
}

func TestNewStartMessage(t *testing.T) {
	chat := ChatSettings{TimeoutSeconds: 60, ImageUploadDelayMs: 5000}

	t.Run("video", func(t *testing.T) {
		job := &CurrentJob{JobID: "job_v", Mode: ModeVideo, Prompt: "a cat", ClientID: "AB12C"}
		msg := NewStartMessage(job, "", 300, chat)

		data, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"START_JOB","job":{"job_id":"job_v","job_type":"video","prompt":"a cat",
			"client_id":"AB12C","mode":"video","videoTimeoutSeconds":300}}`, string(data))
	})

	t.Run("chat", func(t *testing.T) {
		job := &CurrentJob{JobID: "job_c", Mode: ModeChat, Prompt: "hi"}
		msg := NewStartMessage(job, "data:image/png;base64,AA==", 300, chat)

		assert.Equal(t, MsgStartChatJob, msg.Type)
		require.NotNil(t, msg.Job.ChatConfig)
		assert.Equal(t, 5000, msg.Job.ChatConfig.ImageUploadDelayMs)
		assert.Zero(t, msg.Job.VideoTimeoutSeconds)
		assert.Equal(t, "data:image/png;base64,AA==", msg.Job.Image)
	})
}

func TestParseControlKind(t *testing.T) {
	k, err := ParseControlKind("RESET_WORKER")
	require.NoError(t, err)
	assert.Equal(t, ControlResetWorker, k)

	_, err = ParseControlKind("START_POLLING")
	assert.ErrorIs(t, err, ErrUnknownControl)
}
