package model

import "time"

// Job is a row of the jobs table. Timestamps are unix milliseconds.
type Job struct {
	JobID          string  `db:"job_id"`
	JobType        string  `db:"job_type"`
	Prompt         string  `db:"prompt"`
	Image          *string `db:"image"`
	RequestPayload *string `db:"request_payload"`
	ClientID       *string `db:"client_id"`
	Status         string  `db:"status"`
	CreatedAt      int64   `db:"created_at"`
	StartedAt      *int64  `db:"started_at"`
	CompletedAt    *int64  `db:"completed_at"`
	VideoPath      *string `db:"video_path"`
	TextResponse   *string `db:"text_response"`
	Error          *string `db:"error"`
}

// Millis converts t to the stored timestamp form
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Created returns CreatedAt as a time
func (j *Job) Created() time.Time {
	return time.UnixMilli(j.CreatedAt)
}

// Str dereferences an optional column
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Unix converts an optional millisecond timestamp to unix seconds
func Unix(ms *int64) *int64 {
	if ms == nil {
		return nil
	}
	sec := *ms / 1000
	return &sec
}
