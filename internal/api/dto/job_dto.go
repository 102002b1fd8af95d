package dto

import "encoding/json"

// VideoGenerationRequest is the body of POST /v1/videos/generations
type VideoGenerationRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt" binding:"required"`
	Image  string `json:"image"`
}

// VideoGenerationResponse describes a video job
type VideoGenerationResponse struct {
	ID       string  `json:"id"`
	Object   string  `json:"object"`
	Created  int64   `json:"created"`
	Model    string  `json:"model"`
	Status   string  `json:"status"`
	VideoURL *string `json:"video_url"`
	Error    *string `json:"error"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions
type ChatCompletionRequest struct {
	Model          string           `json:"model"`
	Messages       []ChatMessage    `json:"messages" binding:"required,min=1"`
	Temperature    *float64         `json:"temperature,omitempty"`
	MaxTokens      *int             `json:"max_tokens,omitempty"`
	ResponseFormat *json.RawMessage `json:"response_format,omitempty"`
}

// ChatMessage is an OpenAI chat message; content is a string or a list of parts
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ContentPart is one element of a multi-part message content
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ChatCompletionResponse is the OpenAI-style chat completion
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

type ChatChoice struct {
	Index        int               `json:"index"`
	Message      ChatChoiceMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type ChatChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// PollRequest holds the query of GET /extension/poll
type PollRequest struct {
	Mode     string `form:"mode"`
	ClientID string `form:"client_id"`
}

// PollResponse hands a job to a worker
type PollResponse struct {
	JobID    string          `json:"job_id"`
	JobType  string          `json:"job_type"`
	ClientID string          `json:"client_id"`
	Prompt   string          `json:"prompt"`
	Image    *string         `json:"image"`
	Request  json.RawMessage `json:"request,omitempty"`
}

// ChatCompleteRequest is the body of POST /extension/complete/chat
type ChatCompleteRequest struct {
	JobID   string `json:"job_id" binding:"required"`
	Content string `json:"content"`
}

// ErrorRequest is the body of POST /extension/error
type ErrorRequest struct {
	JobID string `json:"job_id" binding:"required"`
	Error string `json:"error"`
}

// AckResponse acknowledges a worker report
type AckResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// ListJobsRequest holds the query of GET /jobs
type ListJobsRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Cursor string `form:"cursor"`
}

// ListJobsResponse is a page of jobs
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	Count      int      `json:"count"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is a job as listed by GET /jobs
type JobDTO struct {
	JobID        string  `json:"job_id"`
	JobType      string  `json:"job_type"`
	Prompt       string  `json:"prompt"`
	Image        *string `json:"image"`
	ClientID     *string `json:"client_id"`
	Status       string  `json:"status"`
	CreatedAt    int64   `json:"created_at"`
	StartedAt    *int64  `json:"started_at"`
	CompletedAt  *int64  `json:"completed_at"`
	VideoPath    *string `json:"video_path"`
	TextResponse *string `json:"text_response"`
	Error        *string `json:"error"`
}
