package handler

import (
	"log/slog"
	"time"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/domain"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/storage"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/videostore"
)

const (
	defaultListLimit     = 100
	maxListLimit         = 1000
	defaultChatPollEvery = time.Second
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Storage *storage.Storage
	Videos  videostore.Store

	// PublicURL prefixes the video_url of completed jobs
	PublicURL          string
	VideoTimeout       time.Duration
	ChatTimeout        time.Duration
	ChatCompletionWait time.Duration
	ChatPollInterval   time.Duration
	MaxUploadBytes     int64

	// Now is overridden by tests
	Now func() time.Time
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger             *slog.Logger
	storage            *storage.Storage
	videos             videostore.Store
	publicURL          string
	videoTimeout       time.Duration
	chatTimeout        time.Duration
	chatCompletionWait time.Duration
	chatPollInterval   time.Duration
	maxUploadBytes     int64
	now                func() time.Time
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	h := &JobHandler{
		logger:             deps.Logger,
		storage:            deps.Storage,
		videos:             deps.Videos,
		publicURL:          deps.PublicURL,
		videoTimeout:       deps.VideoTimeout,
		chatTimeout:        deps.ChatTimeout,
		chatCompletionWait: deps.ChatCompletionWait,
		chatPollInterval:   deps.ChatPollInterval,
		maxUploadBytes:     deps.MaxUploadBytes,
		now:                deps.Now,
	}

	if h.now == nil {
		h.now = time.Now
	}
	if h.videoTimeout <= 0 {
		h.videoTimeout = 300 * time.Second
	}
	if h.chatTimeout <= 0 {
		h.chatTimeout = 60 * time.Second
	}
	if h.chatCompletionWait <= 0 {
		h.chatCompletionWait = 60 * time.Second
	}
	if h.chatPollInterval <= 0 {
		h.chatPollInterval = defaultChatPollEvery
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 512 << 20
	}

	return h
}

func (h *JobHandler) timeoutFor(jobType string) time.Duration {
	if jobType == domain.JobTypeChat {
		return h.chatTimeout
	}
	return h.videoTimeout
}
