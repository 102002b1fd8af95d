package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/domain"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/dto"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/model"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/storage"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/retry"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/telemetry"
)

const (
	defaultModel       = "grok"
	maxPromptLength    = 2000
	fallbackChatPrompt = "Vision chat request"
)

var (
	errChatPending = errors.New("chat job still pending")
	errChatFailed  = errors.New("chat job failed")
)

// CreateVideoGeneration handles POST /v1/videos/generations
// Queues a video job for the next polling worker
func (h *JobHandler) CreateVideoGeneration(c *gin.Context) {
	var req dto.VideoGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job := model.Job{
		JobID:     domain.NewJobID(),
		JobType:   domain.JobTypeVideo,
		Prompt:    req.Prompt,
		Status:    domain.JobStatusPending,
		CreatedAt: model.Millis(h.now()),
	}
	if req.Image != "" {
		job.Image = &req.Image
	}

	if err := h.storage.CreateJob(c.Request.Context(), &job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}
	telemetry.JobsCreated.WithLabelValues(job.JobType).Inc()

	h.logger.Info("Video job queued",
		slog.String("job_id", job.JobID),
		slog.Bool("has_image", job.Image != nil),
	)

	c.JSON(http.StatusOK, h.videoResponse(&job, req.Model))
}

// GetVideoGeneration handles GET /v1/videos/generations/:job_id
func (h *JobHandler) GetVideoGeneration(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, h.videoResponse(job, ""))
}

func (h *JobHandler) videoResponse(job *model.Job, modelName string) dto.VideoGenerationResponse {
	if modelName == "" {
		modelName = defaultModel
	}

	resp := dto.VideoGenerationResponse{
		ID:      job.JobID,
		Object:  "video.generation",
		Created: job.Created().Unix(),
		Model:   modelName,
		Status:  job.Status,
		Error:   job.Error,
	}
	if job.Status == domain.JobStatusCompleted {
		url := h.videoURL(job.JobID)
		resp.VideoURL = &url
	}
	return resp
}

func (h *JobHandler) videoURL(jobID string) string {
	return fmt.Sprintf("%s/videos/%s.mp4", strings.TrimRight(h.publicURL, "/"), jobID)
}

// ChatCompletions handles POST /v1/chat/completions
// Queues a chat job and holds the request open until a worker answers
func (h *JobHandler) ChatCompletions(c *gin.Context) {
	var req dto.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	// Step 1: queue the job with the full request for the page adapter
	payload, err := json.Marshal(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}
	request := string(payload)

	job := model.Job{
		JobID:          domain.NewJobID(),
		JobType:        domain.JobTypeChat,
		Prompt:         extractUserPrompt(req.Messages),
		RequestPayload: &request,
		Status:         domain.JobStatusPending,
		CreatedAt:      model.Millis(h.now()),
	}

	ctx := c.Request.Context()
	if err := h.storage.CreateJob(ctx, &job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}
	telemetry.JobsCreated.WithLabelValues(job.JobType).Inc()

	h.logger.Info("Chat job queued",
		slog.String("job_id", job.JobID),
		slog.String("model", req.Model),
		slog.Int("messages", len(req.Messages)),
	)

	// Step 2: wait for a worker to finish it
	var latest *model.Job
	policy := retry.Policy{
		Timeout: h.chatCompletionWait,
		Backoff: retry.Constant(h.chatPollInterval),
	}
	err = retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		current, err := h.storage.GetJobByID(ctx, job.JobID)
		if err != nil {
			return retry.Stop(err)
		}

		switch current.Status {
		case domain.JobStatusCompleted:
			latest = current
			return nil
		case domain.JobStatusFailed:
			latest = current
			return retry.Stop(errChatFailed)
		default:
			return errChatPending
		}
	})

	// Step 3: answer in the chat completion shape
	switch {
	case err == nil:
		c.JSON(http.StatusOK, dto.ChatCompletionResponse{
			ID:      "chatcmpl-" + job.JobID,
			Object:  "chat.completion",
			Created: h.now().Unix(),
			Model:   req.Model,
			Choices: []dto.ChatChoice{{
				Index: 0,
				Message: dto.ChatChoiceMessage{
					Role:    "assistant",
					Content: model.Str(latest.TextResponse),
				},
				FinishReason: "stop",
			}},
		})
	case errors.Is(err, errChatFailed):
		reason := model.Str(latest.Error)
		if reason == "" {
			reason = "Chat job failed"
		}
		h.logger.Warn("Chat job failed",
			slog.String("job_id", job.JobID),
			slog.String("error", reason),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": reason,
		})
	case errors.Is(err, retry.ErrExhausted) || errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Timed out waiting for chat completion", slog.String("job_id", job.JobID))
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error": fmt.Sprintf("Timed out waiting for chat completion after %ds", int(h.chatCompletionWait.Seconds())),
		})
	case errors.Is(err, context.Canceled):
		h.logger.Info("Chat client went away", slog.String("job_id", job.JobID))
	default:
		h.logger.Error("Failed to wait for chat job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
	}
}

// extractUserPrompt returns the text of the last user message, for history
// and listings
func extractUserPrompt(messages []dto.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}

		var text string
		if err := json.Unmarshal(messages[i].Content, &text); err == nil {
			return truncate(strings.TrimSpace(text), maxPromptLength)
		}

		var parts []dto.ContentPart
		if err := json.Unmarshal(messages[i].Content, &parts); err != nil {
			continue
		}

		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		if len(texts) > 0 {
			return truncate(strings.TrimSpace(strings.Join(texts, "\n")), maxPromptLength)
		}
	}
	return fallbackChatPrompt
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// GetVideo handles GET /videos/:file where file is {job_id}.mp4
func (h *JobHandler) GetVideo(c *gin.Context) {
	file := c.Param("file")
	jobID, ok := strings.CutSuffix(file, ".mp4")
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Video not found",
		})
		return
	}

	rc, size, err := h.videos.Open(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrVideoNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Video not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to open video",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to open video",
		})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, size, "video/mp4", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`inline; filename="%s"`, file),
	})
}

// ListJobs handles GET /jobs
// Lists jobs newest first with optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !domain.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		PageSize: req.Limit,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.Limit
	if hasMore {
		jobs = jobs[:req.Limit]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		Count:      len(jobResponse),
		NextCursor: nextCursor,
	})
}

func toJobDTO(job *model.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:        job.JobID,
		JobType:      job.JobType,
		Prompt:       job.Prompt,
		Image:        job.Image,
		ClientID:     job.ClientID,
		Status:       job.Status,
		CreatedAt:    job.Created().Unix(),
		StartedAt:    model.Unix(job.StartedAt),
		CompletedAt:  model.Unix(job.CompletedAt),
		VideoPath:    job.VideoPath,
		TextResponse: job.TextResponse,
		Error:        job.Error,
	}
}

// ClearJobs handles DELETE /jobs
func (h *JobHandler) ClearJobs(c *gin.Context) {
	n, err := h.storage.ClearJobs(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to clear jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clear jobs",
		})
		return
	}

	h.logger.Info("Jobs cleared", slog.Int64("deleted", n))
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"deleted": n,
	})
}
