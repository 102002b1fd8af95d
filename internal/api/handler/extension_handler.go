package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/domain"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/dto"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/model"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/telemetry"
)

// Poll handles GET /extension/poll
// Hands the oldest pending job of the requested mode to the calling worker
func (h *JobHandler) Poll(c *gin.Context) {
	var req dto.PollRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	jobType, err := domain.ParseJobType(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	now := h.now()

	// Step 1: fail jobs a worker claimed but never finished
	for _, t := range []string{domain.JobTypeVideo, domain.JobTypeChat} {
		n, err := h.storage.ReapStale(ctx, t, now.Add(-h.timeoutFor(t)), now)
		if err != nil {
			h.logger.Warn("Failed to reap stale jobs",
				slog.String("job_type", t),
				slog.String("error", err.Error()),
			)
			continue
		}
		if n > 0 {
			telemetry.StaleReaped.Add(float64(n))
			telemetry.JobsFinished.WithLabelValues(t, domain.JobStatusFailed).Add(float64(n))
			h.logger.Warn("Stale jobs timed out",
				slog.String("job_type", t),
				slog.Int64("count", n),
			)
		}
	}

	// Step 2: claim the next job
	job, err := h.storage.ClaimNextJob(ctx, jobType, req.ClientID, now)
	if errors.Is(err, domain.ErrJobNotClaimable) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Error("Failed to claim job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to claim job",
		})
		return
	}
	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}

	h.logger.Info("Job claimed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.String("client_id", req.ClientID),
	)

	// Step 3: return it with the original chat request when there is one
	resp := dto.PollResponse{
		JobID:    job.JobID,
		JobType:  job.JobType,
		ClientID: req.ClientID,
		Prompt:   job.Prompt,
		Image:    job.Image,
	}
	if payload := model.Str(job.RequestPayload); payload != "" && json.Valid([]byte(payload)) {
		resp.Request = json.RawMessage(payload)
	}

	c.JSON(http.StatusOK, resp)
}

// CompleteVideo handles POST /extension/complete
// Stores the uploaded video and marks the job completed
func (h *JobHandler) CompleteVideo(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	jobID := c.PostForm("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	fileHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "video file is required",
		})
		return
	}

	ctx := c.Request.Context()
	job, ok := h.lookupJob(c, jobID)
	if !ok {
		return
	}

	// Step 1: read and store the upload
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read video",
		})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read video",
		})
		return
	}

	location, err := h.videos.Save(ctx, jobID, data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("Failed to save video",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save video",
		})
		return
	}

	// Step 2: mark the job completed
	if err := h.storage.CompleteVideo(ctx, jobID, location, h.now()); err != nil {
		h.respondUpdateError(c, jobID, err)
		return
	}
	telemetry.JobsFinished.WithLabelValues(job.JobType, domain.JobStatusCompleted).Inc()

	h.logger.Info("Video job completed",
		slog.String("job_id", jobID),
		slog.Int("size", len(data)),
		slog.String("location", location),
	)

	c.JSON(http.StatusOK, dto.AckResponse{Status: "ok", JobID: jobID})
}

// CompleteChat handles POST /extension/complete/chat
func (h *JobHandler) CompleteChat(c *gin.Context) {
	var req dto.ChatCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, ok := h.lookupJob(c, req.JobID)
	if !ok {
		return
	}

	if err := h.storage.CompleteChat(c.Request.Context(), req.JobID, req.Content, h.now()); err != nil {
		h.respondUpdateError(c, req.JobID, err)
		return
	}
	telemetry.JobsFinished.WithLabelValues(job.JobType, domain.JobStatusCompleted).Inc()

	h.logger.Info("Chat job completed",
		slog.String("job_id", req.JobID),
		slog.Int("content_length", len(req.Content)),
	)

	c.JSON(http.StatusOK, dto.AckResponse{Status: "ok", JobID: req.JobID})
}

// ReportError handles POST /extension/error
func (h *JobHandler) ReportError(c *gin.Context) {
	var req dto.ErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}
	if req.Error == "" {
		req.Error = "Unknown error"
	}

	job, ok := h.lookupJob(c, req.JobID)
	if !ok {
		return
	}

	if err := h.storage.FailJob(c.Request.Context(), req.JobID, req.Error, h.now()); err != nil {
		h.respondUpdateError(c, req.JobID, err)
		return
	}
	telemetry.JobsFinished.WithLabelValues(job.JobType, domain.JobStatusFailed).Inc()

	h.logger.Warn("Job failed",
		slog.String("job_id", req.JobID),
		slog.String("error", req.Error),
	)

	c.JSON(http.StatusOK, dto.AckResponse{Status: "ok", JobID: req.JobID})
}

func (h *JobHandler) lookupJob(c *gin.Context, jobID string) (*model.Job, bool) {
	job, err := h.storage.GetJobByID(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return nil, false
	}
	return job, true
}

func (h *JobHandler) respondUpdateError(c *gin.Context, jobID string, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	h.logger.Error("Failed to update job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to update job",
	})
}
