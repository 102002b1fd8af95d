package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/telemetry"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// result is the terminal outcome of one job
type result struct {
	outcome  string
	reason   string
	videoURL string
	text     string
}

func failure(reason string) result {
	return result{outcome: domain.OutcomeFailed, reason: reason}
}

// finalize ends jobID exactly once: a result for a job that is no longer
// current is suppressed and returns domain.ErrStaleJob.
func (w *Worker) finalize(ctx context.Context, jobID string, res result) error {
	var finished domain.CurrentJob

	// Step 1: Clear the current job and record the outcome in one update
	_, err := w.store.Update(ctx, func(st *domain.State) error {
		if st.CurrentJob == nil || st.CurrentJob.JobID != jobID {
			return domain.ErrStaleJob
		}
		finished = *st.CurrentJob

		if res.outcome == domain.OutcomeCompleted {
			st.Stats.TotalCompleted++
		} else {
			st.Stats.TotalFailed++
		}

		st.PushHistory(domain.HistoryEntry{
			JobID:        finished.JobID,
			ClientID:     finished.ClientID,
			Mode:         finished.Mode,
			Prompt:       finished.Prompt,
			Status:       res.outcome,
			VideoURL:     res.videoURL,
			TextResponse: res.text,
			Error:        res.reason,
			Timestamp:    w.now(),
		})
		st.CurrentJob = nil
		return nil
	})
	if errors.Is(err, domain.ErrStaleJob) {
		w.logger.Info("Ignoring result for job that is no longer current",
			slog.String("job_id", jobID),
			slog.String("outcome", res.outcome),
		)
		telemetry.SuppressedResults.Inc()
		w.consumeCancelled(jobID)
		return err
	}

	// Step 2: Tell the job source about failures, even when the store write failed
	if res.outcome == domain.OutcomeFailed {
		w.source.ReportError(ctx, jobID, res.reason)
	}

	if err != nil {
		w.logger.Error("Failed to finalize job",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return err
	}

	// Step 3: Metrics and notifications
	telemetry.JobsFinalized.WithLabelValues(string(finished.Mode), res.outcome).Inc()
	telemetry.JobDuration.WithLabelValues(string(finished.Mode)).Observe(w.now().Sub(finished.StartedAt).Seconds())
	telemetry.JobsInFlight.Set(0)

	attrs := []any{
		slog.String("job_id", jobID),
		slog.String("mode", string(finished.Mode)),
		slog.String("outcome", res.outcome),
	}
	if res.outcome == domain.OutcomeFailed {
		w.logger.Warn("Job failed", append(attrs, slog.String("reason", res.reason))...)
	} else {
		w.logger.Info("Job completed", attrs...)
	}

	w.notify(ctx, domain.Event{
		Type:    domain.EventJobFinalized,
		JobID:   jobID,
		Mode:    finished.Mode,
		Outcome: res.outcome,
		Detail:  res.reason,
	})
	return nil
}

// handleMessage applies one adapter message to the state
func (w *Worker) handleMessage(ctx context.Context, msg domain.AdapterMessage) {
	if jobID, ok := domain.TerminalJobID(msg); ok && w.consumeCancelled(jobID) {
		w.logger.Info("Dropping result for cancelled job", slog.String("job_id", jobID))
		telemetry.SuppressedResults.Inc()
		return
	}

	switch m := msg.(type) {
	case domain.JobCompleted:
		w.handleVideoCompleted(ctx, m)
	case domain.JobChatCompleted:
		w.handleChatCompleted(ctx, m)
	case domain.JobFailed:
		w.finalize(ctx, m.JobID, failure(m.Error))
	case domain.StatusUpdate:
		w.handleStatusUpdate(ctx, m)
	default:
		w.logger.Warn("Unknown adapter message", slog.String("type", typeName(msg)))
	}
}

func (w *Worker) handleVideoCompleted(ctx context.Context, m domain.JobCompleted) {
	if !w.isCurrent(ctx, m.JobID) {
		w.logger.Info("Ignoring completed video for job that is no longer current", slog.String("job_id", m.JobID))
		telemetry.SuppressedResults.Inc()
		return
	}

	if len(m.VideoData) == 0 {
		w.finalize(ctx, m.JobID, failure(domain.ReasonEmptyPayload))
		return
	}

	w.logger.Info("Uploading video",
		slog.String("job_id", m.JobID),
		slog.Int("bytes", len(m.VideoData)),
		slog.String("content_type", m.VideoType),
	)

	if err := w.source.CompleteVideo(ctx, m.JobID, m.VideoData, m.VideoType); err != nil {
		w.logger.Error("Failed to upload video",
			slog.String("job_id", m.JobID),
			slog.Any("error", err),
		)
		w.finalize(ctx, m.JobID, failure(domain.UploadFailureReason(domain.ModeVideo, err)))
		return
	}

	w.finalize(ctx, m.JobID, result{
		outcome:  domain.OutcomeCompleted,
		videoURL: w.source.VideoURL(m.JobID),
	})
}

func (w *Worker) handleChatCompleted(ctx context.Context, m domain.JobChatCompleted) {
	if !w.isCurrent(ctx, m.JobID) {
		w.logger.Info("Ignoring chat answer for job that is no longer current", slog.String("job_id", m.JobID))
		telemetry.SuppressedResults.Inc()
		return
	}

	if err := w.source.CompleteChat(ctx, m.JobID, m.Content); err != nil {
		w.logger.Error("Failed to complete chat job",
			slog.String("job_id", m.JobID),
			slog.Any("error", err),
		)
		w.finalize(ctx, m.JobID, failure(domain.UploadFailureReason(domain.ModeChat, err)))
		return
	}

	w.finalize(ctx, m.JobID, result{outcome: domain.OutcomeCompleted, text: m.Content})
}

func (w *Worker) handleStatusUpdate(ctx context.Context, m domain.StatusUpdate) {
	var current *domain.CurrentJob
	_, err := w.store.Update(ctx, func(st *domain.State) error {
		if st.CurrentJob == nil {
			return nil
		}
		st.CurrentJob.ProgressStatus = m.Status
		current = st.CurrentJob
		return nil
	})
	if err != nil {
		w.logger.Error("Failed to record progress", slog.Any("error", err))
		return
	}
	if current == nil {
		return
	}

	w.logger.Debug("Job progress",
		slog.String("job_id", current.JobID),
		slog.String("status", m.Status),
	)
	w.notify(ctx, domain.Event{
		Type:   domain.EventJobProgress,
		JobID:  current.JobID,
		Mode:   current.Mode,
		Detail: m.Status,
	})
}

func (w *Worker) isCurrent(ctx context.Context, jobID string) bool {
	state, err := w.store.Load(ctx)
	if err != nil {
		w.logger.Error("Failed to load worker state", slog.Any("error", err))
		return false
	}
	return state.CurrentJob != nil && state.CurrentJob.JobID == jobID
}
