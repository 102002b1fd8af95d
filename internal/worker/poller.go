package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/telemetry"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// reconcileLoop starts or stops the poll loop to match polling and panel state
func (w *Worker) reconcileLoop(polling domain.PollingState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	should := polling.Any() && (!w.requirePanel || w.panelOpen) && w.rootCtx.Err() == nil

	switch {
	case should && w.loopCancel == nil:
		ctx, cancel := context.WithCancel(w.rootCtx)
		w.loopCancel = cancel
		w.wg.Add(1)
		go w.runLoop(ctx)
		w.logger.Info("Polling loop started", slog.Duration("interval", w.pollInterval))
	case !should && w.loopCancel != nil:
		w.loopCancel()
		w.loopCancel = nil
		w.logger.Info("Polling loop stopped",
			slog.Bool("any_mode_enabled", polling.Any()),
			slog.Bool("panel_open", w.panelOpen),
		)
	}
}

// kickLoop asks a running loop for an immediate cycle
func (w *Worker) kickLoop() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	interval := w.pollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.pollCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollCycle(ctx)
		case <-w.kick:
			w.pollCycle(ctx)
		}
	}
}

// pollCycle runs one poll: recover a stuck job, then ask each enabled mode
// for work and dispatch the first job found. Errors never escape a cycle.
func (w *Worker) pollCycle(ctx context.Context) {
	if !w.cycleMu.TryLock() {
		telemetry.PollCycles.WithLabelValues(telemetry.PollSkipped).Inc()
		return
	}
	defer w.cycleMu.Unlock()

	state, err := w.store.Load(ctx)
	if err != nil {
		w.logger.Error("Failed to load worker state", slog.Any("error", err))
		telemetry.PollCycles.WithLabelValues(telemetry.PollError).Inc()
		return
	}

	if !state.Polling.Any() || !w.panelAllows() {
		telemetry.PollCycles.WithLabelValues(telemetry.PollIdle).Inc()
		return
	}

	if job := state.CurrentJob; job.Processing() {
		now := w.now()
		if !job.Stuck(now, w.stuckGrace) {
			telemetry.PollCycles.WithLabelValues(telemetry.PollBusy).Inc()
			return
		}

		w.logger.Warn("Job stuck in processing, clearing",
			slog.String("job_id", job.JobID),
			slog.String("mode", string(job.Mode)),
			slog.Duration("elapsed", now.Sub(job.StartedAt)),
			slog.Int("timeout_seconds", job.TimeoutSeconds),
		)
		if err := w.finalize(ctx, job.JobID, failure(domain.ReasonStuck)); err != nil {
			telemetry.PollCycles.WithLabelValues(telemetry.PollError).Inc()
			return
		}
	}

	var job *domain.Job
	for _, mode := range state.Polling.EnabledModes() {
		job, err = w.source.Poll(ctx, mode, state.ClientID)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("Polling error",
					slog.String("mode", string(mode)),
					slog.Any("error", err),
				)
			}
			telemetry.PollCycles.WithLabelValues(telemetry.PollError).Inc()
			return
		}
		if job != nil {
			break
		}
	}

	if job == nil {
		telemetry.PollCycles.WithLabelValues(telemetry.PollIdle).Inc()
		return
	}

	telemetry.PollCycles.WithLabelValues(telemetry.PollHit).Inc()
	w.startJob(job)
}

func (w *Worker) panelAllows() bool {
	if !w.requirePanel {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.panelOpen
}

func (w *Worker) timeoutFor(mode domain.Mode) int {
	if mode == domain.ModeChat {
		return w.chat.TimeoutSeconds
	}
	return w.videoTimeoutSeconds
}

// startJob records job as the current job and dispatches it. Dispatch runs
// on the worker context so stopping the loop does not abort a job mid-start.
func (w *Worker) startJob(job *domain.Job) {
	ctx := w.rootCtx

	var current *domain.CurrentJob
	_, err := w.store.Update(ctx, func(st *domain.State) error {
		if st.CurrentJob.Processing() {
			return domain.ErrJobInFlight
		}
		if !st.Polling.Enabled(job.Mode) {
			return domain.ErrModeDisabled
		}
		current = domain.NewCurrentJob(job, st.ClientID, w.now(), w.timeoutFor(job.Mode))
		st.CurrentJob = current
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrModeDisabled):
		w.logger.Info("Mode switched off while polling, returning job",
			slog.String("job_id", job.JobID),
			slog.String("mode", string(job.Mode)),
		)
		w.source.ReportError(ctx, job.JobID, domain.CancelReason(job.Mode))
		return
	case err != nil:
		w.logger.Error("Failed to record current job",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		if errors.Is(err, domain.ErrJobInFlight) {
			w.source.ReportError(ctx, job.JobID, "Worker busy with another job")
		}
		return
	}

	// results for older jobs are dropped by the current-job check from here on
	w.clearCancelled()

	w.logger.Info("Job received",
		slog.String("job_id", current.JobID),
		slog.String("mode", string(current.Mode)),
		slog.Int("timeout_seconds", current.TimeoutSeconds),
		slog.Bool("has_image", current.Image != ""),
	)
	telemetry.JobsInFlight.Set(1)
	w.notify(ctx, domain.Event{Type: domain.EventJobStarted, JobID: current.JobID, Mode: current.Mode})

	if err := w.dispatch(ctx, current); err != nil {
		w.logger.Error("Failed to dispatch job",
			slog.String("job_id", current.JobID),
			slog.Any("error", err),
		)
		w.finalize(ctx, current.JobID, failure(domain.FailureReason(err)))
		return
	}

	telemetry.JobsDispatched.WithLabelValues(string(current.Mode)).Inc()
}
