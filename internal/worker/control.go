package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// SetPolling switches one mode on or off. Enabling a mode switches the other
// one off; a processing job whose mode ends up disabled is cancelled.
func (w *Worker) SetPolling(ctx context.Context, mode domain.Mode, enabled bool) (domain.PollingView, error) {
	if _, err := domain.ParseMode(string(mode)); err != nil {
		return domain.PollingView{}, err
	}

	state, err := w.store.Update(ctx, func(st *domain.State) error {
		st.Polling.Set(mode, enabled)
		if enabled {
			for _, other := range domain.PollPriority {
				if other != mode {
					st.Polling.Set(other, false)
				}
			}
		}
		return nil
	})
	if err != nil {
		return domain.PollingView{}, fmt.Errorf("failed to update polling state: %w", err)
	}

	w.logger.Info("Polling state changed",
		slog.String("mode", string(mode)),
		slog.Bool("enabled", enabled),
		slog.Bool("chat_polling", state.Polling.ChatPollingEnabled),
		slog.Bool("video_polling", state.Polling.VideoPollingEnabled),
	)

	if job := state.CurrentJob; job.Processing() && !state.Polling.Enabled(job.Mode) {
		w.cancelJob(ctx, job.JobID, domain.CancelReason(job.Mode))
	}

	w.reconcileLoop(state.Polling)
	if enabled {
		w.kickLoop()
	}

	polling := state.Polling
	w.notify(ctx, domain.Event{Type: domain.EventPollingChanged, Mode: mode, Polling: &polling})

	return w.view(state), nil
}

// SetPanel records whether the control panel is open
func (w *Worker) SetPanel(ctx context.Context, open bool) (domain.PollingView, error) {
	state, err := w.store.Load(ctx)
	if err != nil {
		return domain.PollingView{}, fmt.Errorf("failed to load state: %w", err)
	}

	w.mu.Lock()
	changed := w.panelOpen != open
	w.panelOpen = open
	w.mu.Unlock()

	if changed {
		w.logger.Info("Panel state changed", slog.Bool("open", open))
		w.notify(ctx, domain.Event{Type: domain.EventStateChanged, Detail: panelDetail(open)})
	}

	w.reconcileLoop(state.Polling)
	return w.view(state), nil
}

// Reset fails the current job, if any, so the worker can take new work
func (w *Worker) Reset(ctx context.Context) (domain.PollingView, error) {
	state, err := w.store.Load(ctx)
	if err != nil {
		return domain.PollingView{}, fmt.Errorf("failed to load state: %w", err)
	}

	if state.CurrentJob != nil {
		w.logger.Info("Resetting worker", slog.String("job_id", state.CurrentJob.JobID))
		w.cancelJob(ctx, state.CurrentJob.JobID, domain.ReasonReset)
		if state, err = w.store.Load(ctx); err != nil {
			return domain.PollingView{}, fmt.Errorf("failed to load state: %w", err)
		}
	}

	w.kickLoop()
	return w.view(state), nil
}

// PollingState answers GET_POLLING_STATE
func (w *Worker) PollingState(ctx context.Context) (domain.PollingView, error) {
	state, err := w.store.Load(ctx)
	if err != nil {
		return domain.PollingView{}, fmt.Errorf("failed to load state: %w", err)
	}
	return w.view(state), nil
}

// HandleControl routes a control message to the matching operation
func (w *Worker) HandleControl(ctx context.Context, kind domain.ControlKind) (domain.PollingView, error) {
	switch kind {
	case domain.ControlStartChatPolling:
		return w.SetPolling(ctx, domain.ModeChat, true)
	case domain.ControlStopChatPolling:
		return w.SetPolling(ctx, domain.ModeChat, false)
	case domain.ControlStartVideoPolling:
		return w.SetPolling(ctx, domain.ModeVideo, true)
	case domain.ControlStopVideoPolling:
		return w.SetPolling(ctx, domain.ModeVideo, false)
	case domain.ControlGetPollingState:
		return w.PollingState(ctx)
	case domain.ControlPanelOpen:
		return w.SetPanel(ctx, true)
	case domain.ControlPanelClosed:
		return w.SetPanel(ctx, false)
	case domain.ControlResetWorker:
		return w.Reset(ctx)
	default:
		return domain.PollingView{}, fmt.Errorf("%w: %q", domain.ErrUnknownControl, kind)
	}
}

// cancelJob marks jobID so a late adapter result is dropped, then fails it
func (w *Worker) cancelJob(ctx context.Context, jobID, reason string) {
	w.addCancelled(jobID)
	if err := w.finalize(ctx, jobID, failure(reason)); err != nil {
		return
	}
	w.logger.Info("Job cancelled",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
	)
}

func (w *Worker) view(state domain.State) domain.PollingView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.PollingView{
		ChatPollingEnabled:  state.Polling.ChatPollingEnabled,
		VideoPollingEnabled: state.Polling.VideoPollingEnabled,
		ClientID:            state.ClientID,
		PanelOpen:           w.panelOpen,
	}
}

func panelDetail(open bool) string {
	if open {
		return "panel_open"
	}
	return "panel_closed"
}
