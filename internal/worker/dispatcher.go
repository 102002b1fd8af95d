package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/media"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/retry"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// dispatch hands job to the page adapter. Any returned error leaves the job
// to be finalized as failed by the caller.
func (w *Worker) dispatch(ctx context.Context, job *domain.CurrentJob) error {
	image, err := media.NormalizeImage(job.Image, w.maxImageDimension)
	if err != nil {
		return domain.NewDispatchError("Invalid job image", err)
	}

	tab, err := w.targetTab(ctx, job.Mode)
	if err != nil {
		return err
	}

	if err := w.ensureAdapterReady(ctx, tab.ID); err != nil {
		return domain.NewDispatchError(domain.ReasonAdapterMissing, fmt.Errorf("%w: %w", domain.ErrAdapterNotReady, err))
	}

	msg := domain.NewStartMessage(job, image, w.videoTimeoutSeconds, w.chat)
	if err := w.surface.Send(ctx, tab.ID, msg); err != nil {
		return domain.NewDispatchError(domain.ReasonSendFailed, fmt.Errorf("%w: %w", domain.ErrSendFailed, err))
	}

	w.logger.Info("Job dispatched to tab",
		slog.String("job_id", job.JobID),
		slog.String("mode", string(job.Mode)),
		slog.String("tab_id", tab.ID),
		slog.String("message", msg.Type),
	)
	return nil
}

// targetTab picks the tab for mode, navigating it when it is not on the
// page the mode needs
func (w *Worker) targetTab(ctx context.Context, mode domain.Mode) (Tab, error) {
	tabs, err := w.surface.Tabs(ctx)
	if err != nil {
		return Tab{}, fmt.Errorf("failed to list tabs: %w", err)
	}

	var candidates []Tab
	for _, t := range tabs {
		if strings.HasPrefix(t.URL, w.tabPrefix) {
			candidates = append(candidates, t)
		}
	}

	want := w.videoURL
	if mode == domain.ModeChat {
		want = w.chatURL
	}

	if len(candidates) == 0 {
		return Tab{}, domain.NewDispatchError(
			fmt.Sprintf("No Grok tab open. Please open %s in a tab.", want), domain.ErrNoTab)
	}

	var tab Tab
	if mode == domain.ModeChat {
		tab = candidates[0]
		if tab.URL == w.chatURL {
			return tab, nil
		}
	} else {
		for _, t := range candidates {
			if strings.HasPrefix(t.URL, w.videoURL) {
				return t, nil
			}
		}
		tab = candidates[0]
	}

	w.logger.Info("Navigating tab",
		slog.String("tab_id", tab.ID),
		slog.String("from", tab.URL),
		slog.String("to", want),
	)
	if err := w.surface.Navigate(ctx, tab.ID, want); err != nil {
		return Tab{}, fmt.Errorf("failed to navigate tab: %w", err)
	}

	if err := w.waitForLoad(ctx, tab.ID); err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return Tab{}, domain.NewDispatchError(
				fmt.Sprintf("Timed out waiting for %s to load.", want), domain.ErrTabLoadTimeout)
		}
		return Tab{}, err
	}

	tab.URL = want
	return tab, nil
}

func (w *Worker) waitForLoad(ctx context.Context, tabID string) error {
	timeout := w.tabLoadTimeout
	if timeout <= 0 {
		timeout = defaultTabLoadTimeout
	}
	interval := w.tabPollInterval
	if interval <= 0 {
		interval = defaultTabPollInterval
	}

	return retry.Do(ctx, retry.Policy{Timeout: timeout, Backoff: retry.Constant(interval)},
		func(ctx context.Context, _ int) error {
			ready, err := w.surface.TabReady(ctx, tabID)
			if err != nil {
				return err
			}
			if !ready {
				return errTabLoading
			}
			return nil
		})
}

// ensureAdapterReady pings the adapter, injecting it once after the first
// unanswered ping
func (w *Worker) ensureAdapterReady(ctx context.Context, tabID string) error {
	policy := retry.Policy{
		MaxAttempts: w.readyAttempts,
		Backoff:     retry.Linear(w.readyBackoff),
	}

	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		err := w.surface.Ping(ctx, tabID)
		if err == nil {
			return nil
		}

		w.logger.Debug("Adapter ping failed",
			slog.String("tab_id", tabID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if attempt == 1 {
			if injErr := w.surface.Inject(ctx, tabID); injErr != nil {
				w.logger.Warn("Failed to inject adapter",
					slog.String("tab_id", tabID),
					slog.Any("error", injErr),
				)
			}
		}
		return err
	})
}
