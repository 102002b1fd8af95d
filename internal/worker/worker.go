// Package worker runs the polling job lifecycle: it asks the job source for
// work, hands each job to the page adapter in a browser tab, and finalizes
// it when the adapter reports back, is cancelled, or gets stuck.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/events"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/storage"
)

const (
	defaultTabLoadTimeout  = 20 * time.Second
	defaultTabPollInterval = 300 * time.Millisecond
)

var errTabLoading = errors.New("tab still loading")

// JobSource is the job server as seen by the worker
type JobSource interface {
	Poll(ctx context.Context, mode domain.Mode, clientID string) (*domain.Job, error)
	CompleteVideo(ctx context.Context, jobID string, video []byte, contentType string) error
	CompleteChat(ctx context.Context, jobID, content string) error
	ReportError(ctx context.Context, jobID, reason string)
	VideoURL(jobID string) string
}

// Tab is a browser page that can host the page adapter
type Tab struct {
	ID  string
	URL string
}

// Surface is the browser the page adapter runs in
type Surface interface {
	Tabs(ctx context.Context) ([]Tab, error)
	Navigate(ctx context.Context, tabID, url string) error
	TabReady(ctx context.Context, tabID string) (bool, error)
	Ping(ctx context.Context, tabID string) error
	Inject(ctx context.Context, tabID string) error
	Send(ctx context.Context, tabID string, msg domain.StartMessage) error
	Messages() <-chan domain.AdapterMessage
}

// Config holds worker configuration
type Config struct {
	Logger   *slog.Logger
	Store    storage.Store
	Source   JobSource
	Surface  Surface
	Notifier events.Notifier

	PollInterval        time.Duration
	VideoTimeoutSeconds int
	Chat                domain.ChatSettings
	StuckGrace          time.Duration
	RequirePanel        bool

	TabPrefix         string
	ChatURL           string
	VideoURL          string
	TabLoadTimeout    time.Duration
	TabPollInterval   time.Duration
	ReadyAttempts     int
	ReadyBackoff      time.Duration
	MaxImageDimension int

	// Now overrides the clock, used by tests
	Now func() time.Time
}

// Worker owns the worker state. All persisted state goes through the store;
// the fields below mu are process-local.
type Worker struct {
	logger   *slog.Logger
	store    storage.Store
	source   JobSource
	surface  Surface
	notifier events.Notifier
	now      func() time.Time

	pollInterval        time.Duration
	videoTimeoutSeconds int
	chat                domain.ChatSettings
	stuckGrace          time.Duration
	requirePanel        bool

	tabPrefix         string
	chatURL           string
	videoURL          string
	tabLoadTimeout    time.Duration
	tabPollInterval   time.Duration
	readyAttempts     int
	readyBackoff      time.Duration
	maxImageDimension int

	rootCtx    context.Context
	rootCancel context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup
	kick       chan struct{}
	cycleMu    sync.Mutex

	mu         sync.Mutex
	panelOpen  bool
	cancelled  map[string]struct{}
	loopCancel context.CancelFunc
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = events.Multi{}
	}
	grace := cfg.StuckGrace
	if grace == 0 {
		grace = domain.DefaultStuckGrace
	}
	readyAttempts := cfg.ReadyAttempts
	if readyAttempts <= 0 {
		readyAttempts = 5
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		logger:   cfg.Logger,
		store:    cfg.Store,
		source:   cfg.Source,
		surface:  cfg.Surface,
		notifier: notifier,
		now:      now,

		pollInterval:        cfg.PollInterval,
		videoTimeoutSeconds: cfg.VideoTimeoutSeconds,
		chat:                cfg.Chat,
		stuckGrace:          grace,
		requirePanel:        cfg.RequirePanel,

		tabPrefix:         cfg.TabPrefix,
		chatURL:           cfg.ChatURL,
		videoURL:          cfg.VideoURL,
		tabLoadTimeout:    cfg.TabLoadTimeout,
		tabPollInterval:   cfg.TabPollInterval,
		readyAttempts:     readyAttempts,
		readyBackoff:      cfg.ReadyBackoff,
		maxImageDimension: cfg.MaxImageDimension,

		rootCtx:    ctx,
		rootCancel: cancel,
		done:       make(chan struct{}),
		kick:       make(chan struct{}, 1),
		cancelled:  make(map[string]struct{}),
	}
}

// Start restores persisted state, starts the adapter message consumer and,
// when a mode is enabled, the poll loop. It blocks until ctx is cancelled or
// Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	defer close(w.done)

	state, err := w.store.Update(ctx, func(st *domain.State) error {
		if st.ClientID == "" {
			st.ClientID = domain.NewClientID()
		}
		return nil
	})
	if err != nil {
		w.rootCancel()
		return fmt.Errorf("failed to initialize worker state: %w", err)
	}

	w.logger.Info("Starting worker",
		slog.String("client_id", state.ClientID),
		slog.Bool("chat_polling", state.Polling.ChatPollingEnabled),
		slog.Bool("video_polling", state.Polling.VideoPollingEnabled),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Bool("require_panel", w.requirePanel),
	)

	if state.CurrentJob.Processing() {
		w.logger.Warn("Resuming with a job in flight",
			slog.String("job_id", state.CurrentJob.JobID),
			slog.String("mode", string(state.CurrentJob.Mode)),
			slog.Time("deadline", state.CurrentJob.Deadline(w.stuckGrace)),
		)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.rootCancel()
		case <-w.rootCtx.Done():
		}
	}()

	w.wg.Add(1)
	go w.consumeMessages(w.rootCtx)

	w.reconcileLoop(state.Polling)

	<-w.rootCtx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	w.mu.Lock()
	if w.loopCancel != nil {
		w.loopCancel()
		w.loopCancel = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

// Stop cancels the worker and waits for Start to return
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.rootCancel()
	<-w.done
	w.logger.Info("Worker stopped")
}

// Snapshot is the full view rendered by the control surface
type Snapshot struct {
	domain.State
	PanelOpen   bool `json:"panelOpen"`
	LoopRunning bool `json:"loopRunning"`
}

// Snapshot returns the persisted state plus runtime flags
func (w *Worker) Snapshot(ctx context.Context) (Snapshot, error) {
	state, err := w.store.Load(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load state: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return Snapshot{
		State:       state,
		PanelOpen:   w.panelOpen,
		LoopRunning: w.loopCancel != nil,
	}, nil
}

func (w *Worker) notify(ctx context.Context, event domain.Event) {
	event.Timestamp = w.now()
	w.notifier.Notify(ctx, event)
}

func (w *Worker) addCancelled(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelled[jobID] = struct{}{}
}

func (w *Worker) clearCancelled() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.cancelled)
}

// consumeCancelled removes jobID from the suppression set and reports
// whether it was there
func (w *Worker) consumeCancelled(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cancelled[jobID]; !ok {
		return false
	}
	delete(w.cancelled, jobID)
	return true
}
