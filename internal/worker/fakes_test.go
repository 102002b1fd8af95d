package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/events"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/storage"
	"github.com/licanhuadev/Grok-Imagine-Assistant/shared/logger"
)

const (
	testChatURL  = "https://grok.com/"
	testVideoURL = "https://grok.com/imagine"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeSource struct {
	mu        sync.Mutex
	queue     map[domain.Mode][]*domain.Job
	pollErr   error
	uploadErr error
	polls     []domain.Mode
	videos    map[string][]byte
	chats     map[string]string
	reported  map[string]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		queue:    make(map[domain.Mode][]*domain.Job),
		videos:   make(map[string][]byte),
		chats:    make(map[string]string),
		reported: make(map[string]string),
	}
}

func (s *fakeSource) push(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[job.Mode] = append(s.queue[job.Mode], job)
}

func (s *fakeSource) Poll(_ context.Context, mode domain.Mode, _ string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls = append(s.polls, mode)
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	q := s.queue[mode]
	if len(q) == 0 {
		return nil, nil
	}
	s.queue[mode] = q[1:]
	return q[0], nil
}

func (s *fakeSource) CompleteVideo(_ context.Context, jobID string, video []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.videos[jobID] = video
	return nil
}

func (s *fakeSource) CompleteChat(_ context.Context, jobID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.chats[jobID] = content
	return nil
}

func (s *fakeSource) ReportError(_ context.Context, jobID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported[jobID] = reason
}

func (s *fakeSource) VideoURL(jobID string) string {
	return "http://localhost:8000/videos/" + jobID + ".mp4"
}

func (s *fakeSource) pollCalls() []domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Mode(nil), s.polls...)
}

func (s *fakeSource) reportedReason(jobID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reported[jobID]
	return r, ok
}

// disablingSource switches the polled mode off while the poll is in flight
type disablingSource struct {
	*fakeSource
	worker *Worker
}

func (s *disablingSource) Poll(ctx context.Context, mode domain.Mode, clientID string) (*domain.Job, error) {
	job, err := s.fakeSource.Poll(ctx, mode, clientID)
	if _, serr := s.worker.SetPolling(ctx, mode, false); serr != nil {
		return nil, serr
	}
	return job, err
}

// blockingSource holds CompleteVideo until release is closed
type blockingSource struct {
	*fakeSource
	entered chan struct{}
	release chan struct{}
}

func newBlockingSource(src *fakeSource) *blockingSource {
	return &blockingSource{
		fakeSource: src,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (s *blockingSource) CompleteVideo(ctx context.Context, jobID string, video []byte, contentType string) error {
	close(s.entered)
	<-s.release
	return s.fakeSource.CompleteVideo(ctx, jobID, video, contentType)
}

type fakeSurface struct {
	mu           sync.Mutex
	tabs         []Tab
	ready        bool
	pingFailures int
	sendErr      error
	pings        int
	injects      int
	navigated    []string
	sent         []domain.StartMessage
	msgs         chan domain.AdapterMessage
}

func newFakeSurface(tabs ...Tab) *fakeSurface {
	return &fakeSurface{
		tabs:  tabs,
		ready: true,
		msgs:  make(chan domain.AdapterMessage, 8),
	}
}

func (s *fakeSurface) Tabs(context.Context) ([]Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Tab(nil), s.tabs...), nil
}

func (s *fakeSurface) Navigate(_ context.Context, tabID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	for i := range s.tabs {
		if s.tabs[i].ID == tabID {
			s.tabs[i].URL = url
		}
	}
	return nil
}

func (s *fakeSurface) TabReady(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready, nil
}

func (s *fakeSurface) Ping(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	if s.pings <= s.pingFailures {
		return errors.New("no receiving end")
	}
	return nil
}

func (s *fakeSurface) Inject(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injects++
	return nil
}

func (s *fakeSurface) Send(_ context.Context, _ string, msg domain.StartMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSurface) Messages() <-chan domain.AdapterMessage {
	return s.msgs
}

func (s *fakeSurface) sentMessages() []domain.StartMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StartMessage(nil), s.sent...)
}

type harness struct {
	worker  *Worker
	store   storage.Store
	source  *fakeSource
	surface *fakeSurface
	clock   *fakeClock
	hub     *events.Hub
}

// newHarness builds a worker with the panel gate closed so no poll loop
// starts on its own; tests drive pollCycle directly.
func newHarness(t *testing.T, surface *fakeSurface) *harness {
	t.Helper()

	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "worker-state.json"), logger.Discard())
	require.NoError(t, err)

	h := &harness{
		store:   store,
		source:  newFakeSource(),
		surface: surface,
		clock:   newFakeClock(),
		hub:     events.NewHub(64),
	}

	h.worker = NewWorker(&Config{
		Logger:              logger.Discard(),
		Store:               store,
		Source:              h.source,
		Surface:             surface,
		Notifier:            h.hub,
		PollInterval:        time.Hour,
		VideoTimeoutSeconds: 300,
		Chat:                domain.ChatSettings{TimeoutSeconds: 60, ImageUploadDelayMs: 5000},
		RequirePanel:        true,
		TabPrefix:           "https://grok.com/",
		ChatURL:             testChatURL,
		VideoURL:            testVideoURL,
		TabLoadTimeout:      50 * time.Millisecond,
		TabPollInterval:     5 * time.Millisecond,
		ReadyAttempts:       3,
		ReadyBackoff:        time.Millisecond,
		Now:                 h.clock.Now,
	})

	t.Cleanup(func() {
		h.worker.rootCancel()
		h.worker.wg.Wait()
		store.Close()
	})
	return h
}

// openGate lets pollCycle run without starting the loop
func (h *harness) openGate() {
	h.worker.mu.Lock()
	h.worker.panelOpen = true
	h.worker.mu.Unlock()
}

func (h *harness) setPolling(t *testing.T, chat, video bool) {
	t.Helper()
	_, err := h.store.Update(context.Background(), func(st *domain.State) error {
		st.ClientID = "AB12C"
		st.Polling = domain.PollingState{ChatPollingEnabled: chat, VideoPollingEnabled: video}
		return nil
	})
	require.NoError(t, err)
}

func (h *harness) setCurrent(t *testing.T, job *domain.Job, timeoutSeconds int) {
	t.Helper()
	_, err := h.store.Update(context.Background(), func(st *domain.State) error {
		st.CurrentJob = domain.NewCurrentJob(job, "AB12C", h.clock.Now(), timeoutSeconds)
		return nil
	})
	require.NoError(t, err)
}

func (h *harness) cancelledCount() int {
	h.worker.mu.Lock()
	defer h.worker.mu.Unlock()
	return len(h.worker.cancelled)
}

func (h *harness) state(t *testing.T) domain.State {
	t.Helper()
	st, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return st
}
