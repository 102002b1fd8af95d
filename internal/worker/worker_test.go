package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

func videoTab() Tab { return Tab{ID: "tab-1", URL: testVideoURL} }

func TestPollCycle_DispatchesVideoJob(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.openGate()
	h.setPolling(t, false, true)
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo, Prompt: "a cat surfing"})

	h.worker.pollCycle(context.Background())

	st := h.state(t)
	require.NotNil(t, st.CurrentJob)
	assert.Equal(t, "job_v1", st.CurrentJob.JobID)
	assert.Equal(t, domain.JobStatusProcessing, st.CurrentJob.Status)
	assert.Equal(t, 300, st.CurrentJob.TimeoutSeconds)
	assert.Equal(t, "AB12C", st.CurrentJob.ClientID)

	sent := h.surface.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.MsgStartJob, sent[0].Type)
	assert.Equal(t, 300, sent[0].Job.VideoTimeoutSeconds)
	assert.Nil(t, sent[0].Job.ChatConfig)
}

func TestPollCycle_PollsVideoBeforeChat(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.openGate()
	h.setPolling(t, true, true)
	h.source.push(&domain.Job{JobID: "job_c1", Mode: domain.ModeChat, Prompt: "hi"})
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo, Prompt: "a dog"})

	h.worker.pollCycle(context.Background())

	assert.Equal(t, []domain.Mode{domain.ModeVideo}, h.source.pollCalls())
	assert.Equal(t, "job_v1", h.state(t).CurrentJob.JobID)
}

func TestPollCycle_FallsThroughToNextMode(t *testing.T) {
	h := newHarness(t, newFakeSurface(Tab{ID: "tab-1", URL: testChatURL}))
	h.openGate()
	h.setPolling(t, true, true)
	h.source.push(&domain.Job{JobID: "job_c1", Mode: domain.ModeChat, Prompt: "hi"})

	h.worker.pollCycle(context.Background())

	assert.Equal(t, []domain.Mode{domain.ModeVideo, domain.ModeChat}, h.source.pollCalls())
	st := h.state(t)
	require.NotNil(t, st.CurrentJob)
	assert.Equal(t, 60, st.CurrentJob.TimeoutSeconds)
}

func TestPollCycle_SkipsWhenDisabledOrGated(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)

	h.worker.pollCycle(context.Background())
	assert.Empty(t, h.source.pollCalls(), "panel closed")

	h.openGate()
	h.setPolling(t, false, false)
	h.worker.pollCycle(context.Background())
	assert.Empty(t, h.source.pollCalls(), "no mode enabled")
}

func TestPollCycle_PollErrorEndsCycle(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.openGate()
	h.setPolling(t, true, true)
	h.source.pollErr = errors.New("connection refused")

	h.worker.pollCycle(context.Background())

	assert.Equal(t, []domain.Mode{domain.ModeVideo}, h.source.pollCalls())
	assert.Nil(t, h.state(t).CurrentJob)
}

func TestPollCycle_BusyWhileJobInFlight(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.openGate()
	h.setPolling(t, false, true)
	h.setCurrent(t, &domain.Job{JobID: "job_busy", Mode: domain.ModeVideo}, 300)

	h.clock.Advance(360 * time.Second)
	h.worker.pollCycle(context.Background())

	assert.Empty(t, h.source.pollCalls())
	assert.Equal(t, "job_busy", h.state(t).CurrentJob.JobID)
}

func TestPollCycle_RecoversStuckJob(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.openGate()
	h.setPolling(t, false, true)
	h.setCurrent(t, &domain.Job{JobID: "job_stuck", Mode: domain.ModeVideo, Prompt: "slow"}, 300)
	h.source.push(&domain.Job{JobID: "job_next", Mode: domain.ModeVideo, Prompt: "next"})

	h.clock.Advance(361 * time.Second)
	h.worker.pollCycle(context.Background())

	reason, ok := h.source.reportedReason("job_stuck")
	require.True(t, ok)
	assert.Equal(t, domain.ReasonStuck, reason)

	st := h.state(t)
	assert.Equal(t, 1, st.Stats.TotalFailed)
	require.Len(t, st.History, 1)
	assert.Equal(t, "job_stuck", st.History[0].JobID)
	assert.Equal(t, domain.OutcomeFailed, st.History[0].Status)
	assert.Equal(t, domain.ReasonStuck, st.History[0].Error)

	require.NotNil(t, st.CurrentJob)
	assert.Equal(t, "job_next", st.CurrentJob.JobID, "same cycle proceeds to poll")
}

func TestDispatch_NoTab(t *testing.T) {
	h := newHarness(t, newFakeSurface(Tab{ID: "tab-9", URL: "https://example.com/"}))
	h.openGate()
	h.setPolling(t, false, true)
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo})

	h.worker.pollCycle(context.Background())

	reason, ok := h.source.reportedReason("job_v1")
	require.True(t, ok)
	assert.Equal(t, "No Grok tab open. Please open https://grok.com/imagine in a tab.", reason)

	st := h.state(t)
	assert.Nil(t, st.CurrentJob)
	assert.Equal(t, 1, st.Stats.TotalFailed)
}

func TestDispatch_InjectsAdapterAfterFirstFailedPing(t *testing.T) {
	surface := newFakeSurface(videoTab())
	surface.pingFailures = 1
	h := newHarness(t, surface)
	h.openGate()
	h.setPolling(t, false, true)
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo})

	h.worker.pollCycle(context.Background())

	assert.Equal(t, 1, surface.injects)
	assert.Equal(t, 2, surface.pings)
	assert.Len(t, surface.sentMessages(), 1)
	assert.NotNil(t, h.state(t).CurrentJob)
}

func TestDispatch_AdapterNeverReady(t *testing.T) {
	surface := newFakeSurface(videoTab())
	surface.pingFailures = 100
	h := newHarness(t, surface)
	h.openGate()
	h.setPolling(t, false, true)
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo})

	h.worker.pollCycle(context.Background())

	assert.Equal(t, 3, surface.pings)
	assert.Equal(t, 1, surface.injects, "inject only once")
	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, domain.ReasonAdapterMissing, reason)
	assert.Nil(t, h.state(t).CurrentJob)
}

func TestDispatch_SendFailure(t *testing.T) {
	surface := newFakeSurface(videoTab())
	surface.sendErr = errors.New("tab closed")
	h := newHarness(t, surface)
	h.openGate()
	h.setPolling(t, false, true)
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo})

	h.worker.pollCycle(context.Background())

	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, domain.ReasonSendFailed, reason)
	assert.Nil(t, h.state(t).CurrentJob)
}

func TestDispatch_InvalidImage(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.openGate()
	h.setPolling(t, false, true)
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo, Image: "%%% not an image"})

	h.worker.pollCycle(context.Background())

	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, "Invalid job image", reason)
	assert.Empty(t, h.surface.sentMessages())
}

func TestDispatch_ChatNavigatesTab(t *testing.T) {
	surface := newFakeSurface(videoTab())
	h := newHarness(t, surface)
	h.openGate()
	h.setPolling(t, true, false)
	h.source.push(&domain.Job{JobID: "job_c1", Mode: domain.ModeChat, Prompt: "hello"})

	h.worker.pollCycle(context.Background())

	assert.Equal(t, []string{testChatURL}, surface.navigated)
	sent := surface.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.MsgStartChatJob, sent[0].Type)
	require.NotNil(t, sent[0].Job.ChatConfig)
	assert.Equal(t, 60, sent[0].Job.ChatConfig.TimeoutSeconds)
	assert.Equal(t, 5000, sent[0].Job.ChatConfig.ImageUploadDelayMs)
}

func TestDispatch_ChatTabLoadTimeout(t *testing.T) {
	surface := newFakeSurface(videoTab())
	surface.ready = false
	h := newHarness(t, surface)
	h.openGate()
	h.setPolling(t, true, false)
	h.source.push(&domain.Job{JobID: "job_c1", Mode: domain.ModeChat})

	h.worker.pollCycle(context.Background())

	reason, _ := h.source.reportedReason("job_c1")
	assert.Equal(t, "Timed out waiting for https://grok.com/ to load.", reason)
	assert.Empty(t, surface.sentMessages())
}

func TestDispatch_VideoPrefersImagineTab(t *testing.T) {
	surface := newFakeSurface(
		Tab{ID: "tab-chat", URL: testChatURL},
		Tab{ID: "tab-video", URL: testVideoURL + "/post/123"},
	)
	h := newHarness(t, surface)

	tab, err := h.worker.targetTab(context.Background(), domain.ModeVideo)
	require.NoError(t, err)
	assert.Equal(t, "tab-video", tab.ID)
	assert.Empty(t, surface.navigated)
}

func TestHandleMessage_VideoCompleted(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo, Prompt: "waves"}, 300)

	h.worker.handleMessage(context.Background(), domain.JobCompleted{
		JobID: "job_v1", VideoData: []byte{0, 0, 0, 24}, VideoType: "video/mp4",
	})

	assert.Equal(t, []byte{0, 0, 0, 24}, h.source.videos["job_v1"])

	st := h.state(t)
	assert.Nil(t, st.CurrentJob)
	assert.Equal(t, 1, st.Stats.TotalCompleted)
	require.Len(t, st.History, 1)
	assert.Equal(t, domain.OutcomeCompleted, st.History[0].Status)
	assert.Equal(t, "http://localhost:8000/videos/job_v1.mp4", st.History[0].VideoURL)
	assert.Equal(t, "waves", st.History[0].Prompt)
}

func TestHandleMessage_EmptyVideoFails(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	h.worker.handleMessage(context.Background(), domain.JobCompleted{JobID: "job_v1"})

	assert.Empty(t, h.source.videos)
	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, domain.ReasonEmptyPayload, reason)

	st := h.state(t)
	assert.Equal(t, 0, st.Stats.TotalCompleted)
	assert.Equal(t, 1, st.Stats.TotalFailed)
}

func TestHandleMessage_UploadFailure(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.source.uploadErr = errors.New("Upload failed: 500 - boom")
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	h.worker.handleMessage(context.Background(), domain.JobCompleted{JobID: "job_v1", VideoData: []byte{1}})

	st := h.state(t)
	require.Len(t, st.History, 1)
	assert.Equal(t, "Failed to upload video: Upload failed: 500 - boom", st.History[0].Error)
	assert.Equal(t, 1, st.Stats.TotalFailed)
}

func TestHandleMessage_ChatCompleted(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setCurrent(t, &domain.Job{JobID: "job_c1", Mode: domain.ModeChat, Prompt: "2+2"}, 60)

	h.worker.handleMessage(context.Background(), domain.JobChatCompleted{JobID: "job_c1", Content: "4"})

	assert.Equal(t, "4", h.source.chats["job_c1"])
	st := h.state(t)
	require.Len(t, st.History, 1)
	assert.Equal(t, "4", st.History[0].TextResponse)
	assert.Equal(t, domain.ModeChat, st.History[0].Mode)
}

func TestHandleMessage_JobFailed(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	h.worker.handleMessage(context.Background(), domain.JobFailed{JobID: "job_v1", Error: "Moderated"})

	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, "Moderated", reason)
	assert.Nil(t, h.state(t).CurrentJob)
}

func TestHandleMessage_StaleResultIgnored(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setCurrent(t, &domain.Job{JobID: "job_new", Mode: domain.ModeVideo}, 300)

	h.worker.handleMessage(context.Background(), domain.JobCompleted{JobID: "job_old", VideoData: []byte{1}})
	h.worker.handleMessage(context.Background(), domain.JobFailed{JobID: "job_old", Error: "late"})

	assert.Empty(t, h.source.videos)
	_, reported := h.source.reportedReason("job_old")
	assert.False(t, reported)

	st := h.state(t)
	assert.Equal(t, "job_new", st.CurrentJob.JobID)
	assert.Zero(t, st.Stats.TotalFailed)
	assert.Empty(t, st.History)
}

func TestHandleMessage_StatusUpdate(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	h.worker.handleMessage(context.Background(), domain.StatusUpdate{Status: "generating"})

	assert.Equal(t, "generating", h.state(t).CurrentJob.ProgressStatus)
	select {
	case ev := <-events:
		assert.Equal(t, domain.EventJobProgress, ev.Type)
		assert.Equal(t, "job_v1", ev.JobID)
		assert.Equal(t, "generating", ev.Detail)
	default:
		t.Fatal("expected a progress event")
	}
}

func TestSetPolling_ModesAreExclusive(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)

	view, err := h.worker.SetPolling(context.Background(), domain.ModeChat, true)
	require.NoError(t, err)
	assert.True(t, view.ChatPollingEnabled)
	assert.False(t, view.VideoPollingEnabled)
	assert.Equal(t, "AB12C", view.ClientID)

	view, err = h.worker.SetPolling(context.Background(), domain.ModeChat, false)
	require.NoError(t, err)
	assert.False(t, view.ChatPollingEnabled)
	assert.False(t, view.VideoPollingEnabled)
}

func TestSetPolling_CancelsJobAndDropsLateResult(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	_, err := h.worker.SetPolling(context.Background(), domain.ModeVideo, false)
	require.NoError(t, err)

	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, "Cancelled by user (video worker stopped)", reason)

	h.worker.handleMessage(context.Background(), domain.JobCompleted{JobID: "job_v1", VideoData: []byte{1}})

	assert.Empty(t, h.source.videos, "late result is not uploaded")
	st := h.state(t)
	assert.Nil(t, st.CurrentJob)
	assert.Equal(t, 1, st.Stats.TotalFailed)
	assert.Equal(t, 0, st.Stats.TotalCompleted)
	assert.Len(t, st.History, 1)
}

func TestSetPolling_EnablingOtherModeCancelsJob(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	_, err := h.worker.SetPolling(context.Background(), domain.ModeChat, true)
	require.NoError(t, err)

	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, domain.CancelReason(domain.ModeVideo), reason)
	assert.Nil(t, h.state(t).CurrentJob)
}

func TestSetPolling_KeepsJobOfEnabledMode(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	_, err := h.worker.SetPolling(context.Background(), domain.ModeVideo, true)
	require.NoError(t, err)

	assert.Equal(t, "job_v1", h.state(t).CurrentJob.JobID)
}

func TestReset(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	_, err := h.worker.Reset(context.Background())
	require.NoError(t, err)

	reason, _ := h.source.reportedReason("job_v1")
	assert.Equal(t, domain.ReasonReset, reason)
	assert.Nil(t, h.state(t).CurrentJob)

	// no job: nothing to do
	_, err = h.worker.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.state(t).Stats.TotalFailed)
}

func TestFinalize_HistoryCapped(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))

	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("job_%02d", i)
		h.setCurrent(t, &domain.Job{JobID: id, Mode: domain.ModeChat}, 60)
		require.NoError(t, h.worker.finalize(context.Background(), id, result{outcome: domain.OutcomeCompleted}))
	}

	st := h.state(t)
	require.Len(t, st.History, domain.HistoryCapacity)
	assert.Equal(t, "job_12", st.History[0].JobID)
	assert.Equal(t, "job_03", st.History[9].JobID)
	assert.Equal(t, 12, st.Stats.TotalCompleted)
}

func TestFinalize_Once(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	require.NoError(t, h.worker.finalize(context.Background(), "job_v1", failure("first")))
	err := h.worker.finalize(context.Background(), "job_v1", result{outcome: domain.OutcomeCompleted})
	assert.ErrorIs(t, err, domain.ErrStaleJob)

	st := h.state(t)
	assert.Equal(t, 1, st.Stats.TotalFailed)
	assert.Equal(t, 0, st.Stats.TotalCompleted)
}

func TestHandleControl(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, false)

	view, err := h.worker.HandleControl(context.Background(), domain.ControlStartVideoPolling)
	require.NoError(t, err)
	assert.True(t, view.VideoPollingEnabled)

	view, err = h.worker.HandleControl(context.Background(), domain.ControlGetPollingState)
	require.NoError(t, err)
	assert.True(t, view.VideoPollingEnabled)
	assert.Equal(t, "AB12C", view.ClientID)

	_, err = h.worker.HandleControl(context.Background(), domain.ControlKind("SELF_DESTRUCT"))
	assert.ErrorIs(t, err, domain.ErrUnknownControl)
}

func TestPanelGatesLoop(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)

	snap, err := h.worker.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.LoopRunning)

	view, err := h.worker.SetPanel(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, view.PanelOpen)

	snap, err = h.worker.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.LoopRunning)

	_, err = h.worker.SetPanel(context.Background(), false)
	require.NoError(t, err)

	snap, err = h.worker.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.LoopRunning)
}

func TestStart_AssignsClientIDAndConsumesMessages(t *testing.T) {
	surface := newFakeSurface(videoTab())
	h := newHarness(t, surface)
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.worker.Start(ctx) }()

	surface.msgs <- domain.JobFailed{JobID: "job_v1", Error: "Moderated"}

	assert.Eventually(t, func() bool {
		st := h.state(t)
		return st.ClientID != "" && st.CurrentJob == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPollCycle_ModeDisabledWhilePolling(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.openGate()
	h.setPolling(t, false, true)
	h.source.push(&domain.Job{JobID: "job_v1", Mode: domain.ModeVideo, Prompt: "a cat"})
	h.worker.source = &disablingSource{fakeSource: h.source, worker: h.worker}

	h.worker.pollCycle(context.Background())

	st := h.state(t)
	assert.False(t, st.Polling.VideoPollingEnabled)
	assert.Nil(t, st.CurrentJob)
	assert.Empty(t, h.surface.sentMessages())
	assert.Equal(t, 0, st.Stats.TotalFailed)
	assert.Empty(t, st.History)

	reason, ok := h.source.reportedReason("job_v1")
	require.True(t, ok)
	assert.Equal(t, domain.CancelReason(domain.ModeVideo), reason)
}

func TestStartJob_ClearsCancelledJobs(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)
	h.setCurrent(t, &domain.Job{JobID: "job_old", Mode: domain.ModeVideo}, 300)

	_, err := h.worker.SetPolling(context.Background(), domain.ModeVideo, false)
	require.NoError(t, err)
	assert.Equal(t, 1, h.cancelledCount())

	_, err = h.worker.SetPolling(context.Background(), domain.ModeVideo, true)
	require.NoError(t, err)
	h.openGate()
	h.source.push(&domain.Job{JobID: "job_new", Mode: domain.ModeVideo, Prompt: "next"})

	h.worker.pollCycle(context.Background())

	assert.Equal(t, 0, h.cancelledCount())
	require.Equal(t, "job_new", h.state(t).CurrentJob.JobID)

	// the old job's late result still changes nothing
	h.worker.handleMessage(context.Background(), domain.JobCompleted{JobID: "job_old", VideoData: []byte{1}})
	h.worker.handleMessage(context.Background(), domain.JobFailed{JobID: "job_old", Error: "late"})

	st := h.state(t)
	assert.Equal(t, "job_new", st.CurrentJob.JobID)
	assert.Equal(t, 1, st.Stats.TotalFailed)
	assert.Equal(t, 0, st.Stats.TotalCompleted)
	assert.Len(t, st.History, 1)
}

func TestHandleMessage_CancelledDuringUpload(t *testing.T) {
	h := newHarness(t, newFakeSurface(videoTab()))
	h.setPolling(t, false, true)
	h.setCurrent(t, &domain.Job{JobID: "job_v1", Mode: domain.ModeVideo}, 300)
	src := newBlockingSource(h.source)
	h.worker.source = src

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.worker.handleMessage(context.Background(), domain.JobCompleted{
			JobID: "job_v1", VideoData: []byte{0, 0, 0, 24}, VideoType: "video/mp4",
		})
	}()

	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("upload did not start")
	}

	_, err := h.worker.SetPolling(context.Background(), domain.ModeVideo, false)
	require.NoError(t, err)
	close(src.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion handler did not return")
	}

	st := h.state(t)
	assert.Nil(t, st.CurrentJob)
	assert.Equal(t, 1, st.Stats.TotalFailed)
	assert.Equal(t, 0, st.Stats.TotalCompleted)
	require.Len(t, st.History, 1)
	assert.Equal(t, domain.OutcomeFailed, st.History[0].Status)
	assert.Equal(t, domain.CancelReason(domain.ModeVideo), st.History[0].Error)
	assert.Equal(t, 0, h.cancelledCount())
}
