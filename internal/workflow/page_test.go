package workflow_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

func TestSchedulerSuspendResume(t *testing.T) {
	var count atomic.Int32
	s := workflow.NewAutoRefreshScheduler(workflow.RefreshFunc(func(ctx context.Context) error {
		count.Add(1)
		return nil
	}), workflow.SchedulerOptions{Interval: 20 * time.Millisecond})
	defer s.Stop()

	s.Start()
	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Suspend()
	s.Suspend()
	suspendedAt := count.Load()
	time.Sleep(80 * time.Millisecond)
	// 挂起前已触发的一次刷新可能仍在执行
	assert.LessOrEqual(t, count.Load(), suspendedAt+1)

	s.Resume()
	assert.True(t, s.Suspended())
	s.Nudge()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), suspendedAt+1)

	s.Resume()
	assert.False(t, s.Suspended())
	require.Eventually(t, func() bool { return count.Load() >= suspendedAt+2 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerStop(t *testing.T) {
	var count atomic.Int32
	s := workflow.NewAutoRefreshScheduler(workflow.RefreshFunc(func(ctx context.Context) error {
		count.Add(1)
		return nil
	}), workflow.SchedulerOptions{Interval: 10 * time.Millisecond})

	s.Start()
	require.Eventually(t, func() bool { return count.Load() >= 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	stopped := count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), stopped+1)
	assert.False(t, s.Accepting())
}

func TestSchedulerSetInterval(t *testing.T) {
	var count atomic.Int32
	s := workflow.NewAutoRefreshScheduler(workflow.RefreshFunc(func(ctx context.Context) error {
		count.Add(1)
		return nil
	}), workflow.SchedulerOptions{Interval: time.Hour})
	defer s.Stop()

	s.Start()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())

	s.SetInterval(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, s.Interval())
	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.SetInterval(0)
	assert.Equal(t, 10*time.Millisecond, s.Interval())
}

func newTestPage(t *testing.T, remote *fakeRemote) *workflow.Page {
	t.Helper()
	page, err := workflow.NewPage(workflow.PageOptions{
		Kind:            mustKind(workflow.KindMeetings),
		Remote:          remote,
		Principal:       employee,
		Confirmer:       confirmWith(true, nil),
		Location:        time.UTC,
		RefreshInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(page.Close)
	return page
}

func TestPageLoadAndRefresh(t *testing.T) {
	remote := newFakeRemote(meeting("1", workflow.StatusScheduled), meeting("2", workflow.StatusCompleted))
	page := newTestPage(t, remote)

	require.NoError(t, page.Load(context.Background()))
	assert.Equal(t, []string{"1", "2"}, page.Filter().VisibleIDs())

	recomputes := page.Filter().Recomputations()
	require.NoError(t, page.Refresh(context.Background()))
	assert.Equal(t, recomputes, page.Filter().Recomputations())
}

func TestPageDiscardsRefreshWhileModalOpen(t *testing.T) {
	remote := newFakeRemote(meeting("1", workflow.StatusScheduled))
	page := newTestPage(t, remote)
	require.NoError(t, page.Load(context.Background()))

	require.NoError(t, page.OpenModal(workflow.ModalEdit))
	assert.ErrorIs(t, page.OpenModal(workflow.ModalReschedule), workflow.ErrModalOpen)
	assert.True(t, page.Scheduler().Suspended())

	remote.setRecords(meeting("1", workflow.StatusCancelled))
	require.NoError(t, page.Refresh(context.Background()))
	rec, _ := page.Records().Get("1")
	assert.Equal(t, workflow.StatusScheduled, rec.Status)

	page.CloseModal()
	assert.False(t, page.Scheduler().Suspended())
	require.NoError(t, page.Refresh(context.Background()))
	rec, _ = page.Records().Get("1")
	assert.Equal(t, workflow.StatusCancelled, rec.Status)
}

func TestPageCloseStopsEverything(t *testing.T) {
	remote := newFakeRemote(meeting("1", workflow.StatusScheduled))
	page := newTestPage(t, remote)
	require.NoError(t, page.Load(context.Background()))
	_, err := page.Selection().Toggle("1")
	require.NoError(t, err)

	page.Close()
	assert.Zero(t, page.Selection().Len())
	assert.ErrorIs(t, page.OpenModal(workflow.ModalDetail), workflow.ErrClosed)

	remote.setRecords()
	require.NoError(t, page.Refresh(context.Background()))
	assert.Equal(t, 1, page.Records().(*workflow.RecordStore).Len())
}

func TestPageRefreshFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.err = assert.AnError
	page := newTestPage(t, remote)

	err := page.Load(context.Background())
	assert.Equal(t, workflow.KindNetworkFailure, workflow.Classify(err))
}

func TestPageSuspendsRefreshDuringTransition(t *testing.T) {
	remote := newFakeRemote(leave("42", workflow.StatusPending, "IT"))
	page, err := workflow.NewPage(workflow.PageOptions{
		Kind:            mustKind(workflow.KindLeave),
		Remote:          remote,
		Principal:       hrd,
		Location:        time.UTC,
		RefreshInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(page.Close)
	require.NoError(t, page.Load(context.Background()))

	// 刷新先取得 pending 快照后阻塞
	remote.mu.Lock()
	remote.listGate = make(chan struct{})
	remote.listEntered = make(chan struct{}, 1)
	remote.mu.Unlock()
	refreshed := make(chan error, 1)
	go func() { refreshed <- page.Refresh(context.Background()) }()
	<-remote.listEntered

	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{}, 1)
	transitioned := make(chan error, 1)
	go func() {
		_, err := page.Controller().Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
		transitioned <- err
	}()
	<-remote.entered
	assert.True(t, page.Scheduler().Suspended())
	assert.True(t, page.Controller().Busy())

	close(remote.gate)
	require.NoError(t, <-transitioned)
	assert.False(t, page.Scheduler().Suspended())

	close(remote.listGate)
	require.NoError(t, <-refreshed)
	rec, ok := page.Records().Get("42")
	require.True(t, ok)
	assert.Equal(t, workflow.StatusApproved, rec.Status)
}

func TestPageRefreshAfterTransitionIsKept(t *testing.T) {
	remote := newFakeRemote(leave("42", workflow.StatusPending, "IT"))
	page, err := workflow.NewPage(workflow.PageOptions{
		Kind:            mustKind(workflow.KindLeave),
		Remote:          remote,
		Principal:       hrd,
		Location:        time.UTC,
		RefreshInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(page.Close)
	require.NoError(t, page.Load(context.Background()))

	_, err = page.Controller().Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
	require.NoError(t, err)

	approved := leave("42", workflow.StatusApproved, "IT")
	remote.setRecords(approved, leave("43", workflow.StatusPending, "IT"))
	require.NoError(t, page.Refresh(context.Background()))
	assert.Equal(t, 2, page.Records().(*workflow.RecordStore).Len())
}
