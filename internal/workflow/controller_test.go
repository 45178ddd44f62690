package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

func TestSingleApprove(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true, leave("42", workflow.StatusPending, "IT"))

	rec, err := f.ctrl.Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
	require.NoError(t, err)

	assert.Equal(t, []workflow.StatusRequest{{Status: workflow.StatusApproved, Remarks: ""}}, f.remote.statuses)
	assert.Equal(t, workflow.StatusApproved, rec.Status)

	stored, _ := f.store.Get("42")
	assert.Equal(t, workflow.StatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedAt)
	assert.Equal(t, hrd.UserID, stored.ApprovedBy)

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Success)
	assert.Empty(t, f.prompts)
}

func TestRejectWithoutRemarks(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true, leave("42", workflow.StatusPending, "IT"))

	_, err := f.ctrl.Transition(context.Background(), "42", workflow.StatusRejected, workflow.Input{Remarks: "   "})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "remarks")

	assert.Empty(t, f.remote.Calls())
	stored, _ := f.store.Get("42")
	assert.Equal(t, workflow.StatusPending, stored.Status)
	assert.Equal(t, workflow.StateIdle, f.ctrl.State("42"))

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	assert.Equal(t, workflow.KindValidation, notes[0].Error)
}

func TestIllegalEdgeNeverReachesNetwork(t *testing.T) {
	f := newControllerFixture(workflow.KindMeetings, superAdmin, true, meeting("7", workflow.StatusCancelled))

	_, err := f.ctrl.Transition(context.Background(), "7", workflow.StatusCompleted, workflow.Input{})
	assert.Equal(t, workflow.KindValidation, workflow.Classify(err))
	assert.Empty(t, f.remote.Calls())
}

func TestRescheduleCancelledMeeting(t *testing.T) {
	f := newControllerFixture(workflow.KindMeetings, employee, true, meeting("7", workflow.StatusCancelled))
	start := day("2024-07-01T09:00")
	end := day("2024-07-01T11:00")

	rec, err := f.ctrl.Transition(context.Background(), "7", workflow.StatusScheduled, workflow.Input{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusScheduled, rec.Status)
	assert.True(t, rec.Start.Equal(start))
	assert.True(t, rec.End.Equal(end))
	assert.Equal(t, []string{"reschedule:7"}, f.remote.Calls())

	// 结束时间不晚于开始时间
	f2 := newControllerFixture(workflow.KindMeetings, employee, true, meeting("8", workflow.StatusCancelled))
	_, err = f2.ctrl.Transition(context.Background(), "8", workflow.StatusScheduled, workflow.Input{Start: &end, End: &start})
	assert.Equal(t, workflow.KindValidation, workflow.Classify(err))
	assert.Empty(t, f2.remote.Calls())
}

func TestConcurrentTransitionOnSameRecord(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true, leave("42", workflow.StatusPending, "IT"))
	f.remote.gate = make(chan struct{})
	f.remote.entered = make(chan struct{}, 1)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.ctrl.Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
	}()
	<-f.remote.entered
	assert.Equal(t, workflow.StateSubmitting, f.ctrl.State("42"))

	_, err := f.ctrl.Transition(context.Background(), "42", workflow.StatusDone, workflow.Input{})
	assert.ErrorIs(t, err, workflow.ErrAlreadyProcessing)

	close(f.remote.gate)
	wg.Wait()
	require.NoError(t, firstErr)

	stored, _ := f.store.Get("42")
	assert.Equal(t, workflow.StatusApproved, stored.Status)
	assert.Len(t, f.remote.statuses, 1)
	assert.Equal(t, workflow.StateIdle, f.ctrl.State("42"))
	assert.Len(t, f.notifier.All(), 2)
}

func TestRemoteFailureLeavesStoreUntouched(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true, leave("42", workflow.StatusPending, "IT"))
	f.remote.err = &workflow.RemoteError{StatusCode: 409, Message: "record status has changed"}

	_, err := f.ctrl.Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
	assert.Equal(t, workflow.KindRemoteRejected, workflow.Classify(err))
	stored, _ := f.store.Get("42")
	assert.Equal(t, workflow.StatusPending, stored.Status)
	assert.Equal(t, "record status has changed", f.notifier.All()[0].Message)

	f.remote.err = errors.New("connection refused")
	_, err = f.ctrl.Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
	var nerr *workflow.NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, err.Error(), "please try again")
	assert.Equal(t, workflow.StateIdle, f.ctrl.State("42"))
}

func TestTransitionMissingRecord(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true)
	_, err := f.ctrl.Transition(context.Background(), "404", workflow.StatusApproved, workflow.Input{})
	assert.ErrorIs(t, err, workflow.ErrRecordNotFound)
	assert.Empty(t, f.remote.Calls())
}

func TestDestructiveTransitionNeedsConfirmation(t *testing.T) {
	f := newControllerFixture(workflow.KindMeetings, employee, false, meeting("1", workflow.StatusScheduled))

	_, err := f.ctrl.Transition(context.Background(), "1", workflow.StatusCancelled, workflow.Input{})
	assert.ErrorIs(t, err, workflow.ErrDeclined)
	assert.Len(t, f.prompts, 1)
	assert.Empty(t, f.remote.Calls())
}

func TestBulkForceApproveByDepartmentManager(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, itManager, true,
		leave("1", workflow.StatusPending, "IT"),
		leave("2", workflow.StatusPending, "IT"),
		leave("3", workflow.StatusPending, "IT"),
	)

	_, err := f.ctrl.BulkTransition(context.Background(), []string{"1", "2", "3"}, workflow.StatusForceApproved, "override")
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields["ids"], 3)
	assert.Empty(t, f.remote.Calls())
	assert.Len(t, f.notifier.All(), 1)
}

func TestBulkRemarksCheckedOnce(t *testing.T) {
	f := newControllerFixture(workflow.KindTravelOrders, hrd, true,
		leave("1", workflow.StatusPending, "IT"),
		leave("2", workflow.StatusApproved, "IT"),
	)

	_, err := f.ctrl.BulkTransition(context.Background(), []string{"1", "2"}, workflow.StatusVoided, "")
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"remarks are required to move to cancelled"}, verr.Fields["remarks"])
	assert.Empty(t, f.remote.Calls())
}

func TestBulkTransitionSelected(t *testing.T) {
	store := workflow.NewRecordStore()
	records := []workflow.Record{leave("1", workflow.StatusPending, "IT"), leave("2", workflow.StatusPending, "IT"), leave("3", workflow.StatusApproved, "IT")}
	store.ReplaceAll(records)
	remote := newFakeRemote(records...)
	sel := workflow.NewSelectionSet(mustKind(workflow.KindLeave).Table(), hrd, store, fixedVisible{"1", "2", "3"})
	ctrl, err := workflow.NewController(workflow.ControllerOptions{
		Kind:      mustKind(workflow.KindLeave),
		Store:     store,
		Selection: sel,
		Remote:    remote,
		Principal: hrd,
	})
	require.NoError(t, err)

	_, err = ctrl.BulkTransitionSelected(context.Background(), workflow.StatusApproved, "")
	assert.Equal(t, workflow.KindValidation, workflow.Classify(err))

	for _, id := range []string{"1", "2"} {
		_, err = sel.Toggle(id)
		require.NoError(t, err)
	}
	recs, err := ctrl.BulkTransitionSelected(context.Background(), workflow.StatusApproved, "")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, []string{"bulk"}, remote.Calls())
	assert.Equal(t, []string{"1", "2"}, remote.bulk[0].IDs)
	assert.Zero(t, sel.Len())

	for _, id := range []string{"1", "2"} {
		rec, _ := store.Get(id)
		assert.Equal(t, workflow.StatusApproved, rec.Status)
		assert.NotNil(t, rec.ApprovedAt)
	}
}

func TestBulkRejectsWhenAnyRecordInFlight(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true, leave("1", workflow.StatusPending, "IT"), leave("2", workflow.StatusPending, "IT"))
	f.remote.gate = make(chan struct{})
	f.remote.entered = make(chan struct{}, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.ctrl.Transition(context.Background(), "1", workflow.StatusApproved, workflow.Input{})
	}()
	<-f.remote.entered

	_, err := f.ctrl.BulkTransition(context.Background(), []string{"1", "2"}, workflow.StatusApproved, "")
	assert.ErrorIs(t, err, workflow.ErrAlreadyProcessing)
	assert.Equal(t, workflow.StateIdle, f.ctrl.State("2"))

	close(f.remote.gate)
	<-done
}

func TestDelete(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, workflow.Principal{UserID: "emp-1"}, true,
		leave("1", workflow.StatusPending, "IT"),
		leave("2", workflow.StatusApproved, "IT"),
		leave("3", workflow.StatusPending, "IT"),
	)

	require.NoError(t, f.ctrl.Delete(context.Background(), "1"))
	_, ok := f.store.Get("1")
	assert.False(t, ok)
	assert.Len(t, f.prompts, 1)

	assert.Equal(t, workflow.KindValidation, workflow.Classify(f.ctrl.Delete(context.Background(), "2")))
	assert.Equal(t, workflow.KindValidation, workflow.Classify(f.ctrl.Delete(context.Background(), "3")))
	assert.Equal(t, []string{"delete:1"}, f.remote.Calls())
}

func TestDeleteDeclined(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, superAdmin, false, leave("1", workflow.StatusPending, "IT"))
	assert.ErrorIs(t, f.ctrl.Delete(context.Background(), "1"), workflow.ErrDeclined)
	_, ok := f.store.Get("1")
	assert.True(t, ok)
}

func TestCreateAndUpdate(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true, leave("1", workflow.StatusPending, "IT"))
	start := day("2024-08-01T08:00")

	_, err := f.ctrl.Create(context.Background(), workflow.Draft{Title: "Vacation", Start: start, End: start.Add(-time.Hour)})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "employee_ids")
	assert.Contains(t, verr.Fields, "end")
	assert.Empty(t, f.remote.Calls())

	recs, err := f.ctrl.Create(context.Background(), workflow.Draft{
		Title:       "Vacation",
		EmployeeIDs: []string{"e1", "e2"},
		Start:       start,
		End:         start.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 3, f.store.Len())

	rec, err := f.ctrl.Update(context.Background(), "1", workflow.Draft{Title: "Sick leave", Location: "Home", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, rec.Status)
	stored, _ := f.store.Get("1")
	assert.Equal(t, "Home", stored.Location)
}

func TestLateCompletionAfterClose(t *testing.T) {
	f := newControllerFixture(workflow.KindLeave, hrd, true, leave("42", workflow.StatusPending, "IT"))
	f.remote.gate = make(chan struct{})
	f.remote.entered = make(chan struct{}, 1)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
		errCh <- err
	}()
	<-f.remote.entered
	f.ctrl.Close()
	close(f.remote.gate)

	assert.ErrorIs(t, <-errCh, workflow.ErrClosed)
	stored, _ := f.store.Get("42")
	assert.Equal(t, workflow.StatusPending, stored.Status)
}

func TestStateTransitionsAreObservable(t *testing.T) {
	store := workflow.NewRecordStore()
	store.ReplaceAll([]workflow.Record{leave("42", workflow.StatusPending, "IT")})
	var mu sync.Mutex
	var states []workflow.OperationState
	ctrl, err := workflow.NewController(workflow.ControllerOptions{
		Kind:      mustKind(workflow.KindLeave),
		Store:     store,
		Remote:    newFakeRemote(),
		Principal: hrd,
		OnStateChange: func(id string, s workflow.OperationState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	_, err = ctrl.Transition(context.Background(), "42", workflow.StatusApproved, workflow.Input{})
	require.NoError(t, err)
	assert.Equal(t, []workflow.OperationState{workflow.StateValidating, workflow.StateSubmitting, workflow.StateIdle}, states)
}
