package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

func TestReplaceAllEqualityGate(t *testing.T) {
	store := workflow.NewRecordStore()
	notified := 0
	store.Subscribe(func(uint64) { notified++ })

	records := []workflow.Record{leave("1", workflow.StatusPending, "IT"), leave("2", workflow.StatusPending, "HR")}
	assert.True(t, store.ReplaceAll(records))
	assert.Equal(t, 1, notified)

	// 结构相同的新切片不触发通知
	again := []workflow.Record{leave("1", workflow.StatusPending, "IT"), leave("2", workflow.StatusPending, "HR")}
	assert.False(t, store.ReplaceAll(again))
	assert.Equal(t, 1, notified)
	assert.Equal(t, uint64(1), store.Version())

	// 同一时刻不同时区视为相等
	again[0].Start = again[0].Start.In(time.FixedZone("PHT", 8*3600))
	assert.False(t, store.ReplaceAll(again))

	again[1].Status = workflow.StatusApproved
	assert.True(t, store.ReplaceAll(again))
	assert.Equal(t, 2, notified)
}

func TestApplyTransition(t *testing.T) {
	store := workflow.NewRecordStore()
	store.ReplaceAll([]workflow.Record{leave("42", workflow.StatusPending, "IT")})
	at := day("2024-06-01T12:00")

	rec, err := store.ApplyTransition("42", workflow.TransitionUpdate{
		Status:  workflow.StatusApproved,
		ActorID: "hrd-1",
		At:      at,
		Initial: []workflow.Status{workflow.StatusPending},
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, rec.Status)
	require.NotNil(t, rec.ApprovedAt)
	assert.True(t, rec.ApprovedAt.Equal(at))
	assert.Equal(t, "hrd-1", rec.ApprovedBy)

	// ApprovedAt 只设置一次
	rec, err = store.ApplyTransition("42", workflow.TransitionUpdate{
		Status:  workflow.StatusDone,
		ActorID: "emp-42",
		At:      at.Add(time.Hour),
		Initial: []workflow.Status{workflow.StatusPending},
	})
	require.NoError(t, err)
	assert.True(t, rec.ApprovedAt.Equal(at))
	assert.Equal(t, "hrd-1", rec.ApprovedBy)

	_, err = store.ApplyTransition("missing", workflow.TransitionUpdate{Status: workflow.StatusApproved})
	assert.ErrorIs(t, err, workflow.ErrRecordNotFound)
}

func TestApplyTransitionsIsAllOrNothing(t *testing.T) {
	store := workflow.NewRecordStore()
	store.ReplaceAll([]workflow.Record{leave("1", workflow.StatusPending, "IT"), leave("2", workflow.StatusPending, "IT")})

	_, err := store.ApplyTransitions([]string{"1", "3"}, workflow.TransitionUpdate{Status: workflow.StatusApproved})
	assert.ErrorIs(t, err, workflow.ErrRecordNotFound)

	rec, _ := store.Get("1")
	assert.Equal(t, workflow.StatusPending, rec.Status)
	assert.Equal(t, uint64(1), store.Version())
}

func TestRemoveAndUpsert(t *testing.T) {
	store := workflow.NewRecordStore()
	store.ReplaceAll([]workflow.Record{meeting("1", workflow.StatusScheduled), meeting("2", workflow.StatusScheduled), meeting("3", workflow.StatusScheduled)})

	require.NoError(t, store.Remove("2"))
	assert.ErrorIs(t, store.Remove("2"), workflow.ErrRecordNotFound)

	updated := meeting("3", workflow.StatusScheduled)
	updated.Title = "Renamed"
	store.Upsert(updated, meeting("4", workflow.StatusScheduled))

	var ids []string
	for _, r := range store.Snapshot() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "3", "4"}, ids)
	rec, ok := store.Get("3")
	require.True(t, ok)
	assert.Equal(t, "Renamed", rec.Title)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store := workflow.NewRecordStore()
	rec := meeting("1", workflow.StatusScheduled)
	rec.Participants = []workflow.Participant{{EmployeeID: "e1", Attendance: workflow.AttendanceConfirmed}}
	store.ReplaceAll([]workflow.Record{rec})

	snap := store.Snapshot()
	snap[0].Participants[0].Attendance = workflow.AttendanceAbsent
	snap[0].Status = workflow.StatusCancelled

	got, _ := store.Get("1")
	assert.Equal(t, workflow.AttendanceConfirmed, got.Participants[0].Attendance)
	assert.Equal(t, workflow.StatusScheduled, got.Status)
}
