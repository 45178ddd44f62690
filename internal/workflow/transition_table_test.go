package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

func TestMeetingTable(t *testing.T) {
	table := mustKind(workflow.KindMeetings).Table()

	assert.True(t, table.CanTransition(workflow.StatusScheduled, workflow.StatusCompleted))
	assert.True(t, table.CanTransition(workflow.StatusPostponed, workflow.StatusCancelled))
	assert.True(t, table.CanTransition(workflow.StatusCancelled, workflow.StatusScheduled))
	assert.False(t, table.CanTransition(workflow.StatusCancelled, workflow.StatusCompleted))
	assert.False(t, table.CanTransition(workflow.StatusCompleted, workflow.StatusScheduled))

	edge, ok := table.Lookup(workflow.StatusCancelled, workflow.StatusScheduled)
	require.True(t, ok)
	assert.True(t, edge.RequiresSchedule)
	assert.Empty(t, table.Edges(workflow.StatusCompleted))
}

func TestLeaveTableRoles(t *testing.T) {
	table := mustKind(workflow.KindLeave).Table()
	rec := leave("42", workflow.StatusPending, "IT")

	tests := []struct {
		name      string
		principal workflow.Principal
		to        workflow.Status
		permitted bool
	}{
		{"hrd approves", hrd, workflow.StatusApproved, true},
		{"managing department manager approves", itManager, workflow.StatusApproved, true},
		{"department manager of other department", workflow.Principal{UserID: "m2", DepartmentManager: true, ManagedDepartments: []string{"Finance"}}, workflow.StatusApproved, false},
		{"employee cannot approve", employee, workflow.StatusApproved, false},
		{"employee can cancel", employee, workflow.StatusVoided, true},
		{"only super admin force approves", hrd, workflow.StatusForceApproved, false},
		{"super admin force approves", superAdmin, workflow.StatusForceApproved, true},
		{"anonymous cannot complete", workflow.Principal{}, workflow.StatusDone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge, ok := table.Lookup(rec.Status, tt.to)
			require.True(t, ok)
			assert.Equal(t, tt.permitted, edge.Permits(tt.principal, rec.Department))
		})
	}
}

func TestTravelOrderCancelRequiresRemarks(t *testing.T) {
	travel, _ := mustKind(workflow.KindTravelOrders).Table().Lookup(workflow.StatusApproved, workflow.StatusVoided)
	leaveEdge, _ := mustKind(workflow.KindLeave).Table().Lookup(workflow.StatusApproved, workflow.StatusVoided)

	assert.True(t, travel.RequiresRemarks)
	assert.False(t, leaveEdge.RequiresRemarks)

	// 出差单不按部门授权
	approve, _ := mustKind(workflow.KindTravelOrders).Table().Lookup(workflow.StatusPending, workflow.StatusApproved)
	assert.False(t, approve.Permits(itManager, "IT"))
}

func TestAllowed(t *testing.T) {
	table := mustKind(workflow.KindLeave).Table()

	allowed := table.Allowed(leave("1", workflow.StatusPending, "IT"), employee)
	var targets []workflow.Status
	for _, e := range allowed {
		targets = append(targets, e.To)
	}
	assert.ElementsMatch(t, []workflow.Status{workflow.StatusDone, workflow.StatusVoided}, targets)

	assert.Empty(t, table.Allowed(leave("1", workflow.StatusRejected, "IT"), superAdmin))
}

func TestNewTransitionTableRejectsDuplicates(t *testing.T) {
	_, err := workflow.NewTransitionTable([]workflow.TransitionRule{
		{From: []workflow.Status{"a"}, To: "b"},
		{From: []workflow.Status{"a", "c"}, To: "b"},
	})
	assert.Error(t, err)

	_, err = workflow.NewTransitionTable([]workflow.TransitionRule{{To: "b"}})
	assert.Error(t, err)
}

func TestParseRegistry(t *testing.T) {
	data := []byte(`
kinds:
  - name: overtime
    statuses: [pending, approved, rejected]
    initial: [pending]
    search_fields: [employee_name]
    transitions:
      - from: [pending]
        to: approved
        roles: [hrd_manager]
      - from: [pending]
        to: rejected
        roles: [hrd_manager]
        requires_remarks: true
`)
	reg, err := workflow.ParseRegistry(data)
	require.NoError(t, err)

	kind, ok := reg.Get("overtime")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/overtime/list", kind.Endpoints.Path(kind.Endpoints.List, kind.Name, ""))

	edge, ok := kind.Table().Lookup("pending", "rejected")
	require.True(t, ok)
	assert.True(t, edge.RequiresRemarks)
	assert.Equal(t, []workflow.Role{workflow.RoleHrdManager}, edge.Roles)
}

func TestParseRegistryRejectsUndeclaredStatus(t *testing.T) {
	_, err := workflow.ParseRegistry([]byte(`
kinds:
  - name: overtime
    statuses: [pending]
    initial: [pending]
    transitions:
      - from: [pending]
        to: approved
`))
	assert.ErrorContains(t, err, "undeclared status")
}

func TestDefaultRegistryNames(t *testing.T) {
	assert.Equal(t,
		[]string{workflow.KindEvents, workflow.KindLeave, workflow.KindMeetings, workflow.KindTravelOrders},
		workflow.DefaultRegistry().Names())
}

func TestCanDelete(t *testing.T) {
	kind := mustKind(workflow.KindLeave)
	rec := leave("5", workflow.StatusPending, "IT")

	assert.True(t, kind.CanDelete(rec, workflow.Principal{UserID: rec.CreatedBy}))
	assert.True(t, kind.CanDelete(rec, itManager))
	assert.True(t, kind.CanDelete(rec, superAdmin))
	assert.False(t, kind.CanDelete(rec, hrd))

	rec.Status = workflow.StatusApproved
	assert.False(t, kind.CanDelete(rec, superAdmin))
}
