package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

type fixedVisible []string

func (v fixedVisible) VisibleIDs() []string { return v }

func TestSelectionToggle(t *testing.T) {
	store := workflow.NewRecordStore()
	store.ReplaceAll([]workflow.Record{
		leave("1", workflow.StatusPending, "IT"),
		leave("2", workflow.StatusRejected, "IT"),
	})
	sel := workflow.NewSelectionSet(mustKind(workflow.KindLeave).Table(), hrd, store, fixedVisible{"1", "2"})

	on, err := sel.Toggle("1")
	require.NoError(t, err)
	assert.True(t, on)

	// rejected 没有可用转换
	_, err = sel.Toggle("2")
	var verr *workflow.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = sel.Toggle("9")
	assert.ErrorIs(t, err, workflow.ErrRecordNotFound)

	on, err = sel.Toggle("1")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Zero(t, sel.Len())
}

func TestSelectAllVisibleIsSymmetric(t *testing.T) {
	store := workflow.NewRecordStore()
	store.ReplaceAll([]workflow.Record{
		leave("1", workflow.StatusPending, "IT"),
		leave("2", workflow.StatusApproved, "IT"),
		leave("3", workflow.StatusRejected, "IT"),
		leave("4", workflow.StatusPending, "IT"),
	})
	sel := workflow.NewSelectionSet(mustKind(workflow.KindLeave).Table(), hrd, store, fixedVisible{"1", "2", "3"})

	_, err := sel.Toggle("1")
	require.NoError(t, err)

	sel.SelectAllVisible()
	assert.Equal(t, []string{"1", "2"}, sel.IDs())

	sel.SelectAllVisible()
	assert.Empty(t, sel.IDs())

	// 不可见的选择不受 DeselectAll 影响
	_, err = sel.Toggle("4")
	require.NoError(t, err)
	sel.SelectAllVisible()
	sel.DeselectAll()
	assert.Equal(t, []string{"4"}, sel.IDs())
}

func TestSelectionPrunesRemovedRecords(t *testing.T) {
	store := workflow.NewRecordStore()
	store.ReplaceAll([]workflow.Record{leave("1", workflow.StatusPending, "IT"), leave("2", workflow.StatusPending, "IT")})
	sel := workflow.NewSelectionSet(mustKind(workflow.KindLeave).Table(), hrd, store, fixedVisible{"1", "2"})
	sel.SelectAllVisible()

	require.NoError(t, store.Remove("1"))
	assert.False(t, sel.Contains("1"))
	assert.True(t, sel.Contains("2"))

	sel.Close()
	assert.Zero(t, sel.Len())
}
