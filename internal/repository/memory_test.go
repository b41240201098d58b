package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

func expenseSteps() domain.Steps {
	return domain.MustSteps(
		domain.StepSpec{Order: 1, ApproverType: domain.ApproverRole, ApproverValue: "manager"},
		domain.StepSpec{Order: 2, ApproverType: domain.ApproverRole, ApproverValue: "admin"},
	)
}

func TestMemoryWorkflowsScopedByOrg(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStore().Stores()

	wf := &domain.WorkflowDefinition{OrgID: "org-1", Name: "Expense", Steps: expenseSteps(), CreatedBy: "admin-1"}
	require.NoError(t, stores.Workflows.Create(ctx, wf))
	require.NotEmpty(t, wf.ID)
	require.False(t, wf.CreatedAt.IsZero())

	got, err := stores.Workflows.GetByID(ctx, "org-1", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Expense", got.Name)

	_, err = stores.Workflows.GetByID(ctx, "org-2", wf.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	other, err := stores.Workflows.List(ctx, "org-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryWorkflowListSortedByName(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStore().Stores()
	for _, name := range []string{"Travel", "Expense", "Leave"} {
		require.NoError(t, stores.Workflows.Create(ctx, &domain.WorkflowDefinition{OrgID: "org-1", Name: name, Steps: expenseSteps()}))
	}

	list, err := stores.Workflows.List(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Expense", "Leave", "Travel"}, []string{list[0].Name, list[1].Name, list[2].Name})
}

func TestMemoryWorkflowDeleteBlockedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStore().Stores()

	wf := &domain.WorkflowDefinition{OrgID: "org-1", Name: "Expense", Steps: expenseSteps()}
	require.NoError(t, stores.Workflows.Create(ctx, wf))
	require.NoError(t, stores.Requests.Create(ctx, &domain.ApprovalRequest{
		OrgID: "org-1", WorkflowID: wf.ID, Title: "Laptop", Status: domain.StatusPending, CurrentStep: 1, Steps: wf.Steps,
	}))

	err := stores.Workflows.Delete(ctx, "org-1", wf.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))

	n, err := stores.Requests.CountByWorkflow(ctx, "org-1", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryRequestsOrdering(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStore().Stores()

	var created []string
	for _, title := range []string{"first", "second", "third"} {
		req := &domain.ApprovalRequest{OrgID: "org-1", WorkflowID: "wf", Title: title, Status: domain.StatusPending, CurrentStep: 1, Steps: expenseSteps()}
		require.NoError(t, stores.Requests.Create(ctx, req))
		created = append(created, req.ID)
	}

	list, err := stores.Requests.ListByOrg(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{created[2], created[1], created[0]}, []string{list[0].ID, list[1].ID, list[2].ID})

	open, err := stores.Requests.ListOpenByOrg(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, created[0], open[0].ID)
}

func TestMemoryApplyTransitionChecksVersion(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStore().Stores()

	req := &domain.ApprovalRequest{OrgID: "org-1", WorkflowID: "wf", Title: "Laptop", Status: domain.StatusPending, CurrentStep: 1, Steps: expenseSteps()}
	require.NoError(t, stores.Requests.Create(ctx, req))
	require.Equal(t, 1, req.Version)

	next := req.Clone()
	next.Status, next.CurrentStep = domain.StatusInProgress, 2
	entry := &domain.HistoryEntry{RequestID: req.ID, OrgID: "org-1", StepOrder: 1, ActorID: "m-1", Action: domain.ActionApprove}
	require.NoError(t, stores.Requests.ApplyTransition(ctx, next, 1, entry))
	assert.Equal(t, 2, next.Version)
	assert.NotEmpty(t, entry.ID)

	stale := req.Clone()
	stale.Status, stale.CurrentStep = domain.StatusInProgress, 2
	err := stores.Requests.ApplyTransition(ctx, stale, 1, &domain.HistoryEntry{RequestID: req.ID, OrgID: "org-1", StepOrder: 1, ActorID: "m-2", Action: domain.ActionApprove})
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))

	history, err := stores.History.ListByRequest(ctx, "org-1", req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "m-1", history[0].ActorID)

	stored, err := stores.Requests.GetByID(ctx, "org-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, stored.Status)
	assert.Equal(t, 2, stored.CurrentStep)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStore().Stores()

	req := &domain.ApprovalRequest{OrgID: "org-1", WorkflowID: "wf", Title: "Laptop", Status: domain.StatusPending, CurrentStep: 1, Steps: expenseSteps()}
	require.NoError(t, stores.Requests.Create(ctx, req))

	got, err := stores.Requests.GetByID(ctx, "org-1", req.ID)
	require.NoError(t, err)
	got.Status = domain.StatusApproved

	again, err := stores.Requests.GetByID(ctx, "org-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestMemoryIsolatesNestedPayload(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStore().Stores()

	payload := map[string]any{"vendor": map[string]any{"name": "Acme"}}
	req := &domain.ApprovalRequest{OrgID: "org-1", WorkflowID: "wf", Title: "Laptop", Payload: payload,
		Status: domain.StatusPending, CurrentStep: 1, Steps: expenseSteps()}
	require.NoError(t, stores.Requests.Create(ctx, req))
	payload["vendor"].(map[string]any)["name"] = "changed by caller"

	got, err := stores.Requests.GetByID(ctx, "org-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Payload["vendor"].(map[string]any)["name"])
	got.Payload["vendor"].(map[string]any)["name"] = "changed by reader"

	again, err := stores.Requests.GetByID(ctx, "org-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Payload["vendor"].(map[string]any)["name"])
}
