package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

const stepsJSON = `[{"order":1,"approver_type":"role","approver_value":"manager","required":true},{"order":2,"approver_type":"role","approver_value":"admin","required":true}]`

var requestCols = []string{
	"id", "org_id", "workflow_id", "title", "description", "request_type", "payload",
	"requester_id", "status", "current_step", "steps", "version",
	"created_at", "updated_at", "completed_at",
}

func newMockStores(t *testing.T) (pgxmock.PgxPoolIface, Stores) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresStores(database.NewWithPool(mock))
}

func TestWorkflowRepositoryCreate(t *testing.T) {
	mock, stores := newMockStores(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO workflow_definitions").
		WithArgs(pgxmock.AnyArg(), "org-1", "Expense", "", pgxmock.AnyArg(), "admin-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	wf := &domain.WorkflowDefinition{OrgID: "org-1", Name: "Expense", Steps: expenseSteps(), CreatedBy: "admin-1"}
	require.NoError(t, stores.Workflows.Create(context.Background(), wf))
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, now, wf.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryGetByID(t *testing.T) {
	mock, stores := newMockStores(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM workflow_definitions").
		WithArgs("wf-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "org_id", "name", "description", "steps", "created_by", "created_at", "updated_at"}).
			AddRow("wf-1", "org-1", "Expense", "travel and meals", []byte(stepsJSON), "admin-1", now, now))

	wf, err := stores.Workflows.GetByID(context.Background(), "org-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, wf.Steps.Len())
	step, _ := wf.Steps.At(2)
	assert.Equal(t, domain.RoleApprover{Role: "admin"}, step.Approver)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryGetByIDNotFound(t *testing.T) {
	mock, stores := newMockStores(t)

	mock.ExpectQuery("FROM workflow_definitions").
		WithArgs("missing", "org-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := stores.Workflows.GetByID(context.Background(), "org-1", "missing")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestWorkflowRepositoryGetByIDUnavailable(t *testing.T) {
	mock, stores := newMockStores(t)

	mock.ExpectQuery("FROM workflow_definitions").
		WithArgs("wf-1", "org-1").
		WillReturnError(context.DeadlineExceeded)

	_, err := stores.Workflows.GetByID(context.Background(), "org-1", "wf-1")
	assert.True(t, errors.Is(err, errors.ErrCodeUnavailable), "got %v", err)
}

func TestWorkflowRepositoryDelete(t *testing.T) {
	mock, stores := newMockStores(t)

	mock.ExpectExec("DELETE FROM workflow_definitions").
		WithArgs("wf-1", "org-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	err := stores.Workflows.Delete(context.Background(), "org-1", "wf-1")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	mock.ExpectExec("DELETE FROM workflow_definitions").
		WithArgs("wf-1", "org-1").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	err = stores.Workflows.Delete(context.Background(), "org-1", "wf-1")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCreate(t *testing.T) {
	mock, stores := newMockStores(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO approval_requests").
		WithArgs(pgxmock.AnyArg(), "org-1", "wf-1", "Team dinner", "", "expense", pgxmock.AnyArg(),
			"u-1", "pending", 1, pgxmock.AnyArg(), 1).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	req := &domain.ApprovalRequest{
		OrgID: "org-1", WorkflowID: "wf-1", Title: "Team dinner", RequestType: domain.RequestTypeExpense,
		Payload: map[string]any{"amount": 120}, RequesterID: "u-1",
		Status: domain.StatusPending, CurrentStep: 1, Steps: expenseSteps(),
	}
	require.NoError(t, stores.Requests.Create(context.Background(), req))
	assert.Equal(t, 1, req.Version)
	assert.NotEmpty(t, req.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByID(t *testing.T) {
	mock, stores := newMockStores(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM approval_requests WHERE id").
		WithArgs("r-1", "org-1").
		WillReturnRows(pgxmock.NewRows(requestCols).AddRow(
			"r-1", "org-1", "wf-1", "Team dinner", "", "expense", []byte(`{"amount":120}`),
			"u-1", "in_progress", 2, []byte(stepsJSON), 3,
			now, now, (*time.Time)(nil),
		))

	req, err := stores.Requests.GetByID(context.Background(), "org-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, req.Status)
	assert.Equal(t, domain.RequestTypeExpense, req.RequestType)
	assert.Equal(t, 2, req.CurrentStep)
	assert.Equal(t, 3, req.Version)
	assert.Equal(t, 2, req.TotalSteps())
	assert.EqualValues(t, 120, req.Payload["amount"])
	assert.Nil(t, req.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApplyTransition(t *testing.T) {
	mock, stores := newMockStores(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO approval_history").
		WithArgs(pgxmock.AnyArg(), "r-1", "org-1", 1, "m-1", "approve", "looks fine").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery("UPDATE approval_requests").
		WithArgs("r-1", "org-1", "in_progress", 2, pgxmock.AnyArg(), 1).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	req := &domain.ApprovalRequest{ID: "r-1", OrgID: "org-1", Status: domain.StatusInProgress, CurrentStep: 2, Version: 1}
	entry := &domain.HistoryEntry{RequestID: "r-1", OrgID: "org-1", StepOrder: 1, ActorID: "m-1", Action: domain.ActionApprove, Comment: "looks fine"}

	require.NoError(t, stores.Requests.ApplyTransition(context.Background(), req, 1, entry))
	assert.Equal(t, 2, req.Version)
	assert.Equal(t, now, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApplyTransitionConflict(t *testing.T) {
	mock, stores := newMockStores(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO approval_history").
		WithArgs(pgxmock.AnyArg(), "r-1", "org-1", 1, "m-1", "approve", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery("UPDATE approval_requests").
		WithArgs("r-1", "org-1", "in_progress", 2, pgxmock.AnyArg(), 1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	req := &domain.ApprovalRequest{ID: "r-1", OrgID: "org-1", Status: domain.StatusInProgress, CurrentStep: 2, Version: 1}
	entry := &domain.HistoryEntry{RequestID: "r-1", OrgID: "org-1", StepOrder: 1, ActorID: "m-1", Action: domain.ActionApprove}

	err := stores.Requests.ApplyTransition(context.Background(), req, 1, entry)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "got %v", err)
	assert.Equal(t, 1, req.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepositoryListByRequest(t *testing.T) {
	mock, stores := newMockStores(t)
	t1 := time.Now().UTC()
	t2 := t1.Add(time.Second)

	mock.ExpectQuery("FROM approval_history").
		WithArgs("r-1", "org-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "request_id", "org_id", "step_order", "actor_id", "action", "comment", "created_at"}).
			AddRow("h-1", "r-1", "org-1", 1, "m-1", "approve", "", t1).
			AddRow("h-2", "r-1", "org-1", 2, "a-1", "reject", "over budget", t2))

	entries, err := stores.History.ListByRequest(context.Background(), "org-1", "r-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionApprove, entries[0].Action)
	assert.Equal(t, domain.ActionReject, entries[1].Action)
	assert.Equal(t, "over budget", entries[1].Comment)
	assert.NoError(t, mock.ExpectationsWereMet())
}
