// Package repository persists workflow definitions, approval requests and
// their history ledger.
package repository

import (
	"context"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/domain"
)

// WorkflowStore owns workflow definitions, scoped by organization.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.WorkflowDefinition) error
	Update(ctx context.Context, wf *domain.WorkflowDefinition) error
	Delete(ctx context.Context, orgID, id string) error
	GetByID(ctx context.Context, orgID, id string) (*domain.WorkflowDefinition, error)
	List(ctx context.Context, orgID string) ([]*domain.WorkflowDefinition, error)
}

// RequestStore owns approval requests. ApplyTransition is the only mutation
// after creation and always appends the matching history entry atomically.
type RequestStore interface {
	Create(ctx context.Context, req *domain.ApprovalRequest) error
	GetByID(ctx context.Context, orgID, id string) (*domain.ApprovalRequest, error)
	// ListByOrg returns requests newest-first.
	ListByOrg(ctx context.Context, orgID string) ([]*domain.ApprovalRequest, error)
	// ListOpenByOrg returns pending and in_progress requests oldest-first.
	ListOpenByOrg(ctx context.Context, orgID string) ([]*domain.ApprovalRequest, error)
	CountByWorkflow(ctx context.Context, orgID, workflowID string) (int, error)
	// ApplyTransition appends entry and stores req's status, current step and
	// completion time, provided the stored version still equals
	// expectedVersion. On success req.Version is advanced; on a version
	// mismatch it returns a CONFLICT error and nothing is written.
	ApplyTransition(ctx context.Context, req *domain.ApprovalRequest, expectedVersion int, entry *domain.HistoryEntry) error
}

// HistoryLedger reads the append-only action log.
type HistoryLedger interface {
	// ListByRequest returns entries oldest-first.
	ListByRequest(ctx context.Context, orgID, requestID string) ([]*domain.HistoryEntry, error)
}

// Stores bundles the three stores a service needs.
type Stores struct {
	Workflows WorkflowStore
	Requests  RequestStore
	History   HistoryLedger
}

// NewPostgresStores wires the Postgres repositories over one pool.
func NewPostgresStores(db *database.DB) Stores {
	history := NewHistoryRepository(db)
	return Stores{
		Workflows: NewWorkflowRepository(db),
		Requests:  NewRequestRepository(db, history),
		History:   history,
	}
}
