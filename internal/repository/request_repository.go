package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/ids"
)

// RequestRepository stores approval requests. Each row carries a version
// column used for check-and-set updates.
type RequestRepository struct {
	db      *database.DB
	history *HistoryRepository
}

var _ RequestStore = (*RequestRepository)(nil)

// NewRequestRepository creates a new RequestRepository. Transitions append to
// the given history repository inside the same transaction.
func NewRequestRepository(db *database.DB, history *HistoryRepository) *RequestRepository {
	return &RequestRepository{db: db, history: history}
}

const requestColumns = `
	id, org_id, workflow_id, title, description, request_type, payload,
	requester_id, status, current_step, steps, version,
	created_at, updated_at, completed_at
`

// Create inserts a new request at version 1.
func (r *RequestRepository) Create(ctx context.Context, req *domain.ApprovalRequest) error {
	if req.ID == "" {
		req.ID = ids.New()
	}
	stepsJSON, err := json.Marshal(req.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal step snapshot")
	}
	var payloadJSON []byte
	if req.Payload != nil {
		payloadJSON, err = json.Marshal(req.Payload)
		if err != nil {
			return errors.InvalidInput("payload", "payload must be JSON serializable")
		}
	}
	req.Version = 1

	query := `
		INSERT INTO approval_requests
		    (id, org_id, workflow_id, title, description, request_type, payload,
		     requester_id, status, current_step, steps, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        $8, $9::approval_request_status, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		req.ID,
		req.OrgID,
		req.WorkflowID,
		req.Title,
		req.Description,
		string(req.RequestType),
		payloadJSON,
		req.RequesterID,
		string(req.Status),
		req.CurrentStep,
		stepsJSON,
		req.Version,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return database.Classify(err, "failed to create approval request")
	}
	return nil
}

// GetByID retrieves a request within an organization.
func (r *RequestRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM approval_requests WHERE id = $1 AND org_id = $2`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id, orgID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("approval_request", id)
	}
	if err != nil {
		return nil, database.Classify(err, "failed to get approval request")
	}
	return req, nil
}

// ListByOrg returns an organization's requests newest-first.
func (r *RequestRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE org_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, query, orgID)
}

// ListOpenByOrg returns non-terminal requests oldest-first.
func (r *RequestRepository) ListOpenByOrg(ctx context.Context, orgID string) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM approval_requests
		WHERE org_id = $1
		  AND status IN ('pending', 'in_progress')
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, query, orgID)
}

// CountByWorkflow counts requests referencing a workflow definition.
func (r *RequestRepository) CountByWorkflow(ctx context.Context, orgID, workflowID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM approval_requests WHERE org_id = $1 AND workflow_id = $2`,
		orgID, workflowID,
	).Scan(&n)
	if err != nil {
		return 0, database.Classify(err, "failed to count approval requests")
	}
	return n, nil
}

// ApplyTransition appends the history entry and updates the request with a
// version check, in one transaction.
func (r *RequestRepository) ApplyTransition(ctx context.Context, req *domain.ApprovalRequest, expectedVersion int, entry *domain.HistoryEntry) error {
	var updatedAt time.Time
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := r.history.appendTx(ctx, tx, entry); err != nil {
			return err
		}

		query := `
			UPDATE approval_requests
			SET status       = $3::approval_request_status,
			    current_step = $4,
			    completed_at = $5,
			    version      = version + 1,
			    updated_at   = NOW()
			WHERE id = $1 AND org_id = $2 AND version = $6
			RETURNING updated_at
		`

		err := tx.QueryRow(ctx, query,
			req.ID,
			req.OrgID,
			string(req.Status),
			req.CurrentStep,
			req.CompletedAt,
			expectedVersion,
		).Scan(&updatedAt)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.Conflict("approval request was modified concurrently")
		}
		if err != nil {
			return database.Classify(err, "failed to update approval request")
		}
		return nil
	})
	if err != nil {
		return err
	}

	req.Version = expectedVersion + 1
	req.UpdatedAt = updatedAt
	return nil
}

func (r *RequestRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ApprovalRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err, "failed to list approval requests")
	}
	defer rows.Close()

	var out []*domain.ApprovalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, database.Classify(err, "failed to scan approval request")
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, "failed to list approval requests")
	}
	return out, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

func scanRequest(row rowScanner) (*domain.ApprovalRequest, error) {
	req := &domain.ApprovalRequest{}
	var (
		requestType string
		status      string
		payloadJSON []byte
		stepsJSON   []byte
	)
	err := row.Scan(
		&req.ID,
		&req.OrgID,
		&req.WorkflowID,
		&req.Title,
		&req.Description,
		&requestType,
		&payloadJSON,
		&req.RequesterID,
		&status,
		&req.CurrentStep,
		&stepsJSON,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	req.RequestType = domain.RequestType(requestType)
	req.Status = domain.Status(status)

	if err := json.Unmarshal(stepsJSON, &req.Steps); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "stored step snapshot is invalid")
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "stored payload is invalid")
		}
	}
	return req, nil
}
