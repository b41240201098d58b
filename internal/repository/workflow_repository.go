package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/ids"
)

// WorkflowRepository stores workflow definitions in Postgres. The step list
// lives in a JSONB column.
type WorkflowRepository struct {
	db *database.DB
}

var _ WorkflowStore = (*WorkflowRepository)(nil)

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a definition, assigning an id when absent.
func (r *WorkflowRepository) Create(ctx context.Context, wf *domain.WorkflowDefinition) error {
	if wf.ID == "" {
		wf.ID = ids.New()
	}
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal workflow steps")
	}

	query := `
		INSERT INTO workflow_definitions
		    (id, org_id, name, description, steps, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		wf.ID,
		wf.OrgID,
		wf.Name,
		wf.Description,
		stepsJSON,
		wf.CreatedBy,
	).Scan(&wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return database.Classify(err, "failed to create workflow definition")
	}
	return nil
}

// Update replaces name, description and steps.
func (r *WorkflowRepository) Update(ctx context.Context, wf *domain.WorkflowDefinition) error {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal workflow steps")
	}

	query := `
		UPDATE workflow_definitions
		SET name        = $3,
		    description = $4,
		    steps       = $5,
		    updated_at  = NOW()
		WHERE id = $1 AND org_id = $2
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query, wf.ID, wf.OrgID, wf.Name, wf.Description, stepsJSON).Scan(&wf.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("workflow_definition", wf.ID)
	}
	if err != nil {
		return database.Classify(err, "failed to update workflow definition")
	}
	return nil
}

// Delete removes a definition. The foreign key from approval_requests keeps
// referenced definitions in place.
func (r *WorkflowRepository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflow_definitions WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23503" {
			return errors.InvalidState("workflow definition is referenced by approval requests")
		}
		return database.Classify(err, "failed to delete workflow definition")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("workflow_definition", id)
	}
	return nil
}

// GetByID retrieves a definition within an organization.
func (r *WorkflowRepository) GetByID(ctx context.Context, orgID, id string) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT id, org_id, name, description, steps, created_by, created_at, updated_at
		FROM workflow_definitions
		WHERE id = $1 AND org_id = $2
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id, orgID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("workflow_definition", id)
	}
	if err != nil {
		return nil, database.Classify(err, "failed to get workflow definition")
	}
	return wf, nil
}

// List returns an organization's definitions ordered by name.
func (r *WorkflowRepository) List(ctx context.Context, orgID string) ([]*domain.WorkflowDefinition, error) {
	query := `
		SELECT id, org_id, name, description, steps, created_by, created_at, updated_at
		FROM workflow_definitions
		WHERE org_id = $1
		ORDER BY name ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, database.Classify(err, "failed to list workflow definitions")
	}
	defer rows.Close()

	var out []*domain.WorkflowDefinition
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, database.Classify(err, "failed to scan workflow definition")
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, "failed to list workflow definitions")
	}
	return out, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*domain.WorkflowDefinition, error) {
	wf := &domain.WorkflowDefinition{}
	var stepsJSON []byte
	err := row.Scan(
		&wf.ID,
		&wf.OrgID,
		&wf.Name,
		&wf.Description,
		&stepsJSON,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stepsJSON, &wf.Steps); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "stored workflow steps are invalid")
	}
	return wf, nil
}
