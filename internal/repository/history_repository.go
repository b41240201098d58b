package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/ids"
)

// HistoryRepository reads and appends approval_history rows. The table has an
// update/delete-prevention trigger, so append is the only mutation exposed and
// it is only reachable inside a request transition.
type HistoryRepository struct {
	db *database.DB
}

var _ HistoryLedger = (*HistoryRepository)(nil)

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// appendTx inserts one entry using the caller's transaction.
func (r *HistoryRepository) appendTx(ctx context.Context, tx pgx.Tx, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}

	query := `
		INSERT INTO approval_history
		    (id, request_id, org_id, step_order, actor_id, action, comment)
		VALUES ($1, $2, $3, $4, $5, $6::approval_action, $7)
		RETURNING created_at
	`

	err := tx.QueryRow(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.OrgID,
		entry.StepOrder,
		entry.ActorID,
		string(entry.Action),
		entry.Comment,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return database.Classify(err, "failed to append approval history")
	}
	return nil
}

// ListByRequest returns the full ledger for a request ordered oldest-first.
func (r *HistoryRepository) ListByRequest(ctx context.Context, orgID, requestID string) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT id, request_id, org_id, step_order, actor_id, action, comment, created_at
		FROM approval_history
		WHERE request_id = $1 AND org_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID, orgID)
	if err != nil {
		return nil, database.Classify(err, "failed to get approval history")
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		entry := &domain.HistoryEntry{}
		var action string
		err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.OrgID,
			&entry.StepOrder,
			&entry.ActorID,
			&action,
			&entry.Comment,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval history entry")
		}
		entry.Action = domain.Action(action)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, "failed to get approval history")
	}
	return entries, nil
}
