package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// ValidationActionsRepository appends and reads the audit trail. The table
// rejects UPDATE and DELETE through a trigger, so Append is the only write.
type ValidationActionsRepository struct{}

// Append inserts one action and fills in its ID and timestamp.
func (r *ValidationActionsRepository) Append(ctx context.Context, q querier, a *workflow.Action) error {
	query := `
		INSERT INTO validation_actions (document_id, step_id, actor_id, action, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query, a.DocumentID, a.StepID, a.ActorID, a.Action, a.Reason).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return classify(err, "failed to append validation action")
	}
	return nil
}

// ListByDocument returns the document's actions oldest first.
func (r *ValidationActionsRepository) ListByDocument(ctx context.Context, q querier, documentID string) ([]*workflow.Action, error) {
	query := `
		SELECT a.id, a.document_id, a.step_id, s.step_order,
		       a.actor_id, a.action, a.reason, a.created_at
		FROM validation_actions a
		JOIN validation_steps s ON s.id = a.step_id
		WHERE a.document_id = $1
		ORDER BY a.created_at ASC, s.step_order ASC
	`
	rows, err := q.Query(ctx, query, documentID)
	if err != nil {
		return nil, classify(err, "failed to list validation actions")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CountByActor returns how many approve and reject actions actorID recorded.
func (r *ValidationActionsRepository) CountByActor(ctx context.Context, q querier, actorID string) (approved, rejected int, err error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE action = 'approve'),
		       COUNT(*) FILTER (WHERE action = 'reject')
		FROM validation_actions
		WHERE actor_id = $1
	`
	if err := q.QueryRow(ctx, query, actorID).Scan(&approved, &rejected); err != nil {
		return 0, 0, classify(err, "failed to count validation actions")
	}
	return approved, rejected, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

func (r *ValidationActionsRepository) scanRows(rows pgx.Rows) ([]*workflow.Action, error) {
	var out []*workflow.Action
	for rows.Next() {
		a := &workflow.Action{}
		err := rows.Scan(
			&a.ID,
			&a.DocumentID,
			&a.StepID,
			&a.StepOrder,
			&a.ActorID,
			&a.Action,
			&a.Reason,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, classify(err, "failed to scan validation action")
		}
		out = append(out, a)
	}
	return out, classify(rows.Err(), "failed to iterate validation actions")
}
