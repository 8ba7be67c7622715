package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// ValidationStepsRepository handles the approver slots of a flow.
type ValidationStepsRepository struct{}

// InsertAll creates the flow's steps in order, all pending.
func (r *ValidationStepsRepository) InsertAll(ctx context.Context, q querier, flowID string, steps []*workflow.Step) error {
	query := `
		INSERT INTO validation_steps (flow_id, step_order, approver_id, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, status, created_at, updated_at
	`
	for _, step := range steps {
		step.FlowID = flowID
		err := q.QueryRow(ctx, query, flowID, step.Order, step.ApproverID).
			Scan(&step.ID, &step.Status, &step.CreatedAt, &step.UpdatedAt)
		if err != nil {
			return classify(err, "failed to create validation step")
		}
	}
	return nil
}

// ListByFlow returns the flow's steps ordered by step_order.
func (r *ValidationStepsRepository) ListByFlow(ctx context.Context, q querier, flowID string) ([]*workflow.Step, error) {
	query := `
		SELECT id, flow_id, step_order, approver_id, status, created_at, updated_at
		FROM validation_steps
		WHERE flow_id = $1
		ORDER BY step_order ASC
	`
	rows, err := q.Query(ctx, query, flowID)
	if err != nil {
		return nil, classify(err, "failed to list validation steps")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Transition moves a step from one status to another. The update only
// applies when the step still holds the expected status.
func (r *ValidationStepsRepository) Transition(ctx context.Context, q querier, step *workflow.Step, from workflow.StepStatus) error {
	query := `
		UPDATE validation_steps
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`
	err := q.QueryRow(ctx, query, step.ID, from, step.Status).Scan(&step.UpdatedAt)
	if isNoRows(err) {
		return fmt.Errorf("%w: step %d changed concurrently", workflow.ErrBusy, step.Order)
	}
	if err != nil {
		return classify(err, "failed to update validation step")
	}
	return nil
}

// ListPendingForApprover returns, per active flow, the approver's lowest
// pending step.
func (r *ValidationStepsRepository) ListPendingForApprover(ctx context.Context, q querier, approverID string) ([]*workflow.PendingApproval, error) {
	query := `
		SELECT d.id, d.company_id, d.entity_id, f.id, MIN(s.step_order), f.created_at
		FROM validation_steps s
		JOIN validation_flows f ON f.id = s.flow_id
		JOIN documents d        ON d.id = f.document_id
		WHERE s.approver_id = $1
		  AND s.status = 'pending'
		  AND f.is_active
		GROUP BY d.id, d.company_id, d.entity_id, f.id, f.created_at
		ORDER BY f.created_at ASC, d.id ASC
	`
	rows, err := q.Query(ctx, query, approverID)
	if err != nil {
		return nil, classify(err, "failed to list pending approvals")
	}
	defer rows.Close()

	var out []*workflow.PendingApproval
	for rows.Next() {
		p := &workflow.PendingApproval{}
		if err := rows.Scan(&p.DocumentID, &p.CompanyID, &p.EntityID, &p.FlowID, &p.StepOrder, &p.FlowCreatedAt); err != nil {
			return nil, classify(err, "failed to scan pending approval")
		}
		out = append(out, p)
	}
	return out, classify(rows.Err(), "failed to iterate pending approvals")
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ValidationStepsRepository) scanStep(row rowScanner) (*workflow.Step, error) {
	s := &workflow.Step{}
	err := row.Scan(
		&s.ID,
		&s.FlowID,
		&s.Order,
		&s.ApproverID,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ValidationStepsRepository) scanRows(rows pgx.Rows) ([]*workflow.Step, error) {
	var steps []*workflow.Step
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, classify(err, "failed to scan validation step")
		}
		steps = append(steps, s)
	}
	return steps, classify(rows.Err(), "failed to iterate validation steps")
}
