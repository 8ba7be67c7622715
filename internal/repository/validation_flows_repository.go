package repository

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// ValidationFlowsRepository manages the 1:1 flow row of a document. The flow
// row is the lock target for every mutation of its aggregate.
type ValidationFlowsRepository struct{}

// Insert creates an active flow and fills in its generated fields. A second
// flow for the same document violates the unique document_id constraint.
func (r *ValidationFlowsRepository) Insert(ctx context.Context, q querier, flow *workflow.Flow) error {
	query := `
		INSERT INTO validation_flows (document_id, is_active)
		VALUES ($1, TRUE)
		RETURNING id, is_active, created_at, updated_at
	`
	err := q.QueryRow(ctx, query, flow.DocumentID).
		Scan(&flow.ID, &flow.IsActive, &flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		return classify(err, "failed to create validation flow")
	}
	return nil
}

// GetByDocument returns the document's flow or nil when it has none. With
// forUpdate the row stays locked until the transaction ends.
func (r *ValidationFlowsRepository) GetByDocument(ctx context.Context, q querier, documentID string, forUpdate bool) (*workflow.Flow, error) {
	query := `
		SELECT id, document_id, is_active, created_at, updated_at
		FROM validation_flows
		WHERE document_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	flow := &workflow.Flow{}
	err := q.QueryRow(ctx, query, documentID).
		Scan(&flow.ID, &flow.DocumentID, &flow.IsActive, &flow.CreatedAt, &flow.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "failed to get validation flow")
	}
	return flow, nil
}

// Deactivate marks an active flow terminal.
func (r *ValidationFlowsRepository) Deactivate(ctx context.Context, q querier, flowID string) error {
	query := `
		UPDATE validation_flows
		SET is_active  = FALSE,
		    updated_at = NOW()
		WHERE id = $1 AND is_active
	`
	tag, err := q.Exec(ctx, query, flowID)
	if err != nil {
		return classify(err, "failed to deactivate validation flow")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: flow %s", workflow.ErrFlowNotActive, flowID)
	}
	return nil
}
