package repository

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// DocumentsRepository reads and updates the engine's document records.
// Document content lives in the Document Service; only identity, ownership
// and the derived validation status are kept here.
type DocumentsRepository struct{}

// Register inserts the document when it is not known yet. Existing rows are
// left untouched.
func (r *DocumentsRepository) Register(ctx context.Context, q querier, doc *workflow.Document) error {
	query := `
		INSERT INTO documents (id, company_id, entity_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := q.Exec(ctx, query, doc.ID, doc.CompanyID, doc.EntityID); err != nil {
		return classify(err, "failed to register document")
	}
	return nil
}

// Get returns a document, optionally locking its row for the rest of the
// transaction.
func (r *DocumentsRepository) Get(ctx context.Context, q querier, id string, forUpdate bool) (*workflow.Document, error) {
	query := `
		SELECT id, company_id, entity_id, validation_status, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	doc, err := r.scanDocument(q.QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, classify(err, "failed to get document")
	}
	return doc, nil
}

// SetStatus stores the projected validation status.
func (r *DocumentsRepository) SetStatus(ctx context.Context, q querier, id string, status workflow.Status) error {
	query := `
		UPDATE documents
		SET validation_status = $2,
		    updated_at        = NOW()
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query, id, nullableStatus(status))
	if err != nil {
		return classify(err, "failed to update document status")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrDocumentNotFound, id)
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

func (r *DocumentsRepository) scanDocument(row rowScanner) (*workflow.Document, error) {
	doc := &workflow.Document{}
	var status *string
	err := row.Scan(
		&doc.ID,
		&doc.CompanyID,
		&doc.EntityID,
		&status,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if status != nil {
		doc.ValidationStatus = workflow.Status(*status)
	}
	return doc, nil
}

func nullableStatus(s workflow.Status) *string {
	if s == workflow.StatusNone {
		return nil
	}
	v := string(s)
	return &v
}
