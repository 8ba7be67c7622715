package repository

import (
	"context"
	_ "embed"

	"github.com/pesio-ai/be-doc-validations/internal/platform/database"
	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the validation tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *database.DB) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply validation schema")
	}
	return nil
}
