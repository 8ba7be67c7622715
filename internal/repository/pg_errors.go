package repository

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// Postgres SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
)

// classify turns a driver error into an application error. Errors that are
// already application errors, such as those returned by a decision, pass
// through untouched.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", workflow.ErrFlowAlreadyExists, pgErr.ConstraintName)
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled:
			return fmt.Errorf("%w: %s", workflow.ErrBusy, pgErr.Message)
		}
	}
	return errors.Wrap(err, errors.ErrCodeInternal, msg)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
