package workflow

import "github.com/pesio-ai/be-doc-validations/internal/platform/errors"

// Sentinel errors. Callers attach detail with fmt.Errorf("%w: ...") and match
// with errors.Is; errors.CodeOf yields the transport-neutral kind.
var (
	ErrInvalidFlowSpec   = errors.New(errors.ErrCodeInvalidInput, "invalid validation flow spec")
	ErrFlowAlreadyExists = errors.New(errors.ErrCodeConflict, "validation flow already exists")
	ErrNotAnApprover     = errors.New(errors.ErrCodeForbidden, "actor is not an assigned approver")
	ErrFlowNotActive     = errors.New(errors.ErrCodeConflict, "validation flow is not active")
	ErrFlowNotFound      = errors.New(errors.ErrCodeNotFound, "validation flow not found")
	ErrDocumentNotFound  = errors.New(errors.ErrCodeNotFound, "document not found")
	ErrBusy              = errors.New(errors.ErrCodeUnavailable, "validation flow is busy, retry later")

	ErrInvariantViolation = errors.New(errors.ErrCodeInternal, "validation invariant violated")
)
