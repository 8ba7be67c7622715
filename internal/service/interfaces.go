package service

import (
	"context"

	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// FlowStore persists validation aggregates. Mutate must apply the decision
// returned by decide atomically, or not at all.
type FlowStore interface {
	CreateFlow(ctx context.Context, doc *workflow.Document, flow *workflow.Flow, steps []*workflow.Step) (*workflow.Aggregate, error)
	Load(ctx context.Context, documentID string) (*workflow.Aggregate, error)
	Mutate(ctx context.Context, documentID string, decide func(*workflow.Aggregate) (*workflow.Decision, error)) (*workflow.Outcome, error)
	ListActions(ctx context.Context, documentID string) ([]*workflow.Action, error)
	ListPendingForApprover(ctx context.Context, approverID string) ([]*workflow.PendingApproval, error)
	ActorStats(ctx context.Context, actorID string) (*workflow.ApprovalStats, error)
}

// DirectoryClientInterface resolves company membership from the directory
// service.
type DirectoryClientInterface interface {
	// UserCompany returns the company the user belongs to.
	UserCompany(ctx context.Context, userID string) (string, error)
}

// NotificationPublisherInterface fans validation events out to recipients.
// Publishing never fails the operation that triggered it.
type NotificationPublisherInterface interface {
	PublishValidationEvent(ctx context.Context, eventType, documentID, companyID, actorID string, recipients []string, payload map[string]any)
}

// Event types published after a committed change.
const (
	EventFlowCreated      = "flow_created"
	EventApprovalRequired = "approval_required"
	EventDocumentApproved = "document_approved"
	EventDocumentRejected = "document_rejected"
)
