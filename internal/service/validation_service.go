package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pesio-ai/be-doc-validations/internal/lock"
	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/platform/logger"
	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

const tracerName = "github.com/pesio-ai/be-doc-validations/internal/service"

// ValidationService runs the hierarchical validation workflow. Every mutation
// holds the document's lock for its full read-modify-write.
type ValidationService struct {
	store     FlowStore
	locker    lock.Locker
	directory DirectoryClientInterface
	notifier  NotificationPublisherInterface
	canAct    workflow.CanActFunc
	tracer    trace.Tracer
	log       *logger.Logger
}

// Option configures optional collaborators.
type Option func(*ValidationService)

// WithDirectory enables company membership checks.
func WithDirectory(d DirectoryClientInterface) Option {
	return func(s *ValidationService) { s.directory = d }
}

// WithNotifier enables event publishing.
func WithNotifier(n NotificationPublisherInterface) Option {
	return func(s *ValidationService) { s.notifier = n }
}

// WithCanAct replaces the actor/approver identity predicate.
func WithCanAct(fn workflow.CanActFunc) Option {
	return func(s *ValidationService) { s.canAct = fn }
}

// NewValidationService creates a new ValidationService.
func NewValidationService(store FlowStore, locker lock.Locker, log *logger.Logger, opts ...Option) *ValidationService {
	s := &ValidationService{
		store:  store,
		locker: locker,
		canAct: workflow.SameApprover,
		tracer: otel.Tracer(tracerName),
		log:    log.Named("validation-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Requests & results ────────────────────────────────────────────────────────

// CreateFlowRequest asks for a new flow on a document.
type CreateFlowRequest struct {
	DocumentID string
	CompanyID  string
	EntityID   string
	Steps      []workflow.StepSpec
}

// DecisionRequest carries an approve or reject call.
type DecisionRequest struct {
	DocumentID string
	ActorID    string
	Reason     string
}

// ApproveResult reports which steps an approval moved.
type ApproveResult struct {
	DocumentID     string
	ApprovedOrders []int
	FullyApproved  bool
	Status         workflow.Status
	Actions        []*workflow.Action
}

// RejectResult reports the step a rejection landed on.
type RejectResult struct {
	DocumentID    string
	RejectedOrder int
	Status        workflow.Status
	Action        *workflow.Action
}

// StatusView is the read model of a document's validation.
type StatusView struct {
	DocumentID    string
	Status        workflow.Status
	HasValidation bool
	FlowID        string
	IsActive      bool
	IsCompleted   bool
	IsRejected    bool
	Steps         []*workflow.Step
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ── Create ────────────────────────────────────────────────────────────────────

// CreateFlow registers a document's approver hierarchy. All steps start
// pending and the document becomes pending in the same write.
func (s *ValidationService) CreateFlow(ctx context.Context, req *CreateFlowRequest) (agg *workflow.Aggregate, err error) {
	ctx, span := s.startSpan(ctx, "validation.CreateFlow", req.DocumentID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, errors.InvalidInput("document_id", "is required")
	}
	flow, steps, err := workflow.NewFlow(req.DocumentID, req.Steps)
	if err != nil {
		return nil, err
	}
	if err := s.assertApproversInCompany(ctx, req.CompanyID, req.Steps); err != nil {
		return nil, err
	}

	release, err := s.locker.Obtain(ctx, lock.DocumentKey(req.DocumentID))
	if err != nil {
		return nil, err
	}
	defer release()

	doc := &workflow.Document{ID: req.DocumentID, CompanyID: req.CompanyID, EntityID: req.EntityID}
	agg, err = s.store.CreateFlow(ctx, doc, flow, steps)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", req.DocumentID).
		Str("flow_id", agg.Flow.ID).
		Int("total_steps", len(agg.Steps)).
		Msg("Validation flow created")

	approvers := distinctApprovers(agg.Steps)
	s.publish(ctx, EventFlowCreated, agg, "", approvers, map[string]any{"total_steps": len(agg.Steps)})
	s.publish(ctx, EventApprovalRequired, agg, "", agg.PendingApprovers(), nil)
	return agg, nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve approves every pending step up to the actor's highest pending rank.
func (s *ValidationService) Approve(ctx context.Context, req *DecisionRequest) (res *ApproveResult, err error) {
	ctx, span := s.startSpan(ctx, "validation.Approve", req.DocumentID)
	defer func() { endSpan(span, err) }()

	outcome, err := s.decide(ctx, req, workflow.DecideApprove)
	if err != nil {
		return nil, err
	}

	agg := outcome.Aggregate
	res = &ApproveResult{
		DocumentID:     req.DocumentID,
		ApprovedOrders: outcome.Decision.Orders(),
		FullyApproved:  outcome.Decision.Status == workflow.StatusApproved,
		Status:         outcome.Decision.Status,
		Actions:        outcome.Actions,
	}
	span.SetAttributes(attribute.IntSlice("approved_orders", res.ApprovedOrders))

	s.log.Info().
		Str("document_id", req.DocumentID).
		Str("actor_id", req.ActorID).
		Ints("approved_orders", res.ApprovedOrders).
		Str("status", res.Status.String()).
		Msg("Validation steps approved")

	payload := map[string]any{"approved_orders": res.ApprovedOrders}
	if res.FullyApproved {
		s.log.Info().Str("document_id", req.DocumentID).Msg("Document fully approved")
		s.publish(ctx, EventDocumentApproved, agg, req.ActorID, distinctApprovers(agg.Steps), payload)
	} else {
		s.publish(ctx, EventApprovalRequired, agg, req.ActorID, agg.PendingApprovers(), payload)
	}
	return res, nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject rejects the document. Rejection is terminal.
func (s *ValidationService) Reject(ctx context.Context, req *DecisionRequest) (res *RejectResult, err error) {
	ctx, span := s.startSpan(ctx, "validation.Reject", req.DocumentID)
	defer func() { endSpan(span, err) }()

	outcome, err := s.decide(ctx, req, workflow.DecideReject)
	if err != nil {
		return nil, err
	}

	res = &RejectResult{
		DocumentID:    req.DocumentID,
		RejectedOrder: outcome.Decision.RejectedOrder(),
		Status:        outcome.Decision.Status,
	}
	if len(outcome.Actions) > 0 {
		res.Action = outcome.Actions[0]
	}

	s.log.Info().
		Str("document_id", req.DocumentID).
		Str("actor_id", req.ActorID).
		Int("rejected_order", res.RejectedOrder).
		Msg("Document rejected")

	s.publish(ctx, EventDocumentRejected, outcome.Aggregate, req.ActorID,
		distinctApprovers(outcome.Aggregate.Steps),
		map[string]any{"rejected_order": res.RejectedOrder, "reason": req.Reason})
	return res, nil
}

type decideFunc func(agg *workflow.Aggregate, actorID, reason string, canAct workflow.CanActFunc) (*workflow.Decision, error)

// decide runs one approve or reject under the document lock.
func (s *ValidationService) decide(ctx context.Context, req *DecisionRequest, fn decideFunc) (*workflow.Outcome, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, errors.InvalidInput("document_id", "is required")
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, errors.InvalidInput("actor_id", "is required")
	}

	// Membership is resolved before the lock is taken; Mutate decides again
	// under the lock against the current state.
	current, err := s.store.Load(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if _, err := fn(current, req.ActorID, req.Reason, s.canAct); err != nil {
		return nil, err
	}
	if err := s.assertActorInCompany(ctx, current.Document.CompanyID, req.ActorID); err != nil {
		return nil, err
	}

	release, err := s.locker.Obtain(ctx, lock.DocumentKey(req.DocumentID))
	if err != nil {
		return nil, err
	}
	defer release()

	return s.store.Mutate(ctx, req.DocumentID, func(agg *workflow.Aggregate) (*workflow.Decision, error) {
		if err := workflow.Verify(agg); err != nil {
			s.log.Warn().Err(err).
				Str("document_id", req.DocumentID).
				Msg("Persisted validation status disagrees with steps; recomputing")
		}
		return fn(agg, req.ActorID, req.Reason, s.canAct)
	})
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetStatus returns the document's validation status and steps.
func (s *ValidationService) GetStatus(ctx context.Context, documentID string) (view *StatusView, err error) {
	ctx, span := s.startSpan(ctx, "validation.GetStatus", documentID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(documentID) == "" {
		return nil, errors.InvalidInput("document_id", "is required")
	}
	agg, err := s.store.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}

	view = &StatusView{DocumentID: documentID, Status: agg.Document.ValidationStatus}
	if agg.Flow == nil {
		return view, nil
	}
	view.HasValidation = true
	view.FlowID = agg.Flow.ID
	view.IsActive = agg.Flow.IsActive
	view.IsCompleted = agg.IsCompleted()
	view.IsRejected = agg.IsRejected()
	view.Steps = agg.Steps
	view.CreatedAt = agg.Flow.CreatedAt
	view.UpdatedAt = agg.Flow.UpdatedAt
	return view, nil
}

// GetHistory returns the document's audit trail, oldest first.
func (s *ValidationService) GetHistory(ctx context.Context, documentID string) (actions []*workflow.Action, err error) {
	ctx, span := s.startSpan(ctx, "validation.GetHistory", documentID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(documentID) == "" {
		return nil, errors.InvalidInput("document_id", "is required")
	}
	return s.store.ListActions(ctx, documentID)
}

// GetPendingApprovals returns the documents currently waiting on approverID.
func (s *ValidationService) GetPendingApprovals(ctx context.Context, approverID string) (pending []*workflow.PendingApproval, err error) {
	ctx, span := s.tracer.Start(ctx, "validation.GetPendingApprovals")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(approverID) == "" {
		return nil, errors.InvalidInput("approver_id", "is required")
	}
	return s.store.ListPendingForApprover(ctx, approverID)
}

// GetApprovalStats summarises actorID's validation activity.
func (s *ValidationService) GetApprovalStats(ctx context.Context, actorID string) (stats *workflow.ApprovalStats, err error) {
	ctx, span := s.tracer.Start(ctx, "validation.GetApprovalStats")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(actorID) == "" {
		return nil, errors.InvalidInput("actor_id", "is required")
	}
	return s.store.ActorStats(ctx, actorID)
}

// ── Directory checks ──────────────────────────────────────────────────────────

func (s *ValidationService) assertApproversInCompany(ctx context.Context, companyID string, specs []workflow.StepSpec) error {
	if s.directory == nil || companyID == "" {
		return nil
	}
	checked := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if _, ok := checked[spec.ApproverID]; ok {
			continue
		}
		checked[spec.ApproverID] = struct{}{}

		company, err := s.directory.UserCompany(ctx, spec.ApproverID)
		if err != nil {
			if errors.CodeOf(err) == errors.ErrCodeNotFound {
				return fmt.Errorf("%w: approver %s is unknown", workflow.ErrInvalidFlowSpec, spec.ApproverID)
			}
			return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to resolve approver company")
		}
		if company != companyID {
			return fmt.Errorf("%w: approver %s does not belong to company %s",
				workflow.ErrInvalidFlowSpec, spec.ApproverID, companyID)
		}
	}
	return nil
}

func (s *ValidationService) assertActorInCompany(ctx context.Context, companyID, actorID string) error {
	if s.directory == nil || companyID == "" {
		return nil
	}
	company, err := s.directory.UserCompany(ctx, actorID)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNotFound {
			return fmt.Errorf("%w: actor %s is unknown", workflow.ErrNotAnApprover, actorID)
		}
		return errors.Wrap(err, errors.ErrCodeUnavailable, "failed to resolve actor company")
	}
	if company != companyID {
		return fmt.Errorf("%w: actor %s does not belong to company %s",
			workflow.ErrNotAnApprover, actorID, companyID)
	}
	return nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// publish sends an event after commit. Failures are the notifier's concern.
func (s *ValidationService) publish(ctx context.Context, eventType string, agg *workflow.Aggregate, actorID string, recipients []string, payload map[string]any) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = agg.Document.ValidationStatus.String()
	if agg.Flow != nil {
		payload["flow_id"] = agg.Flow.ID
	}
	s.notifier.PublishValidationEvent(ctx, eventType, agg.Document.ID, agg.Document.CompanyID, actorID, recipients, payload)
}

func (s *ValidationService) startSpan(ctx context.Context, name, documentID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("document_id", documentID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
	}
	span.End()
}

func distinctApprovers(steps []*workflow.Step) []string {
	seen := make(map[string]struct{}, len(steps))
	out := make([]string, 0, len(steps))
	for _, st := range steps {
		if _, ok := seen[st.ApproverID]; ok {
			continue
		}
		seen[st.ApproverID] = struct{}{}
		out = append(out, st.ApproverID)
	}
	return out
}
