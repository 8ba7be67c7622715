package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/rpc"
	"github.com/pesio-ai/be-doc-validations/internal/service"
	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// GRPCHandler implements the docflow.v1.ValidationService gRPC interface
type GRPCHandler struct {
	service *service.ValidationService
	logger  zerolog.Logger
}

var _ rpc.ValidationServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(service *service.ValidationService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		service: service,
		logger:  logger.With().Str("handler", "grpc").Logger(),
	}
}

// CreateFlow registers the approver hierarchy of a document.
func (h *GRPCHandler) CreateFlow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	documentID := rpc.String(req, "document_id")
	h.logger.Info().Str("document_id", documentID).Msg("gRPC CreateFlow called")

	entries, err := rpc.StructList(req, "steps")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	specs := make([]workflow.StepSpec, 0, len(entries))
	for i, st := range entries {
		order, err := rpc.Int(st, "order")
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "steps[%d]: %v", i, err)
		}
		specs = append(specs, workflow.StepSpec{Order: order, ApproverID: rpc.String(st, "approver_id")})
	}

	agg, err := h.service.CreateFlow(ctx, &service.CreateFlowRequest{
		DocumentID: documentID,
		CompanyID:  rpc.String(req, "company_id"),
		EntityID:   rpc.String(req, "entity_id"),
		Steps:      specs,
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("document_id", documentID).Msg("Failed to create validation flow")
		return nil, mapErrorToGRPC(err)
	}

	return toStruct(map[string]any{
		"document_id": agg.Document.ID,
		"flow_id":     agg.Flow.ID,
		"status":      agg.Document.ValidationStatus.String(),
		"is_active":   agg.Flow.IsActive,
		"steps":       stepsToList(agg.Steps),
	})
}

// Approve approves the actor's pending rank and every pending rank below it.
func (h *GRPCHandler) Approve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := h.service.Approve(ctx, decisionFromStruct(req))
	if err != nil {
		h.logger.Warn().Err(err).Str("document_id", rpc.String(req, "document_id")).Msg("Failed to approve document")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{
		"document_id":     res.DocumentID,
		"approved_orders": rpc.IntList(res.ApprovedOrders),
		"fully_approved":  res.FullyApproved,
		"status":          res.Status.String(),
	})
}

// Reject rejects the document.
func (h *GRPCHandler) Reject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := h.service.Reject(ctx, decisionFromStruct(req))
	if err != nil {
		h.logger.Warn().Err(err).Str("document_id", rpc.String(req, "document_id")).Msg("Failed to reject document")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{
		"document_id":    res.DocumentID,
		"rejected_order": res.RejectedOrder,
		"status":         res.Status.String(),
	})
}

// GetStatus returns the validation status of a document.
func (h *GRPCHandler) GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := h.service.GetStatus(ctx, rpc.String(req, "document_id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{
		"document_id":    view.DocumentID,
		"has_validation": view.HasValidation,
		"status":         view.Status.String(),
		"flow_id":        view.FlowID,
		"is_active":      view.IsActive,
		"is_completed":   view.IsCompleted,
		"is_rejected":    view.IsRejected,
		"steps":          stepsToList(view.Steps),
		"created_at":     rpc.FormatTime(view.CreatedAt),
		"updated_at":     rpc.FormatTime(view.UpdatedAt),
	})
}

// GetHistory returns the audit trail of a document.
func (h *GRPCHandler) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actions, err := h.service.GetHistory(ctx, rpc.String(req, "document_id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	list := make([]any, len(actions))
	for i, a := range actions {
		list[i] = map[string]any{
			"id":         a.ID,
			"step_id":    a.StepID,
			"step_order": a.StepOrder,
			"actor_id":   a.ActorID,
			"action":     string(a.Action),
			"reason":     a.Reason,
			"created_at": rpc.FormatTime(a.CreatedAt),
		}
	}
	return toStruct(map[string]any{"actions": list})
}

// GetPendingApprovals lists documents waiting on an approver.
func (h *GRPCHandler) GetPendingApprovals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pending, err := h.service.GetPendingApprovals(ctx, rpc.String(req, "approver_id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	list := make([]any, len(pending))
	for i, p := range pending {
		list[i] = map[string]any{
			"document_id":     p.DocumentID,
			"company_id":      p.CompanyID,
			"entity_id":       p.EntityID,
			"flow_id":         p.FlowID,
			"step_order":      p.StepOrder,
			"flow_created_at": rpc.FormatTime(p.FlowCreatedAt),
		}
	}
	return toStruct(map[string]any{"pending": list, "total": len(list)})
}

// GetApprovalStats summarises an actor's activity.
func (h *GRPCHandler) GetApprovalStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	stats, err := h.service.GetApprovalStats(ctx, rpc.String(req, "actor_id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]any{
		"approved":      stats.Approved,
		"rejected":      stats.Rejected,
		"pending":       stats.Pending,
		"total_actions": stats.TotalActions,
	})
}

// ── Conversion helpers ────────────────────────────────────────────────────────

func decisionFromStruct(req *structpb.Struct) *service.DecisionRequest {
	return &service.DecisionRequest{
		DocumentID: rpc.String(req, "document_id"),
		ActorID:    rpc.String(req, "actor_id"),
		Reason:     rpc.String(req, "reason"),
	}
}

func stepsToList(steps []*workflow.Step) []any {
	out := make([]any, len(steps))
	for i, s := range steps {
		out[i] = map[string]any{
			"id":          s.ID,
			"order":       s.Order,
			"approver_id": s.ApproverID,
			"status":      string(s.Status),
		}
	}
	return out
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	if errors.Is(err, workflow.ErrFlowAlreadyExists) {
		return status.Error(codes.AlreadyExists, errMsg)
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errMsg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, errMsg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, errMsg)
	case errors.ErrCodeUnavailable:
		return status.Error(codes.Unavailable, errMsg)
	default:
		return status.Error(codes.Internal, errMsg)
	}
}
