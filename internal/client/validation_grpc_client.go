package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/rpc"
)

// ValidationGRPCClient is the Go client the Document Service uses to drive
// validation flows over gRPC.
type ValidationGRPCClient struct {
	conn *grpc.ClientConn
}

// FlowStep is one approver slot in a CreateFlow call.
type FlowStep struct {
	Order      int
	ApproverID string
}

// ApproveResult mirrors the Approve response.
type ApproveResult struct {
	ApprovedOrders []int
	FullyApproved  bool
	Status         string
}

// StepStatus is one step in a GetStatus response.
type StepStatus struct {
	Order      int
	ApproverID string
	Status     string
}

// ValidationStatus mirrors the GetStatus response.
type ValidationStatus struct {
	DocumentID    string
	HasValidation bool
	Status        string
	IsActive      bool
	Steps         []StepStatus
}

// NewValidationGRPCClient dials the validation gRPC service and returns a client.
func NewValidationGRPCClient(addr string, opts ...grpc.DialOption) (*ValidationGRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(forwardMetadata),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &ValidationGRPCClient{conn: conn}, nil
}

// Close releases the underlying gRPC connection.
func (c *ValidationGRPCClient) Close() error {
	return c.conn.Close()
}

// CreateFlow creates the validation flow of a document and returns its ID.
func (c *ValidationGRPCClient) CreateFlow(ctx context.Context, documentID, companyID, entityID string, steps []FlowStep) (string, error) {
	list := make([]any, len(steps))
	for i, s := range steps {
		list[i] = map[string]any{"order": s.Order, "approver_id": s.ApproverID}
	}
	resp, err := c.invoke(ctx, rpc.MethodCreateFlow, map[string]any{
		"document_id": documentID,
		"company_id":  companyID,
		"entity_id":   entityID,
		"steps":       list,
	})
	if err != nil {
		return "", err
	}
	return rpc.String(resp, "flow_id"), nil
}

// Approve approves on behalf of actorID.
func (c *ValidationGRPCClient) Approve(ctx context.Context, documentID, actorID, reason string) (*ApproveResult, error) {
	resp, err := c.invoke(ctx, rpc.MethodApprove, map[string]any{
		"document_id": documentID,
		"actor_id":    actorID,
		"reason":      reason,
	})
	if err != nil {
		return nil, err
	}
	return &ApproveResult{
		ApprovedOrders: rpc.Ints(resp, "approved_orders"),
		FullyApproved:  rpc.Bool(resp, "fully_approved"),
		Status:         rpc.String(resp, "status"),
	}, nil
}

// Reject rejects on behalf of actorID and returns the rejected step order.
func (c *ValidationGRPCClient) Reject(ctx context.Context, documentID, actorID, reason string) (int, error) {
	resp, err := c.invoke(ctx, rpc.MethodReject, map[string]any{
		"document_id": documentID,
		"actor_id":    actorID,
		"reason":      reason,
	})
	if err != nil {
		return 0, err
	}
	order, err := rpc.Int(resp, "rejected_order")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "malformed reject response")
	}
	return order, nil
}

// GetStatus returns the validation status of a document.
func (c *ValidationGRPCClient) GetStatus(ctx context.Context, documentID string) (*ValidationStatus, error) {
	resp, err := c.invoke(ctx, rpc.MethodGetStatus, map[string]any{"document_id": documentID})
	if err != nil {
		return nil, err
	}
	out := &ValidationStatus{
		DocumentID:    rpc.String(resp, "document_id"),
		HasValidation: rpc.Bool(resp, "has_validation"),
		Status:        rpc.String(resp, "status"),
		IsActive:      rpc.Bool(resp, "is_active"),
	}
	for _, st := range rpc.Structs(resp, "steps") {
		order, _ := rpc.Int(st, "order")
		out.Steps = append(out.Steps, StepStatus{
			Order:      order,
			ApproverID: rpc.String(st, "approver_id"),
			Status:     rpc.String(st, "status"),
		})
	}
	return out, nil
}

func (c *ValidationGRPCClient) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request")
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, fromGRPCError(err, method)
	}
	return resp, nil
}
