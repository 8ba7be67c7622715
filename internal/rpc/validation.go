// Package rpc describes the validation and directory gRPC services. Messages
// are google.protobuf.Struct values, so no generated stubs are needed on
// either side of the wire.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ValidationServiceName is the fully qualified gRPC service name.
const ValidationServiceName = "docflow.v1.ValidationService"

// Full method names, as used by clients.
const (
	MethodCreateFlow          = "/" + ValidationServiceName + "/CreateFlow"
	MethodApprove             = "/" + ValidationServiceName + "/Approve"
	MethodReject              = "/" + ValidationServiceName + "/Reject"
	MethodGetStatus           = "/" + ValidationServiceName + "/GetStatus"
	MethodGetHistory          = "/" + ValidationServiceName + "/GetHistory"
	MethodGetPendingApprovals = "/" + ValidationServiceName + "/GetPendingApprovals"
	MethodGetApprovalStats    = "/" + ValidationServiceName + "/GetApprovalStats"
)

// ValidationServiceServer is implemented by the gRPC handler.
type ValidationServiceServer interface {
	CreateFlow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Approve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reject(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPendingApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApprovalStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ValidationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// ValidationServiceDesc is registered with a grpc.Server.
var ValidationServiceDesc = grpc.ServiceDesc{
	ServiceName: ValidationServiceName,
	HandlerType: (*ValidationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateFlow", Handler: unary(MethodCreateFlow, ValidationServiceServer.CreateFlow)},
		{MethodName: "Approve", Handler: unary(MethodApprove, ValidationServiceServer.Approve)},
		{MethodName: "Reject", Handler: unary(MethodReject, ValidationServiceServer.Reject)},
		{MethodName: "GetStatus", Handler: unary(MethodGetStatus, ValidationServiceServer.GetStatus)},
		{MethodName: "GetHistory", Handler: unary(MethodGetHistory, ValidationServiceServer.GetHistory)},
		{MethodName: "GetPendingApprovals", Handler: unary(MethodGetPendingApprovals, ValidationServiceServer.GetPendingApprovals)},
		{MethodName: "GetApprovalStats", Handler: unary(MethodGetApprovalStats, ValidationServiceServer.GetApprovalStats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docflow/v1/validation.proto",
}

// RegisterValidationServiceServer registers srv on s.
func RegisterValidationServiceServer(s grpc.ServiceRegistrar, srv ValidationServiceServer) {
	s.RegisterService(&ValidationServiceDesc, srv)
}

func unary(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ValidationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ValidationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
