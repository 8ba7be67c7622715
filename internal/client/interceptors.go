package client

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
)

// forwardMetadata is a gRPC unary client interceptor that propagates
// incoming request metadata (including the Bearer auth token) to outgoing
// service-to-service calls, so the caller's identity reaches the directory.
func forwardMetadata(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// callTimeout bounds every outgoing call that has no earlier deadline.
func callTimeout(d time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if _, ok := ctx.Deadline(); !ok && d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// fromGRPCError maps a gRPC status back to an application error code.
func fromGRPCError(err error, msg string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.Wrap(err, errors.ErrCodeUnavailable, msg)
	}

	code := errors.ErrCodeInternal
	switch st.Code() {
	case codes.InvalidArgument:
		code = errors.ErrCodeInvalidInput
	case codes.NotFound:
		code = errors.ErrCodeNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		code = errors.ErrCodeConflict
	case codes.PermissionDenied:
		code = errors.ErrCodeForbidden
	case codes.Unauthenticated:
		code = errors.ErrCodeUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		code = errors.ErrCodeUnavailable
	}
	return &errors.AppError{Code: code, Message: msg + ": " + st.Message(), Err: err}
}
