package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/rpc"
)

// DirectoryGRPCClient implements service.DirectoryClientInterface against
// the directory gRPC service.
type DirectoryGRPCClient struct {
	conn *grpc.ClientConn
}

// NewDirectoryGRPCClient dials the directory gRPC service and returns a client.
func NewDirectoryGRPCClient(addr string, opts ...grpc.DialOption) (*DirectoryGRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(forwardMetadata, callTimeout(5*time.Second)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &DirectoryGRPCClient{conn: conn}, nil
}

// Close releases the underlying gRPC connection.
func (c *DirectoryGRPCClient) Close() error {
	return c.conn.Close()
}

// UserCompany returns the company userID belongs to. Unknown and inactive
// users are reported as not found.
func (c *DirectoryGRPCClient) UserCompany(ctx context.Context, userID string) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"user_id": userID})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to encode directory request")
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, rpc.DirectoryGetUser, req, resp); err != nil {
		return "", fromGRPCError(err, fmt.Sprintf("directory lookup of user %s", userID))
	}

	if _, ok := resp.GetFields()["active"]; ok && !rpc.Bool(resp, "active") {
		return "", errors.NotFound("user", userID)
	}
	company := rpc.String(resp, "company_id")
	if company == "" {
		return "", errors.NotFound("user", userID)
	}
	return company, nil
}
