package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

const approvalService = "/rp.allocations.v1.ApprovalService/"

// ApprovalsClient calls the approval workflow gRPC service.
type ApprovalsClient struct {
	conn *grpc.ClientConn
}

// NewApprovalsClient dials target without TLS. Extra dial options are
// appended after the defaults.
func NewApprovalsClient(target string, opts ...grpc.DialOption) (*ApprovalsClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create approvals client: %w", err)
	}
	return &ApprovalsClient{conn: conn}, nil
}

// Close closes the connection
func (c *ApprovalsClient) Close() error {
	return c.conn.Close()
}

// WithIdentity attaches the caller identity to outgoing calls.
func WithIdentity(ctx context.Context, tenantID, userID, role string) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		"x-tenant-id", tenantID,
		"x-user-id", userID,
		"x-user-role", role,
	)
}

// Inbox returns the caller's pending and proxy approvable items.
func (c *ApprovalsClient) Inbox(ctx context.Context) (map[string]any, error) {
	return c.invoke(ctx, "Inbox", nil)
}

// GetApproval returns one approval instance with its steps.
func (c *ApprovalsClient) GetApproval(ctx context.Context, instanceID string) (map[string]any, error) {
	return c.invoke(ctx, "GetApproval", map[string]any{"instance_id": instanceID})
}

// GetApprovalHistory returns the audit trail of an instance.
func (c *ApprovalsClient) GetApprovalHistory(ctx context.Context, instanceID string) (map[string]any, error) {
	return c.invoke(ctx, "GetApprovalHistory", map[string]any{"instance_id": instanceID})
}

// ApproveStep approves a step. An empty comment is omitted.
func (c *ApprovalsClient) ApproveStep(ctx context.Context, instanceID, stepID, comment string) (map[string]any, error) {
	return c.invoke(ctx, "ApproveStep", stepRequest(instanceID, stepID, comment))
}

// RejectStep rejects a step. An empty comment is omitted.
func (c *ApprovalsClient) RejectStep(ctx context.Context, instanceID, stepID, comment string) (map[string]any, error) {
	return c.invoke(ctx, "RejectStep", stepRequest(instanceID, stepID, comment))
}

// ProxyApproveDirectorStep approves the Director step on the Director's
// behalf.
func (c *ApprovalsClient) ProxyApproveDirectorStep(ctx context.Context, instanceID, stepID, explanation string) (map[string]any, error) {
	return c.invoke(ctx, "ProxyApproveDirectorStep", map[string]any{
		"instance_id": instanceID,
		"step_id":     stepID,
		"explanation": explanation,
	})
}

// SignActual signs an actual line as its employee.
func (c *ApprovalsClient) SignActual(ctx context.Context, lineID string) (map[string]any, error) {
	return c.invoke(ctx, "SignActual", map[string]any{"actual_line_id": lineID})
}

// ProxySignActual signs an actual line on the employee's behalf.
func (c *ApprovalsClient) ProxySignActual(ctx context.Context, lineID, reason string) (map[string]any, error) {
	return c.invoke(ctx, "ProxySignActual", map[string]any{"actual_line_id": lineID, "reason": reason})
}

func stepRequest(instanceID, stepID, comment string) map[string]any {
	req := map[string]any{"instance_id": instanceID, "step_id": stepID}
	if comment != "" {
		req["comment"] = comment
	}
	return req
}

func (c *ApprovalsClient) invoke(ctx context.Context, method string, fields map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, approvalService+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// forwardMetadata propagates incoming request metadata to outgoing calls so
// an identity received by one hop reaches the next. Metadata already set on
// the outgoing context wins.
func forwardMetadata(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if in, ok := metadata.FromIncomingContext(ctx); ok {
		out, _ := metadata.FromOutgoingContext(ctx)
		merged := in.Copy()
		for k, v := range out {
			merged.Set(k, v...)
		}
		ctx = metadata.NewOutgoingContext(ctx, merged)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}
