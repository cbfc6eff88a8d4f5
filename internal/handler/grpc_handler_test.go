package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/service"
)

func TestGRPCCode(t *testing.T) {
	cases := map[errors.Code]codes.Code{
		errors.ErrCodeNotFound:              codes.NotFound,
		errors.ErrCodeActualsOver100:        codes.InvalidArgument,
		errors.ErrCodeUnauthorized:          codes.Unauthenticated,
		errors.ErrCodeNotApprover:           codes.PermissionDenied,
		errors.ErrCodeStepNotPending:        codes.FailedPrecondition,
		errors.ErrCodeApproverNotConfigured: codes.FailedPrecondition,
		errors.ErrCodeConflict:              codes.Aborted,
		errors.ErrCodeInternal:              codes.Internal,
	}
	for in, want := range cases {
		assert.Equal(t, want, GRPCCode(in), string(in))
	}
}

func TestIdentityInterceptor(t *testing.T) {
	intercept := IdentityInterceptor()
	approve := &grpc.UnaryServerInfo{FullMethod: "/" + ApprovalServiceName + "/ApproveStep"}

	var seen service.User
	next := func(ctx context.Context, _ any) (any, error) {
		seen, _ = userFrom(ctx)
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		"x-tenant-id", "t1", "x-user-id", "u-ro", "x-user-role", "RO",
	))
	_, err := intercept(ctx, nil, approve, next)
	require.NoError(t, err)
	assert.Equal(t, service.User{ID: "u-ro", TenantID: "t1", Role: service.RoleRO}, seen)

	_, err = intercept(context.Background(), nil, approve, next)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	// health checks carry no identity
	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err = intercept(context.Background(), nil, health, next)
	assert.NoError(t, err)
}
