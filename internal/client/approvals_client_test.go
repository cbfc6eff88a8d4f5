package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pesio-ai/be-rp-allocations/internal/handler"
	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
	"github.com/pesio-ai/be-rp-allocations/internal/repository/memory"
	"github.com/pesio-ai/be-rp-allocations/internal/service"
)

const tenant = "t1"

var now = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

type env struct {
	client  *ApprovalsClient
	actuals *service.ActualsService
	period  *repository.Period
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.NewStore()
	store.SetClock(func() time.Time { return now })
	s := func(v string) *string { return &v }
	store.PutCostCenter(repository.CostCenter{ID: "cc-1", TenantID: tenant, Name: "Platform", ROUserID: s("u-ro"), DepartmentID: s("d-1")})
	store.PutDepartmentApprover(repository.DepartmentApprover{TenantID: tenant, DepartmentID: "d-1", DirectorUserID: s("u-dir")})
	store.PutResource(repository.Resource{ID: "res-1", TenantID: tenant, DisplayName: "Ada", UserID: s("u-emp"), CostCenterID: s("cc-1"), IsActive: true})

	log := logger.Nop()
	opts := []service.Option{service.WithClock(func() time.Time { return now })}
	approvals := service.NewApprovalService(store, log, opts...)
	actuals := service.NewActualsService(store, approvals, log, opts...)
	periods := service.NewPeriodService(store, log, opts...)

	period, err := periods.Open(context.Background(), service.User{ID: "u-fin", TenantID: tenant, Role: service.RoleFinance}, 2026, 3)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(handler.IdentityInterceptor()))
	handler.NewGRPCHandler(actuals, approvals, zerolog.Nop()).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewApprovalsClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &env{client: c, actuals: actuals, period: period}
}

func (e *env) addActual(t *testing.T, fte int) string {
	t.Helper()
	line, err := e.actuals.UpsertActual(context.Background(),
		service.User{ID: "u-emp", TenantID: tenant, Role: service.RoleEmployee},
		service.ActualInput{PeriodID: e.period.ID, ResourceID: "res-1", ProjectID: "proj-1", ActualFTEPercent: fte},
	)
	require.NoError(t, err)
	return line.ID
}

func stepIDs(t *testing.T, inst map[string]any) (ro, director string) {
	t.Helper()
	steps, ok := inst["steps"].([]any)
	require.True(t, ok)
	require.Len(t, steps, 2)
	return steps[0].(map[string]any)["id"].(string), steps[1].(map[string]any)["id"].(string)
}

func TestApprovalsClient_SignAndApprove(t *testing.T) {
	e := newEnv(t)
	lineID := e.addActual(t, 60)

	empCtx := WithIdentity(context.Background(), tenant, "u-emp", "Employee")
	roCtx := WithIdentity(context.Background(), tenant, "u-ro", "RO")
	dirCtx := WithIdentity(context.Background(), tenant, "u-dir", "Director")

	signed, err := e.client.SignActual(empCtx, lineID)
	require.NoError(t, err)
	inst := signed["approval"].(map[string]any)
	instID := inst["id"].(string)
	roStep, dirStep := stepIDs(t, inst)

	inbox, err := e.client.Inbox(roCtx)
	require.NoError(t, err)
	assert.Len(t, inbox["pending"], 1)

	_, err = e.client.ApproveStep(dirCtx, instID, dirStep, "")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = e.client.ApproveStep(roCtx, instID, roStep, "looks right")
	require.NoError(t, err)

	done, err := e.client.ApproveStep(dirCtx, instID, dirStep, "")
	require.NoError(t, err)
	assert.Equal(t, "approved", done["status"])

	hist, err := e.client.GetApprovalHistory(empCtx, instID)
	require.NoError(t, err)
	assert.Len(t, hist["history"], 3)
}

func TestApprovalsClient_ProxyApprove(t *testing.T) {
	e := newEnv(t)
	lineID := e.addActual(t, 40)

	roCtx := WithIdentity(context.Background(), tenant, "u-ro", "RO")

	signed, err := e.client.ProxySignActual(roCtx, lineID, "employee on leave")
	require.NoError(t, err)
	inst := signed["approval"].(map[string]any)
	instID := inst["id"].(string)
	roStep, dirStep := stepIDs(t, inst)

	_, err = e.client.ProxyApproveDirectorStep(roCtx, instID, dirStep, "travelling")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = e.client.ApproveStep(roCtx, instID, roStep, "")
	require.NoError(t, err)

	_, err = e.client.ProxyApproveDirectorStep(roCtx, instID, dirStep, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	done, err := e.client.ProxyApproveDirectorStep(roCtx, instID, dirStep, "director travelling")
	require.NoError(t, err)
	assert.Equal(t, "approved", done["status"])

	got, err := e.client.GetApproval(roCtx, instID)
	require.NoError(t, err)
	_, dir := stepIDs(t, got)
	assert.Equal(t, dirStep, dir)
	steps := got["steps"].([]any)
	assert.Equal(t, true, steps[1].(map[string]any)["is_proxy"])
}

func TestApprovalsClient_RequiresIdentity(t *testing.T) {
	e := newEnv(t)

	_, err := e.client.Inbox(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = e.client.GetApproval(WithIdentity(context.Background(), tenant, "u-ro", "RO"), "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestForwardMetadata(t *testing.T) {
	in := metadata.Pairs("x-user-id", "u-in", "x-tenant-id", tenant)
	ctx := metadata.NewIncomingContext(context.Background(), in)
	ctx = metadata.AppendToOutgoingContext(ctx, "x-user-id", "u-out")

	var got metadata.MD
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		got, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	require.NoError(t, forwardMetadata(ctx, "/m", nil, nil, nil, invoker))
	assert.Equal(t, []string{"u-out"}, got.Get("x-user-id"))
	assert.Equal(t, []string{tenant}, got.Get("x-tenant-id"))
}
