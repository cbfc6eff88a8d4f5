package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
	"github.com/pesio-ai/be-rp-allocations/internal/repository/memory"
)

const tenant = "t1"

var (
	finance  = User{ID: "u-fin", TenantID: tenant, Role: RoleFinance}
	pm       = User{ID: "u-pm", TenantID: tenant, Role: RolePM}
	employee = User{ID: "u-emp", TenantID: tenant, Role: RoleEmployee}
	ro       = User{ID: "u-ro", TenantID: tenant, Role: RoleRO}
	director = User{ID: "u-dir", TenantID: tenant, Role: RoleDirector}

	// owner is both RO and Director of the "res-same" resource.
	owner     = User{ID: "u-both", TenantID: tenant, Role: RoleRO}
	employee2 = User{ID: "u-emp2", TenantID: tenant, Role: RoleEmployee}
)

// fixedNow is mid-March 2026.
var fixedNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

type recordedEvent struct {
	eventType  string
	subjectID  string
	recipients []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, _, subjectID, _ string, recipients []string, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{eventType: eventType, subjectID: subjectID, recipients: recipients})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

type fixture struct {
	store     *memory.Store
	events    *recordingPublisher
	periods   *PeriodService
	planning  *PlanningService
	approvals *ApprovalService
	actuals   *ActualsService
	period    *repository.Period
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.SetClock(func() time.Time { return fixedNow })
	seedMasterData(store)

	events := &recordingPublisher{}
	opts := []Option{WithClock(func() time.Time { return fixedNow }), WithPublisher(events)}
	log := logger.Nop()

	approvals := NewApprovalService(store, log, opts...)
	f := &fixture{
		store:     store,
		events:    events,
		periods:   NewPeriodService(store, log, opts...),
		planning:  NewPlanningService(store, log, opts...),
		approvals: approvals,
		actuals:   NewActualsService(store, approvals, log, opts...),
	}

	p, err := f.periods.Open(context.Background(), finance, 2026, 3)
	require.NoError(t, err)
	f.period = p
	return f
}

func seedMasterData(s *memory.Store) {
	str := func(v string) *string { return &v }

	s.PutCostCenter(repository.CostCenter{ID: "cc-1", TenantID: tenant, Name: "Platform", ROUserID: str("u-ro"), DepartmentID: str("d-1")})
	s.PutCostCenter(repository.CostCenter{ID: "cc-2", TenantID: tenant, Name: "Data", ROUserID: str("u-both"), DepartmentID: str("d-2")})
	s.PutCostCenter(repository.CostCenter{ID: "cc-3", TenantID: tenant, Name: "Orphaned", DepartmentID: str("d-1")})
	s.PutDepartmentApprover(repository.DepartmentApprover{TenantID: tenant, DepartmentID: "d-1", DirectorUserID: str("u-dir")})
	s.PutDepartmentApprover(repository.DepartmentApprover{TenantID: tenant, DepartmentID: "d-2", DirectorUserID: str("u-both")})

	s.PutResource(repository.Resource{ID: "res-1", TenantID: tenant, DisplayName: "Ada", UserID: str("u-emp"), CostCenterID: str("cc-1"), DepartmentID: str("d-1"), IsActive: true})
	s.PutResource(repository.Resource{ID: "res-same", TenantID: tenant, DisplayName: "Grace", UserID: str("u-emp2"), CostCenterID: str("cc-2"), DepartmentID: str("d-2"), IsActive: true})
	s.PutResource(repository.Resource{ID: "res-noro", TenantID: tenant, DisplayName: "Linus", UserID: str("u-emp3"), CostCenterID: str("cc-3"), DepartmentID: str("d-1"), IsActive: true})
	s.PutResource(repository.Resource{ID: "res-gone", TenantID: tenant, DisplayName: "Ken", CostCenterID: str("cc-1"), DepartmentID: str("d-1"), IsActive: false})
}

// addActual writes an actual line on resourceID as u.
func (f *fixture) addActual(t *testing.T, u User, resourceID string, fte int) *repository.ActualLine {
	t.Helper()
	line, err := f.actuals.UpsertActual(context.Background(), u, ActualInput{
		PeriodID:         f.period.ID,
		ResourceID:       resourceID,
		ProjectID:        "proj-1",
		ActualFTEPercent: fte,
	})
	require.NoError(t, err)
	return line
}

func requireCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errors.CodeOf(err), "error: %v", err)
}
