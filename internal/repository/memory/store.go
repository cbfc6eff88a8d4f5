// Package memory provides an in-process repository.Store. Transactions are
// serialised by one mutex and run against a private copy of the state that
// replaces the shared state only on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

type state struct {
	periods     map[string]*repository.Period
	demand      map[string]*repository.DemandLine
	supply      map[string]*repository.SupplyLine
	actuals     map[string]*repository.ActualLine
	instances   map[string]*repository.ApprovalInstance // steps held separately
	steps       map[string]*repository.ApprovalStep
	audit       []*repository.ApprovalAuditEntry
	resources   map[string]*repository.Resource
	costCenters map[string]*repository.CostCenter
	deptApprov  map[string]*repository.DepartmentApprover // key tenant/department
}

func newState() *state {
	return &state{
		periods:     map[string]*repository.Period{},
		demand:      map[string]*repository.DemandLine{},
		supply:      map[string]*repository.SupplyLine{},
		actuals:     map[string]*repository.ActualLine{},
		instances:   map[string]*repository.ApprovalInstance{},
		steps:       map[string]*repository.ApprovalStep{},
		resources:   map[string]*repository.Resource{},
		costCenters: map[string]*repository.CostCenter{},
		deptApprov:  map[string]*repository.DepartmentApprover{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.periods {
		cp := *v
		c.periods[k] = &cp
	}
	for k, v := range s.demand {
		cp := *v
		c.demand[k] = &cp
	}
	for k, v := range s.supply {
		cp := *v
		c.supply[k] = &cp
	}
	for k, v := range s.actuals {
		cp := *v
		c.actuals[k] = &cp
	}
	for k, v := range s.instances {
		cp := *v
		c.instances[k] = &cp
	}
	for k, v := range s.steps {
		cp := *v
		c.steps[k] = &cp
	}
	c.audit = append(c.audit, s.audit...)
	// master data is only written through the seeding helpers
	c.resources = s.resources
	c.costCenters = s.costCenters
	c.deptApprov = s.deptApprov
	return c
}

// Store is a repository.Store held in memory.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState(), now: time.Now}
}

// SetClock replaces the clock used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// WithinTx runs fn against a copy of the state and commits it when fn
// succeeds. Transactions never overlap.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ── master data seeding ───────────────────────────────────────────────────────

// PutResource stores a resource lookup row.
func (s *Store) PutResource(r repository.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.state.resources[key(r.TenantID, r.ID)] = &cp
}

// PutCostCenter stores a cost center lookup row.
func (s *Store) PutCostCenter(cc repository.CostCenter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cc
	s.state.costCenters[key(cc.TenantID, cc.ID)] = &cp
}

// PutDepartmentApprover stores the Director for a department.
func (s *Store) PutDepartmentApprover(da repository.DepartmentApprover) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := da
	s.state.deptApprov[key(da.TenantID, da.DepartmentID)] = &cp
}

func key(parts ...string) string {
	k := ""
	for i, p := range parts {
		if i > 0 {
			k += "/"
		}
		k += p
	}
	return k
}

// ── tx ────────────────────────────────────────────────────────────────────────

type tx struct {
	st  *state
	now func() time.Time
}

var _ repository.Tx = (*tx)(nil)

func newID() string {
	return uuid.NewString()
}

// Periods

func (t *tx) GetPeriod(_ context.Context, tenantID, id string) (*repository.Period, error) {
	p, ok := t.st.periods[id]
	if !ok || p.TenantID != tenantID {
		return nil, errors.NotFound("period", id)
	}
	cp := *p
	return &cp, nil
}

func (t *tx) FindPeriod(_ context.Context, tenantID string, year, month int) (*repository.Period, error) {
	for _, p := range t.st.periods {
		if p.TenantID == tenantID && p.Year == year && p.Month == month {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *tx) CreatePeriod(_ context.Context, p *repository.Period) error {
	for _, existing := range t.st.periods {
		if existing.TenantID == p.TenantID && existing.Year == p.Year && existing.Month == p.Month {
			return errors.New(errors.ErrCodeConflict, "period already exists")
		}
	}
	now := t.now()
	p.ID = newID()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	t.st.periods[p.ID] = &cp
	return nil
}

func (t *tx) UpdatePeriodStatus(_ context.Context, p *repository.Period) error {
	existing, ok := t.st.periods[p.ID]
	if !ok || existing.TenantID != p.TenantID {
		return errors.NotFound("period", p.ID)
	}
	p.UpdatedAt = t.now()
	existing.Status = p.Status
	existing.LockedAt = p.LockedAt
	existing.LockedBy = p.LockedBy
	existing.LockReason = p.LockReason
	existing.UpdatedAt = p.UpdatedAt
	return nil
}

func (t *tx) ListPeriods(_ context.Context, tenantID string) ([]*repository.Period, error) {
	var out []*repository.Period
	for _, p := range t.st.periods {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return repository.MonthIndex(out[i].Year, out[i].Month) > repository.MonthIndex(out[j].Year, out[j].Month)
	})
	return out, nil
}

// Demand

func (t *tx) CreateDemand(_ context.Context, d *repository.DemandLine) error {
	now := t.now()
	d.ID = newID()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	t.st.demand[d.ID] = &cp
	return nil
}

func (t *tx) UpdateDemandFTE(_ context.Context, d *repository.DemandLine) error {
	existing, ok := t.st.demand[d.ID]
	if !ok || existing.TenantID != d.TenantID {
		return errors.NotFound("demand_line", d.ID)
	}
	d.UpdatedAt = t.now()
	existing.FTEPercent = d.FTEPercent
	existing.UpdatedAt = d.UpdatedAt
	return nil
}

func (t *tx) GetDemand(_ context.Context, tenantID, id string) (*repository.DemandLine, error) {
	d, ok := t.st.demand[id]
	if !ok || d.TenantID != tenantID {
		return nil, errors.NotFound("demand_line", id)
	}
	cp := *d
	return &cp, nil
}

func (t *tx) DeleteDemand(_ context.Context, tenantID, id string) error {
	d, ok := t.st.demand[id]
	if !ok || d.TenantID != tenantID {
		return errors.NotFound("demand_line", id)
	}
	delete(t.st.demand, id)
	return nil
}

func (t *tx) ListDemandByPeriod(_ context.Context, tenantID, periodID string) ([]*repository.DemandLine, error) {
	var out []*repository.DemandLine
	for _, d := range t.st.demand {
		if d.TenantID == tenantID && d.PeriodID == periodID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Supply

func (t *tx) UpsertSupply(_ context.Context, s *repository.SupplyLine) error {
	now := t.now()
	for _, existing := range t.st.supply {
		if existing.TenantID == s.TenantID && existing.ResourceID == s.ResourceID && existing.PeriodID == s.PeriodID {
			existing.FTEPercent = s.FTEPercent
			existing.UpdatedAt = now
			*s = *existing
			return nil
		}
	}
	s.ID = newID()
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	t.st.supply[s.ID] = &cp
	return nil
}

func (t *tx) GetSupply(_ context.Context, tenantID, id string) (*repository.SupplyLine, error) {
	s, ok := t.st.supply[id]
	if !ok || s.TenantID != tenantID {
		return nil, errors.NotFound("supply_line", id)
	}
	cp := *s
	return &cp, nil
}

func (t *tx) DeleteSupply(_ context.Context, tenantID, id string) error {
	s, ok := t.st.supply[id]
	if !ok || s.TenantID != tenantID {
		return errors.NotFound("supply_line", id)
	}
	delete(t.st.supply, id)
	return nil
}

func (t *tx) ListSupplyByPeriod(_ context.Context, tenantID, periodID string) ([]*repository.SupplyLine, error) {
	var out []*repository.SupplyLine
	for _, s := range t.st.supply {
		if s.TenantID == tenantID && s.PeriodID == periodID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Actuals

// LockResourcePeriod is a no-op: the store mutex already serialises writers.
func (t *tx) LockResourcePeriod(context.Context, string, string, string) error {
	return nil
}

func (t *tx) SumActualFTE(_ context.Context, tenantID, resourceID, periodID, excludeID string) (int, error) {
	total := 0
	for _, a := range t.st.actuals {
		if a.TenantID == tenantID && a.ResourceID == resourceID && a.PeriodID == periodID && a.ID != excludeID {
			total += a.ActualFTEPercent
		}
	}
	return total, nil
}

func (t *tx) CreateActual(_ context.Context, a *repository.ActualLine) error {
	now := t.now()
	a.ID = newID()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	t.st.actuals[a.ID] = &cp
	return nil
}

func (t *tx) UpdateActual(_ context.Context, a *repository.ActualLine) error {
	existing, ok := t.st.actuals[a.ID]
	if !ok || existing.TenantID != a.TenantID || existing.IsSigned() {
		return errors.New(errors.ErrCodeActualsLocked, "actual line is signed or missing")
	}
	a.UpdatedAt = t.now()
	existing.ProjectID = a.ProjectID
	existing.PlannedFTEPercent = a.PlannedFTEPercent
	existing.ActualFTEPercent = a.ActualFTEPercent
	existing.UpdatedAt = a.UpdatedAt
	return nil
}

func (t *tx) GetActual(_ context.Context, tenantID, id string) (*repository.ActualLine, error) {
	a, ok := t.st.actuals[id]
	if !ok || a.TenantID != tenantID {
		return nil, errors.NotFound("actual_line", id)
	}
	cp := *a
	return &cp, nil
}

func (t *tx) DeleteActual(_ context.Context, tenantID, id string) error {
	a, ok := t.st.actuals[id]
	if !ok || a.TenantID != tenantID || a.IsSigned() {
		return errors.New(errors.ErrCodeActualsLocked, "actual line is signed or missing")
	}
	delete(t.st.actuals, id)
	return nil
}

func (t *tx) MarkActualSigned(_ context.Context, a *repository.ActualLine) error {
	existing, ok := t.st.actuals[a.ID]
	if !ok || existing.TenantID != a.TenantID || existing.IsSigned() {
		return errors.New(errors.ErrCodeActualsLocked, "actual line is already signed")
	}
	a.UpdatedAt = t.now()
	existing.EmployeeSignedAt = a.EmployeeSignedAt
	existing.SignedBy = a.SignedBy
	existing.IsProxySigned = a.IsProxySigned
	existing.ProxyReason = a.ProxyReason
	existing.UpdatedAt = a.UpdatedAt
	return nil
}

func (t *tx) ListActualsByPeriod(_ context.Context, tenantID, periodID string) ([]*repository.ActualLine, error) {
	var out []*repository.ActualLine
	for _, a := range t.st.actuals {
		if a.TenantID == tenantID && a.PeriodID == periodID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceID != out[j].ResourceID {
			return out[i].ResourceID < out[j].ResourceID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Approvals

func (t *tx) CreateInstance(_ context.Context, inst *repository.ApprovalInstance) (bool, error) {
	for _, existing := range t.st.instances {
		if existing.TenantID == inst.TenantID && existing.SubjectType == inst.SubjectType && existing.SubjectID == inst.SubjectID {
			return false, nil
		}
	}
	now := t.now()
	inst.ID = newID()
	inst.CreatedAt, inst.UpdatedAt = now, now

	stored := *inst
	stored.Steps = nil
	t.st.instances[inst.ID] = &stored

	for _, step := range inst.Steps {
		step.ID = newID()
		step.InstanceID = inst.ID
		step.CreatedAt = now
		cp := *step
		t.st.steps[step.ID] = &cp
	}
	return true, nil
}

func (t *tx) GetInstance(_ context.Context, tenantID, id string) (*repository.ApprovalInstance, error) {
	inst, ok := t.st.instances[id]
	if !ok || inst.TenantID != tenantID {
		return nil, errors.NotFound("approval_instance", id)
	}
	return t.withSteps(inst), nil
}

func (t *tx) GetInstanceBySubject(_ context.Context, tenantID string, subjectType repository.SubjectType, subjectID string) (*repository.ApprovalInstance, error) {
	for _, inst := range t.st.instances {
		if inst.TenantID == tenantID && inst.SubjectType == subjectType && inst.SubjectID == subjectID {
			return t.withSteps(inst), nil
		}
	}
	return nil, nil
}

func (t *tx) TransitionStep(
	_ context.Context,
	stepID string,
	status repository.StepStatus,
	actedBy string,
	comment *string,
	isProxy bool,
	at time.Time,
) (bool, error) {
	step, ok := t.st.steps[stepID]
	if !ok || step.Status != repository.StepPending {
		return false, nil
	}
	step.Status = status
	step.ActedBy = &actedBy
	step.ActionedAt = &at
	step.Comment = comment
	step.IsProxy = isProxy
	return true, nil
}

func (t *tx) UpdateInstanceStatus(_ context.Context, id string, status repository.InstanceStatus) error {
	inst, ok := t.st.instances[id]
	if !ok {
		return errors.NotFound("approval_instance", id)
	}
	inst.Status = status
	inst.UpdatedAt = t.now()
	return nil
}

func (t *tx) ListInstancesForApprover(_ context.Context, tenantID, userID string) ([]*repository.ApprovalInstance, error) {
	return t.filterInstances(tenantID, func(inst *repository.ApprovalInstance) bool {
		for _, s := range inst.Steps {
			if s.Status == repository.StepPending && s.ApproverID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (t *tx) ListInstancesAwaitingDirector(_ context.Context, tenantID, roUserID string) ([]*repository.ApprovalInstance, error) {
	return t.filterInstances(tenantID, func(inst *repository.ApprovalInstance) bool {
		ro := inst.StepByName(repository.StepRO)
		dir := inst.StepByName(repository.StepDirector)
		return ro != nil && dir != nil &&
			ro.ApproverID == roUserID &&
			ro.Status == repository.StepApproved &&
			dir.Status == repository.StepPending
	}), nil
}

func (t *tx) filterInstances(tenantID string, keep func(*repository.ApprovalInstance) bool) []*repository.ApprovalInstance {
	var out []*repository.ApprovalInstance
	for _, inst := range t.st.instances {
		if inst.TenantID != tenantID || inst.Status != repository.InstancePending {
			continue
		}
		full := t.withSteps(inst)
		if keep(full) {
			out = append(out, full)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (t *tx) withSteps(inst *repository.ApprovalInstance) *repository.ApprovalInstance {
	cp := *inst
	cp.Steps = nil
	for _, s := range t.st.steps {
		if s.InstanceID == inst.ID {
			sc := *s
			cp.Steps = append(cp.Steps, &sc)
		}
	}
	sort.Slice(cp.Steps, func(i, j int) bool { return cp.Steps[i].Sequence < cp.Steps[j].Sequence })
	return &cp
}

// Audit

func (t *tx) AppendAudit(_ context.Context, e *repository.ApprovalAuditEntry) error {
	e.ID = newID()
	e.PerformedAt = t.now()
	cp := *e
	t.st.audit = append(t.st.audit, &cp)
	return nil
}

func (t *tx) ListAudit(_ context.Context, tenantID, instanceID string) ([]*repository.ApprovalAuditEntry, error) {
	var out []*repository.ApprovalAuditEntry
	for _, e := range t.st.audit {
		if e.TenantID == tenantID && e.InstanceID == instanceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Master data

func (t *tx) GetResource(_ context.Context, tenantID, id string) (*repository.Resource, error) {
	r, ok := t.st.resources[key(tenantID, id)]
	if !ok {
		return nil, errors.NotFound("resource", id)
	}
	cp := *r
	return &cp, nil
}

func (t *tx) GetCostCenter(_ context.Context, tenantID, id string) (*repository.CostCenter, error) {
	cc, ok := t.st.costCenters[key(tenantID, id)]
	if !ok {
		return nil, errors.NotFound("cost_center", id)
	}
	cp := *cc
	return &cp, nil
}

func (t *tx) GetDepartmentApprover(_ context.Context, tenantID, departmentID string) (*repository.DepartmentApprover, error) {
	da, ok := t.st.deptApprov[key(tenantID, departmentID)]
	if !ok {
		return nil, nil
	}
	cp := *da
	return &cp, nil
}
