package repository

import (
	"context"
	"time"
)

// Store opens transactions over the allocation data.
type Store interface {
	// WithinTx runs fn in one atomic unit. A returned error rolls back every
	// write made through tx. fn may be invoked more than once when the backend
	// retries a serialization conflict.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of repositories available inside a transaction.
type Tx interface {
	PeriodRepository
	DemandRepository
	SupplyRepository
	ActualsRepository
	ApprovalRepository
	AuditRepository
	MasterDataReader
}

// PeriodRepository persists planning periods.
type PeriodRepository interface {
	GetPeriod(ctx context.Context, tenantID, id string) (*Period, error)
	// FindPeriod returns nil when the month was never opened.
	FindPeriod(ctx context.Context, tenantID string, year, month int) (*Period, error)
	CreatePeriod(ctx context.Context, p *Period) error
	UpdatePeriodStatus(ctx context.Context, p *Period) error
	ListPeriods(ctx context.Context, tenantID string) ([]*Period, error)
}

// DemandRepository persists demand lines.
type DemandRepository interface {
	CreateDemand(ctx context.Context, d *DemandLine) error
	UpdateDemandFTE(ctx context.Context, d *DemandLine) error
	GetDemand(ctx context.Context, tenantID, id string) (*DemandLine, error)
	DeleteDemand(ctx context.Context, tenantID, id string) error
	ListDemandByPeriod(ctx context.Context, tenantID, periodID string) ([]*DemandLine, error)
}

// SupplyRepository persists supply lines.
type SupplyRepository interface {
	// UpsertSupply inserts s or, when a line for the same (tenant, resource,
	// period) exists, replaces its FTE. s is updated with the stored row.
	UpsertSupply(ctx context.Context, s *SupplyLine) error
	GetSupply(ctx context.Context, tenantID, id string) (*SupplyLine, error)
	DeleteSupply(ctx context.Context, tenantID, id string) error
	ListSupplyByPeriod(ctx context.Context, tenantID, periodID string) ([]*SupplyLine, error)
}

// ActualsRepository persists actual lines.
type ActualsRepository interface {
	// LockResourcePeriod serialises writers of one (tenant, resource, period)
	// until the transaction ends.
	LockResourcePeriod(ctx context.Context, tenantID, resourceID, periodID string) error
	// SumActualFTE totals actual FTE for the key, ignoring excludeID.
	SumActualFTE(ctx context.Context, tenantID, resourceID, periodID, excludeID string) (int, error)
	CreateActual(ctx context.Context, a *ActualLine) error
	UpdateActual(ctx context.Context, a *ActualLine) error
	GetActual(ctx context.Context, tenantID, id string) (*ActualLine, error)
	DeleteActual(ctx context.Context, tenantID, id string) error
	MarkActualSigned(ctx context.Context, a *ActualLine) error
	ListActualsByPeriod(ctx context.Context, tenantID, periodID string) ([]*ActualLine, error)
}

// ApprovalRepository persists approval instances and their steps.
type ApprovalRepository interface {
	// CreateInstance inserts inst with its steps unless an instance for the
	// same (tenant, subject_type, subject_id) exists, in which case it returns
	// false and writes nothing.
	CreateInstance(ctx context.Context, inst *ApprovalInstance) (bool, error)
	GetInstance(ctx context.Context, tenantID, id string) (*ApprovalInstance, error)
	// GetInstanceBySubject returns nil when no instance exists.
	GetInstanceBySubject(ctx context.Context, tenantID string, subjectType SubjectType, subjectID string) (*ApprovalInstance, error)
	// TransitionStep moves a pending step to status. It returns false when
	// the step was no longer pending.
	TransitionStep(ctx context.Context, stepID string, status StepStatus, actedBy string, comment *string, isProxy bool, at time.Time) (bool, error)
	UpdateInstanceStatus(ctx context.Context, id string, status InstanceStatus) error
	// ListInstancesForApprover returns instances with a pending step whose
	// approver is userID.
	ListInstancesForApprover(ctx context.Context, tenantID, userID string) ([]*ApprovalInstance, error)
	// ListInstancesAwaitingDirector returns instances whose RO step was
	// approved by roUserID while the Director step is still pending.
	ListInstancesAwaitingDirector(ctx context.Context, tenantID, roUserID string) ([]*ApprovalInstance, error)
}

// AuditRepository appends and reads the approval audit log.
type AuditRepository interface {
	AppendAudit(ctx context.Context, e *ApprovalAuditEntry) error
	ListAudit(ctx context.Context, tenantID, instanceID string) ([]*ApprovalAuditEntry, error)
}

// MasterDataReader reads the lookup tables owned by master data.
type MasterDataReader interface {
	GetResource(ctx context.Context, tenantID, id string) (*Resource, error)
	GetCostCenter(ctx context.Context, tenantID, id string) (*CostCenter, error)
	// GetDepartmentApprover returns nil when no Director is configured.
	GetDepartmentApprover(ctx context.Context, tenantID, departmentID string) (*DepartmentApprover, error)
}
