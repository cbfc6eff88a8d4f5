package repository

import "time"

// ── Periods ───────────────────────────────────────────────────────────────────

// PeriodStatus is the lock state of a planning month.
type PeriodStatus string

const (
	PeriodOpen   PeriodStatus = "open"
	PeriodLocked PeriodStatus = "locked"
)

// Period is one (tenant, year, month) planning window.
type Period struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenant_id"`
	Year       int          `json:"year"`
	Month      int          `json:"month"`
	Status     PeriodStatus `json:"status"`
	LockedAt   *time.Time   `json:"locked_at,omitempty"`
	LockedBy   *string      `json:"locked_by,omitempty"`
	LockReason *string      `json:"lock_reason,omitempty"`
	CreatedBy  string       `json:"created_by"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// MonthIndex returns year*12+month-1, the ordinal used for month arithmetic.
func MonthIndex(year, month int) int {
	return year*12 + month - 1
}

// ── Planning lines ────────────────────────────────────────────────────────────

// DemandLine is project demand for a named resource or a placeholder.
type DemandLine struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	PeriodID      string    `json:"period_id"`
	ProjectID     string    `json:"project_id"`
	ResourceID    *string   `json:"resource_id,omitempty"`
	PlaceholderID *string   `json:"placeholder_id,omitempty"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	FTEPercent    int       `json:"fte_percent"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SupplyLine is the capacity an RO offers for a resource in a period.
// At most one exists per (tenant, resource, period).
type SupplyLine struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	PeriodID   string    `json:"period_id"`
	ResourceID string    `json:"resource_id"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	FTEPercent int       `json:"fte_percent"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ── Actuals ───────────────────────────────────────────────────────────────────

// ActualLine is time an employee reports against a project for a period.
type ActualLine struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	PeriodID          string     `json:"period_id"`
	ResourceID        string     `json:"resource_id"`
	ProjectID         string     `json:"project_id"`
	Year              int        `json:"year"`
	Month             int        `json:"month"`
	PlannedFTEPercent int        `json:"planned_fte_percent"`
	ActualFTEPercent  int        `json:"actual_fte_percent"`
	EmployeeSignedAt  *time.Time `json:"employee_signed_at,omitempty"`
	SignedBy          *string    `json:"signed_by,omitempty"`
	IsProxySigned     bool       `json:"is_proxy_signed"`
	ProxyReason       *string    `json:"proxy_reason,omitempty"`
	CreatedBy         string     `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsSigned reports whether the line's content is frozen.
func (a *ActualLine) IsSigned() bool {
	return a.EmployeeSignedAt != nil
}

// ── Approvals ─────────────────────────────────────────────────────────────────

// SubjectType names what an approval instance approves.
type SubjectType string

const SubjectActuals SubjectType = "actuals"

// InstanceStatus is derived from the instance's steps.
type InstanceStatus string

const (
	InstancePending  InstanceStatus = "pending"
	InstanceApproved InstanceStatus = "approved"
	InstanceRejected InstanceStatus = "rejected"
)

// StepStatus is the state of one approval step. Every value except
// StepPending is terminal.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// IsTerminal reports whether no further transition is allowed.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepApproved, StepRejected, StepSkipped:
		return true
	case StepPending:
		return false
	}
	panic("repository: unknown step status " + string(s))
}

// Valid reports whether s is one of the known statuses.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepApproved, StepRejected, StepSkipped:
		return true
	}
	return false
}

// StepName identifies the approver level of a step.
type StepName string

const (
	StepRO       StepName = "RO"
	StepDirector StepName = "Director"
)

// ApprovalInstance is the approval chain for one signed subject.
type ApprovalInstance struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	SubjectType SubjectType     `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	Status      InstanceStatus  `json:"status"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Steps       []*ApprovalStep `json:"steps"` // ordered by Sequence
}

// Step returns the step with the given id, or nil.
func (i *ApprovalInstance) Step(id string) *ApprovalStep {
	for _, s := range i.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StepByName returns the step with the given name, or nil.
func (i *ApprovalInstance) StepByName(name StepName) *ApprovalStep {
	for _, s := range i.Steps {
		if s.StepName == name {
			return s
		}
	}
	return nil
}

// ApprovalStep is one level of an approval chain.
type ApprovalStep struct {
	ID         string     `json:"id"`
	InstanceID string     `json:"instance_id"`
	StepName   StepName   `json:"step_name"`
	Sequence   int        `json:"sequence"`
	ApproverID string     `json:"approver_id"`
	Status     StepStatus `json:"status"`
	ActedBy    *string    `json:"acted_by,omitempty"`
	ActionedAt *time.Time `json:"actioned_at,omitempty"`
	Comment    *string    `json:"comment,omitempty"`
	IsProxy    bool       `json:"is_proxy"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ApprovalAuditEntry is one immutable record in the approval audit log.
type ApprovalAuditEntry struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	InstanceID  string         `json:"instance_id"`
	StepID      *string        `json:"step_id,omitempty"`
	Action      string         `json:"action"` // created | approved | rejected | skipped | proxy_approved
	PerformedBy string         `json:"performed_by"`
	PerformedAt time.Time      `json:"performed_at"`
	Comment     *string        `json:"comment,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ── Master data (read only) ───────────────────────────────────────────────────

// Resource is a person (or placeholder resource) that can be allocated.
type Resource struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	DisplayName  string  `json:"display_name"`
	UserID       *string `json:"user_id,omitempty"` // employee's internal user id
	CostCenterID *string `json:"cost_center_id,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
	IsActive     bool    `json:"is_active"`
}

// CostCenter groups resources under one Resource Owner.
type CostCenter struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	Name         string  `json:"name"`
	ROUserID     *string `json:"ro_user_id,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
}

// DepartmentApprover names the Director who approves for a department.
type DepartmentApprover struct {
	TenantID       string  `json:"tenant_id"`
	DepartmentID   string  `json:"department_id"`
	DirectorUserID *string `json:"director_user_id,omitempty"`
}
