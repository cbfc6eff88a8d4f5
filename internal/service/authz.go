package service

import (
	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// Role is the caller's role inside a tenant.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleFinance  Role = "Finance"
	RolePM       Role = "PM"
	RoleRO       Role = "RO"
	RoleDirector Role = "Director"
	RoleEmployee Role = "Employee"
)

// ParseRole returns the Role named by s.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleFinance, RolePM, RoleRO, RoleDirector, RoleEmployee:
		return r, nil
	}
	return "", errors.Newf(errors.ErrCodeUnauthorized, "unknown role %q", s)
}

// User is the caller as resolved upstream.
type User struct {
	ID       string
	TenantID string
	Role     Role
}

// CanManagePeriods reports whether u may open, lock or unlock periods.
func CanManagePeriods(u User) bool {
	return u.Role == RoleFinance
}

// CanWriteDemand reports whether u may create, change or delete demand lines.
func CanWriteDemand(u User) bool {
	return u.Role == RolePM || u.Role == RoleFinance
}

// CanWriteSupply reports whether u may create, change or delete supply lines.
func CanWriteSupply(u User) bool {
	return u.Role == RoleRO || u.Role == RoleFinance
}

// CanViewInsights reports whether u may read the demand vs supply view.
func CanViewInsights(u User) bool {
	switch u.Role {
	case RoleAdmin, RoleFinance, RolePM, RoleRO:
		return true
	}
	return false
}

// CanWriteActual reports whether u may enter actuals for res: the employee
// behind the resource, or the RO of its cost center entering on their behalf.
func CanWriteActual(u User, res *repository.Resource, cc *repository.CostCenter) bool {
	return CanSign(u, res) || CanProxySign(u, cc)
}

// CanSign reports whether u is the employee behind res.
func CanSign(u User, res *repository.Resource) bool {
	return res != nil && res.UserID != nil && *res.UserID == u.ID
}

// CanProxySign reports whether u is the RO of cc.
func CanProxySign(u User, cc *repository.CostCenter) bool {
	return u.Role == RoleRO && cc != nil && cc.ROUserID != nil && *cc.ROUserID == u.ID
}

// CanApproveStep reports whether u is the approver bound to step.
func CanApproveStep(u User, step *repository.ApprovalStep) bool {
	return step != nil && step.ApproverID == u.ID
}

// CanProxyApprove reports whether u may act on the Director step in the
// Director's place. u must own the already approved RO step while the
// Director step is still pending.
func CanProxyApprove(u User, ro, director *repository.ApprovalStep) bool {
	return u.Role == RoleRO &&
		ro != nil && director != nil &&
		ro.ApproverID == u.ID &&
		ro.Status == repository.StepApproved &&
		director.Status == repository.StepPending
}
