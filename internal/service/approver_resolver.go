package service

import (
	"context"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// ApproverResolver reads the master data that binds approval steps to people.
// repository.Tx satisfies it, so lookups see the same snapshot as the write
// that triggered them.
type ApproverResolver interface {
	GetResource(ctx context.Context, tenantID, resourceID string) (*repository.Resource, error)
	GetCostCenter(ctx context.Context, tenantID, id string) (*repository.CostCenter, error)
	GetDepartmentApprover(ctx context.Context, tenantID, departmentID string) (*repository.DepartmentApprover, error)
}

// Approvers are the internal user ids bound to the two approval steps.
type Approvers struct {
	ROUserID       string
	DirectorUserID string
}

// ResolveApprovers finds the RO of the resource's cost center and the Director
// of its department.
func ResolveApprovers(ctx context.Context, r ApproverResolver, tenantID, resourceID string) (*Approvers, error) {
	res, err := r.GetResource(ctx, tenantID, resourceID)
	if err != nil {
		return nil, err
	}

	notConfigured := func(msg string) error {
		return errors.New(errors.ErrCodeApproverNotConfigured, msg).
			WithExtra("resource_id", resourceID)
	}

	if res.CostCenterID == nil || *res.CostCenterID == "" {
		return nil, notConfigured("resource has no cost center")
	}
	cc, err := r.GetCostCenter(ctx, tenantID, *res.CostCenterID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, notConfigured("resource cost center does not exist")
		}
		return nil, err
	}
	if cc.ROUserID == nil || *cc.ROUserID == "" {
		return nil, notConfigured("cost center has no resource owner")
	}

	// the resource's own department wins over the cost center's
	deptID := res.DepartmentID
	if deptID == nil || *deptID == "" {
		deptID = cc.DepartmentID
	}
	if deptID == nil || *deptID == "" {
		return nil, notConfigured("resource has no department")
	}
	da, err := r.GetDepartmentApprover(ctx, tenantID, *deptID)
	if err != nil {
		return nil, err
	}
	if da == nil || da.DirectorUserID == nil || *da.DirectorUserID == "" {
		return nil, notConfigured("department has no director")
	}

	return &Approvers{ROUserID: *cc.ROUserID, DirectorUserID: *da.DirectorUserID}, nil
}
