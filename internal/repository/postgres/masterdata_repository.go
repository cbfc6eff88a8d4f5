package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

func (r *txRepo) GetResource(ctx context.Context, tenantID, id string) (*repository.Resource, error) {
	query := `
		SELECT id, tenant_id, display_name, user_id, cost_center_id, department_id, is_active
		FROM resources
		WHERE id = $1 AND tenant_id = $2`

	res := &repository.Resource{}
	err := r.tx.QueryRow(ctx, query, id, tenantID).Scan(
		&res.ID,
		&res.TenantID,
		&res.DisplayName,
		&res.UserID,
		&res.CostCenterID,
		&res.DepartmentID,
		&res.IsActive,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("resource", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get resource")
	}
	return res, nil
}

func (r *txRepo) GetCostCenter(ctx context.Context, tenantID, id string) (*repository.CostCenter, error) {
	query := `
		SELECT id, tenant_id, name, ro_user_id, department_id
		FROM cost_centers
		WHERE id = $1 AND tenant_id = $2`

	cc := &repository.CostCenter{}
	err := r.tx.QueryRow(ctx, query, id, tenantID).Scan(
		&cc.ID,
		&cc.TenantID,
		&cc.Name,
		&cc.ROUserID,
		&cc.DepartmentID,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("cost_center", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get cost center")
	}
	return cc, nil
}

func (r *txRepo) GetDepartmentApprover(ctx context.Context, tenantID, departmentID string) (*repository.DepartmentApprover, error) {
	query := `
		SELECT tenant_id, department_id, director_user_id
		FROM department_approvers
		WHERE tenant_id = $1 AND department_id = $2`

	da := &repository.DepartmentApprover{}
	err := r.tx.QueryRow(ctx, query, tenantID, departmentID).Scan(
		&da.TenantID,
		&da.DepartmentID,
		&da.DirectorUserID,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get department approver")
	}
	return da, nil
}
