package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

const actualColumns = `
	id::text, tenant_id, period_id::text, resource_id, project_id,
	year, month, planned_fte_percent, actual_fte_percent,
	employee_signed_at, signed_by, is_proxy_signed, proxy_reason,
	created_by, created_at, updated_at`

// LockResourcePeriod takes a transaction-scoped advisory lock on the
// (tenant, resource, period) key. Writers of other keys are not blocked.
func (r *txRepo) LockResourcePeriod(ctx context.Context, tenantID, resourceID, periodID string) error {
	_, err := r.tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1 || '/' || $2 || '/' || $3, 0))`,
		tenantID, resourceID, periodID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock resource period")
	}
	return nil
}

func (r *txRepo) SumActualFTE(ctx context.Context, tenantID, resourceID, periodID, excludeID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(actual_fte_percent), 0)
		FROM actual_lines
		WHERE tenant_id = $1
		  AND resource_id = $2
		  AND period_id = $3
		  AND ($4 = '' OR id::text <> $4)`

	var total int
	if err := r.tx.QueryRow(ctx, query, tenantID, resourceID, periodID, excludeID).Scan(&total); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to sum actuals")
	}
	return total, nil
}

func (r *txRepo) CreateActual(ctx context.Context, a *repository.ActualLine) error {
	query := `
		INSERT INTO actual_lines
		    (tenant_id, period_id, resource_id, project_id, year, month,
		     planned_fte_percent, actual_fte_percent, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at, updated_at`

	err := r.tx.QueryRow(ctx, query,
		a.TenantID,
		a.PeriodID,
		a.ResourceID,
		a.ProjectID,
		a.Year,
		a.Month,
		a.PlannedFTEPercent,
		a.ActualFTEPercent,
		a.CreatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create actual line")
	}
	return nil
}

// UpdateActual rewrites the editable fields of an unsigned line. The signed
// guard in the WHERE clause keeps signed content immutable even if a caller
// skipped the service check.
func (r *txRepo) UpdateActual(ctx context.Context, a *repository.ActualLine) error {
	query := `
		UPDATE actual_lines
		SET project_id          = $3,
		    planned_fte_percent = $4,
		    actual_fte_percent  = $5,
		    updated_at          = NOW()
		WHERE id = $1 AND tenant_id = $2
		  AND employee_signed_at IS NULL
		RETURNING updated_at`

	err := r.tx.QueryRow(ctx, query,
		a.ID,
		a.TenantID,
		a.ProjectID,
		a.PlannedFTEPercent,
		a.ActualFTEPercent,
	).Scan(&a.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.ErrCodeActualsLocked, "actual line is signed or missing")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update actual line")
	}
	return nil
}

func (r *txRepo) GetActual(ctx context.Context, tenantID, id string) (*repository.ActualLine, error) {
	query := `SELECT ` + actualColumns + `
		FROM actual_lines
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE`

	a, err := scanActual(r.tx.QueryRow(ctx, query, id, tenantID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("actual_line", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get actual line")
	}
	return a, nil
}

func (r *txRepo) DeleteActual(ctx context.Context, tenantID, id string) error {
	tag, err := r.tx.Exec(ctx, `
		DELETE FROM actual_lines
		WHERE id = $1 AND tenant_id = $2
		  AND employee_signed_at IS NULL`, id, tenantID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete actual line")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeActualsLocked, "actual line is signed or missing")
	}
	return nil
}

// MarkActualSigned stamps the signature. Only unsigned lines are updated.
func (r *txRepo) MarkActualSigned(ctx context.Context, a *repository.ActualLine) error {
	query := `
		UPDATE actual_lines
		SET employee_signed_at = $3,
		    signed_by          = $4,
		    is_proxy_signed    = $5,
		    proxy_reason       = $6,
		    updated_at         = NOW()
		WHERE id = $1 AND tenant_id = $2
		  AND employee_signed_at IS NULL
		RETURNING updated_at`

	err := r.tx.QueryRow(ctx, query,
		a.ID,
		a.TenantID,
		a.EmployeeSignedAt,
		a.SignedBy,
		a.IsProxySigned,
		a.ProxyReason,
	).Scan(&a.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.ErrCodeActualsLocked, "actual line is already signed")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to sign actual line")
	}
	return nil
}

func (r *txRepo) ListActualsByPeriod(ctx context.Context, tenantID, periodID string) ([]*repository.ActualLine, error) {
	query := `SELECT ` + actualColumns + `
		FROM actual_lines
		WHERE tenant_id = $1 AND period_id = $2
		ORDER BY resource_id ASC, created_at ASC`

	rows, err := r.tx.Query(ctx, query, tenantID, periodID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list actual lines")
	}
	defer rows.Close()

	var lines []*repository.ActualLine
	for rows.Next() {
		a, err := scanActual(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan actual line")
		}
		lines = append(lines, a)
	}
	return lines, rows.Err()
}

func scanActual(row rowScanner) (*repository.ActualLine, error) {
	a := &repository.ActualLine{}
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.PeriodID,
		&a.ResourceID,
		&a.ProjectID,
		&a.Year,
		&a.Month,
		&a.PlannedFTEPercent,
		&a.ActualFTEPercent,
		&a.EmployeeSignedAt,
		&a.SignedBy,
		&a.IsProxySigned,
		&a.ProxyReason,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
