package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// ── Demand ────────────────────────────────────────────────────────────────────

const demandColumns = `
	id::text, tenant_id, period_id::text, project_id,
	resource_id, placeholder_id, year, month, fte_percent,
	created_by, created_at, updated_at`

func (r *txRepo) CreateDemand(ctx context.Context, d *repository.DemandLine) error {
	query := `
		INSERT INTO demand_lines
		    (tenant_id, period_id, project_id, resource_id, placeholder_id,
		     year, month, fte_percent, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at, updated_at`

	err := r.tx.QueryRow(ctx, query,
		d.TenantID,
		d.PeriodID,
		d.ProjectID,
		d.ResourceID,
		d.PlaceholderID,
		d.Year,
		d.Month,
		d.FTEPercent,
		d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create demand line")
	}
	return nil
}

func (r *txRepo) UpdateDemandFTE(ctx context.Context, d *repository.DemandLine) error {
	query := `
		UPDATE demand_lines
		SET fte_percent = $3,
		    updated_at  = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`

	err := r.tx.QueryRow(ctx, query, d.ID, d.TenantID, d.FTEPercent).Scan(&d.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("demand_line", d.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update demand line")
	}
	return nil
}

func (r *txRepo) GetDemand(ctx context.Context, tenantID, id string) (*repository.DemandLine, error) {
	query := `SELECT ` + demandColumns + `
		FROM demand_lines
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE`

	d, err := scanDemand(r.tx.QueryRow(ctx, query, id, tenantID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("demand_line", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get demand line")
	}
	return d, nil
}

func (r *txRepo) DeleteDemand(ctx context.Context, tenantID, id string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM demand_lines WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete demand line")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("demand_line", id)
	}
	return nil
}

func (r *txRepo) ListDemandByPeriod(ctx context.Context, tenantID, periodID string) ([]*repository.DemandLine, error) {
	query := `SELECT ` + demandColumns + `
		FROM demand_lines
		WHERE tenant_id = $1 AND period_id = $2
		ORDER BY created_at ASC`

	rows, err := r.tx.Query(ctx, query, tenantID, periodID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list demand lines")
	}
	defer rows.Close()

	var lines []*repository.DemandLine
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan demand line")
		}
		lines = append(lines, d)
	}
	return lines, rows.Err()
}

func scanDemand(row rowScanner) (*repository.DemandLine, error) {
	d := &repository.DemandLine{}
	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.PeriodID,
		&d.ProjectID,
		&d.ResourceID,
		&d.PlaceholderID,
		&d.Year,
		&d.Month,
		&d.FTEPercent,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ── Supply ────────────────────────────────────────────────────────────────────

const supplyColumns = `
	id::text, tenant_id, period_id::text, resource_id,
	year, month, fte_percent,
	created_by, created_at, updated_at`

func (r *txRepo) UpsertSupply(ctx context.Context, s *repository.SupplyLine) error {
	query := `
		INSERT INTO supply_lines
		    (tenant_id, period_id, resource_id, year, month, fte_percent, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, resource_id, period_id) DO UPDATE
		SET fte_percent = EXCLUDED.fte_percent,
		    updated_at  = NOW()
		RETURNING ` + supplyColumns

	stored, err := scanSupply(r.tx.QueryRow(ctx, query,
		s.TenantID,
		s.PeriodID,
		s.ResourceID,
		s.Year,
		s.Month,
		s.FTEPercent,
		s.CreatedBy,
	))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert supply line")
	}
	*s = *stored
	return nil
}

func (r *txRepo) GetSupply(ctx context.Context, tenantID, id string) (*repository.SupplyLine, error) {
	query := `SELECT ` + supplyColumns + `
		FROM supply_lines
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE`

	s, err := scanSupply(r.tx.QueryRow(ctx, query, id, tenantID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("supply_line", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get supply line")
	}
	return s, nil
}

func (r *txRepo) DeleteSupply(ctx context.Context, tenantID, id string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM supply_lines WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete supply line")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("supply_line", id)
	}
	return nil
}

func (r *txRepo) ListSupplyByPeriod(ctx context.Context, tenantID, periodID string) ([]*repository.SupplyLine, error) {
	query := `SELECT ` + supplyColumns + `
		FROM supply_lines
		WHERE tenant_id = $1 AND period_id = $2
		ORDER BY created_at ASC`

	rows, err := r.tx.Query(ctx, query, tenantID, periodID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list supply lines")
	}
	defer rows.Close()

	var lines []*repository.SupplyLine
	for rows.Next() {
		s, err := scanSupply(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan supply line")
		}
		lines = append(lines, s)
	}
	return lines, rows.Err()
}

func scanSupply(row rowScanner) (*repository.SupplyLine, error) {
	s := &repository.SupplyLine{}
	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.PeriodID,
		&s.ResourceID,
		&s.Year,
		&s.Month,
		&s.FTEPercent,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
