package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

const periodColumns = `
	id::text, tenant_id, year, month, status::text,
	locked_at, locked_by, lock_reason,
	created_by, created_at, updated_at`

// GetPeriod reads a period and takes a share lock on it, so a concurrent
// lock/unlock waits for writers that checked the period to finish.
func (r *txRepo) GetPeriod(ctx context.Context, tenantID, id string) (*repository.Period, error) {
	query := `SELECT ` + periodColumns + `
		FROM periods
		WHERE id = $1 AND tenant_id = $2
		FOR SHARE`

	p, err := scanPeriod(r.tx.QueryRow(ctx, query, id, tenantID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("period", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get period")
	}
	return p, nil
}

// FindPeriod looks a period up by month; nil when never opened.
func (r *txRepo) FindPeriod(ctx context.Context, tenantID string, year, month int) (*repository.Period, error) {
	query := `SELECT ` + periodColumns + `
		FROM periods
		WHERE tenant_id = $1 AND year = $2 AND month = $3
		FOR SHARE`

	p, err := scanPeriod(r.tx.QueryRow(ctx, query, tenantID, year, month))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find period")
	}
	return p, nil
}

// CreatePeriod inserts an open period.
func (r *txRepo) CreatePeriod(ctx context.Context, p *repository.Period) error {
	query := `
		INSERT INTO periods (tenant_id, year, month, status, created_by)
		VALUES ($1, $2, $3, $4::period_status, $5)
		RETURNING id::text, created_at, updated_at`

	err := r.tx.QueryRow(ctx, query,
		p.TenantID,
		p.Year,
		p.Month,
		p.Status,
		p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create period")
	}
	return nil
}

// UpdatePeriodStatus persists a lock or unlock transition.
func (r *txRepo) UpdatePeriodStatus(ctx context.Context, p *repository.Period) error {
	query := `
		UPDATE periods
		SET status      = $3::period_status,
		    locked_at   = $4,
		    locked_by   = $5,
		    lock_reason = $6,
		    updated_at  = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`

	err := r.tx.QueryRow(ctx, query,
		p.ID,
		p.TenantID,
		p.Status,
		p.LockedAt,
		p.LockedBy,
		p.LockReason,
	).Scan(&p.UpdatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("period", p.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update period status")
	}
	return nil
}

// ListPeriods returns a tenant's periods, newest first.
func (r *txRepo) ListPeriods(ctx context.Context, tenantID string) ([]*repository.Period, error) {
	query := `SELECT ` + periodColumns + `
		FROM periods
		WHERE tenant_id = $1
		ORDER BY year DESC, month DESC`

	rows, err := r.tx.Query(ctx, query, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list periods")
	}
	defer rows.Close()

	var periods []*repository.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan period")
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(row rowScanner) (*repository.Period, error) {
	p := &repository.Period{}
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Year,
		&p.Month,
		&p.Status,
		&p.LockedAt,
		&p.LockedBy,
		&p.LockReason,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
