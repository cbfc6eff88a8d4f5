package service

import (
	"context"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// PeriodService is the registry of planning months and their lock state.
type PeriodService struct {
	base
}

// NewPeriodService creates a new PeriodService.
func NewPeriodService(store repository.Store, log *logger.Logger, opts ...Option) *PeriodService {
	return &PeriodService{base: newBase(store, log, "periods", opts)}
}

// Open creates the period for (year, month) in the caller's tenant, or
// returns it unchanged when it already exists.
func (s *PeriodService) Open(ctx context.Context, u User, year, month int) (*repository.Period, error) {
	if !CanManagePeriods(u) {
		return nil, errors.Forbidden("only Finance can open periods")
	}
	if month < 1 || month > 12 {
		return nil, errors.InvalidInput("month", "month must be between 1 and 12")
	}
	if year < 1 {
		return nil, errors.InvalidInput("year", "year must be positive")
	}

	var out *repository.Period
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.FindPeriod(ctx, u.TenantID, year, month)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}

		p := &repository.Period{
			TenantID:  u.TenantID,
			Year:      year,
			Month:     month,
			Status:    repository.PeriodOpen,
			CreatedBy: u.ID,
		}
		if err := tx.CreatePeriod(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", u.TenantID).
		Str("period_id", out.ID).
		Int("year", year).
		Int("month", month).
		Msg("Period opened")
	return out, nil
}

// Lock freezes every demand, supply and actual line of the period.
func (s *PeriodService) Lock(ctx context.Context, u User, periodID, reason string) (*repository.Period, error) {
	return s.transition(ctx, u, periodID, reason, repository.PeriodLocked)
}

// Unlock re-opens a locked period.
func (s *PeriodService) Unlock(ctx context.Context, u User, periodID, reason string) (*repository.Period, error) {
	return s.transition(ctx, u, periodID, reason, repository.PeriodOpen)
}

func (s *PeriodService) transition(ctx context.Context, u User, periodID, reason string, target repository.PeriodStatus) (*repository.Period, error) {
	if !CanManagePeriods(u) {
		return nil, errors.Forbidden("only Finance can lock or unlock periods")
	}
	if isBlank(reason) {
		return nil, errors.InvalidInput("reason", "reason is required")
	}

	var out *repository.Period
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetPeriod(ctx, u.TenantID, periodID)
		if err != nil {
			return err
		}
		if p.Status == target {
			return errors.Newf(errors.ErrCodeInvalidTransition, "period is already %s", target).
				WithExtra("period_id", periodID).
				WithExtra("status", string(p.Status))
		}

		now := s.now()
		p.Status = target
		p.LockedBy = strPtr(u.ID)
		p.LockReason = strPtr(reason)
		if target == repository.PeriodLocked {
			p.LockedAt = &now
		}
		if err := tx.UpdatePeriodStatus(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", u.TenantID).
		Str("period_id", periodID).
		Str("status", string(target)).
		Str("by", u.ID).
		Msg("Period status changed")
	return out, nil
}

// IsMutable reports whether lines for (year, month) may be written. A month
// that was never opened is not mutable.
func (s *PeriodService) IsMutable(ctx context.Context, tenantID string, year, month int) (bool, error) {
	var mutable bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.FindPeriod(ctx, tenantID, year, month)
		if err != nil {
			return err
		}
		mutable = p != nil && p.Status == repository.PeriodOpen
		return nil
	})
	return mutable, err
}

// Get returns one period.
func (s *PeriodService) Get(ctx context.Context, tenantID, periodID string) (*repository.Period, error) {
	var out *repository.Period
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetPeriod(ctx, tenantID, periodID)
		return err
	})
	return out, err
}

// List returns the tenant's periods, newest first.
func (s *PeriodService) List(ctx context.Context, tenantID string) ([]*repository.Period, error) {
	var out []*repository.Period
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListPeriods(ctx, tenantID)
		return err
	})
	return out, err
}

// requireOpenPeriod loads the period inside tx and refuses locked ones,
// whatever the caller's role.
func requireOpenPeriod(ctx context.Context, tx repository.Tx, tenantID, periodID string) (*repository.Period, error) {
	p, err := tx.GetPeriod(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	if p.Status != repository.PeriodOpen {
		return nil, errors.Newf(errors.ErrCodePeriodLocked, "period %04d-%02d is locked", p.Year, p.Month).
			WithExtra("period_id", p.ID)
	}
	return p, nil
}
