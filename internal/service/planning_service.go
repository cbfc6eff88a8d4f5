package service

import (
	"context"
	"sort"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// DemandInput is a demand line write. An empty ID creates a line; otherwise
// only FTEPercent of the existing line changes.
type DemandInput struct {
	ID            string
	PeriodID      string
	ProjectID     string
	ResourceID    *string
	PlaceholderID *string
	FTEPercent    int
}

// SupplyInput is a supply line write, keyed by (resource, period).
type SupplyInput struct {
	PeriodID   string
	ResourceID string
	FTEPercent int
}

// PlanningService owns demand and supply lines.
type PlanningService struct {
	base
}

// NewPlanningService creates a new PlanningService.
func NewPlanningService(store repository.Store, log *logger.Logger, opts ...Option) *PlanningService {
	return &PlanningService{base: newBase(store, log, "planning", opts)}
}

// ── Demand ────────────────────────────────────────────────────────────────────

// UpsertDemand creates or updates a demand line.
func (s *PlanningService) UpsertDemand(ctx context.Context, u User, in DemandInput) (*repository.DemandLine, error) {
	if !CanWriteDemand(u) {
		return nil, errors.Forbidden("only PM or Finance can write demand")
	}

	var out *repository.DemandLine
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if in.ID != "" {
			line, err := tx.GetDemand(ctx, u.TenantID, in.ID)
			if err != nil {
				return err
			}
			period, err := requireOpenPeriod(ctx, tx, u.TenantID, line.PeriodID)
			if err != nil {
				return err
			}
			line.FTEPercent = in.FTEPercent
			if err := ValidateDemand(line, period, s.now()); err != nil {
				return err
			}
			if err := tx.UpdateDemandFTE(ctx, line); err != nil {
				return err
			}
			out = line
			return nil
		}

		if in.ProjectID == "" {
			return errors.InvalidInput("project_id", "project_id is required")
		}
		period, err := requireOpenPeriod(ctx, tx, u.TenantID, in.PeriodID)
		if err != nil {
			return err
		}
		line := &repository.DemandLine{
			TenantID:      u.TenantID,
			PeriodID:      period.ID,
			ProjectID:     in.ProjectID,
			ResourceID:    nonBlank(in.ResourceID),
			PlaceholderID: nonBlank(in.PlaceholderID),
			Year:          period.Year,
			Month:         period.Month,
			FTEPercent:    in.FTEPercent,
			CreatedBy:     u.ID,
		}
		if err := ValidateDemand(line, period, s.now()); err != nil {
			return err
		}
		if line.ResourceID != nil {
			if _, err := tx.GetResource(ctx, u.TenantID, *line.ResourceID); err != nil {
				return err
			}
		}
		if err := tx.CreateDemand(ctx, line); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", u.TenantID).
		Str("demand_line_id", out.ID).
		Str("period_id", out.PeriodID).
		Int("fte_percent", out.FTEPercent).
		Msg("Demand line saved")
	return out, nil
}

// DeleteDemand removes a demand line from an open period.
func (s *PlanningService) DeleteDemand(ctx context.Context, u User, id string) error {
	if !CanWriteDemand(u) {
		return errors.Forbidden("only PM or Finance can write demand")
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		line, err := tx.GetDemand(ctx, u.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := requireOpenPeriod(ctx, tx, u.TenantID, line.PeriodID); err != nil {
			return err
		}
		return tx.DeleteDemand(ctx, u.TenantID, id)
	})
}

// GetDemandLines returns every demand line of a period.
func (s *PlanningService) GetDemandLines(ctx context.Context, tenantID, periodID string) ([]*repository.DemandLine, error) {
	var out []*repository.DemandLine
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetPeriod(ctx, tenantID, periodID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListDemandByPeriod(ctx, tenantID, periodID)
		return err
	})
	return out, err
}

// ── Supply ────────────────────────────────────────────────────────────────────

// UpsertSupply sets the supply of a resource for a period. A second write for
// the same resource and period replaces the FTE.
func (s *PlanningService) UpsertSupply(ctx context.Context, u User, in SupplyInput) (*repository.SupplyLine, error) {
	if !CanWriteSupply(u) {
		return nil, errors.Forbidden("only RO or Finance can write supply")
	}
	if in.ResourceID == "" {
		return nil, errors.InvalidInput("resource_id", "resource_id is required")
	}

	var out *repository.SupplyLine
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		period, err := requireOpenPeriod(ctx, tx, u.TenantID, in.PeriodID)
		if err != nil {
			return err
		}
		line := &repository.SupplyLine{
			TenantID:   u.TenantID,
			PeriodID:   period.ID,
			ResourceID: in.ResourceID,
			Year:       period.Year,
			Month:      period.Month,
			FTEPercent: in.FTEPercent,
			CreatedBy:  u.ID,
		}
		if err := ValidateSupply(line, period); err != nil {
			return err
		}
		if _, err := tx.GetResource(ctx, u.TenantID, in.ResourceID); err != nil {
			return err
		}
		if err := tx.UpsertSupply(ctx, line); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", u.TenantID).
		Str("supply_line_id", out.ID).
		Str("resource_id", out.ResourceID).
		Int("fte_percent", out.FTEPercent).
		Msg("Supply line saved")
	return out, nil
}

// DeleteSupply removes a supply line from an open period.
func (s *PlanningService) DeleteSupply(ctx context.Context, u User, id string) error {
	if !CanWriteSupply(u) {
		return errors.Forbidden("only RO or Finance can write supply")
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		line, err := tx.GetSupply(ctx, u.TenantID, id)
		if err != nil {
			return err
		}
		if _, err := requireOpenPeriod(ctx, tx, u.TenantID, line.PeriodID); err != nil {
			return err
		}
		return tx.DeleteSupply(ctx, u.TenantID, id)
	})
}

// GetSupplyLines returns every supply line of a period.
func (s *PlanningService) GetSupplyLines(ctx context.Context, tenantID, periodID string) ([]*repository.SupplyLine, error) {
	var out []*repository.SupplyLine
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetPeriod(ctx, tenantID, periodID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListSupplyByPeriod(ctx, tenantID, periodID)
		return err
	})
	return out, err
}

// ── Insights ──────────────────────────────────────────────────────────────────

// CostCenterGap compares demand and supply for one cost center.
type CostCenterGap struct {
	CostCenterID   string
	CostCenterName string
	DemandTotal    int
	SupplyTotal    int
	Gap            int // supply minus demand
}

// OrphanDemand is demand that cannot be matched to an active named resource.
type OrphanDemand struct {
	DemandLineID string
	ProjectID    string
	FTEPercent   int
	Reason       string
}

// Orphan reasons.
const (
	OrphanPlaceholder      = "placeholder"
	OrphanInactiveResource = "inactive_resource"
)

// PlanningInsights is the demand vs supply view of a period.
type PlanningInsights struct {
	Period       *repository.Period
	ByCostCenter []CostCenterGap
	Orphans      []OrphanDemand
	TotalDemand  int
	TotalSupply  int
	TotalGap     int
	GapsCount    int
}

// PlanningInsights aggregates demand and supply of a period per cost center
// and lists orphan demand.
func (s *PlanningService) PlanningInsights(ctx context.Context, u User, periodID string) (*PlanningInsights, error) {
	if !CanViewInsights(u) {
		return nil, errors.Forbidden("role cannot view planning insights")
	}

	out := &PlanningInsights{}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		period, err := tx.GetPeriod(ctx, u.TenantID, periodID)
		if err != nil {
			return err
		}
		out.Period = period

		demand, err := tx.ListDemandByPeriod(ctx, u.TenantID, periodID)
		if err != nil {
			return err
		}
		supply, err := tx.ListSupplyByPeriod(ctx, u.TenantID, periodID)
		if err != nil {
			return err
		}

		resources := map[string]*repository.Resource{}
		lookup := func(id string) (*repository.Resource, error) {
			if r, ok := resources[id]; ok {
				return r, nil
			}
			r, err := tx.GetResource(ctx, u.TenantID, id)
			if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
				return nil, err
			}
			resources[id] = r
			return r, nil
		}

		gaps := map[string]*CostCenterGap{}
		bucket := func(res *repository.Resource) (*CostCenterGap, error) {
			if res == nil || res.CostCenterID == nil {
				return nil, nil
			}
			id := *res.CostCenterID
			if g, ok := gaps[id]; ok {
				return g, nil
			}
			g := &CostCenterGap{CostCenterID: id, CostCenterName: "Unknown"}
			cc, err := tx.GetCostCenter(ctx, u.TenantID, id)
			switch {
			case err == nil:
				g.CostCenterName = cc.Name
			case !errors.HasCode(err, errors.ErrCodeNotFound):
				return nil, err
			}
			gaps[id] = g
			return g, nil
		}

		for _, d := range demand {
			out.TotalDemand += d.FTEPercent
			if d.PlaceholderID != nil {
				out.Orphans = append(out.Orphans, OrphanDemand{
					DemandLineID: d.ID,
					ProjectID:    d.ProjectID,
					FTEPercent:   d.FTEPercent,
					Reason:       OrphanPlaceholder,
				})
				continue
			}
			res, err := lookup(*d.ResourceID)
			if err != nil {
				return err
			}
			if res != nil && !res.IsActive {
				out.Orphans = append(out.Orphans, OrphanDemand{
					DemandLineID: d.ID,
					ProjectID:    d.ProjectID,
					FTEPercent:   d.FTEPercent,
					Reason:       OrphanInactiveResource,
				})
			}
			g, err := bucket(res)
			if err != nil {
				return err
			}
			if g != nil {
				g.DemandTotal += d.FTEPercent
			}
		}

		for _, sl := range supply {
			out.TotalSupply += sl.FTEPercent
			res, err := lookup(sl.ResourceID)
			if err != nil {
				return err
			}
			g, err := bucket(res)
			if err != nil {
				return err
			}
			if g != nil {
				g.SupplyTotal += sl.FTEPercent
			}
		}

		for _, g := range gaps {
			g.Gap = g.SupplyTotal - g.DemandTotal
			if g.Gap != 0 {
				out.GapsCount++
			}
			out.ByCostCenter = append(out.ByCostCenter, *g)
		}
		sort.Slice(out.ByCostCenter, func(i, j int) bool {
			a, b := out.ByCostCenter[i], out.ByCostCenter[j]
			if a.CostCenterName != b.CostCenterName {
				return a.CostCenterName < b.CostCenterName
			}
			return a.CostCenterID < b.CostCenterID
		})
		out.TotalGap = out.TotalSupply - out.TotalDemand
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
