package service

import (
	"context"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

const maxActualTotal = 100

// ActualInput is an actual line write. An empty ID creates a line.
type ActualInput struct {
	ID                string
	PeriodID          string
	ResourceID        string
	ProjectID         string
	PlannedFTEPercent int
	ActualFTEPercent  int
}

// ActualsService is the ledger of reported actuals and their signatures.
type ActualsService struct {
	base
	approvals *ApprovalService
}

// NewActualsService creates a new ActualsService. Signing creates approval
// instances through approvals.
func NewActualsService(store repository.Store, approvals *ApprovalService, log *logger.Logger, opts ...Option) *ActualsService {
	return &ActualsService{
		base:      newBase(store, log, "actuals", opts),
		approvals: approvals,
	}
}

// UpsertActual creates or updates an unsigned actual line. The resource's
// total for the period, including this line, may not exceed 100.
func (s *ActualsService) UpsertActual(ctx context.Context, u User, in ActualInput) (*repository.ActualLine, error) {
	if err := validateActualFTE("actual_fte_percent", in.ActualFTEPercent); err != nil {
		return nil, err
	}
	if err := validateActualFTE("planned_fte_percent", in.PlannedFTEPercent); err != nil {
		return nil, err
	}

	var out *repository.ActualLine
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var existing *repository.ActualLine
		periodID, resourceID, projectID := in.PeriodID, in.ResourceID, in.ProjectID
		if in.ID != "" {
			line, err := tx.GetActual(ctx, u.TenantID, in.ID)
			if err != nil {
				return err
			}
			existing = line
			periodID, resourceID = line.PeriodID, line.ResourceID
			if projectID == "" {
				projectID = line.ProjectID
			}
		}
		if resourceID == "" {
			return errors.InvalidInput("resource_id", "resource_id is required")
		}
		if projectID == "" {
			return errors.InvalidInput("project_id", "project_id is required")
		}

		period, err := requireOpenPeriod(ctx, tx, u.TenantID, periodID)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsSigned() {
			return actualsLocked(existing)
		}

		res, cc, err := loadOwnership(ctx, tx, u.TenantID, resourceID)
		if err != nil {
			return err
		}
		if !CanWriteActual(u, res, cc) {
			return errors.Forbidden("only the employee or their resource owner can enter actuals")
		}

		if err := tx.LockResourcePeriod(ctx, u.TenantID, resourceID, period.ID); err != nil {
			return err
		}
		others, err := tx.SumActualFTE(ctx, u.TenantID, resourceID, period.ID, in.ID)
		if err != nil {
			return err
		}
		if total := others + in.ActualFTEPercent; total > maxActualTotal {
			return errors.Newf(errors.ErrCodeActualsOver100, "total actual FTE for the period would be %d%%", total).
				WithExtra("resource_id", resourceID).
				WithExtra("total_percent", total)
		}

		if existing != nil {
			existing.ProjectID = projectID
			existing.PlannedFTEPercent = in.PlannedFTEPercent
			existing.ActualFTEPercent = in.ActualFTEPercent
			if err := tx.UpdateActual(ctx, existing); err != nil {
				return err
			}
			out = existing
			return nil
		}

		line := &repository.ActualLine{
			TenantID:          u.TenantID,
			PeriodID:          period.ID,
			ResourceID:        resourceID,
			ProjectID:         projectID,
			Year:              period.Year,
			Month:             period.Month,
			PlannedFTEPercent: in.PlannedFTEPercent,
			ActualFTEPercent:  in.ActualFTEPercent,
			CreatedBy:         u.ID,
		}
		if err := tx.CreateActual(ctx, line); err != nil {
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
		Str("actual_line_id", out.ID).
		Str("resource_id", out.ResourceID).
		Int("actual_fte_percent", out.ActualFTEPercent).
		Msg("Actual line saved")
	return out, nil
}

// Sign freezes the caller's own actual line and opens its approval.
func (s *ActualsService) Sign(ctx context.Context, u User, lineID string) (*repository.ActualLine, *repository.ApprovalInstance, error) {
	return s.sign(ctx, u, lineID, nil)
}

// ProxySign signs a line on the employee's behalf. Only the RO of the
// resource's cost center may do so, and only with a reason.
func (s *ActualsService) ProxySign(ctx context.Context, u User, lineID, reason string) (*repository.ActualLine, *repository.ApprovalInstance, error) {
	if isBlank(reason) {
		return nil, nil, errors.InvalidInput("reason", "a reason is required for proxy signing")
	}
	return s.sign(ctx, u, lineID, &reason)
}

func (s *ActualsService) sign(ctx context.Context, u User, lineID string, proxyReason *string) (*repository.ActualLine, *repository.ApprovalInstance, error) {
	var (
		line *repository.ActualLine
		inst *repository.ApprovalInstance
		ob   outbox
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ob.reset()

		var err error
		line, err = tx.GetActual(ctx, u.TenantID, lineID)
		if err != nil {
			return err
		}
		if _, err := requireOpenPeriod(ctx, tx, u.TenantID, line.PeriodID); err != nil {
			return err
		}
		res, cc, err := loadOwnership(ctx, tx, u.TenantID, line.ResourceID)
		if err != nil {
			return err
		}
		if proxyReason == nil && !CanSign(u, res) {
			return errors.Forbidden("only the employee can sign their actuals")
		}
		if proxyReason != nil && !CanProxySign(u, cc) {
			return errors.Forbidden("only the resource owner can proxy sign actuals")
		}
		if line.IsSigned() {
			return actualsLocked(line)
		}

		now := s.now()
		line.EmployeeSignedAt = &now
		line.SignedBy = strPtr(u.ID)
		line.IsProxySigned = proxyReason != nil
		line.ProxyReason = proxyReason
		if err := tx.MarkActualSigned(ctx, line); err != nil {
			return err
		}

		var created bool
		inst, created, err = s.approvals.EnsureApprovalInstance(ctx, tx, u.TenantID, line.ID, u.ID)
		if err != nil {
			return err
		}

		var employee []string
		if res.UserID != nil {
			employee = []string{*res.UserID}
		}
		ob.add(event{
			eventType:  EventActualsSigned,
			tenantID:   u.TenantID,
			subjectID:  line.ID,
			actorID:    u.ID,
			recipients: employee,
			payload: map[string]any{
				"resource_id": line.ResourceID,
				"is_proxy":    line.IsProxySigned,
			},
		})
		if created {
			if next := nextPending(inst); next != nil {
				ob.add(event{
					eventType:  EventApprovalRequired,
					tenantID:   u.TenantID,
					subjectID:  line.ID,
					actorID:    u.ID,
					recipients: []string{next.ApproverID},
					payload: map[string]any{
						"instance_id": inst.ID,
						"step_id":     next.ID,
						"step_name":   string(next.StepName),
					},
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.flush(ctx, &ob)

	s.log.Info().
		Str("tenant_id", u.TenantID).
		Str("actual_line_id", line.ID).
		Str("instance_id", inst.ID).
		Bool("proxy", line.IsProxySigned).
		Str("signed_by", u.ID).
		Msg("Actual line signed")
	return line, inst, nil
}

// DeleteActual removes an unsigned line from an open period.
func (s *ActualsService) DeleteActual(ctx context.Context, u User, lineID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		line, err := tx.GetActual(ctx, u.TenantID, lineID)
		if err != nil {
			return err
		}
		if _, err := requireOpenPeriod(ctx, tx, u.TenantID, line.PeriodID); err != nil {
			return err
		}
		if line.IsSigned() {
			return actualsLocked(line)
		}
		res, cc, err := loadOwnership(ctx, tx, u.TenantID, line.ResourceID)
		if err != nil {
			return err
		}
		if !CanWriteActual(u, res, cc) {
			return errors.Forbidden("only the employee or their resource owner can delete actuals")
		}
		return tx.DeleteActual(ctx, u.TenantID, lineID)
	})
}

// GetActualLines returns every actual line of a period.
func (s *ActualsService) GetActualLines(ctx context.Context, tenantID, periodID string) ([]*repository.ActualLine, error) {
	var out []*repository.ActualLine
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetPeriod(ctx, tenantID, periodID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListActualsByPeriod(ctx, tenantID, periodID)
		return err
	})
	return out, err
}

// loadOwnership reads the resource and, when it has one, its cost center.
func loadOwnership(ctx context.Context, tx repository.Tx, tenantID, resourceID string) (*repository.Resource, *repository.CostCenter, error) {
	res, err := tx.GetResource(ctx, tenantID, resourceID)
	if err != nil {
		return nil, nil, err
	}
	if res.CostCenterID == nil {
		return res, nil, nil
	}
	cc, err := tx.GetCostCenter(ctx, tenantID, *res.CostCenterID)
	if err != nil && !errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, nil, err
	}
	return res, cc, nil
}

func validateActualFTE(field string, v int) error {
	if v < 0 || v > maxActualTotal {
		return errors.Newf(errors.ErrCodeFteInvalid, "%s must be between 0 and %d", field, maxActualTotal).
			WithExtra("field", field).
			WithExtra(field, v)
	}
	return nil
}

func actualsLocked(line *repository.ActualLine) error {
	return errors.New(errors.ErrCodeActualsLocked, "actual line is signed and can no longer change").
		WithExtra("actual_line_id", line.ID)
}
