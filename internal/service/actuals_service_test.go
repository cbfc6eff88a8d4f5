package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

func totalFor(t *testing.T, f *fixture, resourceID string) int {
	t.Helper()
	lines, err := f.actuals.GetActualLines(context.Background(), tenant, f.period.ID)
	require.NoError(t, err)
	total := 0
	for _, l := range lines {
		if l.ResourceID == resourceID {
			total += l.ActualFTEPercent
		}
	}
	return total
}

func TestActualsService_OverHundredScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addActual(t, employee, "res-1", 30)
	assert.Equal(t, 30, totalFor(t, f, "res-1"))

	f.addActual(t, employee, "res-1", 45)
	assert.Equal(t, 75, totalFor(t, f, "res-1"))

	_, err := f.actuals.UpsertActual(ctx, employee, ActualInput{
		PeriodID: f.period.ID, ResourceID: "res-1", ProjectID: "proj-3", ActualFTEPercent: 30,
	})
	requireCode(t, err, errors.ErrCodeActualsOver100)

	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "res-1", e.Extras["resource_id"])
	assert.Equal(t, 105, e.Extras["total_percent"])
	assert.Equal(t, 75, totalFor(t, f, "res-1"))
}

func TestActualsService_UpdateCountsProspectiveTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.addActual(t, employee, "res-1", 60)
	f.addActual(t, employee, "res-1", 40)

	// the line's own previous value is replaced, not added
	_, err := f.actuals.UpsertActual(ctx, employee, ActualInput{ID: a.ID, ActualFTEPercent: 55})
	require.NoError(t, err)
	assert.Equal(t, 95, totalFor(t, f, "res-1"))

	_, err = f.actuals.UpsertActual(ctx, employee, ActualInput{ID: a.ID, ActualFTEPercent: 65})
	requireCode(t, err, errors.ErrCodeActualsOver100)
}

func TestActualsService_FTERange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, fte := range []int{-1, 101} {
		_, err := f.actuals.UpsertActual(ctx, employee, ActualInput{
			PeriodID: f.period.ID, ResourceID: "res-1", ProjectID: "proj-1", ActualFTEPercent: fte,
		})
		requireCode(t, err, errors.ErrCodeFteInvalid)
	}

	// zero and values off the planning step are valid actuals
	f.addActual(t, employee, "res-1", 0)
	f.addActual(t, employee, "res-1", 33)
}

func TestActualsService_WriteAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.actuals.UpsertActual(ctx, employee2, ActualInput{
		PeriodID: f.period.ID, ResourceID: "res-1", ProjectID: "proj-1", ActualFTEPercent: 10,
	})
	requireCode(t, err, errors.ErrCodeForbidden)

	// the RO enters actuals for their cost center
	f.addActual(t, ro, "res-1", 10)
}

func TestActualsService_ConcurrentWritersCannotExceedHundred(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addActual(t, employee, "res-1", 40)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		over      int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.actuals.UpsertActual(ctx, employee, ActualInput{
				PeriodID: f.period.ID, ResourceID: "res-1", ProjectID: "proj-2", ActualFTEPercent: 35,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.HasCode(err, errors.ErrCodeActualsOver100):
				over++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, over)
	assert.Equal(t, 75, totalFor(t, f, "res-1"))
}

func TestActualsService_SignCreatesInstanceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line := f.addActual(t, employee, "res-1", 50)

	signed, inst, err := f.actuals.Sign(ctx, employee, line.ID)
	require.NoError(t, err)
	require.NotNil(t, signed.EmployeeSignedAt)
	assert.False(t, signed.IsProxySigned)
	assert.Equal(t, line.ID, inst.SubjectID)

	_, _, err = f.actuals.Sign(ctx, employee, line.ID)
	requireCode(t, err, errors.ErrCodeActualsLocked)

	got, err := f.approvals.GetApprovalInstance(ctx, tenant, line.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)

	// ensuring again inside a new transaction returns the same instance
	err = f.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		again, created, err := f.approvals.EnsureApprovalInstance(ctx, tx, tenant, line.ID, employee.ID)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, inst.ID, again.ID)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{EventActualsSigned, EventApprovalRequired}, f.events.types())
}

func TestActualsService_SignedLineIsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line := f.addActual(t, employee, "res-1", 50)
	_, _, err := f.actuals.Sign(ctx, employee, line.ID)
	require.NoError(t, err)

	_, err = f.actuals.UpsertActual(ctx, employee, ActualInput{ID: line.ID, ActualFTEPercent: 40})
	requireCode(t, err, errors.ErrCodeActualsLocked)

	requireCode(t, f.actuals.DeleteActual(ctx, employee, line.ID), errors.ErrCodeActualsLocked)
}

func TestActualsService_SignAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line := f.addActual(t, employee, "res-1", 50)

	_, _, err := f.actuals.Sign(ctx, ro, line.ID)
	requireCode(t, err, errors.ErrCodeForbidden)

	_, _, err = f.actuals.ProxySign(ctx, ro, line.ID, "")
	requireCode(t, err, errors.ErrCodeInvalidInput)

	_, _, err = f.actuals.ProxySign(ctx, owner, line.ID, "on leave")
	requireCode(t, err, errors.ErrCodeForbidden)

	signed, inst, err := f.actuals.ProxySign(ctx, ro, line.ID, "employee on leave")
	require.NoError(t, err)
	assert.True(t, signed.IsProxySigned)
	assert.Equal(t, "employee on leave", *signed.ProxyReason)
	assert.Equal(t, "u-ro", *signed.SignedBy)
	assert.NotEmpty(t, inst.ID)
}

func TestActualsService_SignFailsAtomicallyWithoutApprover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	emp3 := User{ID: "u-emp3", TenantID: tenant, Role: RoleEmployee}
	line := f.addActual(t, emp3, "res-noro", 50)

	_, _, err := f.actuals.Sign(ctx, emp3, line.ID)
	requireCode(t, err, errors.ErrCodeApproverNotConfigured)

	lines, err := f.actuals.GetActualLines(ctx, tenant, f.period.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0].EmployeeSignedAt, "sign must roll back with the instance")

	_, err = f.approvals.GetApprovalInstance(ctx, tenant, line.ID)
	requireCode(t, err, errors.ErrCodeNotFound)
	assert.Empty(t, f.events.types())
}

func TestActualsService_LockedPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line := f.addActual(t, employee, "res-1", 50)
	_, err := f.periods.Lock(ctx, finance, f.period.ID, "close")
	require.NoError(t, err)

	_, err = f.actuals.UpsertActual(ctx, employee, ActualInput{
		PeriodID: f.period.ID, ResourceID: "res-1", ProjectID: "proj-2", ActualFTEPercent: 10,
	})
	requireCode(t, err, errors.ErrCodePeriodLocked)

	_, err = f.actuals.UpsertActual(ctx, employee, ActualInput{ID: line.ID, ActualFTEPercent: 10})
	requireCode(t, err, errors.ErrCodePeriodLocked)

	requireCode(t, f.actuals.DeleteActual(ctx, employee, line.ID), errors.ErrCodePeriodLocked)

	_, _, err = f.actuals.Sign(ctx, employee, line.ID)
	requireCode(t, err, errors.ErrCodePeriodLocked)
}

func TestActualsService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line := f.addActual(t, employee, "res-1", 50)
	require.NoError(t, f.actuals.DeleteActual(ctx, employee, line.ID))
	assert.Equal(t, 0, totalFor(t, f, "res-1"))
}
