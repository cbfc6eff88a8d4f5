package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

func TestPeriodService_OpenIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	again, err := f.periods.Open(ctx, finance, 2026, 3)
	require.NoError(t, err)
	assert.Equal(t, f.period.ID, again.ID)

	list, err := f.periods.List(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPeriodService_OpenValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.periods.Open(ctx, finance, 2026, 13)
	requireCode(t, err, errors.ErrCodeInvalidInput)

	_, err = f.periods.Open(ctx, pm, 2026, 4)
	requireCode(t, err, errors.ErrCodeForbidden)
}

func TestPeriodService_LockUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.periods.Lock(ctx, finance, f.period.ID, "  ")
	requireCode(t, err, errors.ErrCodeInvalidInput)

	locked, err := f.periods.Lock(ctx, finance, f.period.ID, "month closed")
	require.NoError(t, err)
	assert.Equal(t, repository.PeriodLocked, locked.Status)
	require.NotNil(t, locked.LockedAt)
	assert.Equal(t, "u-fin", *locked.LockedBy)
	assert.Equal(t, "month closed", *locked.LockReason)

	_, err = f.periods.Lock(ctx, finance, f.period.ID, "again")
	requireCode(t, err, errors.ErrCodeInvalidTransition)

	mutable, err := f.periods.IsMutable(ctx, tenant, 2026, 3)
	require.NoError(t, err)
	assert.False(t, mutable)

	_, err = f.periods.Unlock(ctx, finance, f.period.ID, "")
	requireCode(t, err, errors.ErrCodeInvalidInput)

	open, err := f.periods.Unlock(ctx, finance, f.period.ID, "late correction")
	require.NoError(t, err)
	assert.Equal(t, repository.PeriodOpen, open.Status)
	assert.Equal(t, "late correction", *open.LockReason)

	_, err = f.periods.Unlock(ctx, finance, f.period.ID, "again")
	requireCode(t, err, errors.ErrCodeInvalidTransition)

	mutable, err = f.periods.IsMutable(ctx, tenant, 2026, 3)
	require.NoError(t, err)
	assert.True(t, mutable)
}

func TestPeriodService_LockRequiresFinance(t *testing.T) {
	f := newFixture(t)

	_, err := f.periods.Lock(context.Background(), director, f.period.ID, "closing")
	requireCode(t, err, errors.ErrCodeForbidden)
}

func TestPeriodService_IsMutableUnopened(t *testing.T) {
	f := newFixture(t)

	mutable, err := f.periods.IsMutable(context.Background(), tenant, 2026, 4)
	require.NoError(t, err)
	assert.False(t, mutable)
}

func TestPeriodService_TenantIsolation(t *testing.T) {
	f := newFixture(t)

	_, err := f.periods.Get(context.Background(), "other-tenant", f.period.ID)
	requireCode(t, err, errors.ErrCodeNotFound)
}
