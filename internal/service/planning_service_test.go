package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
)

func ptr(s string) *string { return &s }

func TestPlanningService_UpsertDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID:   f.period.ID,
		ProjectID:  "proj-1",
		ResourceID: ptr("res-1"),
		FTEPercent: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, 2026, line.Year)
	assert.Equal(t, 3, line.Month)

	updated, err := f.planning.UpsertDemand(ctx, pm, DemandInput{ID: line.ID, FTEPercent: 60})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.FTEPercent)

	_, err = f.planning.UpsertDemand(ctx, pm, DemandInput{ID: line.ID, FTEPercent: 61})
	requireCode(t, err, errors.ErrCodeFteInvalid)

	lines, err := f.planning.GetDemandLines(ctx, tenant, f.period.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 60, lines[0].FTEPercent)
}

func TestPlanningService_DemandNeverPersistedWithoutXOR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID: f.period.ID, ProjectID: "proj-1",
		ResourceID: ptr("res-1"), PlaceholderID: ptr("ph-1"), FTEPercent: 50,
	})
	requireCode(t, err, errors.ErrCodeDemandXor)

	_, err = f.planning.UpsertDemand(ctx, pm, DemandInput{PeriodID: f.period.ID, ProjectID: "proj-1", FTEPercent: 50})
	requireCode(t, err, errors.ErrCodeDemandXor)

	lines, err := f.planning.GetDemandLines(ctx, tenant, f.period.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPlanningService_BlankIDsAreAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	july, err := f.periods.Open(ctx, finance, 2026, 7)
	require.NoError(t, err)

	line, err := f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID: july.ID, ProjectID: "proj-1",
		ResourceID: ptr(""), PlaceholderID: ptr("ph-1"), FTEPercent: 50,
	})
	require.NoError(t, err)
	assert.Nil(t, line.ResourceID)
	require.NotNil(t, line.PlaceholderID)
	assert.Equal(t, "ph-1", *line.PlaceholderID)

	_, err = f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID: july.ID, ProjectID: "proj-1",
		ResourceID: ptr(""), PlaceholderID: ptr(" "), FTEPercent: 50,
	})
	requireCode(t, err, errors.ErrCodeDemandXor)
}

func TestPlanningService_PlaceholderForecastWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// March 2026 is the current month
	_, err := f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID: f.period.ID, ProjectID: "proj-1", PlaceholderID: ptr("ph-1"), FTEPercent: 50,
	})
	requireCode(t, err, errors.ErrCodePlaceholderBlocked4MFC)

	june, err := f.periods.Open(ctx, finance, 2026, 6)
	require.NoError(t, err)
	_, err = f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID: june.ID, ProjectID: "proj-1", PlaceholderID: ptr("ph-1"), FTEPercent: 50,
	})
	requireCode(t, err, errors.ErrCodePlaceholderBlocked4MFC)

	july, err := f.periods.Open(ctx, finance, 2026, 7)
	require.NoError(t, err)
	_, err = f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID: july.ID, ProjectID: "proj-1", PlaceholderID: ptr("ph-1"), FTEPercent: 50,
	})
	require.NoError(t, err)
}

func TestPlanningService_DemandRoles(t *testing.T) {
	f := newFixture(t)

	_, err := f.planning.UpsertDemand(context.Background(), ro, DemandInput{
		PeriodID: f.period.ID, ProjectID: "proj-1", ResourceID: ptr("res-1"), FTEPercent: 50,
	})
	requireCode(t, err, errors.ErrCodeForbidden)
}

func TestPlanningService_UpsertSupplyReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.planning.UpsertSupply(ctx, ro, SupplyInput{PeriodID: f.period.ID, ResourceID: "res-1", FTEPercent: 80})
	require.NoError(t, err)

	second, err := f.planning.UpsertSupply(ctx, finance, SupplyInput{PeriodID: f.period.ID, ResourceID: "res-1", FTEPercent: 60})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	lines, err := f.planning.GetSupplyLines(ctx, tenant, f.period.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 60, lines[0].FTEPercent)

	_, err = f.planning.UpsertSupply(ctx, ro, SupplyInput{PeriodID: f.period.ID, ResourceID: "res-1", FTEPercent: 0})
	requireCode(t, err, errors.ErrCodeFteInvalid)

	_, err = f.planning.UpsertSupply(ctx, pm, SupplyInput{PeriodID: f.period.ID, ResourceID: "res-1", FTEPercent: 50})
	requireCode(t, err, errors.ErrCodeForbidden)

	require.NoError(t, f.planning.DeleteSupply(ctx, ro, first.ID))
	lines, err = f.planning.GetSupplyLines(ctx, tenant, f.period.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPlanningService_LockedPeriodRejectsWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	demand, err := f.planning.UpsertDemand(ctx, pm, DemandInput{
		PeriodID: f.period.ID, ProjectID: "proj-1", ResourceID: ptr("res-1"), FTEPercent: 50,
	})
	require.NoError(t, err)
	supply, err := f.planning.UpsertSupply(ctx, ro, SupplyInput{PeriodID: f.period.ID, ResourceID: "res-1", FTEPercent: 50})
	require.NoError(t, err)

	_, err = f.periods.Lock(ctx, finance, f.period.ID, "close")
	require.NoError(t, err)

	// Finance is not exempt
	_, err = f.planning.UpsertDemand(ctx, finance, DemandInput{
		PeriodID: f.period.ID, ProjectID: "proj-2", ResourceID: ptr("res-1"), FTEPercent: 50,
	})
	requireCode(t, err, errors.ErrCodePeriodLocked)
	_, err = f.planning.UpsertDemand(ctx, pm, DemandInput{ID: demand.ID, FTEPercent: 20})
	requireCode(t, err, errors.ErrCodePeriodLocked)
	requireCode(t, f.planning.DeleteDemand(ctx, pm, demand.ID), errors.ErrCodePeriodLocked)

	_, err = f.planning.UpsertSupply(ctx, finance, SupplyInput{PeriodID: f.period.ID, ResourceID: "res-1", FTEPercent: 20})
	requireCode(t, err, errors.ErrCodePeriodLocked)
	requireCode(t, f.planning.DeleteSupply(ctx, ro, supply.ID), errors.ErrCodePeriodLocked)
}

func TestPlanningService_Insights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	july, err := f.periods.Open(ctx, finance, 2026, 7)
	require.NoError(t, err)

	for _, in := range []DemandInput{
		{PeriodID: july.ID, ProjectID: "proj-1", ResourceID: ptr("res-1"), FTEPercent: 60},
		{PeriodID: july.ID, ProjectID: "proj-2", ResourceID: ptr("res-same"), FTEPercent: 50},
		{PeriodID: july.ID, ProjectID: "proj-2", ResourceID: ptr("res-gone"), FTEPercent: 20},
		{PeriodID: july.ID, ProjectID: "proj-3", PlaceholderID: ptr("ph-1"), FTEPercent: 30},
	} {
		_, err := f.planning.UpsertDemand(ctx, pm, in)
		require.NoError(t, err)
	}
	_, err = f.planning.UpsertSupply(ctx, ro, SupplyInput{PeriodID: july.ID, ResourceID: "res-1", FTEPercent: 100})
	require.NoError(t, err)
	_, err = f.planning.UpsertSupply(ctx, ro, SupplyInput{PeriodID: july.ID, ResourceID: "res-same", FTEPercent: 50})
	require.NoError(t, err)

	got, err := f.planning.PlanningInsights(ctx, pm, july.ID)
	require.NoError(t, err)

	assert.Equal(t, 160, got.TotalDemand)
	assert.Equal(t, 150, got.TotalSupply)
	assert.Equal(t, -10, got.TotalGap)

	require.Len(t, got.ByCostCenter, 2)
	assert.Equal(t, CostCenterGap{CostCenterID: "cc-2", CostCenterName: "Data", DemandTotal: 50, SupplyTotal: 50, Gap: 0}, got.ByCostCenter[0])
	assert.Equal(t, CostCenterGap{CostCenterID: "cc-1", CostCenterName: "Platform", DemandTotal: 80, SupplyTotal: 100, Gap: 20}, got.ByCostCenter[1])
	assert.Equal(t, 1, got.GapsCount)

	require.Len(t, got.Orphans, 2)
	reasons := []string{got.Orphans[0].Reason, got.Orphans[1].Reason}
	assert.ElementsMatch(t, []string{OrphanInactiveResource, OrphanPlaceholder}, reasons)

	_, err = f.planning.PlanningInsights(ctx, employee, july.ID)
	requireCode(t, err, errors.ErrCodeForbidden)
}
