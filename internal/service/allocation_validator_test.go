package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

func TestValidateFTE(t *testing.T) {
	tests := []struct {
		fte  int
		want errors.Code
	}{
		{fte: 5},
		{fte: 50},
		{fte: 100},
		{fte: 0, want: errors.ErrCodeFteInvalid},
		{fte: -5, want: errors.ErrCodeFteInvalid},
		{fte: 3, want: errors.ErrCodeFteInvalid},
		{fte: 42, want: errors.ErrCodeFteInvalid},
		{fte: 105, want: errors.ErrCodeFteInvalid},
	}

	for _, tc := range tests {
		err := ValidateFTE(tc.fte)
		assert.Equal(t, tc.want, errors.CodeOf(err), "fte %d", tc.fte)
	}
}

func TestValidateDemand_XOR(t *testing.T) {
	period := &repository.Period{Year: 2026, Month: 9}
	res, ph := "res-1", "ph-1"

	tests := []struct {
		name          string
		resourceID    *string
		placeholderID *string
		want          errors.Code
	}{
		{name: "resource only", resourceID: &res},
		{name: "placeholder only", placeholderID: &ph},
		{name: "both", resourceID: &res, placeholderID: &ph, want: errors.ErrCodeDemandXor},
		{name: "neither", want: errors.ErrCodeDemandXor},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := &repository.DemandLine{ResourceID: tc.resourceID, PlaceholderID: tc.placeholderID, FTEPercent: 50}
			assert.Equal(t, tc.want, errors.CodeOf(ValidateDemand(d, period, fixedNow)))
		})
	}
}

func TestValidateDemand_XORBeforeFTE(t *testing.T) {
	d := &repository.DemandLine{FTEPercent: 7}
	err := ValidateDemand(d, &repository.Period{Year: 2026, Month: 9}, fixedNow)
	assert.Equal(t, errors.ErrCodeDemandXor, errors.CodeOf(err))
}

func TestValidateDemand_ForecastWindow(t *testing.T) {
	ph := "ph-1"
	res := "res-1"

	tests := []struct {
		name  string
		now   time.Time
		year  int
		month int
		want  errors.Code
	}{
		{name: "current month", now: fixedNow, year: 2026, month: 3, want: errors.ErrCodePlaceholderBlocked4MFC},
		{name: "third month ahead", now: fixedNow, year: 2026, month: 6, want: errors.ErrCodePlaceholderBlocked4MFC},
		{name: "fourth month ahead", now: fixedNow, year: 2026, month: 7},
		{name: "past month", now: fixedNow, year: 2026, month: 2},
		{name: "across year end blocked", now: time.Date(2026, time.November, 30, 23, 0, 0, 0, time.UTC), year: 2027, month: 2, want: errors.ErrCodePlaceholderBlocked4MFC},
		{name: "across year end allowed", now: time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC), year: 2027, month: 3},
		// 01:00 on July 1st at UTC+3 is still June in UTC
		{name: "non-UTC clock uses UTC month", now: time.Date(2026, time.July, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)), year: 2026, month: 10},
		{name: "non-UTC clock blocks UTC window", now: time.Date(2026, time.July, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)), year: 2026, month: 9, want: errors.ErrCodePlaceholderBlocked4MFC},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			period := &repository.Period{Year: tc.year, Month: tc.month}

			err := ValidateDemand(&repository.DemandLine{PlaceholderID: &ph, FTEPercent: 50}, period, tc.now)
			assert.Equal(t, tc.want, errors.CodeOf(err))

			// named demand is never subject to the window
			require.NoError(t, ValidateDemand(&repository.DemandLine{ResourceID: &res, FTEPercent: 50}, period, tc.now))
		})
	}
}

func TestValidateSupply(t *testing.T) {
	period := &repository.Period{Year: 2026, Month: 3}
	assert.NoError(t, ValidateSupply(&repository.SupplyLine{FTEPercent: 80}, period))
	assert.Equal(t, errors.ErrCodeFteInvalid, errors.CodeOf(ValidateSupply(&repository.SupplyLine{FTEPercent: 81}, period)))
}

func TestForecastWindow(t *testing.T) {
	got := ForecastWindow(time.Date(2026, time.November, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []YearMonth{
		{Year: 2026, Month: 11},
		{Year: 2026, Month: 12},
		{Year: 2027, Month: 1},
		{Year: 2027, Month: 2},
	}, got)

	got = ForecastWindow(time.Date(2026, time.July, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)))
	assert.Equal(t, YearMonth{Year: 2026, Month: 6}, got[0])
}
