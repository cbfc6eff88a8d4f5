package service

import (
	"time"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

const (
	minFTE  = 5
	maxFTE  = 100
	fteStep = 5

	// forecastMonths is the length of the window, starting at the current
	// month, in which placeholder demand is refused.
	forecastMonths = 4
)

// ValidateFTE checks a planning FTE value: an integer in [5,100] in steps of 5.
func ValidateFTE(fte int) error {
	if fte < 0 {
		return errors.New(errors.ErrCodeFteInvalid, "fte_percent must not be negative").
			WithExtra("fte_percent", fte)
	}
	if fte < minFTE || fte > maxFTE || fte%fteStep != 0 {
		return errors.Newf(errors.ErrCodeFteInvalid, "fte_percent must be between %d and %d in steps of %d", minFTE, maxFTE, fteStep).
			WithExtra("fte_percent", fte)
	}
	return nil
}

// ValidateDemand checks a demand line against its period. now is the wall
// clock at write time and anchors the forecast window.
func ValidateDemand(d *repository.DemandLine, period *repository.Period, now time.Time) error {
	hasResource := d.ResourceID != nil && *d.ResourceID != ""
	hasPlaceholder := d.PlaceholderID != nil && *d.PlaceholderID != ""
	if hasResource == hasPlaceholder {
		return errors.New(errors.ErrCodeDemandXor, "exactly one of resource_id or placeholder_id must be set")
	}

	if err := ValidateFTE(d.FTEPercent); err != nil {
		return err
	}

	if hasPlaceholder {
		offset := monthOffset(now, period.Year, period.Month)
		if offset >= 0 && offset < forecastMonths {
			return errors.Newf(errors.ErrCodePlaceholderBlocked4MFC,
				"placeholder demand is not allowed for %04d-%02d inside the 4-month forecast window", period.Year, period.Month).
				WithExtra("year", period.Year).
				WithExtra("month", period.Month).
				WithExtra("offset_months", offset)
		}
	}
	return nil
}

// ValidateSupply checks a supply line. Supply only carries the FTE rule.
func ValidateSupply(s *repository.SupplyLine, _ *repository.Period) error {
	return ValidateFTE(s.FTEPercent)
}

// YearMonth is a calendar month.
type YearMonth struct {
	Year  int
	Month int
}

// ForecastWindow returns the months in which placeholder demand is blocked,
// the UTC month of now first.
func ForecastWindow(now time.Time) []YearMonth {
	now = now.UTC()
	base := repository.MonthIndex(now.Year(), int(now.Month()))
	out := make([]YearMonth, forecastMonths)
	for i := range out {
		idx := base + i
		out[i] = YearMonth{Year: idx / 12, Month: idx%12 + 1}
	}
	return out
}

// monthOffset counts months from the UTC month of now to year/month.
func monthOffset(now time.Time, year, month int) int {
	now = now.UTC()
	return repository.MonthIndex(year, month) - repository.MonthIndex(now.Year(), int(now.Month()))
}
