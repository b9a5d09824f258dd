package core

import (
	"fmt"
	"time"
)

// maxAdjustIterations bounds a business-day walk. Thirty consecutive
// non-business days cannot happen on a sane calendar, so hitting the bound
// signals a calendar-policy bug rather than legitimate input.
const maxAdjustIterations = 30

// Adjuster moves dates off weekends and holidays according to the
// per-category adjustment rule.
type Adjuster struct {
	cal *HolidayCalendar
}

func NewAdjuster(cal *HolidayCalendar) *Adjuster {
	return &Adjuster{cal: cal}
}

// Adjust applies the given rule. On ErrCalendarIterations the best-effort
// date after the final step is still returned so the pipeline can proceed.
func (a *Adjuster) Adjust(d time.Time, rule AdjustmentRule) (time.Time, error) {
	switch rule {
	case AdjustForward:
		return a.NextBusinessDay(d)
	case AdjustBackward:
		return a.PreviousBusinessDay(d)
	default:
		return a.KeepOriginal(d), nil
	}
}

// NextBusinessDay steps forward one day at a time until the date is neither
// a weekend nor a holiday.
func (a *Adjuster) NextBusinessDay(d time.Time) (time.Time, error) {
	return a.walk(d, 1)
}

// PreviousBusinessDay steps backward one day at a time until the date is
// neither a weekend nor a holiday.
func (a *Adjuster) PreviousBusinessDay(d time.Time) (time.Time, error) {
	return a.walk(d, -1)
}

// KeepOriginal is the identity adjustment for categories whose dates are
// contractual (periodic and invoice records).
func (a *Adjuster) KeepOriginal(d time.Time) time.Time { return d }

func (a *Adjuster) walk(d time.Time, step int) (time.Time, error) {
	for i := 0; i < maxAdjustIterations; i++ {
		nonBusiness, err := a.isNonBusinessDay(d)
		if err != nil {
			return d, err
		}
		if !nonBusiness {
			return d, nil
		}
		d = d.AddDate(0, 0, step)
	}
	return d, fmt.Errorf("%w: gave up after %d steps at %s", ErrCalendarIterations, maxAdjustIterations, DateKey(d))
}

func (a *Adjuster) isNonBusinessDay(d time.Time) (bool, error) {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return true, nil
	}
	name, err := a.cal.HolidayName(d)
	if err != nil {
		return false, err
	}
	return name != "", nil
}
