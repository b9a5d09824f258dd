package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dates are anchored at noon UTC so that comparisons by calendar day never
// drift across a timezone boundary.
const dateAnchorHour = 12

// ParseDate parses DD/MM/YYYY (spreadsheet export format) or YYYY-MM-DD.
// Components outside year [1900,2100], month [1,12], day [1,31] are rejected
// so a malformed row never produces a garbage date. A day beyond the month's
// length clamps to the last valid day (30/02/2024 reads as the 29th), never
// rolls into the next month.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}

	var y, m, d int
	var err error
	switch {
	case strings.Contains(s, "/"):
		parts := strings.Split(s, "/")
		if len(parts) != 3 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		d, m, y, err = atoi3(parts[0], parts[1], parts[2])
	case strings.Contains(s, "-"):
		parts := strings.Split(s, "-")
		if len(parts) != 3 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		y, m, d, err = atoi3(parts[0], parts[1], parts[2])
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	if y < 1900 || y > 2100 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return ClampedDate(y, m, d), nil
}

func atoi3(a, b, c string) (int, int, int, error) {
	x, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, 0, err
	}
	z, err := strconv.Atoi(strings.TrimSpace(c))
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

// NewDate builds a noon-anchored date. The day is NOT clamped; callers that
// need clamping use ClampedDate.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, dateAnchorHour, 0, 0, 0, time.UTC)
}

// ClampedDate builds a noon-anchored date with the day reduced to the last
// valid day of the month (Feb 30 becomes Feb 28, or Feb 29 in leap years).
func ClampedDate(year, month, day int) time.Time {
	last := LastDayOfMonth(year, month)
	if day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year, month int) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateKey formats a date as canonical YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameCalendarDay reports whether two dates fall on the same calendar day.
func SameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates a date to local midnight, used for "strictly before
// today" comparisons in the remaining-to-pay rollup.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
