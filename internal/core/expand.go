package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bounds that keep one bad row from turning into an unbounded expansion.
const (
	maxInstallments    = 1000
	maxMonthlyInterval = 120
	maxRepetitions     = 1000
)

// YearWindow is the supported year range for open-ended recurring
// expansions (annual and monthly recurrence).
type YearWindow struct {
	First int
	Last  int
}

// DefaultYearWindow spans past-to-future around the data the dashboard shows.
var DefaultYearWindow = YearWindow{First: 2024, Last: 2030}

// Expander turns one source record into its concrete occurrences according
// to the category policy table. Expansion is deterministic and pure: no
// clock, no I/O, and a malformed record yields an empty result plus
// warnings instead of an error that would abort the batch.
type Expander struct {
	window     YearWindow
	defaultEnd time.Time
}

// NewExpander builds an expander with the given recurrence window. Periodic
// records without an End specification stop at the end of the window's last
// year.
func NewExpander(window YearWindow) *Expander {
	if window.First == 0 || window.Last < window.First {
		window = DefaultYearWindow
	}
	return &Expander{
		window:     window,
		defaultEnd: NewDate(window.Last, 12, 31),
	}
}

type occurrenceSeed struct {
	date    time.Time
	current int
	total   int
}

// Expand produces the ordered occurrence list for a record. seq is the
// record's index within its table and feeds the deterministic occurrence IDs
// so repeated ingests of the same data produce identical output.
//
// Occurrence dates are pre-adjustment; the business-day adjuster runs
// downstream.
func (e *Expander) Expand(rec SourceRecord, seq int) ([]Occurrence, []error) {
	policy, ok := PolicyFor(rec.Category)
	if !ok {
		return nil, []error{fmt.Errorf("%w: %q", ErrUnknownCategory, rec.Category)}
	}

	anchor, err := ParseDate(rec.Date)
	if err != nil {
		return nil, []error{err}
	}

	var warns []error
	var seeds []occurrenceSeed

	switch policy.Expansion {
	case ExpandSingle, ExpandInvoice:
		seeds = []occurrenceSeed{{date: anchor}}

	case ExpandInstallments:
		installments, err := parseInstallments(rec.Installments)
		if err != nil {
			return nil, []error{err}
		}
		y, m, d := anchor.Date()
		seeds = make([]occurrenceSeed, 0, installments)
		for i := 0; i < installments; i++ {
			date := NewDate(y, int(m)+i, d)
			if policy.ClampFixedDay {
				// Day 31 anchors land on the last day of shorter months
				// instead of spilling into the next one.
				date = ClampedDate(y, int(m)+i, d)
			}
			seeds = append(seeds, occurrenceSeed{
				date:    date,
				current: i + 1,
				total:   installments,
			})
		}

	case ExpandAnnual:
		_, m, d := anchor.Date()
		for year := e.window.First; year <= e.window.Last; year++ {
			seeds = append(seeds, occurrenceSeed{date: ClampedDate(year, int(m), d)})
		}

	case ExpandMonthly:
		_, _, d := anchor.Date()
		for year := e.window.First; year <= e.window.Last; year++ {
			for month := 1; month <= 12; month++ {
				candidate := ClampedDate(year, month, d)
				if candidate.Before(anchor) {
					continue
				}
				seeds = append(seeds, occurrenceSeed{date: candidate})
			}
		}

	case ExpandInterval:
		var ws []error
		seeds, ws = e.expandInterval(rec, anchor)
		warns = append(warns, ws...)
		if seeds == nil {
			return nil, warns
		}
	}

	occs := make([]Occurrence, 0, len(seeds))
	display, full := displayNames(rec)
	for idx, seed := range seeds {
		occs = append(occs, Occurrence{
			ID:                 fmt.Sprintf("%s-%d-%d", rec.Category, seq, idx),
			Record:             rec,
			Category:           rec.Category,
			DateStr:            DateKey(seed.date),
			Date:               seed.date,
			CurrentInstallment: seed.current,
			TotalInstallments:  seed.total,
			Value:              rec.Value,
			Currency:           rec.Currency,
			OriginalValue:      rec.OriginalValue,
			DisplayName:        display,
			FullName:           full,
		})
	}
	return occs, warns
}

// expandInterval handles periodic records. A zero or missing interval is a
// one-time payment; "<n>week" steps by weeks instead of months. Returns nil
// seeds when the record must be skipped.
func (e *Expander) expandInterval(rec SourceRecord, anchor time.Time) ([]occurrenceSeed, []error) {
	raw := strings.TrimSpace(rec.Interval)
	if raw == "" || raw == "0" {
		return []occurrenceSeed{{date: anchor}}, nil
	}

	stepMonths, stepWeeks := 0, 0
	if weeks, ok := parseWeekToken(raw); ok {
		if weeks < 1 {
			return nil, []error{fmt.Errorf("%w: %q", ErrInvalidInterval, raw)}
		}
		stepWeeks = weeks
	} else {
		months, err := strconv.Atoi(raw)
		if err != nil || months < 1 || months > maxMonthlyInterval {
			return nil, []error{fmt.Errorf("%w: %q", ErrInvalidInterval, raw)}
		}
		stepMonths = months
	}

	endDate, limit, warn := e.parseEndSpec(rec.End)
	var warns []error
	if warn != nil {
		warns = append(warns, warn)
	}

	var seeds []occurrenceSeed
	cur := anchor
	for !cur.After(endDate) {
		if limit > 0 && len(seeds) >= limit {
			break
		}
		seeds = append(seeds, occurrenceSeed{date: cur})
		if stepWeeks > 0 {
			cur = cur.AddDate(0, 0, 7*stepWeeks)
		} else {
			cur = cur.AddDate(0, stepMonths, 0)
		}
	}
	return seeds, warns
}

// parseEndSpec interprets the polymorphic End field: first as a repetition
// count in [1, 1000], then as a date in either supported format. Invalid
// values fall back to the open-ended default end with a warning; the record
// is still processed.
func (e *Expander) parseEndSpec(raw string) (endDate time.Time, limit int, warn error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return e.defaultEnd, 0, nil
	}

	if n, err := strconv.Atoi(raw); err == nil {
		if n >= 1 && n <= maxRepetitions {
			return e.defaultEnd, n, nil
		}
		return e.defaultEnd, 0, fmt.Errorf("%w: repetition count %d", ErrInvalidEndSpec, n)
	}

	if strings.ContainsAny(raw, "/-") {
		d, err := ParseDate(raw)
		if err != nil {
			return e.defaultEnd, 0, fmt.Errorf("%w: %q", ErrInvalidEndSpec, raw)
		}
		return d, 0, nil
	}

	return e.defaultEnd, 0, fmt.Errorf("%w: %q", ErrInvalidEndSpec, raw)
}

// parseWeekToken recognizes "<n>week" interval tokens such as "2week".
func parseWeekToken(raw string) (int, bool) {
	lower := strings.ToLower(raw)
	if !strings.HasSuffix(lower, "week") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(lower, "week"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseInstallments(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// Unparseable installment cells degrade to a single payment,
		// matching the permissive-parsing contract for messy input.
		return 1, nil
	}
	if n < 1 || n > maxInstallments {
		return 0, fmt.Errorf("%w: %d", ErrInvalidInstallments, n)
	}
	return n, nil
}

func displayNames(rec SourceRecord) (display, full string) {
	switch rec.Category {
	case CategoryCompras:
		name := rec.Item
		if name == "" {
			name = rec.Beneficiary
		}
		if name == "" {
			name = "Item não especificado"
		}
		return TruncateDisplayName(name, 20), name
	case CategoryNotas:
		// Calendars show first plus last name; the full client name stays
		// available for detail views.
		return AbbreviatedName(rec.Client), rec.Client
	default:
		name := rec.Beneficiary
		if name == "" {
			name = "Não especificado"
		}
		return name, name
	}
}
