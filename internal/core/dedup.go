package core

import (
	"sort"
	"strings"
)

// DedupMode controls how monthly-recurring occurrences are matched against
// occurrences from other categories during ingestion.
type DedupMode int

const (
	// DedupByMonth suppresses a recurring occurrence when another category
	// already captured the same beneficiary in the same month and year.
	DedupByMonth DedupMode = iota
	// DedupByDate requires the exact same adjusted date (strict mode).
	DedupByDate
)

// ParseDedupMode maps a configuration string to a mode. Unknown values fall
// back to DedupByMonth, the historical default.
func ParseDedupMode(s string) DedupMode {
	if strings.EqualFold(strings.TrimSpace(s), "exact-date") {
		return DedupByDate
	}
	return DedupByMonth
}

// SuppressesRecurring reports whether an already-ingested occurrence from a
// different category shadows the candidate recurring occurrence. This models
// "a recurring charge already captured as a one-off bill this month must not
// double-count".
func SuppressesRecurring(existing []Occurrence, cand Occurrence, mode DedupMode) bool {
	for _, ex := range existing {
		if ex.Category == cand.Category {
			continue
		}
		if ex.Record.Beneficiary != cand.Record.Beneficiary {
			continue
		}
		switch mode {
		case DedupByDate:
			if SameCalendarDay(ex.Date, cand.Date) {
				return true
			}
		default:
			if ex.Date.Year() == cand.Date.Year() && ex.Date.Month() == cand.Date.Month() {
				return true
			}
		}
	}
	return false
}

// FindDuplicateGroups detects duplicate occurrences across the whole set.
// Two occurrences are duplicates iff they share the pre-adjustment date, the
// category, and every compared field after normalization. Each returned
// group has at least two members and is sorted by adjusted date ascending.
//
// This is a reporting utility; it is not wired into ingestion.
func FindDuplicateGroups(occs []Occurrence) [][]Occurrence {
	var groups [][]Occurrence
	processed := make(map[string]bool, len(occs))

	for i := 0; i < len(occs); i++ {
		if processed[occs[i].ID] {
			continue
		}
		group := []Occurrence{occs[i]}
		for j := i + 1; j < len(occs); j++ {
			if processed[occs[j].ID] {
				continue
			}
			if areDuplicates(occs[i], occs[j]) {
				group = append(group, occs[j])
				processed[occs[j].ID] = true
			}
		}
		if len(group) > 1 {
			processed[occs[i].ID] = true
			sort.Slice(group, func(a, b int) bool {
				return group[a].Date.Before(group[b].Date)
			})
			groups = append(groups, group)
		}
	}
	return groups
}

func areDuplicates(a, b Occurrence) bool {
	if a.ID == b.ID {
		return false
	}
	// Different pre-adjustment dates are a normal recurrence, never a
	// duplicate, no matter how similar the rest of the record looks.
	if a.DateStr != b.DateStr {
		return false
	}
	if !strings.EqualFold(string(a.Category), string(b.Category)) {
		return false
	}
	if !a.Value.Equal(b.Value) || !a.OriginalValue.Equal(b.OriginalValue) {
		return false
	}
	if a.CurrentInstallment != b.CurrentInstallment || a.TotalInstallments != b.TotalInstallments {
		return false
	}

	pairs := [][2]string{
		{a.Record.Beneficiary, b.Record.Beneficiary},
		{a.Record.Description, b.Record.Description},
		{a.Currency, b.Currency},
		{a.Record.Installments, b.Record.Installments},
		{a.Record.Interval, b.Record.Interval},
		{a.Record.Item, b.Record.Item},
		{a.Record.Shop, b.Record.Shop},
		{a.Record.Client, b.Record.Client},
		{a.Record.Provider, b.Record.Provider},
		{a.Record.End, b.Record.End},
	}
	for _, p := range pairs {
		if normalizeFieldValue(p[0]) != normalizeFieldValue(p[1]) {
			return false
		}
	}
	return true
}

// normalizeFieldValue makes field comparison tolerant of formatting noise:
// numeric-looking values compare through the locale parser ("1.123,45" equals
// "1123.45"), everything else compares trimmed and case-insensitive.
func normalizeFieldValue(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if isNumericLike(trimmed) {
		return ParseLocaleNumber(trimmed).String()
	}
	return strings.ToLower(trimmed)
}

func isNumericLike(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == ',' || r == '-' || r == '+':
		default:
			return false
		}
	}
	return true
}
