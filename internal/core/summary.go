package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MonthTotals is the rollup for one YYYY-MM bucket.
type MonthTotals struct {
	Total      decimal.Decimal
	ByCategory map[Category]decimal.Decimal
}

// TotalsOptions tunes the rollups. Excluded categories still exist in the
// occurrence list; exclusion is a display policy, not an expander concern.
type TotalsOptions struct {
	ExcludeCategories map[Category]bool
}

// TotalsByMonth groups occurrence values by the adjusted date's month.
func TotalsByMonth(occs []Occurrence, opts TotalsOptions) map[string]MonthTotals {
	out := make(map[string]MonthTotals)
	for _, o := range occs {
		if opts.ExcludeCategories[o.Category] {
			continue
		}
		key := o.MonthKey()
		mt, ok := out[key]
		if !ok {
			mt = MonthTotals{ByCategory: make(map[Category]decimal.Decimal)}
		}
		mt.Total = mt.Total.Add(o.Value)
		mt.ByCategory[o.Category] = mt.ByCategory[o.Category].Add(o.Value)
		out[key] = mt
	}
	return out
}

// TotalsByWeek groups occurrence values by week, keyed by the Monday of each
// week in YYYY-MM-DD form.
func TotalsByWeek(occs []Occurrence) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, o := range occs {
		key := DateKey(mondayOf(o.Date))
		out[key] = out[key].Add(o.Value)
	}
	return out
}

func mondayOf(t time.Time) time.Time {
	daysSinceMonday := int(t.Weekday()) - 1
	if daysSinceMonday < 0 {
		daysSinceMonday = 6
	}
	return StartOfDay(t).AddDate(0, 0, -daysSinceMonday)
}

// CategoryTotal sums the values of one category.
func CategoryTotal(occs []Occurrence, cat Category) decimal.Decimal {
	total := decimal.Zero
	for _, o := range occs {
		if o.Category == cat {
			total = total.Add(o.Value)
		}
	}
	return total
}

// RemainingToPay returns the displayed month's total and the part of it not
// yet paid. Occurrences dated strictly before today (local midnight) count as
// paid; today's do not.
func RemainingToPay(occs []Occurrence, year int, month time.Month, now time.Time) (monthTotal, remaining decimal.Decimal) {
	today := StartOfDay(now)
	paid := decimal.Zero
	for _, o := range occs {
		if o.Date.Year() != year || o.Date.Month() != month {
			continue
		}
		monthTotal = monthTotal.Add(o.Value)
		if StartOfDay(o.Date).Before(today) {
			paid = paid.Add(o.Value)
		}
	}
	return monthTotal, monthTotal.Sub(paid)
}

// TrailingTwelveMonthSum sums a provider's invoices over the twelve months
// ending the month before the target month. This is the RBT12 revenue base
// for tax-bracket lookup.
func TrailingTwelveMonthSum(invoices []Occurrence, year int, month time.Month, provider string) decimal.Decimal {
	target := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := target.AddDate(0, -12, 0)

	total := decimal.Zero
	for _, inv := range invoices {
		if provider != "" && inv.Record.Provider != provider {
			continue
		}
		bucket := time.Date(inv.Date.Year(), inv.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		if bucket.Before(start) || !bucket.Before(target) {
			continue
		}
		total = total.Add(inv.Value)
	}
	return total
}

// Providers returns the distinct provider names present in the invoice list,
// sorted ascending.
func Providers(invoices []Occurrence) []string {
	seen := make(map[string]bool)
	for _, inv := range invoices {
		if inv.Record.Provider != "" {
			seen[inv.Record.Provider] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// InvoicesByProviderMonth builds, for one year, each provider's total per
// month (index 0 = January).
func InvoicesByProviderMonth(invoices []Occurrence, year int) map[string][]decimal.Decimal {
	out := make(map[string][]decimal.Decimal)
	for _, inv := range invoices {
		if inv.Date.Year() != year || inv.Record.Provider == "" {
			continue
		}
		months, ok := out[inv.Record.Provider]
		if !ok {
			months = make([]decimal.Decimal, 12)
			out[inv.Record.Provider] = months
		}
		m := int(inv.Date.Month()) - 1
		months[m] = months[m].Add(inv.Value)
	}
	return out
}

// ProviderComparison is the yearly head-to-head between two providers.
type ProviderComparison struct {
	TotalA     decimal.Decimal
	TotalB     decimal.Decimal
	Difference decimal.Decimal
	Higher     string
}

// CompareProviders totals two providers' invoices for a year and reports
// which one billed more ("equal" on a tie).
func CompareProviders(invoices []Occurrence, year int, providerA, providerB string) ProviderComparison {
	totalA, totalB := decimal.Zero, decimal.Zero
	for _, inv := range invoices {
		if inv.Date.Year() != year {
			continue
		}
		switch inv.Record.Provider {
		case providerA:
			totalA = totalA.Add(inv.Value)
		case providerB:
			totalB = totalB.Add(inv.Value)
		}
	}
	cmp := ProviderComparison{TotalA: totalA, TotalB: totalB, Difference: totalA.Sub(totalB).Abs()}
	switch {
	case totalA.GreaterThan(totalB):
		cmp.Higher = providerA
	case totalB.GreaterThan(totalA):
		cmp.Higher = providerB
	default:
		cmp.Higher = "equal"
	}
	return cmp
}

// TaxBracket is one row of a progressive tax table: a revenue ceiling, the
// nominal rate, and the subtraction constant that keeps the effective rate
// continuous across bracket boundaries.
type TaxBracket struct {
	Ceiling   decimal.Decimal
	Rate      decimal.Decimal
	Deduction decimal.Decimal
}

// DefaultTaxBrackets mirrors the Simples Nacional Anexo III table, ordered by
// ascending ceiling.
var DefaultTaxBrackets = []TaxBracket{
	{Ceiling: decimal.NewFromInt(180000), Rate: decimal.NewFromFloat(0.06), Deduction: decimal.Zero},
	{Ceiling: decimal.NewFromInt(360000), Rate: decimal.NewFromFloat(0.112), Deduction: decimal.NewFromInt(9360)},
	{Ceiling: decimal.NewFromInt(720000), Rate: decimal.NewFromFloat(0.135), Deduction: decimal.NewFromInt(17640)},
	{Ceiling: decimal.NewFromInt(1800000), Rate: decimal.NewFromFloat(0.16), Deduction: decimal.NewFromInt(35640)},
	{Ceiling: decimal.NewFromInt(3600000), Rate: decimal.NewFromFloat(0.21), Deduction: decimal.NewFromInt(125640)},
	{Ceiling: decimal.NewFromInt(4800000), Rate: decimal.NewFromFloat(0.33), Deduction: decimal.NewFromInt(648000)},
}

// MonthlyTaxEstimate picks the first bracket whose ceiling covers the
// trailing-12-month revenue and returns (revenue*rate - deduction)/12.
// Revenue above the last ceiling uses the last bracket.
func MonthlyTaxEstimate(rbt12 decimal.Decimal, brackets []TaxBracket) decimal.Decimal {
	if rbt12.LessThanOrEqual(decimal.Zero) || len(brackets) == 0 {
		return decimal.Zero
	}
	bracket := brackets[len(brackets)-1]
	for _, b := range brackets {
		if rbt12.LessThanOrEqual(b.Ceiling) {
			bracket = b
			break
		}
	}
	yearly := rbt12.Mul(bracket.Rate).Sub(bracket.Deduction)
	if yearly.IsNegative() {
		return decimal.Zero
	}
	return yearly.Div(decimal.NewFromInt(12))
}
