package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the default base for the reference domain.
const BaseCurrency = "BRL"

// currencyMarkers map a currency code to the markers that identify it inside
// a raw value token. Order matters: prefixed dollar forms (US$, C$, A$, R$)
// must be tried before the bare "$" fallback, otherwise "R$ 10" would read as
// US dollars.
type currencyMarker struct {
	code   string
	tokens []string
}

var currencyMarkers = []currencyMarker{
	{"USD", []string{"US$", "USD"}},
	{"EUR", []string{"EUR", "€"}},
	{"GBP", []string{"GBP", "£"}},
	{"JPY", []string{"JPY", "¥"}},
	{"CAD", []string{"CAD", "C$"}},
	{"AUD", []string{"AUD", "A$"}},
	{"CHF", []string{"CHF"}},
	{"CNY", []string{"CNY", "元"}},
	{"BRL", []string{"R$", "BRL"}},
	{"USD", []string{"$"}},
}

// DetectCurrency finds a currency marker in a raw value token and returns the
// 3-letter code plus the token with the marker and any stray characters
// stripped. Tokens without a marker default to the base currency.
func DetectCurrency(raw, base string) (code, clean string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return base, "0"
	}

	upper := strings.ToUpper(trimmed)
	for _, m := range currencyMarkers {
		for _, tok := range m.tokens {
			if strings.Contains(upper, strings.ToUpper(tok)) {
				return m.code, stripNonNumeric(removeToken(trimmed, tok))
			}
		}
	}
	return base, trimmed
}

// removeToken removes every case-insensitive occurrence of tok from s.
func removeToken(s, tok string) string {
	upperTok := strings.ToUpper(tok)
	for {
		idx := strings.Index(strings.ToUpper(s), upperTok)
		if idx < 0 {
			return s
		}
		s = s[:idx] + s[idx+len(tok):]
	}
}

func stripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// ParseLocaleNumber parses a number that may use either the PT-BR convention
// (1.234,56) or the US convention (1,234.56). Whichever of "," and "." sits
// rightmost is the decimal separator; the other is stripped as a thousands
// separator. Empty or non-numeric input yields zero, never an error: one
// messy spreadsheet cell must not abort a batch.
func ParseLocaleNumber(s string) decimal.Decimal {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	if strings.Contains(s, ",") && strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	s = stripNonSeparators(s)

	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func stripNonSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RateTable maps currency codes to their rate relative to the base currency
// (foreign units per one unit of base; USD 0.2 means 1 BRL buys 0.2 USD).
type RateTable struct {
	Base        string
	Rates       map[string]decimal.Decimal
	LastUpdated time.Time
}

// Converter turns foreign amounts into base-currency amounts, applying the
// transaction tax (IOF) to conversions in scope. Build it once at startup or
// on reconfiguration; it is read-only afterwards.
type Converter struct {
	table         RateTable
	tax           decimal.Decimal
	taxCategories map[Category]bool
}

// NewConverter builds a converter. A nil or empty taxCategories list means
// the transaction tax applies to every foreign conversion; otherwise only to
// the listed categories.
func NewConverter(table RateTable, tax decimal.Decimal, taxCategories []Category) *Converter {
	var scope map[Category]bool
	if len(taxCategories) > 0 {
		scope = make(map[Category]bool, len(taxCategories))
		for _, c := range taxCategories {
			scope[c] = true
		}
	}
	if table.Base == "" {
		table.Base = BaseCurrency
	}
	return &Converter{table: table, tax: tax, taxCategories: scope}
}

// Base returns the converter's base currency code.
func (c *Converter) Base() string { return c.table.Base }

// ToBase converts v from the given currency into the base currency. When the
// rate table has no entry for the currency the original value is passed
// through together with ErrUnknownCurrency; the caller logs and moves on.
func (c *Converter) ToBase(v decimal.Decimal, from string, cat Category) (decimal.Decimal, error) {
	if from == "" || from == c.table.Base {
		return v, nil
	}
	rate, ok := c.table.Rates[from]
	if !ok || rate.IsZero() {
		return v, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	converted := v.Div(rate)
	if c.taxApplies(cat) {
		converted = converted.Mul(decimal.NewFromInt(1).Add(c.tax))
	}
	return converted, nil
}

func (c *Converter) taxApplies(cat Category) bool {
	if c.taxCategories == nil {
		return true
	}
	return c.taxCategories[cat]
}
