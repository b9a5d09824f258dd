package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidInstallments = errors.New("invalid installment count")
	ErrInvalidInterval     = errors.New("invalid interval")
	ErrInvalidEndSpec      = errors.New("invalid end specification")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrUnknownCurrency     = errors.New("unknown currency")
	ErrCalendarIterations  = errors.New("calendar iteration limit exceeded")
	ErrYearOutOfRange      = errors.New("year out of range")
)

// SourceRecord is one row read from a category table. Immutable once built;
// the engine never mutates it. Interval and End stay raw because they are
// polymorphic (month count, week token, repetition count, or date) and are
// interpreted by the expander.
type SourceRecord struct {
	Category    Category
	Beneficiary string
	Description string

	// Invoice categories track issuer and client instead of beneficiary.
	Client   string
	Provider string

	// Purchase categories carry the bought item and the shop.
	Item string
	Shop string

	Date         string // raw, DD/MM/YYYY or YYYY-MM-DD
	Installments string
	Interval     string
	End          string

	// Value is the normalized amount in the base currency. Currency and
	// OriginalValue preserve what the row actually said.
	Value         decimal.Decimal
	Currency      string
	OriginalValue decimal.Decimal
	RawValue      string
}

// Occurrence is one concrete, dated instance of a payment or invoice derived
// from a source record. Lifetime is the in-memory session plus the snapshot
// store; IDs are deterministic so repeated ingests produce identical output.
type Occurrence struct {
	ID     string
	Record SourceRecord

	Category Category

	// DateStr is the canonical YYYY-MM-DD date before business-day
	// adjustment. Date is the post-adjustment date, anchored at noon UTC.
	DateStr string
	Date    time.Time

	// CurrentInstallment and TotalInstallments are zero for categories
	// without installments. When set, Total >= Current >= 1 holds.
	CurrentInstallment int
	TotalInstallments  int

	Value         decimal.Decimal
	Currency      string
	OriginalValue decimal.Decimal

	// DisplayName is the short name shown on calendars (purchases truncate
	// the item name); FullName keeps the untruncated form.
	DisplayName string
	FullName    string
}

// Account is one row of the account-balance table, served as-is for the
// balance display.
type Account struct {
	Owner   string
	Bank    string
	Balance decimal.Decimal
}

// MonthKey returns the YYYY-MM bucket of the adjusted date.
func (o Occurrence) MonthKey() string {
	return o.Date.Format("2006-01")
}
