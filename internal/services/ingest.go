package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fluxo/internal/core"
	"fluxo/internal/log"
	sheets "fluxo/internal/sheets"
)

// Non-category tables of the source spreadsheet.
const (
	tableAccounts  = "contas"
	tableVariables = "fontes"
)

// RateProvider supplies the current exchange-rate table. The rates client
// satisfies this; tests plug in a static table.
type RateProvider interface {
	Table(ctx context.Context) core.RateTable
}

// Options carries the ingest tuning derived from configuration.
type Options struct {
	BaseCurrency string
	IOFRate      decimal.Decimal
	IOFScope     []core.Category
	Window       core.YearWindow
	DedupMode    core.DedupMode
}

// Snapshot is one complete ingest result: every generated occurrence, the
// invoice list, account balances, spreadsheet variables, and the warnings
// produced along the way. It is what the HTTP layer serves and the storage
// layer persists.
type Snapshot struct {
	Occurrences []core.Occurrence
	Invoices    []core.Occurrence
	Accounts    []core.Account
	Variables   map[string]decimal.Decimal
	Warnings    []string

	// MaxDataDate is the latest occurrence date among horizon-tracking
	// categories; open-ended recurrences do not extend it.
	MaxDataDate time.Time
	GeneratedAt time.Time
}

// Ingest orchestrates one refresh: fetch every table, normalize rows into
// records, expand records into occurrences, adjust dates, suppress recurring
// duplicates and accumulate the result.
type Ingest struct {
	source sheets.TableSource
	rates  RateProvider
	opts   Options
	logger *log.Logger
}

func NewIngest(source sheets.TableSource, rates RateProvider, opts Options, logger *log.Logger) *Ingest {
	return &Ingest{
		source: source,
		rates:  rates,
		opts:   opts,
		logger: logger.WithComponent(log.ComponentIngest),
	}
}

// Run performs one full ingest. Per-table fetch failures degrade to warnings;
// only a cancelled context aborts the run.
func (s *Ingest) Run(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: time.Now()}

	tables := make([]string, 0, len(core.PaymentCategories())+3)
	for _, cat := range core.PaymentCategories() {
		tables = append(tables, string(cat))
	}
	tables = append(tables, string(core.CategoryNotas), tableAccounts, tableVariables)

	fetched, fetchWarnings := s.fetchTables(ctx, tables)
	snap.Warnings = append(snap.Warnings, fetchWarnings...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap.Variables = parseVariables(fetched[tableVariables])
	iof := s.opts.IOFRate
	if override, ok := snap.Variables["iof"]; ok {
		iof = override
	}
	converter := core.NewConverter(s.rates.Table(ctx), iof, s.opts.IOFScope)

	expander := core.NewExpander(s.opts.Window)
	adjuster := core.NewAdjuster(core.NewHolidayCalendar())

	// Suppressing categories go last so the occurrences they check against
	// are already accumulated.
	ordered := make([]core.Category, 0, len(core.PaymentCategories()))
	var suppressing []core.Category
	for _, cat := range core.PaymentCategories() {
		policy, _ := core.PolicyFor(cat)
		if policy.SuppressAcrossCategories {
			suppressing = append(suppressing, cat)
			continue
		}
		ordered = append(ordered, cat)
	}
	ordered = append(ordered, suppressing...)

	for _, cat := range ordered {
		s.mergeCategory(ctx, snap, cat, fetched[string(cat)], converter, expander, adjuster)
	}
	s.mergeInvoices(snap, fetched[string(core.CategoryNotas)], converter, expander)
	snap.Accounts = parseAccounts(fetched[tableAccounts])

	sort.Slice(snap.Occurrences, func(i, j int) bool {
		a, b := snap.Occurrences[i], snap.Occurrences[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})

	s.logger.InfoContext(ctx, "ingest complete",
		log.FieldOccurrences, len(snap.Occurrences),
		"invoices", len(snap.Invoices),
		"accounts", len(snap.Accounts),
		log.FieldWarnings, len(snap.Warnings),
	)
	return snap, nil
}

// fetchTables reads every table concurrently. A failed table becomes a
// warning and an absent entry; categories without a tab simply read empty.
func (s *Ingest) fetchTables(ctx context.Context, tables []string) (map[string][]sheets.Row, []string) {
	results := make(map[string][]sheets.Row, len(tables))
	var warnings []string
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range tables {
		name := name
		g.Go(func() error {
			rows, err := s.source.ReadTable(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("table %s: %v", name, err))
				s.logger.WarnContext(gctx, "table fetch failed", log.FieldTable, name, log.FieldError, err.Error())
				return nil
			}
			results[name] = rows
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(warnings)
	return results, warnings
}

// mergeCategory expands one category's rows and appends the surviving
// occurrences to the snapshot, sequentially per record.
func (s *Ingest) mergeCategory(ctx context.Context, snap *Snapshot, cat core.Category, rows []sheets.Row, converter *core.Converter, expander *core.Expander, adjuster *core.Adjuster) {
	policy, ok := core.PolicyFor(cat)
	if !ok {
		return
	}

	for seq, row := range rows {
		rec, recWarnings := s.recordFromRow(cat, row, converter)
		for _, w := range recWarnings {
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s row %d: %v", cat, seq+1, w))
		}

		occs, expandWarnings := expander.Expand(rec, seq)
		for _, w := range expandWarnings {
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s row %d: %v", cat, seq+1, w))
		}

		for _, occ := range occs {
			adjusted, err := adjuster.Adjust(occ.Date, policy.Adjustment)
			if err != nil {
				snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s row %d: %v", cat, seq+1, err))
			}
			occ.Date = adjusted

			if policy.SuppressAcrossCategories && core.SuppressesRecurring(snap.Occurrences, occ, s.opts.DedupMode) {
				s.logger.DebugContext(ctx, "recurring occurrence suppressed",
					log.FieldCategory, string(cat), "occurrence", occ.ID)
				continue
			}

			snap.Occurrences = append(snap.Occurrences, occ)
			if policy.TracksHorizon && occ.Date.After(snap.MaxDataDate) {
				snap.MaxDataDate = occ.Date
			}
		}
	}
}

// mergeInvoices expands the invoice table into the separate invoice list.
func (s *Ingest) mergeInvoices(snap *Snapshot, rows []sheets.Row, converter *core.Converter, expander *core.Expander) {
	for seq, row := range rows {
		rec, recWarnings := s.recordFromRow(core.CategoryNotas, row, converter)
		for _, w := range recWarnings {
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s row %d: %v", core.CategoryNotas, seq+1, w))
		}

		occs, expandWarnings := expander.Expand(rec, seq)
		for _, w := range expandWarnings {
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("%s row %d: %v", core.CategoryNotas, seq+1, w))
		}
		snap.Invoices = append(snap.Invoices, occs...)
	}

	sort.Slice(snap.Invoices, func(i, j int) bool {
		a, b := snap.Invoices[i], snap.Invoices[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
}

// recordFromRow maps a spreadsheet row onto a SourceRecord, normalizing the
// value column. Headers are accepted in Portuguese or English.
func (s *Ingest) recordFromRow(cat core.Category, row sheets.Row, converter *core.Converter) (core.SourceRecord, []error) {
	rec := core.SourceRecord{
		Category:     cat,
		Beneficiary:  row.Get("Beneficiário", "Beneficiario", "Beneficiary"),
		Description:  row.Get("Descrição", "Descricao", "Description"),
		Client:       row.Get("Cliente", "Client"),
		Provider:     row.Get("Fornecedor", "Provider"),
		Item:         row.Get("Item"),
		Shop:         row.Get("Loja", "Shop"),
		Date:         row.Get("Data", "Date"),
		Installments: row.Get("Parcelas", "Installments"),
		Interval:     row.Get("Intervalo", "Interval"),
		End:          row.Get("Fim", "End"),
		RawValue:     row.Get("Valor", "Value"),
	}

	currency, clean := core.DetectCurrency(rec.RawValue, s.opts.BaseCurrency)
	rec.Currency = currency
	rec.OriginalValue = core.ParseLocaleNumber(clean)

	var warnings []error
	converted, err := converter.ToBase(rec.OriginalValue, currency, cat)
	if err != nil {
		warnings = append(warnings, err)
	}
	rec.Value = converted

	return rec, warnings
}

// parseVariables reads the spreadsheet variables table. Keys are lowercased;
// percent-suffixed values become fractions (3,8% reads as 0.038).
func parseVariables(rows []sheets.Row) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		name := strings.ToLower(row.Get("Variável", "Variavel", "Variable", "Nome", "Name"))
		raw := row.Get("Valor", "Value")
		if name == "" || raw == "" {
			continue
		}
		value := core.ParseLocaleNumber(raw)
		if strings.HasSuffix(strings.TrimSpace(raw), "%") {
			value = value.Div(decimal.NewFromInt(100))
		}
		out[name] = value
	}
	return out
}

// parseAccounts reads the account-balance table as-is.
func parseAccounts(rows []sheets.Row) []core.Account {
	accounts := make([]core.Account, 0, len(rows))
	for _, row := range rows {
		acc := core.Account{
			Owner: row.Get("Dono", "Owner", "Titular"),
			Bank:  row.Get("Banco", "Bank"),
		}
		raw := row.Get("Saldo", "Balance")
		if acc.Owner == "" && acc.Bank == "" && raw == "" {
			continue
		}
		_, clean := core.DetectCurrency(raw, core.BaseCurrency)
		acc.Balance = core.ParseLocaleNumber(clean)
		accounts = append(accounts, acc)
	}
	return accounts
}
