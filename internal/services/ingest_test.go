package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/log"
	sheets "fluxo/internal/sheets"
	"fluxo/internal/sheets/memory"
)

type staticRates struct {
	table core.RateTable
}

func (s staticRates) Table(_ context.Context) core.RateTable { return s.table }

func testRates() staticRates {
	return staticRates{table: core.RateTable{
		Base:  "BRL",
		Rates: map[string]decimal.Decimal{"USD": decimal.NewFromFloat(0.2)},
	}}
}

func testOptions() Options {
	return Options{
		BaseCurrency: "BRL",
		IOFRate:      decimal.NewFromFloat(0.038),
		Window:       core.YearWindow{First: 2024, Last: 2024},
	}
}

func newTestLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func TestIngestRun(t *testing.T) {
	store := memory.New()
	store.SetTable("boletos", []sheets.Row{
		{"Data": "19/04/2024", "Valor": "R$ 120", "Beneficiário": "Academia"},
		{"Data": "20/04/2024", "Valor": "80", "Beneficiário": "Light"},
	})
	store.SetTable("recorrentes", []sheets.Row{
		{"Data": "10/04/2024", "Valor": "90", "Beneficiário": "Academia"},
	})
	store.SetTable("compras", []sheets.Row{
		{"Data": "03/06/2024", "Valor": "US$ 100", "Item": "Cadeira ergonômica para escritório"},
	})
	store.SetTable("notas", []sheets.Row{
		{"Data": "05/02/2024", "Valor": "5.000,00", "Cliente": "ACME Ltda", "Fornecedor": "VJ"},
	})
	store.SetTable("contas", []sheets.Row{
		{"Dono": "Ana", "Banco": "Nubank", "Saldo": "R$ 1.000,00"},
	})
	store.SetTable("fontes", []sheets.Row{
		{"Variavel": "IOF", "Valor": "2%"},
		{"Variavel": "AliquotaVJ", "Valor": "6%"},
	})

	ingest := NewIngest(store, testRates(), testOptions(), newTestLogger())
	snap, err := ingest.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(snap.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", snap.Warnings)
	}

	// 2 boletos + 8 recorrentes (April suppressed by the Academia boleto) +
	// 1 compra.
	if len(snap.Occurrences) != 11 {
		t.Fatalf("got %d occurrences, want 11", len(snap.Occurrences))
	}
	for i := 1; i < len(snap.Occurrences); i++ {
		if snap.Occurrences[i].Date.Before(snap.Occurrences[i-1].Date) {
			t.Fatal("occurrences must be sorted by adjusted date")
		}
	}

	for _, o := range snap.Occurrences {
		if o.Category == core.CategoryRecorrentes && o.Date.Month() == 4 {
			t.Errorf("April recurring occurrence %s must be suppressed", o.ID)
		}
	}

	var saturday core.Occurrence
	for _, o := range snap.Occurrences {
		if o.Record.Beneficiary == "Light" {
			saturday = o
		}
	}
	if saturday.DateStr != "2024-04-20" {
		t.Errorf("original date = %s, want 2024-04-20", saturday.DateStr)
	}
	if core.DateKey(saturday.Date) != "2024-04-22" {
		t.Errorf("adjusted date = %s, want following Monday 2024-04-22", core.DateKey(saturday.Date))
	}

	// The fontes IOF override (2%) replaces the configured 3.8% rate:
	// 100 USD / 0.2 * 1.02 = 510 BRL.
	var compra core.Occurrence
	for _, o := range snap.Occurrences {
		if o.Category == core.CategoryCompras {
			compra = o
		}
	}
	if want := decimal.NewFromInt(510); !compra.Value.Equal(want) {
		t.Errorf("converted value = %s, want %s", compra.Value, want)
	}
	if compra.Currency != "USD" || !compra.OriginalValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("original = %s %s, want USD 100", compra.OriginalValue, compra.Currency)
	}
	if !strings.HasSuffix(compra.DisplayName, "...") {
		t.Errorf("long item name %q must be truncated for display", compra.DisplayName)
	}

	if len(snap.Invoices) != 1 {
		t.Fatalf("got %d invoices, want 1", len(snap.Invoices))
	}
	inv := snap.Invoices[0]
	if inv.Record.Provider != "VJ" || !inv.Value.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("invoice = %s from %s, want 5000 from VJ", inv.Value, inv.Record.Provider)
	}

	if len(snap.Accounts) != 1 {
		t.Fatalf("got %d accounts, want 1", len(snap.Accounts))
	}
	if acc := snap.Accounts[0]; acc.Owner != "Ana" || acc.Bank != "Nubank" || !acc.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("account = %+v, want Ana/Nubank/1000", acc)
	}

	if !snap.Variables["aliquotavj"].Equal(decimal.NewFromFloat(0.06)) {
		t.Errorf("AliquotaVJ = %s, want 0.06", snap.Variables["aliquotavj"])
	}

	// Horizon: compras count, open-ended recorrentes do not.
	if got := core.DateKey(snap.MaxDataDate); got != "2024-06-03" {
		t.Errorf("MaxDataDate = %s, want 2024-06-03", got)
	}
}

func TestIngestMalformedRowBecomesWarning(t *testing.T) {
	store := memory.New()
	store.SetTable("boletos", []sheets.Row{
		{"Data": "99/99/2024", "Valor": "50", "Beneficiário": "Broken"},
		{"Data": "15/03/2024", "Valor": "50", "Beneficiário": "Fine"},
	})

	ingest := NewIngest(store, testRates(), testOptions(), newTestLogger())
	snap, err := ingest.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(snap.Occurrences) != 1 {
		t.Fatalf("got %d occurrences, want 1 (bad row skipped, good row kept)", len(snap.Occurrences))
	}
	if len(snap.Warnings) != 1 || !strings.Contains(snap.Warnings[0], "boletos row 1") {
		t.Errorf("warnings = %v, want one naming boletos row 1", snap.Warnings)
	}
}

func TestIngestUnknownCurrencyPassesValueThrough(t *testing.T) {
	store := memory.New()
	store.SetTable("boletos", []sheets.Row{
		{"Data": "15/03/2024", "Valor": "CHF 70", "Beneficiário": "Hotel"},
	})

	ingest := NewIngest(store, testRates(), testOptions(), newTestLogger())
	snap, err := ingest.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(snap.Occurrences) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(snap.Occurrences))
	}
	if !snap.Occurrences[0].Value.Equal(decimal.NewFromInt(70)) {
		t.Errorf("value = %s, want passthrough 70", snap.Occurrences[0].Value)
	}
	if len(snap.Warnings) != 1 || !strings.Contains(snap.Warnings[0], "unknown currency") {
		t.Errorf("warnings = %v, want one about the unknown currency", snap.Warnings)
	}
}

type flakySource struct {
	inner     sheets.TableSource
	failTable string
}

func (f flakySource) ReadTable(ctx context.Context, table string) ([]sheets.Row, error) {
	if table == f.failTable {
		return nil, errors.New("boom")
	}
	return f.inner.ReadTable(ctx, table)
}

func TestIngestFetchFailureAbortsOnlyThatTable(t *testing.T) {
	store := memory.New()
	store.SetTable("boletos", []sheets.Row{
		{"Data": "15/03/2024", "Valor": "50", "Beneficiário": "Light"},
	})
	store.SetTable("impostos", []sheets.Row{
		{"Data": "10/05/2024", "Valor": "300", "Beneficiário": "IPTU"},
	})

	ingest := NewIngest(flakySource{inner: store, failTable: "impostos"}, testRates(), testOptions(), newTestLogger())
	snap, err := ingest.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(snap.Occurrences) != 1 {
		t.Fatalf("got %d occurrences, want 1 from the surviving table", len(snap.Occurrences))
	}
	if snap.Occurrences[0].Category != core.CategoryBoletos {
		t.Errorf("surviving occurrence category = %s, want boletos", snap.Occurrences[0].Category)
	}
	if len(snap.Warnings) != 1 || !strings.Contains(snap.Warnings[0], "table impostos") {
		t.Errorf("warnings = %v, want one naming the failed table", snap.Warnings)
	}
}

func TestIngestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ingest := NewIngest(memory.New(), testRates(), testOptions(), newTestLogger())
	if _, err := ingest.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}
