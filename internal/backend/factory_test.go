package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"fluxo/internal/config"
	"fluxo/internal/core"
	"fluxo/internal/log"
)

func testLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func TestSeedFromFiles(t *testing.T) {
	dir := t.TempDir()
	csv := "Beneficiário,Data,Valor\nLight,15/03/2024,\"123,45\"\n"
	if err := os.WriteFile(filepath.Join(dir, "boletos.csv"), []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := seedFromFiles(dir, testLogger())
	if err != nil {
		t.Fatalf("seedFromFiles: %v", err)
	}

	rows, err := store.ReadTable(context.Background(), "boletos")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0].Get("Beneficiário", "Beneficiary"); got != "Light" {
		t.Errorf("beneficiary = %q, want Light", got)
	}

	if rows, _ := store.ReadTable(context.Background(), "notes"); len(rows) != 0 {
		t.Errorf("non-csv file must not become a table, got %d rows", len(rows))
	}
}

func TestSeedFromFilesMissingDir(t *testing.T) {
	store, err := seedFromFiles(filepath.Join(t.TempDir(), "nope"), testLogger())
	if err != nil {
		t.Fatalf("missing dir must not fail: %v", err)
	}
	if rows, _ := store.ReadTable(context.Background(), "boletos"); len(rows) != 0 {
		t.Errorf("expected empty store, got %d rows", len(rows))
	}
}

func TestNewTableSourceMemory(t *testing.T) {
	cfg := &config.Config{DataBackend: "memory", DataDir: t.TempDir()}
	result, err := NewTableSource(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("NewTableSource: %v", err)
	}
	if result.Source == nil {
		t.Fatal("expected a table source")
	}
}

func TestNewTableSourceUnknownBackend(t *testing.T) {
	cfg := &config.Config{DataBackend: "oracle"}
	if _, err := NewTableSource(context.Background(), cfg, testLogger()); err == nil {
		t.Fatal("unknown backend must fail")
	}
}

func TestIngestOptions(t *testing.T) {
	cfg := &config.Config{
		BaseCurrency:    "BRL",
		IOFRate:         0.038,
		IOFScope:        []string{"compras"},
		YearWindowStart: 2024,
		YearWindowEnd:   2030,
		DedupMode:       "exact-date",
	}

	opts := IngestOptions(cfg)
	if opts.BaseCurrency != "BRL" {
		t.Errorf("base currency = %q", opts.BaseCurrency)
	}
	if !opts.IOFRate.Equal(decimal.NewFromFloat(0.038)) {
		t.Errorf("IOF rate = %s, want 0.038", opts.IOFRate)
	}
	if len(opts.IOFScope) != 1 || opts.IOFScope[0] != core.CategoryCompras {
		t.Errorf("IOF scope = %v", opts.IOFScope)
	}
	if opts.Window.First != 2024 || opts.Window.Last != 2030 {
		t.Errorf("window = %+v", opts.Window)
	}
	if opts.DedupMode != core.DedupByDate {
		t.Errorf("dedup mode = %v, want exact-date", opts.DedupMode)
	}
}
