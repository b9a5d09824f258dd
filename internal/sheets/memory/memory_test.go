package memory

import (
	"context"
	"testing"

	sheets "fluxo/internal/sheets"
)

func TestStoreReadTable(t *testing.T) {
	s := New()
	s.SetTable("boletos", []sheets.Row{
		{" Data ": " 15/03/2024 ", "Valor": "100"},
	})

	rows, err := s.ReadTable(context.Background(), "boletos")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0].Get("Data"); got != "15/03/2024" {
		t.Errorf("Data = %q, want trimmed value under trimmed header", got)
	}
}

func TestStoreUnknownTableIsEmpty(t *testing.T) {
	s := New()
	rows, err := s.ReadTable(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	s.SetTable("boletos", []sheets.Row{{"Valor": "100"}})

	rows, _ := s.ReadTable(context.Background(), "boletos")
	rows[0]["Valor"] = "999"

	again, _ := s.ReadTable(context.Background(), "boletos")
	if got := again[0].Get("Valor"); got != "100" {
		t.Errorf("mutating a read result leaked into the store: %q", got)
	}
}
