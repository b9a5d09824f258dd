package core

import (
	"errors"
	"testing"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"brazilian format", "31/01/2024", "2024-01-31", false},
		{"iso format", "2024-01-31", "2024-01-31", false},
		{"padded brazilian", "05/03/2025", "2025-03-05", false},
		{"leap february clamps", "30/02/2024", "2024-02-29", false},
		{"plain february clamps", "30/02/2023", "2023-02-28", false},
		{"short month clamps", "2024-04-31", "2024-04-30", false},
		{"empty", "", "", true},
		{"garbage", "not-a-date", "", true},
		{"month out of range", "2024-13-01", "", true},
		{"day out of range", "32/01/2024", "", true},
		{"year too small", "01/01/1800", "", true},
		{"year too large", "01/01/2200", "", true},
		{"missing component", "01/2024", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Fatalf("ParseDate(%q) error = %v, want ErrInvalidDate", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q): %v", tt.in, err)
			}
			if DateKey(got) != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.in, DateKey(got), tt.want)
			}
		})
	}
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		year, month, want int
	}{
		{2024, 2, 29},
		{2023, 2, 28},
		{2024, 4, 30},
		{2024, 12, 31},
	}
	for _, tt := range tests {
		if got := LastDayOfMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("LastDayOfMonth(%d, %d) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestClampedDateNormalizesMonthOverflow(t *testing.T) {
	// Month 13 rolls into January of the next year.
	got := ClampedDate(2024, 13, 31)
	if DateKey(got) != "2025-01-31" {
		t.Errorf("ClampedDate(2024, 13, 31) = %s, want 2025-01-31", DateKey(got))
	}
}
