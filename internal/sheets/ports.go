package sheets

import "context"

// Row is one spreadsheet row keyed by header name. Missing cells are absent
// from the map; callers treat absent and empty the same way.
type Row map[string]string

// TableSource reads one named tab of the source spreadsheet. Implementations
// exist for published-CSV exports, the Sheets API and an in-memory store.
type TableSource interface {
	ReadTable(ctx context.Context, table string) ([]Row, error)
}

// Get returns the cell under the first of the given header names that holds
// a value. Backends trim cells while reading.
func (r Row) Get(names ...string) string {
	for _, n := range names {
		if v, ok := r[n]; ok && v != "" {
			return v
		}
	}
	return ""
}
