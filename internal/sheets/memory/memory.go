package memory

import (
	"context"
	"strings"
	"sync"

	sheets "fluxo/internal/sheets"
)

// Store holds spreadsheet tables in memory. It backs tests and the memory
// data backend used for local development.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]sheets.Row
}

var _ sheets.TableSource = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string][]sheets.Row)}
}

// SetTable replaces one table's rows. Cell values are trimmed the same way
// the CSV backend trims them.
func (s *Store) SetTable(table string, rows []sheets.Row) {
	cleaned := make([]sheets.Row, 0, len(rows))
	for _, r := range rows {
		row := make(sheets.Row, len(r))
		for k, v := range r {
			row[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		cleaned = append(cleaned, row)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = cleaned
}

// ReadTable returns a copy of the stored rows. Unknown tables read as empty,
// matching a spreadsheet whose tab exists but has no data rows.
func (s *Store) ReadTable(_ context.Context, table string) ([]sheets.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[table]
	out := make([]sheets.Row, len(rows))
	for i, r := range rows {
		row := make(sheets.Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		out[i] = row
	}
	return out, nil
}
