package csvexport

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fluxo/internal/log"
	sheets "fluxo/internal/sheets"
)

// Client reads tables from a spreadsheet published as CSV. Each table name
// maps to the gid of one tab of the published document.
type Client struct {
	http    *http.Client
	baseURL string
	tables  map[string]string
	logger  *log.Logger
}

var _ sheets.TableSource = (*Client)(nil)

func New(baseURL string, tables map[string]string, logger *log.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		tables:  tables,
		logger:  logger.WithComponent(log.ComponentSheets),
	}
}

// ReadTable fetches one published tab and decodes it into header-keyed rows.
func (c *Client) ReadTable(ctx context.Context, table string) ([]sheets.Row, error) {
	gid, ok := c.tables[table]
	if !ok {
		return nil, fmt.Errorf("no gid configured for table %q", table)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("gid", gid)
	q.Set("single", "true")
	q.Set("output", "csv")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch table %q: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch table %q: unexpected status %d", table, resp.StatusCode)
	}

	rows, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode table %q: %w", table, err)
	}
	c.logger.DebugContext(ctx, "table fetched", log.FieldTable, table, log.FieldRowCount, len(rows))
	return rows, nil
}

// Decode parses CSV content into rows keyed by the header line. The delimiter
// is detected from the header: published exports use commas, manual exports
// from Brazilian locales often use semicolons.
func Decode(r io.Reader) ([]sheets.Row, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("peek header: %w", err)
	}

	reader := csv.NewReader(br)
	reader.Comma = detectDelimiter(string(header))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]sheets.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(sheets.Row, len(headers))
		empty := true
		for i, h := range headers {
			if h == "" || i >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[i])
			row[h] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// detectDelimiter picks the separator that splits the header line into the
// most fields, ignoring separators inside quotes.
func detectDelimiter(header string) rune {
	if i := strings.IndexAny(header, "\r\n"); i >= 0 {
		header = header[:i]
	}
	best, bestCount := ',', 0
	for _, cand := range []rune{',', ';', '\t'} {
		count := 0
		inQuotes := false
		for _, r := range header {
			switch {
			case r == '"':
				inQuotes = !inQuotes
			case r == cand && !inQuotes:
				count++
			}
		}
		if count > bestCount {
			best, bestCount = cand, count
		}
	}
	return best
}
