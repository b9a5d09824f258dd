package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fluxo/internal/config"
	sheets "fluxo/internal/sheets"
)

// Client reads spreadsheet tabs through the Sheets API. Each table name is
// the name of one tab; the first row of each tab holds the headers.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ sheets.TableSource = (*Client)(nil)

// New builds a Sheets client from the OAuth client and token configured in
// cfg. Both may come from a file or inline JSON.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.GoogleSpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	clientJSON, err := readCredential(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	tokenJSON, err := readCredential(cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	oauthCfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	httpClient := oauthCfg.Client(ctx, &token)
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: cfg.GoogleSpreadsheetID}, nil
}

func readCredential(inline, file string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		return os.ReadFile(file)
	default:
		return nil, errors.New("neither inline JSON nor a file was configured")
	}
}

// ReadTable fetches one tab and converts its value matrix into header-keyed
// rows.
func (c *Client) ReadTable(ctx context.Context, table string) ([]sheets.Row, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, table).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read tab %q: %w", table, err)
	}
	return RowsFromValues(resp.Values), nil
}

// RowsFromValues converts a Sheets API value matrix into rows, treating the
// first line as headers. Blank rows are dropped.
func RowsFromValues(values [][]interface{}) []sheets.Row {
	if len(values) == 0 {
		return nil
	}
	headers := toStrings(values[0])
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]sheets.Row, 0, len(values)-1)
	for _, raw := range values[1:] {
		cells := toStrings(raw)
		row := make(sheets.Row, len(headers))
		empty := true
		for i, h := range headers {
			if h == "" || i >= len(cells) {
				continue
			}
			v := strings.TrimSpace(cells[i])
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
	return rows
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
