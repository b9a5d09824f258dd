package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fluxo/internal/config"
	"fluxo/internal/log"
	"fluxo/internal/sheets"
	"fluxo/internal/sheets/csvexport"
	gsheet "fluxo/internal/sheets/google"
	"fluxo/internal/sheets/memory"
)

// CleanupFunc releases backend resources. May be nil.
type CleanupFunc func() error

// Result pairs the constructed table source with its cleanup.
type Result struct {
	Source  sheets.TableSource
	Cleanup CleanupFunc
}

// NewTableSource builds the configured table source. The memory backend seeds
// itself from CSV files in the data directory, one file per table.
func NewTableSource(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Result, error) {
	logger = logger.WithComponent(log.ComponentBackend)

	switch cfg.DataBackend {
	case "sheets":
		cli, err := gsheet.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
		}
		logger.InfoContext(ctx, "initialized sheets backend",
			"spreadsheet_id", cfg.GoogleSpreadsheetID)
		return &Result{Source: cli}, nil

	case "csv":
		cli := csvexport.New(cfg.CSVBaseURL, cfg.CSVTables, logger)
		logger.InfoContext(ctx, "initialized csv backend",
			"base_url", cfg.CSVBaseURL, log.FieldTable, len(cfg.CSVTables))
		return &Result{Source: cli}, nil

	case "memory":
		store, err := seedFromFiles(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		return &Result{Source: store}, nil

	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}

// seedFromFiles loads every *.csv file in dir into a memory store, keyed by
// the file name without extension. A missing directory yields an empty store.
func seedFromFiles(dir string, logger *log.Logger) (*memory.Store, error) {
	store := memory.New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("data directory missing, starting empty", "dir", dir)
			return store, nil
		}
		return nil, fmt.Errorf("read data directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		table := strings.TrimSuffix(entry.Name(), ".csv")

		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn("skipping unreadable seed file", "file", entry.Name(), log.FieldError, err.Error())
			continue
		}
		rows, err := csvexport.Decode(f)
		f.Close()
		if err != nil {
			logger.Warn("skipping undecodable seed file", "file", entry.Name(), log.FieldError, err.Error())
			continue
		}

		store.SetTable(table, rows)
		loaded++
	}

	logger.Info("initialized memory backend", "dir", dir, log.FieldTable, loaded)
	return store, nil
}
