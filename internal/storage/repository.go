package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/services"

	_ "modernc.org/sqlite"
)

// ErrNoSnapshot is returned when no ingest has been persisted yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

const (
	kindPayment = "payment"
	kindInvoice = "invoice"
)

// SQLiteRepository persists the latest ingest snapshot so the server can
// answer from disk while sources are down or a refresh is in flight.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot writes the snapshot and drops every older one. The write is a
// single transaction; readers never observe a half-written snapshot.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, snap *services.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (generated_at, max_data_date) VALUES (?, ?)`,
		snap.GeneratedAt.UTC().Format(time.RFC3339Nano),
		timeOrEmpty(snap.MaxDataDate),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	if err := insertOccurrences(ctx, tx, id, kindPayment, snap.Occurrences); err != nil {
		return err
	}
	if err := insertOccurrences(ctx, tx, id, kindInvoice, snap.Invoices); err != nil {
		return err
	}

	for _, acc := range snap.Accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (snapshot_id, owner, bank, balance) VALUES (?, ?, ?, ?)`,
			id, acc.Owner, acc.Bank, acc.Balance.String(),
		); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
	}
	for name, value := range snap.Variables {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO variables (snapshot_id, name, value) VALUES (?, ?, ?)`,
			id, name, value.String(),
		); err != nil {
			return fmt.Errorf("insert variable: %w", err)
		}
	}
	for i, msg := range snap.Warnings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO warnings (snapshot_id, seq, message) VALUES (?, ?, ?)`,
			id, i, msg,
		); err != nil {
			return fmt.Errorf("insert warning: %w", err)
		}
	}

	for _, table := range []string{"occurrences", "accounts", "variables", "warnings"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE snapshot_id != ?`, table), id,
		); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id != ?`, id); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the latest persisted snapshot.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context) (*services.Snapshot, error) {
	var (
		id          int64
		generatedAt string
		maxDataDate string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, generated_at, max_data_date FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &generatedAt, &maxDataDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot header: %w", err)
	}

	snap := &services.Snapshot{Variables: make(map[string]decimal.Decimal)}
	if t, err := time.Parse(time.RFC3339Nano, generatedAt); err == nil {
		snap.GeneratedAt = t
	}
	if maxDataDate != "" {
		if t, err := time.Parse(time.RFC3339Nano, maxDataDate); err == nil {
			snap.MaxDataDate = t
		}
	}

	snap.Occurrences, err = r.loadOccurrences(ctx, id, kindPayment)
	if err != nil {
		return nil, err
	}
	snap.Invoices, err = r.loadOccurrences(ctx, id, kindInvoice)
	if err != nil {
		return nil, err
	}

	accRows, err := r.db.QueryContext(ctx,
		`SELECT owner, bank, balance FROM accounts WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer accRows.Close()
	for accRows.Next() {
		var acc core.Account
		var balance string
		if err := accRows.Scan(&acc.Owner, &acc.Bank, &balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acc.Balance = mustDecimal(balance)
		snap.Accounts = append(snap.Accounts, acc)
	}
	if err := accRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	varRows, err := r.db.QueryContext(ctx,
		`SELECT name, value FROM variables WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load variables: %w", err)
	}
	defer varRows.Close()
	for varRows.Next() {
		var name, value string
		if err := varRows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		snap.Variables[name] = mustDecimal(value)
	}
	if err := varRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variables: %w", err)
	}

	warnRows, err := r.db.QueryContext(ctx,
		`SELECT message FROM warnings WHERE snapshot_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load warnings: %w", err)
	}
	defer warnRows.Close()
	for warnRows.Next() {
		var msg string
		if err := warnRows.Scan(&msg); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		snap.Warnings = append(snap.Warnings, msg)
	}
	if err := warnRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warnings: %w", err)
	}

	return snap, nil
}

func insertOccurrences(ctx context.Context, tx *sql.Tx, snapshotID int64, kind string, occs []core.Occurrence) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO occurrences (
			snapshot_id, occurrence_id, kind, category, date_str, date,
			current_installment, total_installments, value, currency,
			original_value, display_name, full_name, beneficiary, description,
			client, provider, item, shop, installments, interval, end_spec,
			raw_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare occurrence insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range occs {
		if _, err := stmt.ExecContext(ctx,
			snapshotID, o.ID, kind, string(o.Category), o.DateStr,
			o.Date.UTC().Format(time.RFC3339Nano),
			o.CurrentInstallment, o.TotalInstallments,
			o.Value.String(), o.Currency, o.OriginalValue.String(),
			o.DisplayName, o.FullName,
			o.Record.Beneficiary, o.Record.Description,
			o.Record.Client, o.Record.Provider,
			o.Record.Item, o.Record.Shop,
			o.Record.Installments, o.Record.Interval, o.Record.End,
			o.Record.RawValue,
		); err != nil {
			return fmt.Errorf("insert occurrence %s: %w", o.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) loadOccurrences(ctx context.Context, snapshotID int64, kind string) ([]core.Occurrence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT occurrence_id, category, date_str, date,
		       current_installment, total_installments, value, currency,
		       original_value, display_name, full_name, beneficiary,
		       description, client, provider, item, shop, installments,
		       interval, end_spec, raw_value
		FROM occurrences
		WHERE snapshot_id = ? AND kind = ?
		ORDER BY date, occurrence_id`, snapshotID, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s occurrences: %w", kind, err)
	}
	defer rows.Close()

	var out []core.Occurrence
	for rows.Next() {
		var o core.Occurrence
		var category, date, value, originalValue string
		if err := rows.Scan(
			&o.ID, &category, &o.DateStr, &date,
			&o.CurrentInstallment, &o.TotalInstallments, &value, &o.Currency,
			&originalValue, &o.DisplayName, &o.FullName,
			&o.Record.Beneficiary, &o.Record.Description,
			&o.Record.Client, &o.Record.Provider,
			&o.Record.Item, &o.Record.Shop,
			&o.Record.Installments, &o.Record.Interval, &o.Record.End,
			&o.Record.RawValue,
		); err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		o.Category = core.Category(category)
		o.Record.Category = o.Category
		o.Record.Date = o.DateStr
		if t, err := time.Parse(time.RFC3339Nano, date); err == nil {
			o.Date = t
		}
		o.Value = mustDecimal(value)
		o.OriginalValue = mustDecimal(originalValue)
		o.Record.Value = o.Value
		o.Record.Currency = o.Currency
		o.Record.OriginalValue = o.OriginalValue
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s occurrences: %w", kind, err)
	}
	return out, nil
}

func timeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func mustDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}
