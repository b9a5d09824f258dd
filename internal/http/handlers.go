package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/log"
	"fluxo/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// The header is already written; nothing left to do but log.
		slog.Error("encode response", log.FieldError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// snapshotOr503 fetches the current snapshot, answering 503 when none has
// been ingested yet.
func (s *Server) snapshotOr503(w http.ResponseWriter) (*services.Snapshot, bool) {
	snap := s.snapshots.Current()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot available")
		return nil, false
	}
	return snap, true
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

func monthParam(r *http.Request) (time.Month, error) {
	m, err := intParam(r, "month")
	if err != nil {
		return 0, err
	}
	if m < 1 || m > 12 {
		return 0, fmt.Errorf("month must be between 1 and 12")
	}
	return time.Month(m), nil
}

type occurrenceDTO struct {
	ID                 string          `json:"id"`
	Category           string          `json:"category"`
	Date               string          `json:"date"`
	OriginalDate       string          `json:"original_date"`
	Value              decimal.Decimal `json:"value"`
	Currency           string          `json:"currency"`
	OriginalValue      decimal.Decimal `json:"original_value"`
	CurrentInstallment int             `json:"current_installment,omitempty"`
	TotalInstallments  int             `json:"total_installments,omitempty"`
	DisplayName        string          `json:"display_name"`
	FullName           string          `json:"full_name,omitempty"`
	Beneficiary        string          `json:"beneficiary,omitempty"`
	Description        string          `json:"description,omitempty"`
	Provider           string          `json:"provider,omitempty"`
	Client             string          `json:"client,omitempty"`
	Item               string          `json:"item,omitempty"`
	Shop               string          `json:"shop,omitempty"`
}

func toDTO(o core.Occurrence) occurrenceDTO {
	return occurrenceDTO{
		ID:                 o.ID,
		Category:           string(o.Category),
		Date:               core.DateKey(o.Date),
		OriginalDate:       o.DateStr,
		Value:              o.Value,
		Currency:           o.Currency,
		OriginalValue:      o.OriginalValue,
		CurrentInstallment: o.CurrentInstallment,
		TotalInstallments:  o.TotalInstallments,
		DisplayName:        o.DisplayName,
		FullName:           o.FullName,
		Beneficiary:        o.Record.Beneficiary,
		Description:        o.Record.Description,
		Provider:           o.Record.Provider,
		Client:             o.Record.Client,
		Item:               o.Record.Item,
		Shop:               o.Record.Shop,
	}
}

// handleOccurrences lists occurrences for a year, optionally narrowed to one
// month. Dates filter on the adjusted date, the one the calendar shows.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	year, err := intParam(r, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var month time.Month
	if r.URL.Query().Get("month") != "" {
		if month, err = monthParam(r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	out := make([]occurrenceDTO, 0)
	for _, o := range snap.Occurrences {
		if o.Date.Year() != year {
			continue
		}
		if month != 0 && o.Date.Month() != month {
			continue
		}
		out = append(out, toDTO(o))
	}
	writeJSON(w, http.StatusOK, out)
}

type monthTotalsDTO struct {
	Total      decimal.Decimal            `json:"total"`
	ByCategory map[string]decimal.Decimal `json:"by_category"`
}

// handleMonthSummary rolls occurrences up by month. Recurring templates are
// excluded unless the exclude parameter overrides the default.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	exclude := map[core.Category]bool{core.CategoryRecorrentes: true}
	if raw, present := r.URL.Query()["exclude"]; present {
		exclude = make(map[core.Category]bool)
		for _, chunk := range raw {
			for _, name := range strings.Split(chunk, ",") {
				name = strings.TrimSpace(strings.ToLower(name))
				if name != "" && name != "none" {
					exclude[core.Category(name)] = true
				}
			}
		}
	}

	totals := core.TotalsByMonth(snap.Occurrences, core.TotalsOptions{ExcludeCategories: exclude})
	out := make(map[string]monthTotalsDTO, len(totals))
	for key, mt := range totals {
		byCat := make(map[string]decimal.Decimal, len(mt.ByCategory))
		for cat, v := range mt.ByCategory {
			byCat[string(cat)] = v
		}
		out[key] = monthTotalsDTO{Total: mt.Total, ByCategory: byCat}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWeekSummary rolls occurrences up by week, keyed by each Monday.
func (s *Server) handleWeekSummary(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, core.TotalsByWeek(snap.Occurrences))
}

type remainingDTO struct {
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	MonthTotal decimal.Decimal `json:"month_total"`
	Remaining  decimal.Decimal `json:"remaining"`
}

func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	year, err := intParam(r, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	month, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total, remaining := core.RemainingToPay(snap.Occurrences, year, month, time.Now())
	writeJSON(w, http.StatusOK, remainingDTO{
		Year:       year,
		Month:      int(month),
		MonthTotal: total,
		Remaining:  remaining,
	})
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	// The scan is quadratic in the occurrence count, so memoize per snapshot.
	key := snap.GeneratedAt.Format(time.RFC3339Nano)
	if cached, hit := s.dupCache.Get(key); hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	groups := core.FindDuplicateGroups(snap.Occurrences)
	out := make([][]occurrenceDTO, 0, len(groups))
	for _, group := range groups {
		dtos := make([]occurrenceDTO, 0, len(group))
		for _, o := range group {
			dtos = append(dtos, toDTO(o))
		}
		out = append(out, dtos)
	}
	s.dupCache.Set(key, out)
	writeJSON(w, http.StatusOK, out)
}

// handleInvoices returns each provider's invoiced total per month of a year,
// twelve buckets indexed January first.
func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	year, err := intParam(r, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, core.InvoicesByProviderMonth(snap.Invoices, year))
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, core.Providers(snap.Invoices))
}

type comparisonDTO struct {
	Year       int             `json:"year"`
	ProviderA  string          `json:"provider_a"`
	ProviderB  string          `json:"provider_b"`
	TotalA     decimal.Decimal `json:"total_a"`
	TotalB     decimal.Decimal `json:"total_b"`
	Difference decimal.Decimal `json:"difference"`
	Higher     string          `json:"higher"`
}

func (s *Server) handleCompareProviders(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	year, err := intParam(r, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	providerA := r.URL.Query().Get("a")
	providerB := r.URL.Query().Get("b")
	if providerA == "" || providerB == "" {
		writeError(w, http.StatusBadRequest, "missing a or b parameter")
		return
	}

	cmp := core.CompareProviders(snap.Invoices, year, providerA, providerB)
	writeJSON(w, http.StatusOK, comparisonDTO{
		Year:       year,
		ProviderA:  providerA,
		ProviderB:  providerB,
		TotalA:     cmp.TotalA,
		TotalB:     cmp.TotalB,
		Difference: cmp.Difference,
		Higher:     cmp.Higher,
	})
}

type taxEstimateDTO struct {
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	Provider        string          `json:"provider,omitempty"`
	RBT12           decimal.Decimal `json:"rbt12"`
	MonthlyEstimate decimal.Decimal `json:"monthly_estimate"`
}

// handleTaxEstimate computes the trailing-12-month revenue base ending before
// the target month and the resulting monthly tax under the progressive table.
// An empty provider aggregates all invoices.
func (s *Server) handleTaxEstimate(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	year, err := intParam(r, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	month, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	provider := r.URL.Query().Get("provider")

	rbt12 := core.TrailingTwelveMonthSum(snap.Invoices, year, month, provider)
	estimate := core.MonthlyTaxEstimate(rbt12, core.DefaultTaxBrackets)
	writeJSON(w, http.StatusOK, taxEstimateDTO{
		Year:            year,
		Month:           int(month),
		Provider:        provider,
		RBT12:           rbt12,
		MonthlyEstimate: estimate,
	})
}

type accountDTO struct {
	Owner   string          `json:"owner"`
	Bank    string          `json:"bank"`
	Balance decimal.Decimal `json:"balance"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	out := make([]accountDTO, 0, len(snap.Accounts))
	for _, acc := range snap.Accounts {
		out = append(out, accountDTO{Owner: acc.Owner, Bank: acc.Bank, Balance: acc.Balance})
	}
	writeJSON(w, http.StatusOK, out)
}

type metaDTO struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	MaxDataDate string                     `json:"max_data_date,omitempty"`
	Occurrences int                        `json:"occurrences"`
	Invoices    int                        `json:"invoices"`
	Accounts    int                        `json:"accounts"`
	Variables   map[string]decimal.Decimal `json:"variables,omitempty"`
	Warnings    []string                   `json:"warnings,omitempty"`
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	meta := metaDTO{
		GeneratedAt: snap.GeneratedAt,
		Occurrences: len(snap.Occurrences),
		Invoices:    len(snap.Invoices),
		Accounts:    len(snap.Accounts),
		Variables:   snap.Variables,
		Warnings:    snap.Warnings,
	}
	if !snap.MaxDataDate.IsZero() {
		meta.MaxDataDate = core.DateKey(snap.MaxDataDate)
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleRefresh publishes a refresh request for the worker. 503 when no
// message bus is configured.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh bus not configured")
		return
	}

	if err := s.refresher.PublishRefreshRequest(r.Context(), "manual", "api"); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "publish refresh request",
			log.FieldError, err.Error())
		writeError(w, http.StatusBadGateway, "refresh request failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
