package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/config"
	"fluxo/internal/core"
	"fluxo/internal/log"
	"fluxo/internal/services"
)

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) PublishRefreshRequest(_ context.Context, _, _ string) error {
	s.calls++
	return s.err
}

func testSnapshot() *services.Snapshot {
	return &services.Snapshot{
		Occurrences: []core.Occurrence{
			{
				ID:       "boletos-0-0",
				Category: core.CategoryBoletos,
				DateStr:  "2024-03-15",
				Date:     core.NewDate(2024, 3, 15),
				Value:    decimal.NewFromInt(100),
				Currency: "BRL",
				Record:   core.SourceRecord{Category: core.CategoryBoletos, Beneficiary: "Light"},
			},
			{
				ID:       "recorrentes-0-0",
				Category: core.CategoryRecorrentes,
				DateStr:  "2024-03-20",
				Date:     core.NewDate(2024, 3, 20),
				Value:    decimal.NewFromInt(50),
				Currency: "BRL",
				Record:   core.SourceRecord{Category: core.CategoryRecorrentes, Beneficiary: "Spotify"},
			},
			{
				ID:       "compras-0-0",
				Category: core.CategoryCompras,
				DateStr:  "2024-04-02",
				Date:     core.NewDate(2024, 4, 2),
				Value:    decimal.NewFromInt(200),
				Currency: "BRL",
				Record:   core.SourceRecord{Category: core.CategoryCompras, Item: "Monitor"},
			},
		},
		Invoices: []core.Occurrence{
			{
				ID:       "notas-0-0",
				Category: core.CategoryNotas,
				DateStr:  "2024-02-05",
				Date:     core.NewDate(2024, 2, 5),
				Value:    decimal.NewFromInt(15000),
				Currency: "BRL",
				Record:   core.SourceRecord{Provider: "VJ", Client: "ACME"},
			},
			{
				ID:       "notas-1-0",
				Category: core.CategoryNotas,
				DateStr:  "2024-02-20",
				Date:     core.NewDate(2024, 2, 20),
				Value:    decimal.NewFromInt(10000),
				Currency: "BRL",
				Record:   core.SourceRecord{Provider: "Acme BR", Client: "Beta"},
			},
		},
		Accounts: []core.Account{
			{Owner: "Ana", Bank: "Nubank", Balance: decimal.NewFromInt(1234)},
		},
		Variables:   map[string]decimal.Decimal{"iof": decimal.NewFromFloat(0.038)},
		MaxDataDate: core.NewDate(2024, 4, 2),
		GeneratedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, snap *services.Snapshot, refresher RefreshPublisher) *Server {
	t.Helper()
	holder := &services.SnapshotHolder{}
	if snap != nil {
		holder.Replace(snap)
	}
	logger := log.New(log.DefaultConfig())
	cfg := &config.Config{Port: "0"}
	srv := NewServer(cfg, holder, refresher, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	if rec := doRequest(t, srv, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz without snapshot = %d, want 503", rec.Code)
	}

	srv.snapshots.(*services.SnapshotHolder).Replace(testSnapshot())
	if rec := doRequest(t, srv, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz with snapshot = %d, want 200", rec.Code)
	}
}

func TestOccurrencesFiltering(t *testing.T) {
	srv := newTestServer(t, testSnapshot(), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/occurrences?year=2024&month=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var occs []occurrenceDTO
	decodeBody(t, rec, &occs)
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences for 2024-03, want 2", len(occs))
	}
	if occs[0].ID != "boletos-0-0" && occs[1].ID != "boletos-0-0" {
		t.Errorf("boleto missing from month listing: %+v", occs)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/occurrences?year=2024")
	var all []occurrenceDTO
	decodeBody(t, rec, &all)
	if len(all) != 3 {
		t.Errorf("got %d occurrences for 2024, want 3", len(all))
	}

	if rec := doRequest(t, srv, http.MethodGet, "/api/occurrences"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing year = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/api/occurrences?year=2024&month=13"); rec.Code != http.StatusBadRequest {
		t.Errorf("month 13 = %d, want 400", rec.Code)
	}
}

func TestMonthSummaryExcludesRecurringByDefault(t *testing.T) {
	srv := newTestServer(t, testSnapshot(), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/summary/months")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var totals map[string]monthTotalsDTO
	decodeBody(t, rec, &totals)
	if got := totals["2024-03"].Total; !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("2024-03 total = %s, want 100 (recurring excluded)", got)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/summary/months?exclude=none")
	decodeBody(t, rec, &totals)
	if got := totals["2024-03"].Total; !got.Equal(decimal.NewFromInt(150)) {
		t.Errorf("2024-03 total with exclude=none = %s, want 150", got)
	}
	if got := totals["2024-03"].ByCategory["recorrentes"]; !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("recorrentes bucket = %s, want 50", got)
	}
}

func TestWeekSummary(t *testing.T) {
	srv := newTestServer(t, testSnapshot(), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/summary/weeks")
	var weeks map[string]decimal.Decimal
	decodeBody(t, rec, &weeks)

	// 2024-04-02 is a Tuesday; its week starts Monday the 1st.
	if got := weeks["2024-04-01"]; !got.Equal(decimal.NewFromInt(200)) {
		t.Errorf("week of 2024-04-01 = %s, want 200", got)
	}
}

func TestTaxEstimate(t *testing.T) {
	srv := newTestServer(t, testSnapshot(), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/tax-estimate?year=2024&month=6&provider=VJ")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var est taxEstimateDTO
	decodeBody(t, rec, &est)
	if !est.RBT12.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("RBT12 = %s, want 15000", est.RBT12)
	}
	// First bracket: 15000 * 0.06 / 12 = 75.
	if !est.MonthlyEstimate.Equal(decimal.NewFromInt(75)) {
		t.Errorf("monthly estimate = %s, want 75", est.MonthlyEstimate)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/tax-estimate?year=2024&month=6")
	decodeBody(t, rec, &est)
	if !est.RBT12.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("aggregate RBT12 = %s, want 25000", est.RBT12)
	}
}

func TestCompareProviders(t *testing.T) {
	srv := newTestServer(t, testSnapshot(), nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/providers/compare?year=2024&a=VJ&b=Acme+BR")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var cmp comparisonDTO
	decodeBody(t, rec, &cmp)
	if cmp.Higher != "VJ" {
		t.Errorf("higher = %q, want VJ", cmp.Higher)
	}
	if !cmp.Difference.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("difference = %s, want 5000", cmp.Difference)
	}

	if rec := doRequest(t, srv, http.MethodGet, "/api/providers/compare?year=2024&a=VJ"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing b = %d, want 400", rec.Code)
	}
}

func TestProvidersAndAccountsAndMeta(t *testing.T) {
	srv := newTestServer(t, testSnapshot(), nil)

	var providers []string
	decodeBody(t, doRequest(t, srv, http.MethodGet, "/api/providers"), &providers)
	if len(providers) != 2 || providers[0] != "Acme BR" || providers[1] != "VJ" {
		t.Errorf("providers = %v, want sorted [Acme BR VJ]", providers)
	}

	var accounts []accountDTO
	decodeBody(t, doRequest(t, srv, http.MethodGet, "/api/accounts"), &accounts)
	if len(accounts) != 1 || accounts[0].Bank != "Nubank" {
		t.Errorf("accounts = %+v", accounts)
	}

	var meta metaDTO
	decodeBody(t, doRequest(t, srv, http.MethodGet, "/api/meta"), &meta)
	if meta.Occurrences != 3 || meta.Invoices != 2 {
		t.Errorf("meta counts = %d/%d, want 3/2", meta.Occurrences, meta.Invoices)
	}
	if meta.MaxDataDate != "2024-04-02" {
		t.Errorf("max data date = %q, want 2024-04-02", meta.MaxDataDate)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	refresher := &stubRefresher{}
	srv := newTestServer(t, testSnapshot(), refresher)

	rec := doRequest(t, srv, http.MethodPost, "/api/refresh")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if refresher.calls != 1 {
		t.Errorf("publish calls = %d, want 1", refresher.calls)
	}

	if rec := doRequest(t, srv, http.MethodGet, "/api/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh = %d, want 405", rec.Code)
	}

	refresher.err = errors.New("broker down")
	if rec := doRequest(t, srv, http.MethodPost, "/api/refresh"); rec.Code != http.StatusBadGateway {
		t.Errorf("failing publish = %d, want 502", rec.Code)
	}
}

func TestRefreshWithoutBus(t *testing.T) {
	srv := newTestServer(t, testSnapshot(), nil)
	if rec := doRequest(t, srv, http.MethodPost, "/api/refresh"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("refresh without bus = %d, want 503", rec.Code)
	}
}

func TestNoSnapshotGives503(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	if rec := doRequest(t, srv, http.MethodGet, "/api/occurrences?year=2024"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no snapshot = %d, want 503", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("fourth request should be limited")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("other client should not be limited")
	}
}

func TestClientIPExtraction(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("forwarded IP = %q, want 203.0.113.7", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.4")
	if got := clientIP(req); got != "198.51.100.4" {
		t.Errorf("real IP = %q, want 198.51.100.4", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4242"
	if got := clientIP(req); got != "192.0.2.9" {
		t.Errorf("remote addr IP = %q, want 192.0.2.9", got)
	}
}
