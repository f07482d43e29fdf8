package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionstream/internal/config"
	"optionstream/internal/models"
	"optionstream/internal/quotes"
	"optionstream/internal/store"
)

func newTestServer(t *testing.T, st store.Store) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store.JournalEnabled = false

	s, err := New(cfg, quotes.NewMockSource(1), st, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func getJSON(t *testing.T, handler http.Handler, path string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v (body %q)", path, err, rec.Body.String())
	}
	return rec.Code, resp
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/health")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("health: code=%d success=%v", code, resp.Success)
	}
}

func TestSymbolsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/api/symbols")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("symbols: code=%d success=%v", code, resp.Success)
	}

	raw, _ := json.Marshal(resp.Data)
	var syms []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &syms); err != nil {
		t.Fatalf("decode symbols: %v", err)
	}
	found := false
	for _, s := range syms {
		if s.Name == "NIFTY" {
			found = true
		}
	}
	if !found {
		t.Fatal("NIFTY missing from symbol list")
	}
}

func TestExpiriesEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/api/expiries/BANKNIFTY")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("expiries: code=%d success=%v", code, resp.Success)
	}

	raw, _ := json.Marshal(resp.Data)
	var data struct {
		Symbol   string   `json:"symbol"`
		Expiries []string `json:"expiries"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode expiries: %v", err)
	}
	if len(data.Expiries) == 0 {
		t.Fatal("expected expiries")
	}
	for _, e := range data.Expiries {
		if _, err := time.Parse("2006-01-02", e); err != nil {
			t.Fatalf("bad expiry format %q", e)
		}
	}
}

func TestOptionChainEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/api/option-chain/NIFTY")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("option-chain: code=%d success=%v error=%+v", code, resp.Success, resp.Error)
	}

	raw, _ := json.Marshal(resp.Data)
	var payload struct {
		Chain  *models.OptionChainView `json:"chain"`
		Signal struct {
			Sentiment string `json:"sentiment"`
		} `json:"signal"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode chain: %v", err)
	}
	if payload.Chain == nil || len(payload.Chain.Rows) == 0 {
		t.Fatal("expected chain rows")
	}
	if payload.Chain.ATMStrike == 0 {
		t.Fatal("expected ATM strike")
	}
	if payload.Signal.Sentiment == "" {
		t.Fatal("expected a sentiment")
	}
}

func TestOptionChainUnknownSymbol(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/api/option-chain/BOGUS")
	if code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", code)
	}
	if resp.Error == nil || resp.Error.Code != "INVALID_SYMBOL" {
		t.Fatalf("error = %+v, want INVALID_SYMBOL", resp.Error)
	}
}

func TestOptionChainBadExpiryParam(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/api/option-chain/NIFTY?expiry=tomorrow")
	if code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", code)
	}
	if resp.Error == nil || resp.Error.Code != "INVALID_REQUEST" {
		t.Fatalf("error = %+v, want INVALID_REQUEST", resp.Error)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/api/analytics/NIFTY")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("analytics: code=%d success=%v", code, resp.Success)
	}

	raw, _ := json.Marshal(resp.Data)
	var data struct {
		Summary models.Summary `json:"summary"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	if data.Summary.Symbol != "NIFTY" || data.Summary.SpotPrice == 0 {
		t.Fatalf("summary = %+v", data.Summary)
	}
}

func TestJournalEndpoint(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC().Truncate(time.Second)
	err = st.SaveSnapshots(context.Background(), []models.Summary{{
		Symbol:        "NIFTY",
		Expiry:        now.AddDate(0, 0, 7),
		SpotPrice:     24800,
		ATMStrike:     24800,
		MaxPainStrike: 24750,
		ComputedAt:    now,
	}})
	if err != nil {
		t.Fatalf("SaveSnapshots: %v", err)
	}

	s := newTestServer(t, st)
	code, resp := getJSON(t, s.Handler(), "/api/journal/NIFTY")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("journal: code=%d success=%v error=%+v", code, resp.Success, resp.Error)
	}

	raw, _ := json.Marshal(resp.Data)
	var data struct {
		Entries []models.Summary `json:"entries"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode journal: %v", err)
	}
	if len(data.Entries) != 1 || data.Entries[0].Symbol != "NIFTY" {
		t.Fatalf("entries = %+v", data.Entries)
	}
}

func TestJournalBadLimit(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	s := newTestServer(t, st)
	code, _ := getJSON(t, s.Handler(), "/api/journal/NIFTY?limit=9999")
	if code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	code, resp := getJSON(t, s.Handler(), "/api/stats")
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("stats: code=%d success=%v", code, resp.Success)
	}

	raw, _ := json.Marshal(resp.Data)
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	for _, key := range []string{"connections", "cache", "memory", "scheduler"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("stats missing %q", key)
		}
	}
}
