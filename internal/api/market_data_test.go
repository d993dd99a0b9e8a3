package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/market-sync/internal/services"
	"github.com/market-sync/internal/testutils"
	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var asOf = time.Date(2024, 5, 2, 20, 0, 0, 0, time.UTC)

type envelopeBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testEnv struct {
	store    *testutils.MockStockStore
	provider *testutils.MockQuoteProvider
	hook     *test.Hook
	server   *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log, hook := test.NewNullLogger()

	store := testutils.NewMockStockStore()
	provider := testutils.NewMockQuoteProvider()
	sync := services.NewMarketDataSynchronizer(store, provider, &config.SyncConfig{MaxWorkers: 4, FetchTimeout: time.Second}, log)

	return &testEnv{
		store:    store,
		provider: provider,
		hook:     hook,
		server:   newTestServer(log, NewMarketDataHandler(store, sync, log), nil),
	}
}

func newTestServer(log *logrus.Logger, h *MarketDataHandler, checks map[string]HealthCheck) *Server {
	return NewServer(&config.Config{}, log, h, checks)
}

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, envelopeBody) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body envelopeBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not a JSON envelope: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	return rec, body
}

func decodeResult(t *testing.T, body envelopeBody) models.SyncResult {
	t.Helper()
	var result models.SyncResult
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("data is not a sync result: %s", body.Data)
	}
	return result
}

func operationEntry(hook *test.Hook, operation string) *logrus.Entry {
	for _, e := range hook.AllEntries() {
		if e.Data["operation"] == operation {
			return e
		}
	}
	return nil
}

func TestUpdatePortfolio_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/999")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body.Success || body.Error != "Portfolio not found" {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(rec.Body.String(), `"data"`) {
		t.Errorf("failed envelope must not carry data: %s", rec.Body.String())
	}
	if env.provider.Calls != 0 {
		t.Errorf("provider called %d times for a missing portfolio", env.provider.Calls)
	}
}

func TestUpdatePortfolio_AllSucceed(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPortfolio(1, "Tech", "AAPL", "MSFT")
	env.provider.SetQuote("AAPL", 190.5, asOf)
	env.provider.SetQuote("MSFT", 410.25, asOf)

	rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, body = %+v", rec.Code, body)
	}
	if body.Error != "" {
		t.Errorf("successful envelope carries error %q", body.Error)
	}

	result := decodeResult(t, body)
	if result.PortfolioID != 1 || result.Updated != 2 || result.Failed != 0 || !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestUpdatePortfolio_VersionedRoute(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPortfolio(1, "Tech", "AAPL")
	env.provider.SetQuote("AAPL", 190.5, asOf)

	rec, body := do(t, env.server, http.MethodPost, "/api/v1/market-data/update-portfolio/1")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, body = %+v", rec.Code, body)
	}
}

func TestUpdatePortfolio_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPortfolio(1, "Mixed", "AAPL", "BADSYM")
	env.provider.SetQuote("AAPL", 190.5, asOf)
	env.provider.Errs["BADSYM"] = errors.New("quote not found")

	rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, body = %+v", rec.Code, body)
	}

	result := decodeResult(t, body)
	if result.Updated != 1 || result.Failed != 1 || result.Success {
		t.Errorf("result = %+v", result)
	}
	if env.store.Snapshot(1)[0].LastPrice != 190.5 {
		t.Error("AAPL not persisted")
	}
}

func TestUpdatePortfolio_NoStocks(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPortfolio(5, "Empty")

	rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/5")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, body = %+v", rec.Code, body)
	}
	result := decodeResult(t, body)
	if result.Total != 0 || result.Updated != 0 || result.Failed != 0 || !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestUpdatePortfolio_ListError(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPortfolio(1, "Tech", "AAPL")
	env.store.ListErr = errors.New("lost connection to MySQL server")

	rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body.Success || body.Error != "lost connection to MySQL server" {
		t.Errorf("body = %+v", body)
	}
	if env.provider.Calls != 0 {
		t.Errorf("provider called %d times", env.provider.Calls)
	}

	entry := operationEntry(env.hook, "update-portfolio-market-data")
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error-level log entry, got %+v", entry)
	}
}

func TestUpdatePortfolio_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.store.GetErr = errors.New("connection refused")

	rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body.Success || body.Error != "connection refused" {
		t.Errorf("body = %+v", body)
	}

	entry := operationEntry(env.hook, "update-portfolio-market-data")
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error-level log entry, got %+v", entry)
	}
	if stack, _ := entry.Data["stack"].(string); stack == "" {
		t.Error("internal errors must be logged with a stack trace")
	}
}

func TestUpdatePortfolio_InvalidID(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		t.Run(raw, func(t *testing.T) {
			env := newTestEnv(t)

			rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/"+raw)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if body.Error != "invalid portfolio_id: "+raw {
				t.Errorf("error = %q", body.Error)
			}

			entry := operationEntry(env.hook, "update-portfolio-market-data")
			if entry == nil || entry.Level != logrus.WarnLevel {
				t.Errorf("expected a warning, got %+v", entry)
			}
		})
	}
}

func TestUpdatePortfolio_AllFailed(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPortfolio(1, "Broken", "BAD1", "BAD2")

	rec, body := do(t, env.server, http.MethodPost, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body.Success || !strings.Contains(body.Error, services.ErrSyncFailed.Error()) {
		t.Errorf("body = %+v", body)
	}
}

type stubSynchronizer struct {
	result *models.SyncResult
	err    error
	panic  bool
}

func (s *stubSynchronizer) SyncPortfolio(ctx context.Context, portfolioID int64) (*models.SyncResult, error) {
	if s.panic {
		panic("synchronizer exploded")
	}
	return s.result, s.err
}

func newStubServer(t *testing.T, sync Synchronizer) (*Server, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	store := testutils.NewMockStockStore()
	store.AddPortfolio(1, "Tech", "AAPL")
	return newTestServer(log, NewMarketDataHandler(store, sync, log), nil), hook
}

func TestUpdatePortfolio_GenericFailureMessage(t *testing.T) {
	s, _ := newStubServer(t, &stubSynchronizer{err: errors.New("")})

	rec, body := do(t, s, http.MethodPost, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusInternalServerError || body.Error != "Failed to update market data" {
		t.Errorf("status = %d, body = %+v", rec.Code, body)
	}
}

func TestUpdatePortfolio_SynchronizerPanic(t *testing.T) {
	s, hook := newStubServer(t, &stubSynchronizer{panic: true})

	rec, body := do(t, s, http.MethodPost, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusInternalServerError || body.Success || body.Error == "" {
		t.Errorf("status = %d, body = %+v", rec.Code, body)
	}

	entry := operationEntry(hook, "update-portfolio-market-data")
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Errorf("expected an error-level panic log, got %+v", entry)
	}
}

func TestGetPortfolio(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddPortfolio(1, "Tech", "AAPL", "MSFT")

	rec, body := do(t, env.server, http.MethodGet, "/api/v1/portfolios/1")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, body = %+v", rec.Code, body)
	}

	var portfolio models.Portfolio
	if err := json.Unmarshal(body.Data, &portfolio); err != nil {
		t.Fatal(err)
	}
	if portfolio.Name != "Tech" || len(portfolio.Stocks) != 2 || portfolio.Stocks[1].Symbol != "MSFT" {
		t.Errorf("portfolio = %+v", portfolio)
	}

	rec, body = do(t, env.server, http.MethodGet, "/api/v1/portfolios/2")
	if rec.Code != http.StatusNotFound || body.Error != "Portfolio not found" {
		t.Errorf("status = %d, body = %+v", rec.Code, body)
	}
}
