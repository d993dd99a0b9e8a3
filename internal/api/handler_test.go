package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"client error", NewClientError("bad symbol %q", "$$"), http.StatusBadRequest, `bad symbol "$$"`},
		{"wrapped client error", fmt.Errorf("validate: %w", &ClientError{Message: "shares must be positive"}), http.StatusBadRequest, "shares must be positive"},
		{"not found status", NotFound("Portfolio not found"), http.StatusNotFound, "Portfolio not found"},
		{"not found sentinel", fmt.Errorf("stock 9: %w", ErrNotFound), http.StatusNotFound, "stock 9: not found"},
		{"explicit status", &StatusError{Status: http.StatusConflict, Message: "busy"}, http.StatusConflict, "busy"},
		{"internal", errors.New("disk full"), http.StatusInternalServerError, "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			if status != tt.wantStatus || msg != tt.wantMsg {
				t.Errorf("classify() = %d %q, want %d %q", status, msg, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/op", nil))
	return rec
}

func TestHandle_Success(t *testing.T) {
	log, hook := test.NewNullLogger()
	h := Handle(log, "echo", func(r *http.Request) (interface{}, error) {
		return map[string]int{"n": 1}, nil
	})

	rec := serve(h)
	if rec.Code != http.StatusOK || rec.Body.String() != "{\"success\":true,\"data\":{\"n\":1}}\n" {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}
	if len(hook.AllEntries()) != 0 {
		t.Error("successful operations must not log")
	}
}

func TestHandle_ClientErrorIsWarning(t *testing.T) {
	log, hook := test.NewNullLogger()
	h := Handle(log, "validate", func(r *http.Request) (interface{}, error) {
		return nil, NewClientError("quantity must be positive")
	})

	rec := serve(h)
	if rec.Code != http.StatusBadRequest || rec.Body.String() != "{\"success\":false,\"error\":\"quantity must be positive\"}\n" {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["operation"] != "validate" {
		t.Errorf("log entry = %+v", entry)
	}
	if _, ok := entry.Data["stack"]; ok {
		t.Error("client errors must not carry a stack trace")
	}
}

func TestHandle_InternalErrorIsLoggedWithStack(t *testing.T) {
	log, hook := test.NewNullLogger()
	h := Handle(log, "persist", func(r *http.Request) (interface{}, error) {
		return nil, errors.New("deadlock found")
	})

	rec := serve(h)
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "{\"success\":false,\"error\":\"deadlock found\"}\n" {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Data["operation"] != "persist" {
		t.Fatalf("log entry = %+v", entry)
	}
	if stack, _ := entry.Data["stack"].(string); stack == "" {
		t.Error("missing stack trace")
	}
}

func TestHandle_PanicBecomesEnvelope(t *testing.T) {
	log, hook := test.NewNullLogger()
	h := Handle(log, "explode", func(r *http.Request) (interface{}, error) {
		var m map[string]int
		m["boom"]++
		return nil, nil
	})

	rec := serve(h)
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "{\"success\":false,\"error\":\"Internal Server Error\"}\n" {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != logrus.ErrorLevel {
		t.Errorf("log entry = %+v", entry)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := newTestServer(log, NewMarketDataHandler(nil, nil, log), nil)

	h := s.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("outside any operation")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "{\"success\":false,\"error\":\"Internal Server Error\"}\n" {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	log, hook := test.NewNullLogger()
	checks := map[string]HealthCheck{
		"mysql": func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return errors.New("dial tcp: connection refused") },
	}
	s := newTestServer(log, NewMarketDataHandler(nil, nil, log), checks)

	rec, body := do(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, body = %+v", rec.Code, body)
	}
	want := `{"status":"degraded","services":{"mysql":true,"redis":false}`
	if got := string(body.Data); len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("data = %s", got)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["service"] == "redis" {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a warning for the failing dependency")
	}
}

func TestUnknownRoute(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := newTestServer(log, NewMarketDataHandler(nil, nil, log), nil)

	rec, body := do(t, s, http.MethodGet, "/nope")
	if rec.Code != http.StatusNotFound || body.Success || body.Error != "Route not found" {
		t.Errorf("status = %d, body = %+v", rec.Code, body)
	}

	rec, body = do(t, s, http.MethodGet, "/market-data/update-portfolio/1")
	if rec.Code != http.StatusMethodNotAllowed || body.Success {
		t.Errorf("status = %d, body = %+v", rec.Code, body)
	}
}
