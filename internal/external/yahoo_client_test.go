package external

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/market-sync/pkg/config"
	"github.com/sirupsen/logrus/hooks/test"
)

func newYahoo(t *testing.T, handler http.HandlerFunc) *YahooClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log, _ := test.NewNullLogger()
	return NewYahooClient(&config.ProviderConfig{YahooURL: srv.URL + "/", Timeout: 2 * time.Second}, log)
}

func TestYahoo_GetQuote(t *testing.T) {
	c := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/MSFT" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"chart": {"result": [{"meta": {
			"symbol": "MSFT",
			"regularMarketPrice": 410.0,
			"regularMarketTime": 1714680000,
			"chartPreviousClose": 400.0,
			"regularMarketVolume": 1000
		}}], "error": null}}`))
	})

	quote, err := c.GetQuote(context.Background(), "msft")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if quote.Price != 410 || quote.Change != 10 || math.Abs(quote.ChangePercent-2.5) > 1e-9 {
		t.Errorf("quote = %+v", quote)
	}
	if !quote.Timestamp.Equal(time.Unix(1714680000, 0)) {
		t.Errorf("Timestamp = %v", quote.Timestamp)
	}
}

func TestYahoo_FallsBackToLastClose(t *testing.T) {
	c := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart": {"result": [{
			"meta": {"symbol": "IBM"},
			"timestamp": [1714670000, 1714680000],
			"indicators": {"quote": [{"close": [160.5, 0]}]}
		}]}}`))
	})

	quote, err := c.GetQuote(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if quote.Price != 160.5 || quote.Timestamp.Unix() != 1714670000 {
		t.Errorf("quote = %+v", quote)
	}
}

func TestYahoo_NotFound(t *testing.T) {
	c := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found"}}}`))
	})

	if _, err := c.GetQuote(context.Background(), "BADSYM"); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("GetQuote() error = %v, want ErrQuoteNotFound", err)
	}
}

func TestYahoo_ChartError(t *testing.T) {
	c := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart": {"result": null, "error": {"code": "Bad Request", "description": "Invalid symbol"}}}`))
	})

	if _, err := c.GetQuote(context.Background(), "???"); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("GetQuote() error = %v, want ErrQuoteNotFound", err)
	}
}

func TestYahoo_TooManyRequests(t *testing.T) {
	c := newYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := c.GetQuote(context.Background(), "AAPL"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("GetQuote() error = %v, want ErrRateLimited", err)
	}
}
