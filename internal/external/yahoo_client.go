package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

// YahooClient fetches quotes from the Yahoo Finance v8 chart API
type YahooClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Entry
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				RegularMarketVol   float64 `json:"regularMarketVolume"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewYahooClient creates a new Yahoo Finance client
func NewYahooClient(cfg *config.ProviderConfig, logger *logrus.Logger) *YahooClient {
	return &YahooClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.YahooURL, "/"),
		logger:     logger.WithField("component", "yahoo"),
	}
}

// Name returns the provider name
func (c *YahooClient) Name() string {
	return config.ProviderYahoo
}

// GetQuote fetches the latest quote for a stock
func (c *YahooClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", ErrQuoteNotFound)
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", c.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "market-sync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrQuoteNotFound)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrRateLimited)
	default:
		return nil, fmt.Errorf("yahoo http %d", resp.StatusCode)
	}

	var raw yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if raw.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo %s: %s: %w", symbol, raw.Chart.Error.Description, ErrQuoteNotFound)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrQuoteNotFound)
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	asOf := time.Unix(r.Meta.RegularMarketTime, 0).UTC()

	// Fall back to the last non-zero close when meta is incomplete
	if (price <= 0 || r.Meta.RegularMarketTime == 0) && len(r.Indicators.Quote) > 0 &&
		len(r.Indicators.Quote[0].Close) == len(r.Timestamp) {
		for i := len(r.Timestamp) - 1; i >= 0; i-- {
			if v := r.Indicators.Quote[0].Close[i]; v > 0 {
				price = v
				asOf = time.Unix(r.Timestamp[i], 0).UTC()
				break
			}
		}
	}

	if price <= 0 {
		return nil, fmt.Errorf("yahoo %s: no price: %w", symbol, ErrQuoteNotFound)
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Price:         price,
		Volume:        r.Meta.RegularMarketVol,
		PreviousClose: r.Meta.ChartPreviousClose,
		Timestamp:     asOf,
		Source:        config.ProviderYahoo,
	}
	if prev := r.Meta.ChartPreviousClose; prev > 0 {
		quote.Change = price - prev
		quote.ChangePercent = quote.Change / prev * 100
	}

	c.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"price":  price,
	}).Debug("Fetched quote")

	return quote, nil
}
