package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

// AlphaVantageClient fetches stock quotes from the Alpha Vantage GLOBAL_QUOTE API
type AlphaVantageClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logrus.Entry

	// nil when rate limiting is disabled
	rateLimiter chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
}

// AlphaVantageQuote represents a GLOBAL_QUOTE response
type AlphaVantageQuote struct {
	GlobalQuote struct {
		Symbol           string `json:"01. symbol"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// NewAlphaVantageClient creates a new Alpha Vantage client
func NewAlphaVantageClient(cfg *config.ProviderConfig, logger *logrus.Logger) *AlphaVantageClient {
	client := &AlphaVantageClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.AlphaVantageURL,
		apiKey:  cfg.AlphaVantageKey,
		logger:  logger.WithField("component", "alpha-vantage"),
		stop:    make(chan struct{}),
	}

	if cfg.RateLimitInterval > 0 {
		client.rateLimiter = make(chan struct{}, 1)
		client.rateLimiter <- struct{}{}
		go client.rateLimitWorker(cfg.RateLimitInterval)
	}

	return client
}

// rateLimitWorker hands out one call token per interval
func (c *AlphaVantageClient) rateLimitWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case c.rateLimiter <- struct{}{}:
			default:
			}
		case <-c.stop:
			return
		}
	}
}

// Close stops the rate limiter
func (c *AlphaVantageClient) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Name returns the provider name
func (c *AlphaVantageClient) Name() string {
	return config.ProviderAlphaVantage
}

// GetQuote fetches the latest quote for a stock
func (c *AlphaVantageClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", ErrQuoteNotFound)
	}

	if c.rateLimiter != nil {
		select {
		case <-c.rateLimiter:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var raw AlphaVantageQuote
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch {
	case raw.Note != "" || raw.Information != "":
		return nil, fmt.Errorf("alpha vantage %s: %w", symbol, ErrRateLimited)
	case raw.ErrorMessage != "":
		return nil, fmt.Errorf("alpha vantage %s: %s: %w", symbol, raw.ErrorMessage, ErrQuoteNotFound)
	case raw.GlobalQuote.Symbol == "":
		return nil, fmt.Errorf("alpha vantage %s: %w", symbol, ErrQuoteNotFound)
	}

	quote, err := parseAlphaVantageQuote(&raw)
	if err != nil {
		return nil, fmt.Errorf("alpha vantage %s: %w", symbol, err)
	}

	c.logger.WithFields(logrus.Fields{
		"symbol": quote.Symbol,
		"price":  quote.Price,
	}).Debug("Fetched quote")

	return quote, nil
}

func parseAlphaVantageQuote(raw *AlphaVantageQuote) (*models.Quote, error) {
	gq := raw.GlobalQuote

	price, err := strconv.ParseFloat(gq.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", gq.Price, err)
	}

	day, err := time.Parse("2006-01-02", gq.LatestTradingDay)
	if err != nil {
		return nil, fmt.Errorf("invalid trading day %q: %w", gq.LatestTradingDay, err)
	}

	volume, _ := strconv.ParseFloat(gq.Volume, 64)
	previousClose, _ := strconv.ParseFloat(gq.PreviousClose, 64)
	change, _ := strconv.ParseFloat(gq.Change, 64)
	changePercent, _ := strconv.ParseFloat(strings.TrimSuffix(gq.ChangePercent, "%"), 64)

	return &models.Quote{
		Symbol:        gq.Symbol,
		Price:         price,
		Volume:        volume,
		Change:        change,
		ChangePercent: changePercent,
		PreviousClose: previousClose,
		Timestamp:     day.UTC(),
		Source:        config.ProviderAlphaVantage,
	}, nil
}
