package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrQuoteNotFound means the provider has no quote for the symbol
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrRateLimited means the provider refused the call because of its quota
	ErrRateLimited = errors.New("provider rate limit reached")
)

// Provider fetches the current quote for a symbol
type Provider interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// QuoteCache stores recently fetched quotes
type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	SetQuote(ctx context.Context, quote *models.Quote) error
	DeleteQuote(ctx context.Context, symbol string) error
}

// NewProvider builds the provider selected in the configuration
func NewProvider(cfg *config.ProviderConfig, logger *logrus.Logger) (Provider, error) {
	switch cfg.Name {
	case config.ProviderAlphaVantage:
		return NewAlphaVantageClient(cfg, logger), nil
	case config.ProviderYahoo:
		return NewYahooClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown market-data provider: %q", cfg.Name)
	}
}

// CachedProvider serves quotes from a cache before asking the provider
type CachedProvider struct {
	inner  Provider
	cache  QuoteCache
	logger *logrus.Entry
}

// NewCachedProvider wraps a provider with a quote cache
func NewCachedProvider(inner Provider, cache QuoteCache, logger *logrus.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		cache:  cache,
		logger: logger.WithField("component", "quote-cache"),
	}
}

// Name returns the wrapped provider's name
func (p *CachedProvider) Name() string {
	return p.inner.Name()
}

// GetQuote returns a cached quote when present. Cache errors are logged and
// never fail the lookup. An unusable cached quote is evicted.
func (p *CachedProvider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	cached, err := p.cache.GetQuote(ctx, symbol)
	switch {
	case err != nil:
		p.logger.WithError(err).WithField("symbol", symbol).Warn("Quote cache read failed")
	case cached == nil:
	case cached.Validate() != nil:
		if err := p.cache.DeleteQuote(ctx, symbol); err != nil {
			p.logger.WithError(err).WithField("symbol", symbol).Warn("Quote cache eviction failed")
		}
	default:
		p.logger.WithField("symbol", symbol).Debug("Quote cache hit")
		return cached, nil
	}

	quote, err := p.inner.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetQuote(ctx, quote); err != nil {
		p.logger.WithError(err).WithField("symbol", symbol).Warn("Quote cache write failed")
	}

	return quote, nil
}
