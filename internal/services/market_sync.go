package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

// ErrSyncFailed is returned when a batch could not refresh any stock
var ErrSyncFailed = errors.New("market data sync failed")

// StockStore lists a portfolio's stocks and persists their market data
type StockStore interface {
	GetPortfolioStocks(ctx context.Context, portfolioID int64) ([]*models.Stock, error)
	UpdateStockMarketData(ctx context.Context, stockID int64, quote *models.Quote) error
}

// QuoteProvider fetches the current quote for a symbol
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// QuoteRecorder keeps a history of fetched quotes
type QuoteRecorder interface {
	WriteQuote(ctx context.Context, quote *models.Quote) error
}

// SyncPublisher announces finished synchronizations
type SyncPublisher interface {
	PublishPortfolioSynced(result *models.SyncResult) error
}

// MarketDataSynchronizer refreshes the market-data fields of every stock in
// a portfolio. A failing stock never stops the others.
type MarketDataSynchronizer struct {
	stocks       StockStore
	provider     QuoteProvider
	recorder     QuoteRecorder
	publisher    SyncPublisher
	logger       *logrus.Entry
	maxWorkers   int
	fetchTimeout time.Duration
}

// NewMarketDataSynchronizer creates a new synchronizer
func NewMarketDataSynchronizer(
	stocks StockStore,
	provider QuoteProvider,
	cfg *config.SyncConfig,
	logger *logrus.Logger,
) *MarketDataSynchronizer {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	return &MarketDataSynchronizer{
		stocks:       stocks,
		provider:     provider,
		logger:       logger.WithField("component", "market-sync"),
		maxWorkers:   maxWorkers,
		fetchTimeout: cfg.FetchTimeout,
	}
}

// SetRecorder enables quote history recording
func (s *MarketDataSynchronizer) SetRecorder(recorder QuoteRecorder) {
	s.recorder = recorder
}

// SetPublisher enables sync event publishing
func (s *MarketDataSynchronizer) SetPublisher(publisher SyncPublisher) {
	s.publisher = publisher
}

// SyncPortfolio refreshes every stock of an existing portfolio. Per-stock
// failures are aggregated into the result. An error is returned only when
// the stocks cannot be listed or when every stock of a non-empty portfolio
// failed; in the latter case the result is returned alongside the error.
func (s *MarketDataSynchronizer) SyncPortfolio(ctx context.Context, portfolioID int64) (*models.SyncResult, error) {
	startedAt := time.Now()
	log := s.logger.WithField("portfolio_id", portfolioID)

	stocks, err := s.stocks.GetPortfolioStocks(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	result := models.NewSyncResult(portfolioID, startedAt)
	for _, outcome := range s.syncStocks(ctx, stocks) {
		if outcome.failure != nil {
			result.AddError(*outcome.failure)
			continue
		}
		result.AddUpdate(*outcome.update)
	}
	result.Complete(time.Now())

	log.WithFields(logrus.Fields{
		"total":       result.Total,
		"updated":     result.Updated,
		"failed":      result.Failed,
		"duration_ms": result.DurationMs,
	}).Info("Portfolio market data synchronized")

	s.publish(log, result)

	if result.AllFailed() {
		return result, fmt.Errorf("%w: all %d stocks failed, first error: %s", ErrSyncFailed, result.Total, result.Error)
	}

	return result, nil
}

type stockOutcome struct {
	update  *models.StockUpdate
	failure *models.StockSyncError
}

// syncStocks fans out over stocks with at most maxWorkers in flight.
// Outcomes keep the input order.
func (s *MarketDataSynchronizer) syncStocks(ctx context.Context, stocks []*models.Stock) []stockOutcome {
	outcomes := make([]stockOutcome, len(stocks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxWorkers)

	for i, stock := range stocks {
		wg.Add(1)
		go func(i int, stock *models.Stock) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			defer func() {
				if r := recover(); r != nil {
					s.logger.WithFields(logrus.Fields{
						"stock_id": stock.ID,
						"symbol":   stock.Symbol,
						"panic":    r,
					}).Error("Panic while synchronizing stock")
					outcomes[i] = failed(stock, models.SyncStageFetch, fmt.Errorf("panic: %v", r))
				}
			}()

			outcomes[i] = s.syncStock(ctx, stock)
		}(i, stock)
	}

	wg.Wait()
	return outcomes
}

// syncStock fetches and persists one stock's market data
func (s *MarketDataSynchronizer) syncStock(ctx context.Context, stock *models.Stock) stockOutcome {
	log := s.logger.WithFields(logrus.Fields{
		"stock_id": stock.ID,
		"symbol":   stock.Symbol,
	})

	quote, err := s.fetchQuote(ctx, stock.Symbol)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch quote")
		return failed(stock, models.SyncStageFetch, err)
	}

	if err := s.stocks.UpdateStockMarketData(ctx, stock.ID, quote); err != nil {
		log.WithError(err).Error("Failed to persist market data")
		return failed(stock, models.SyncStagePersist, err)
	}

	if s.recorder != nil {
		if err := s.recorder.WriteQuote(ctx, quote); err != nil {
			log.WithError(err).Warn("Failed to record quote history")
		}
	}

	log.WithField("price", quote.Price).Debug("Stock market data updated")

	return stockOutcome{update: &models.StockUpdate{
		StockID:   stock.ID,
		Symbol:    stock.Symbol,
		Price:     quote.Price,
		PriceAsOf: quote.Timestamp,
	}}
}

func (s *MarketDataSynchronizer) fetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	quote, err := s.provider.GetQuote(fetchCtx, symbol)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("quote fetch for %s timed out after %s: %w", symbol, s.fetchTimeout, err)
		}
		return nil, err
	}

	if err := quote.Validate(); err != nil {
		return nil, err
	}

	return quote, nil
}

func (s *MarketDataSynchronizer) publish(log *logrus.Entry, result *models.SyncResult) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPortfolioSynced(result); err != nil {
		log.WithError(err).Warn("Failed to publish sync event")
	}
}

func failed(stock *models.Stock, stage string, err error) stockOutcome {
	return stockOutcome{failure: &models.StockSyncError{
		StockID: stock.ID,
		Symbol:  stock.Symbol,
		Stage:   stage,
		Error:   err.Error(),
	}}
}
