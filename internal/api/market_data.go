package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	portfolioNotFoundMessage = "Portfolio not found"
	syncFailedMessage        = "Failed to update market data"
)

// PortfolioStore resolves portfolios. GetPortfolio returns nil, nil when the
// portfolio does not exist.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error)
	GetPortfolioStocks(ctx context.Context, portfolioID int64) ([]*models.Stock, error)
}

// Synchronizer refreshes a portfolio's market data
type Synchronizer interface {
	SyncPortfolio(ctx context.Context, portfolioID int64) (*models.SyncResult, error)
}

// MarketDataHandler serves portfolio market-data endpoints
type MarketDataHandler struct {
	portfolios PortfolioStore
	sync       Synchronizer
	logger     *logrus.Logger
}

// NewMarketDataHandler creates a new market data handler
func NewMarketDataHandler(portfolios PortfolioStore, sync Synchronizer, logger *logrus.Logger) *MarketDataHandler {
	return &MarketDataHandler{
		portfolios: portfolios,
		sync:       sync,
		logger:     logger,
	}
}

// RegisterRoutes registers market data routes
func (h *MarketDataHandler) RegisterRoutes(router *mux.Router) {
	update := Handle(h.logger, "update-portfolio-market-data", h.UpdatePortfolio)
	router.HandleFunc("/market-data/update-portfolio/{portfolio_id}", update).Methods("POST")

	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/market-data/update-portfolio/{portfolio_id}", update).Methods("POST")
	apiV1.HandleFunc("/portfolios/{portfolio_id}", Handle(h.logger, "get-portfolio", h.GetPortfolio)).Methods("GET")
}

// UpdatePortfolio handles POST /market-data/update-portfolio/{portfolio_id}
func (h *MarketDataHandler) UpdatePortfolio(r *http.Request) (interface{}, error) {
	id, err := portfolioID(r)
	if err != nil {
		return nil, err
	}

	if _, err := h.resolve(r.Context(), id); err != nil {
		return nil, err
	}

	result, err := h.sync.SyncPortfolio(r.Context(), id)
	if err != nil {
		message := err.Error()
		if message == "" {
			message = syncFailedMessage
		}
		return nil, &StatusError{Status: http.StatusInternalServerError, Message: message}
	}
	if result == nil {
		return nil, &StatusError{Status: http.StatusInternalServerError, Message: syncFailedMessage}
	}

	return result, nil
}

// GetPortfolio handles GET /api/v1/portfolios/{portfolio_id}
func (h *MarketDataHandler) GetPortfolio(r *http.Request) (interface{}, error) {
	id, err := portfolioID(r)
	if err != nil {
		return nil, err
	}

	portfolio, err := h.resolve(r.Context(), id)
	if err != nil {
		return nil, err
	}

	stocks, err := h.portfolios.GetPortfolioStocks(r.Context(), id)
	if err != nil {
		return nil, err
	}
	portfolio.Stocks = stocks

	return portfolio, nil
}

// resolve returns the portfolio or a 404 error when it does not exist
func (h *MarketDataHandler) resolve(ctx context.Context, id int64) (*models.Portfolio, error) {
	portfolio, err := h.portfolios.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		return nil, NotFound(portfolioNotFoundMessage)
	}
	return portfolio, nil
}

func portfolioID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["portfolio_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewClientError("invalid portfolio_id: %s", raw)
	}
	return id, nil
}
