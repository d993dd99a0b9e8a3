package testutils

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/market-sync/pkg/models"
)

// MockStockStore simulates the MySQL stock tables
type MockStockStore struct {
	Portfolios  map[int64]*models.Portfolio
	Stocks      map[int64][]*models.Stock // portfolio id -> stocks
	Updates     map[int64]*models.Quote   // stock id -> last persisted quote
	UpdateCalls int
	UpdateErrs  map[int64]error // stock id -> error returned on update
	GetErr      error
	ListErr     error
	Mu          sync.Mutex
}

func NewMockStockStore() *MockStockStore {
	return &MockStockStore{
		Portfolios: make(map[int64]*models.Portfolio),
		Stocks:     make(map[int64][]*models.Stock),
		Updates:    make(map[int64]*models.Quote),
		UpdateErrs: make(map[int64]error),
	}
}

// AddPortfolio registers a portfolio holding the given symbols. Stock ids are
// portfolioID*100 + position, starting at 1.
func (m *MockStockStore) AddPortfolio(id int64, name string, symbols ...string) *models.Portfolio {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p := &models.Portfolio{ID: id, Name: name}
	m.Portfolios[id] = p

	stocks := make([]*models.Stock, 0, len(symbols))
	for i, sym := range symbols {
		stocks = append(stocks, &models.Stock{
			ID:          id*100 + int64(i+1),
			PortfolioID: id,
			Symbol:      sym,
			Shares:      10,
		})
	}
	m.Stocks[id] = stocks
	return p
}

func (m *MockStockStore) GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	p, ok := m.Portfolios[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (m *MockStockStore) ListPortfolios(ctx context.Context) ([]*models.Portfolio, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	portfolios := make([]*models.Portfolio, 0, len(m.Portfolios))
	for _, p := range m.Portfolios {
		copied := *p
		portfolios = append(portfolios, &copied)
	}
	sort.Slice(portfolios, func(i, j int) bool { return portfolios[i].ID < portfolios[j].ID })
	return portfolios, nil
}

func (m *MockStockStore) GetPortfolioStocks(ctx context.Context, portfolioID int64) ([]*models.Stock, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	stocks := make([]*models.Stock, 0, len(m.Stocks[portfolioID]))
	for _, s := range m.Stocks[portfolioID] {
		copied := *s
		stocks = append(stocks, &copied)
	}
	return stocks, nil
}

func (m *MockStockStore) UpdateStockMarketData(ctx context.Context, stockID int64, quote *models.Quote) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.UpdateCalls++
	if err := m.UpdateErrs[stockID]; err != nil {
		return err
	}

	for _, stocks := range m.Stocks {
		for _, s := range stocks {
			if s.ID != stockID {
				continue
			}
			asOf := quote.Timestamp.UTC()
			s.LastPrice = quote.Price
			s.Volume = quote.Volume
			s.Change = quote.Change
			s.ChangePercent = quote.ChangePercent
			s.PreviousClose = quote.PreviousClose
			s.PriceAsOf = &asOf
			s.DataSource = quote.Source
		}
	}

	copied := *quote
	m.Updates[stockID] = &copied
	return nil
}

// Snapshot returns copies of a portfolio's stocks
func (m *MockStockStore) Snapshot(portfolioID int64) []models.Stock {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]models.Stock, 0, len(m.Stocks[portfolioID]))
	for _, s := range m.Stocks[portfolioID] {
		out = append(out, *s)
	}
	return out
}

// MockQuoteProvider simulates a market-data provider
type MockQuoteProvider struct {
	Quotes      map[string]*models.Quote
	Errs        map[string]error
	Panics      map[string]bool
	Delay       time.Duration
	Delays      map[string]time.Duration // per-symbol override of Delay
	Calls       int
	InFlight    int
	MaxInFlight int
	Mu          sync.Mutex
}

func NewMockQuoteProvider() *MockQuoteProvider {
	return &MockQuoteProvider{
		Quotes: make(map[string]*models.Quote),
		Errs:   make(map[string]error),
		Panics: make(map[string]bool),
		Delays: make(map[string]time.Duration),
	}
}

// SetQuote registers a quote for a symbol
func (m *MockQuoteProvider) SetQuote(symbol string, price float64, asOf time.Time) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Quotes[strings.ToUpper(symbol)] = &models.Quote{
		Symbol:        strings.ToUpper(symbol),
		Price:         price,
		Volume:        1000,
		Change:        1,
		ChangePercent: 0.5,
		PreviousClose: price - 1,
		Timestamp:     asOf,
		Source:        "mock",
	}
}

func (m *MockQuoteProvider) Name() string { return "mock" }

func (m *MockQuoteProvider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(symbol)

	m.Mu.Lock()
	m.Calls++
	m.InFlight++
	if m.InFlight > m.MaxInFlight {
		m.MaxInFlight = m.InFlight
	}
	delay := m.Delay
	if d, ok := m.Delays[symbol]; ok {
		delay = d
	}
	quote, ok := m.Quotes[symbol]
	err := m.Errs[symbol]
	panics := m.Panics[symbol]
	m.Mu.Unlock()

	defer func() {
		m.Mu.Lock()
		m.InFlight--
		m.Mu.Unlock()
	}()

	if panics {
		panic("provider exploded for " + symbol)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	copied := *quote
	return &copied, nil
}

// MockRecorder simulates the InfluxDB quote history
type MockRecorder struct {
	Written []*models.Quote
	Err     error
	Mu      sync.Mutex
}

func (m *MockRecorder) WriteQuote(ctx context.Context, quote *models.Quote) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Written = append(m.Written, quote)
	return nil
}

// MockPublisher simulates the NATS event publisher
type MockPublisher struct {
	Results []*models.SyncResult
	Err     error
	Mu      sync.Mutex
}

func (m *MockPublisher) PublishPortfolioSynced(result *models.SyncResult) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Results = append(m.Results, result)
	return nil
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}
