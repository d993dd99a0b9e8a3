package models

import (
	"time"
)

// Portfolio represents a named collection of stock holdings
type Portfolio struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Stocks    []*Stock  `json:"stocks,omitempty"`
}

// Stock represents a holding and its cached market-data fields
type Stock struct {
	ID            int64      `json:"id"`
	PortfolioID   int64      `json:"portfolio_id"`
	Symbol        string     `json:"symbol"`
	Shares        float64    `json:"shares"`
	LastPrice     float64    `json:"last_price"`
	Volume        float64    `json:"volume"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"change_percent"`
	PreviousClose float64    `json:"previous_close"`
	PriceAsOf     *time.Time `json:"price_as_of,omitempty"`
	DataSource    string     `json:"data_source,omitempty"`
}

// MarketValue returns shares valued at the last synced price
func (s *Stock) MarketValue() float64 {
	return s.Shares * s.LastPrice
}
