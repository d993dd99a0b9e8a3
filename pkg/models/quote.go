package models

import (
	"fmt"
	"time"
)

// Quote is the normalized market-data snapshot returned by providers
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Volume        float64   `json:"volume"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	PreviousClose float64   `json:"previous_close"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
}

// Validate rejects quotes that must never be written to a stock
func (q *Quote) Validate() error {
	if q == nil {
		return fmt.Errorf("empty quote")
	}
	if q.Price <= 0 {
		return fmt.Errorf("invalid price %v for %s", q.Price, q.Symbol)
	}
	if q.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp for %s", q.Symbol)
	}
	return nil
}
