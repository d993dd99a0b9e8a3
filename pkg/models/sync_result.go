package models

import "time"

// Sync failure stages
const (
	SyncStageFetch   = "fetch"
	SyncStagePersist = "persist"
)

// SyncResult summarizes one portfolio market-data synchronization.
// Success is true only when no stock failed.
type SyncResult struct {
	PortfolioID   int64            `json:"portfolio_id"`
	Total         int              `json:"total"`
	Updated       int              `json:"updated"`
	Failed        int              `json:"failed"`
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	UpdatedStocks []StockUpdate    `json:"updated_stocks"`
	Errors        []StockSyncError `json:"errors"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	DurationMs    int64            `json:"duration_ms"`
}

// StockUpdate describes a stock whose market data was refreshed
type StockUpdate struct {
	StockID   int64     `json:"stock_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	PriceAsOf time.Time `json:"price_as_of"`
}

// StockSyncError describes a stock that could not be refreshed
type StockSyncError struct {
	StockID int64  `json:"stock_id"`
	Symbol  string `json:"symbol"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// NewSyncResult creates an empty, successful result for a portfolio
func NewSyncResult(portfolioID int64, startedAt time.Time) *SyncResult {
	return &SyncResult{
		PortfolioID:   portfolioID,
		Success:       true,
		UpdatedStocks: []StockUpdate{},
		Errors:        []StockSyncError{},
		StartedAt:     startedAt,
	}
}

// AddUpdate records a refreshed stock
func (r *SyncResult) AddUpdate(u StockUpdate) {
	r.Total++
	r.Updated++
	r.UpdatedStocks = append(r.UpdatedStocks, u)
}

// AddError records a failed stock; the first message becomes Error
func (r *SyncResult) AddError(e StockSyncError) {
	r.Total++
	r.Failed++
	r.Success = false
	if r.Error == "" {
		r.Error = e.Error
	}
	r.Errors = append(r.Errors, e)
}

// Complete stamps the completion time
func (r *SyncResult) Complete(completedAt time.Time) {
	r.CompletedAt = completedAt
	r.DurationMs = completedAt.Sub(r.StartedAt).Milliseconds()
}

// AllFailed reports whether a non-empty batch had no successful update
func (r *SyncResult) AllFailed() bool {
	return r.Total > 0 && r.Updated == 0
}
