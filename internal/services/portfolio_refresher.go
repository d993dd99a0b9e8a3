package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

// PortfolioLister lists every portfolio
type PortfolioLister interface {
	ListPortfolios(ctx context.Context) ([]*models.Portfolio, error)
}

// PortfolioSyncer synchronizes one portfolio
type PortfolioSyncer interface {
	SyncPortfolio(ctx context.Context, portfolioID int64) (*models.SyncResult, error)
}

// PortfolioRefresher runs as a background service that periodically
// synchronizes every portfolio
type PortfolioRefresher struct {
	portfolios PortfolioLister
	syncer     PortfolioSyncer
	interval   time.Duration
	logger     *logrus.Entry

	// Control
	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPortfolioRefresher creates a new refresher
func NewPortfolioRefresher(
	portfolios PortfolioLister,
	syncer PortfolioSyncer,
	interval time.Duration,
	logger *logrus.Logger,
) *PortfolioRefresher {
	return &PortfolioRefresher{
		portfolios: portfolios,
		syncer:     syncer,
		interval:   interval,
		logger:     logger.WithField("component", "portfolio-refresher"),
	}
}

// Start starts the background refresh loop
func (r *PortfolioRefresher) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("refresh interval must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	r.running = true
	r.done = make(chan struct{})
	r.logger.WithField("interval", r.interval.String()).Info("Starting portfolio refresher")

	r.wg.Add(1)
	go r.refreshLoop(ctx, r.done)

	return nil
}

// Stop stops the background refresh loop and waits for the current cycle
func (r *PortfolioRefresher) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.done)
	r.mu.Unlock()

	r.logger.Info("Stopping portfolio refresher")
	r.wg.Wait()

	return nil
}

func (r *PortfolioRefresher) refreshLoop(ctx context.Context, done <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll synchronizes every portfolio once, one portfolio at a time.
// It returns the number of portfolios that synchronized without error.
func (r *PortfolioRefresher) RefreshAll(ctx context.Context) int {
	portfolios, err := r.portfolios.ListPortfolios(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list portfolios")
		return 0
	}

	synced := 0
	for _, p := range portfolios {
		if ctx.Err() != nil {
			break
		}

		result, err := r.syncer.SyncPortfolio(ctx, p.ID)
		if err != nil {
			r.logger.WithError(err).WithField("portfolio_id", p.ID).Error("Scheduled sync failed")
			continue
		}
		if !result.Success {
			r.logger.WithFields(logrus.Fields{
				"portfolio_id": p.ID,
				"failed":       result.Failed,
			}).Warn("Scheduled sync completed with failures")
		}
		synced++
	}

	r.logger.WithFields(logrus.Fields{
		"portfolios": len(portfolios),
		"synced":     synced,
	}).Info("Scheduled refresh completed")

	return synced
}
