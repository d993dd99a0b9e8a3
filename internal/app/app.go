package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/market-sync/internal/api"
	"github.com/market-sync/internal/cache"
	"github.com/market-sync/internal/database"
	"github.com/market-sync/internal/external"
	"github.com/market-sync/internal/messaging"
	"github.com/market-sync/internal/services"
	"github.com/market-sync/pkg/config"
	"github.com/sirupsen/logrus"
)

// App represents the main application
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Connections
	mysqlDB    *database.MySQLClient
	influxDB   *database.InfluxClient
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient

	// Services
	provider     external.Provider
	synchronizer *services.MarketDataSynchronizer
	refresher    *services.PortfolioRefresher
	apiServer    *api.Server
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize connects to every enabled dependency and builds the services.
// The HTTP server is only built by InitializeServer. Connections opened
// before a failing step are closed again.
func (a *App) Initialize() error {
	return a.initialize(
		initStep{"database", a.initializeDatabase},
		initStep{"cache", a.initializeCache},
		initStep{"messaging", a.initializeMessaging},
		initStep{"synchronizer", a.initializeSynchronizer},
	)
}

type initStep struct {
	name string
	run  func() error
}

func (a *App) initialize(steps ...initStep) error {
	for _, step := range steps {
		if err := step.run(); err != nil {
			if closeErr := a.closeConnections(); closeErr != nil {
				a.logger.WithError(closeErr).Warn("Error closing connections after failed initialization")
			}
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	return nil
}

// InitializeServer builds the API server over the initialized services
func (a *App) InitializeServer() error {
	if a.synchronizer == nil {
		return errors.New("application not initialized")
	}

	marketData := api.NewMarketDataHandler(a.mysqlDB, a.synchronizer, a.logger)
	a.apiServer = api.NewServer(a.cfg, a.logger, marketData, a.healthChecks())

	return nil
}

// Start starts the API server and, when configured, the background
// portfolio refresher
func (a *App) Start() error {
	if a.apiServer == nil {
		return errors.New("API server not initialized")
	}

	if a.cfg.Sync.RefreshInterval > 0 {
		a.refresher = services.NewPortfolioRefresher(a.mysqlDB, a.synchronizer, a.cfg.Sync.RefreshInterval, a.logger)
		if err := a.refresher.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start portfolio refresher: %w", err)
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the application
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")

	a.cancel()

	if a.refresher != nil {
		a.refresher.Stop()
	}

	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping API server")
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	if err := a.closeConnections(); err != nil {
		a.logger.WithError(err).Error("Error closing connections")
		return err
	}

	a.logger.Info("Application stopped successfully")
	return nil
}

// GetContext returns the application context
func (a *App) GetContext() context.Context {
	return a.ctx
}

// GetConfig returns the application configuration
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

// GetLogger returns the application logger
func (a *App) GetLogger() *logrus.Logger {
	return a.logger
}

// GetMySQL returns the portfolio store
func (a *App) GetMySQL() *database.MySQLClient {
	return a.mysqlDB
}

// GetSynchronizer returns the market data synchronizer
func (a *App) GetSynchronizer() *services.MarketDataSynchronizer {
	return a.synchronizer
}

// Private initialization methods

func (a *App) initializeDatabase() error {
	mysqlClient, err := database.NewMySQLClient(&a.cfg.MySQL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	a.mysqlDB = mysqlClient

	if !a.cfg.Features.QuoteHistoryEnabled {
		return nil
	}

	a.influxDB = database.NewInfluxClient(&a.cfg.InfluxDB, a.logger)
	if err := a.influxDB.Health(a.ctx); err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	return nil
}

func (a *App) initializeCache() error {
	if !a.cfg.Features.QuoteCacheEnabled {
		return nil
	}

	redisClient, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redisCache = redisClient
	a.redisCache.SetTTL(a.cfg.Provider.CacheTTL)

	return nil
}

func (a *App) initializeMessaging() error {
	if !a.cfg.Features.SyncEventsEnabled {
		return nil
	}

	natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.natsClient = natsClient

	return nil
}

func (a *App) initializeSynchronizer() error {
	provider, err := external.NewProvider(&a.cfg.Provider, a.logger)
	if err != nil {
		return err
	}
	a.provider = provider

	var quotes services.QuoteProvider = provider
	if a.redisCache != nil {
		quotes = external.NewCachedProvider(provider, a.redisCache, a.logger)
	}

	a.synchronizer = services.NewMarketDataSynchronizer(a.mysqlDB, quotes, &a.cfg.Sync, a.logger)

	if a.influxDB != nil {
		a.synchronizer.SetRecorder(a.influxDB)
	}
	if a.natsClient != nil {
		a.synchronizer.SetPublisher(a.natsClient)
	}

	a.logger.WithFields(logrus.Fields{
		"provider":      provider.Name(),
		"max_workers":   a.cfg.Sync.MaxWorkers,
		"quote_cache":   a.redisCache != nil,
		"quote_history": a.influxDB != nil,
		"sync_events":   a.natsClient != nil,
	}).Info("Market data synchronizer initialized")

	return nil
}

func (a *App) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"mysql": a.mysqlDB.Health,
	}
	if a.redisCache != nil {
		checks["redis"] = a.redisCache.Health
	}
	if a.influxDB != nil {
		checks["influxdb"] = a.influxDB.Health
	}
	if a.natsClient != nil {
		checks["nats"] = func(ctx context.Context) error {
			if !a.natsClient.IsConnected() {
				return errors.New("nats not connected")
			}
			return nil
		}
	}
	return checks
}

func (a *App) closeConnections() error {
	var errs []error

	if closer, ok := a.provider.(interface{ Close() }); ok {
		closer.Close()
	}
	a.provider = nil

	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close NATS: %w", err))
		}
		a.natsClient = nil
	}

	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
		a.redisCache = nil
	}

	if a.influxDB != nil {
		a.influxDB.Close()
		a.influxDB = nil
	}

	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MySQL: %w", err))
		}
		a.mysqlDB = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}

	return nil
}
