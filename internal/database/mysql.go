package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/market-sync/pkg/config"
	"github.com/market-sync/pkg/models"
	"github.com/sirupsen/logrus"
)

// ErrStockNotFound is returned when a stock row disappeared before an update
var ErrStockNotFound = errors.New("stock not found")

// MySQLClient handles portfolio and stock persistence
type MySQLClient struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(cfg *config.MySQLConfig, logger *logrus.Logger) (*MySQLClient, error) {
	logger.WithField("dsn", fmt.Sprintf("%s:***@tcp(%s:%d)/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)).Debug("Connecting to MySQL")

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return NewMySQLClientFromDB(db, logger), nil
}

// NewMySQLClientFromDB wraps an already opened database handle
func NewMySQLClientFromDB(db *sql.DB, logger *logrus.Logger) *MySQLClient {
	return &MySQLClient{
		db:     db,
		logger: logger.WithField("component", "mysql"),
	}
}

// Close closes the database connection
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}

// Health checks database health
func (mc *MySQLClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return mc.db.PingContext(ctx)
}

// Portfolio operations

// GetPortfolio retrieves a portfolio by id. It returns nil, nil when absent.
func (mc *MySQLClient) GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM portfolios
		WHERE id = ?
	`

	portfolio := &models.Portfolio{}
	err := mc.db.QueryRowContext(ctx, query, id).Scan(
		&portfolio.ID,
		&portfolio.Name,
		&portfolio.CreatedAt,
		&portfolio.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}

	return portfolio, nil
}

// ListPortfolios retrieves all portfolios ordered by id
func (mc *MySQLClient) ListPortfolios(ctx context.Context) ([]*models.Portfolio, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM portfolios
		ORDER BY id
	`

	rows, err := mc.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]*models.Portfolio, 0)
	for rows.Next() {
		p := &models.Portfolio{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}

	return portfolios, rows.Err()
}

// Stock operations

// GetPortfolioStocks retrieves every stock held in a portfolio
func (mc *MySQLClient) GetPortfolioStocks(ctx context.Context, portfolioID int64) ([]*models.Stock, error) {
	query := `
		SELECT id, portfolio_id, symbol, shares,
		       last_price, volume, change_amount, change_percent, previous_close,
		       price_as_of, data_source
		FROM stocks
		WHERE portfolio_id = ?
		ORDER BY id
	`

	rows, err := mc.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks for portfolio %d: %w", portfolioID, err)
	}
	defer rows.Close()

	stocks := make([]*models.Stock, 0)
	for rows.Next() {
		stock := &models.Stock{}
		var asOf sql.NullTime
		err := rows.Scan(
			&stock.ID,
			&stock.PortfolioID,
			&stock.Symbol,
			&stock.Shares,
			&stock.LastPrice,
			&stock.Volume,
			&stock.Change,
			&stock.ChangePercent,
			&stock.PreviousClose,
			&asOf,
			&stock.DataSource,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		if asOf.Valid {
			t := asOf.Time
			stock.PriceAsOf = &t
		}
		stocks = append(stocks, stock)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stocks: %w", err)
	}

	mc.logger.WithFields(logrus.Fields{
		"portfolio_id": portfolioID,
		"count":        len(stocks),
	}).Debug("Loaded portfolio stocks")

	return stocks, nil
}

// UpdateStockMarketData overwrites every market-data field of a stock in a
// single statement, so a failed write never leaves partial values behind.
func (mc *MySQLClient) UpdateStockMarketData(ctx context.Context, stockID int64, quote *models.Quote) error {
	query := `
		UPDATE stocks SET
			last_price = ?,
			volume = ?,
			change_amount = ?,
			change_percent = ?,
			previous_close = ?,
			price_as_of = ?,
			data_source = ?
		WHERE id = ?
	`

	result, err := mc.db.ExecContext(ctx, query,
		quote.Price,
		quote.Volume,
		quote.Change,
		quote.ChangePercent,
		quote.PreviousClose,
		quote.Timestamp.UTC(),
		quote.Source,
		stockID,
	)
	if err != nil {
		return fmt.Errorf("failed to update market data for stock %d: %w", stockID, err)
	}

	// clientFoundRows is set in the DSN, so identical rewrites still count
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("failed to update market data for stock %d: %w", stockID, ErrStockNotFound)
	}

	return nil
}

// Raw access for migrations

// QueryContext executes a raw query
func (mc *MySQLClient) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return mc.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a raw statement
func (mc *MySQLClient) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return mc.db.ExecContext(ctx, query, args...)
}

// Transaction support

// ExecTx executes a function within a transaction
func (mc *MySQLClient) ExecTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := mc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
