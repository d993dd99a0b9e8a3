package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Supported market-data providers
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderYahoo        = "yahoo"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `env:", prefix=SERVER_"`
	MySQL    MySQLConfig    `env:", prefix=MYSQL_"`
	Redis    RedisConfig    `env:", prefix=REDIS_"`
	InfluxDB InfluxConfig   `env:", prefix=INFLUXDB_"`
	NATS     NATSConfig     `env:", prefix=NATS_"`
	Provider ProviderConfig `env:", prefix=PROVIDER_"`
	Sync     SyncConfig     `env:", prefix=SYNC_"`
	Features FeaturesConfig `env:", prefix=FEATURES_"`
	Security SecurityConfig `env:", prefix=SECURITY_"`
	Logging  LoggingConfig  `env:", prefix=LOG_"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=60s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=portfolios"`
	User            string        `env:"USER, default=portfolios"`
	Password        string        `env:"PASSWORD"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// DSN returns the go-sql-driver DSN for this configuration
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&clientFoundRows=true",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// Addr returns the host:port address of the Redis server
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// InfluxConfig holds InfluxDB configuration
type InfluxConfig struct {
	URL     string        `env:"URL, default=http://localhost:8086"`
	Token   string        `env:"TOKEN"`
	Org     string        `env:"ORG, default=market-sync"`
	Bucket  string        `env:"BUCKET, default=quotes"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// ProviderConfig selects and configures the market-data provider
type ProviderConfig struct {
	Name              string        `env:"NAME, default=alphavantage"`
	AlphaVantageKey   string        `env:"ALPHAVANTAGE_API_KEY"`
	AlphaVantageURL   string        `env:"ALPHAVANTAGE_URL, default=https://www.alphavantage.co/query"`
	YahooURL          string        `env:"YAHOO_URL, default=https://query2.finance.yahoo.com"`
	Timeout           time.Duration `env:"TIMEOUT, default=15s"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL, default=0s"` // 12s for the Alpha Vantage free tier
	CacheTTL          time.Duration `env:"CACHE_TTL, default=30s"`
}

// SyncConfig holds market-data synchronization settings
type SyncConfig struct {
	MaxWorkers      int           `env:"MAX_WORKERS, default=5"`
	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT, default=10s"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL, default=0s"` // 0 disables the background refresher
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	QuoteCacheEnabled   bool `env:"QUOTE_CACHE_ENABLED, default=true"`
	QuoteHistoryEnabled bool `env:"QUOTE_HISTORY_ENABLED, default=false"`
	SyncEventsEnabled   bool `env:"SYNC_EVENTS_ENABLED, default=false"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
	CORSMethods []string `env:"CORS_METHODS, default=GET,POST,OPTIONS"`
	CORSHeaders []string `env:"CORS_HEADERS, default=Content-Type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadForDatabase loads configuration for commands that only talk to MySQL.
// Provider and feature settings are not validated.
func LoadForDatabase() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.MySQL.Host == "" {
		return nil, fmt.Errorf("config validation failed: MySQL host is required")
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.MySQL.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}

	switch c.Provider.Name {
	case ProviderAlphaVantage:
		if c.Provider.AlphaVantageKey == "" {
			return fmt.Errorf("PROVIDER_ALPHAVANTAGE_API_KEY is required for provider %q", c.Provider.Name)
		}
	case ProviderYahoo:
	default:
		return fmt.Errorf("unknown market-data provider: %q", c.Provider.Name)
	}

	if c.Sync.MaxWorkers <= 0 {
		return fmt.Errorf("invalid sync max workers: %d", c.Sync.MaxWorkers)
	}

	if c.Sync.RefreshInterval < 0 {
		return fmt.Errorf("invalid sync refresh interval: %s", c.Sync.RefreshInterval)
	}

	if c.Features.QuoteCacheEnabled && c.Redis.Host == "" {
		return fmt.Errorf("Redis host is required when the quote cache is enabled")
	}

	if c.Features.QuoteCacheEnabled && c.Provider.CacheTTL <= 0 {
		return fmt.Errorf("invalid provider cache TTL: %s", c.Provider.CacheTTL)
	}

	if c.Features.QuoteHistoryEnabled && c.InfluxDB.URL == "" {
		return fmt.Errorf("InfluxDB URL is required when quote history is enabled")
	}

	if c.Features.SyncEventsEnabled && c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required when sync events are enabled")
	}

	return nil
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
