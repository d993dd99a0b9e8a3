package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROVIDER_ALPHAVANTAGE_API_KEY", "demo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Provider.Name != ProviderAlphaVantage {
		t.Errorf("Provider.Name = %q, want %q", cfg.Provider.Name, ProviderAlphaVantage)
	}
	if cfg.Sync.MaxWorkers != 5 {
		t.Errorf("Sync.MaxWorkers = %d, want 5", cfg.Sync.MaxWorkers)
	}
	if cfg.Sync.FetchTimeout != 10*time.Second {
		t.Errorf("Sync.FetchTimeout = %v, want 10s", cfg.Sync.FetchTimeout)
	}
	if !cfg.Features.QuoteCacheEnabled {
		t.Error("quote cache should be enabled by default")
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PROVIDER_NAME", "yahoo")
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("SYNC_MAX_WORKERS", "12")
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("MYSQL_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Sync.MaxWorkers != 12 {
		t.Errorf("Sync.MaxWorkers = %d, want 12", cfg.Sync.MaxWorkers)
	}
	if got, want := cfg.MySQL.DSN(), "portfolios:secret@tcp(db.internal:3306)/portfolios?parseTime=true&multiStatements=true&clientFoundRows=true"; got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			MySQL:    MySQLConfig{Host: "localhost"},
			Redis:    RedisConfig{Host: "localhost"},
			Provider: ProviderConfig{Name: ProviderYahoo},
			Sync:     SyncConfig{MaxWorkers: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing mysql host", func(c *Config) { c.MySQL.Host = "" }, "MySQL host"},
		{"unknown provider", func(c *Config) { c.Provider.Name = "bloomberg" }, "unknown market-data provider"},
		{"alpha vantage without key", func(c *Config) { c.Provider.Name = ProviderAlphaVantage }, "API_KEY"},
		{"zero workers", func(c *Config) { c.Sync.MaxWorkers = 0 }, "max workers"},
		{"cache without redis", func(c *Config) {
			c.Features.QuoteCacheEnabled = true
			c.Redis.Host = ""
		}, "Redis host"},
		{"cache with zero ttl", func(c *Config) {
			c.Features.QuoteCacheEnabled = true
			c.Provider.CacheTTL = 0
		}, "cache TTL"},
		{"cache with negative ttl", func(c *Config) {
			c.Features.QuoteCacheEnabled = true
			c.Provider.CacheTTL = -time.Second
		}, "cache TTL"},
		{"zero ttl without cache", func(c *Config) { c.Provider.CacheTTL = 0 }, ""},
		{"events without nats", func(c *Config) { c.Features.SyncEventsEnabled = true }, "NATS URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	content := "SYNC_TEST_FROM_FILE=file\nSYNC_TEST_PRESET=file\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv("SYNC_TEST_PRESET", "env")
	t.Setenv("SYNC_TEST_FROM_FILE", "")
	os.Unsetenv("SYNC_TEST_FROM_FILE")

	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	if got := os.Getenv("SYNC_TEST_FROM_FILE"); got != "file" {
		t.Errorf("SYNC_TEST_FROM_FILE = %q, want %q", got, "file")
	}
	if got := os.Getenv("SYNC_TEST_PRESET"); got != "env" {
		t.Errorf("SYNC_TEST_PRESET = %q, want %q", got, "env")
	}
}

func TestLoadForDatabase_SkipsProviderValidation(t *testing.T) {
	t.Setenv("PROVIDER_NAME", "bloomberg")
	t.Setenv("MYSQL_DATABASE", "portfolios_test")

	if _, err := Load(); err == nil {
		t.Fatal("Load() must reject an unknown provider")
	}

	cfg, err := LoadForDatabase()
	if err != nil {
		t.Fatalf("LoadForDatabase() error = %v", err)
	}
	if cfg.MySQL.Database != "portfolios_test" {
		t.Errorf("MySQL.Database = %q", cfg.MySQL.Database)
	}
}
