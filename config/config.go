/*
Package config loads billingd settings from the environment.

SOURCES (later wins):
  1. Defaults below
  2. .env in the working directory, if present
  3. Process environment

KEYS:
  PORT               HTTP port                               8080
  ENV                development | staging | production      development
  LOG_LEVEL          zerolog level name                      info
  STORE_DRIVER       sqlite | postgres | memory              sqlite
  SQLITE_PATH        SQLite file, ":memory:" allowed         billing.db
  DATABASE_URL       postgres connection string              (required for postgres)
  DB_MAX_CONNS       pgxpool max connections                 10
  DB_MIN_CONNS       pgxpool min connections                 2
  CURRENCY           ledger currency code                    KES
  CURRENCY_EXPONENT  minor-unit digits                       2
  CORS_ORIGINS       comma separated allowed origins         http://localhost:5173,http://localhost:8080
  AUDIT_INTERVAL     consistency audit period, 0 disables    1h
  TARIFF_FILE        JSON price list, built-in when empty

SEE ALSO:
  - cmd/server/main.go: Builds the store, logger and router from Config
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/warp/billing-ledger/billing"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port     int    `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	CurrencyCode     string `mapstructure:"CURRENCY"`
	CurrencyExponent int32  `mapstructure:"CURRENCY_EXPONENT"`

	CORSOrigins   []string      `mapstructure:"-"`
	AuditInterval time.Duration `mapstructure:"AUDIT_INTERVAL"`
	TariffFile    string        `mapstructure:"TARIFF_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CURRENCY", "CURRENCY_EXPONENT",
	"CORS_ORIGINS", "AUDIT_INTERVAL", "TARIFF_FILE",
}

// Load reads defaults, .env and the environment into a Config. It does not
// validate; call Validate before use.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "billing.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CURRENCY", billing.KES.Code)
	v.SetDefault("CURRENCY_EXPONENT", billing.KES.Exponent)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("AUDIT_INTERVAL", "1h")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// A missing .env is fine; the environment and defaults still apply.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.CurrencyCode = strings.ToUpper(strings.TrimSpace(cfg.CurrencyCode))

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return cfg, nil
}

// IsDev returns true when running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Currency returns the ledger currency.
func (c *Config) Currency() billing.Currency {
	return billing.Currency{Code: c.CurrencyCode, Exponent: c.CurrencyExponent}
}

// Level returns the configured zerolog level.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
		if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS %d / DB_MAX_CONNS %d are inconsistent", c.DBMinConns, c.DBMaxConns)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER %q is not one of sqlite, postgres, memory", c.StoreDriver)
	}

	if len(c.CurrencyCode) != 3 {
		return fmt.Errorf("CURRENCY %q must be a three letter code", c.CurrencyCode)
	}
	if c.CurrencyExponent < 0 || c.CurrencyExponent > 4 {
		return fmt.Errorf("CURRENCY_EXPONENT %d must be between 0 and 4", c.CurrencyExponent)
	}
	if c.AuditInterval < 0 {
		return fmt.Errorf("AUDIT_INTERVAL must not be negative")
	}
	if c.IsProduction() && c.StoreDriver == DriverMemory {
		return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
	}
	return nil
}
