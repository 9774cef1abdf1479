package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/fjod/go_cart/storefront/internal/storage/redisstore"
	logx "github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Config is sourced from environment variables, optionally seeded from a .env file
type Config struct {
	Environment string `default:"development"`

	Catalog CatalogConfig
	Storage StorageConfig
	Redis   redisstore.Config
	Breaker BreakerConfig
}

type CatalogConfig struct {
	ProductCount    int           `split_words:"true" default:"10000"`
	Seed            uint64        `default:"0"`
	DefaultPageSize int           `split_words:"true" default:"20"`
	SearchDebounce  time.Duration `split_words:"true" default:"300ms"`
	Latency         time.Duration `default:"300ms"`
}

type StorageConfig struct {
	Driver     string `default:"memory"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"storefront.db"`
}

// BreakerConfig guards the redis backend
type BreakerConfig struct {
	MaxFailures uint32        `split_words:"true" default:"5"`
	OpenTimeout time.Duration `split_words:"true" default:"30s"`
}

// Load reads envFile if it exists and binds the environment. An empty envFile
// skips the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logx.Warn().Err(err).Str("file", envFile).Msg("could not load env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if !slices.Contains([]string{DriverMemory, DriverRedis, DriverSQLite}, cfg.Storage.Driver) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Storage.Driver)
	}
	if cfg.Catalog.ProductCount < 0 {
		return nil, fmt.Errorf("catalog product count must not be negative, got %d", cfg.Catalog.ProductCount)
	}
	return &cfg, nil
}
