package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Allowed assets as "assetID:feedID" pairs, comma separated. Order
	// matters: it fixes the registry's iteration order.
	Assets []AssetConfig

	// Price feed configuration
	PriceFeedURL string
	PriceMaxAge  time.Duration

	// Accrual configuration
	AccrualInterval time.Duration

	// Operator IDs allowed to trigger liquidation
	OperatorIDs []string

	// HTTP API listen address
	ListenAddr string

	// Environment
	Environment string // "development" or "production"
}

// AssetConfig pairs an asset ID with its price feed ID
type AssetConfig struct {
	ID     string
	FeedID string
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Database
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Price feed
		PriceFeedURL: os.Getenv("PRICE_FEED_URL"),
		PriceMaxAge:  60 * time.Second,

		// Accrual settings with defaults
		AccrualInterval: 30 * time.Second,

		// HTTP API
		ListenAddr: os.Getenv("LISTEN_ADDR"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if maxAge := os.Getenv("PRICE_MAX_AGE_SECONDS"); maxAge != "" {
		if parsed, err := strconv.Atoi(maxAge); err == nil && parsed > 0 {
			config.PriceMaxAge = time.Duration(parsed) * time.Second
		}
	}
	if interval := os.Getenv("ACCRUAL_INTERVAL_SECONDS"); interval != "" {
		if parsed, err := strconv.Atoi(interval); err == nil && parsed > 0 {
			config.AccrualInterval = time.Duration(parsed) * time.Second
		}
	}
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}

	// Parse the allowed asset list
	if assets := os.Getenv("ASSETS"); assets != "" {
		for _, pair := range strings.Split(assets, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			parts := strings.SplitN(pair, ":", 2)
			asset := AssetConfig{ID: strings.TrimSpace(parts[0])}
			if len(parts) == 2 {
				asset.FeedID = strings.TrimSpace(parts[1])
			}
			if asset.ID == "" {
				return nil, fmt.Errorf("ASSETS contains an empty asset ID in %q", pair)
			}
			config.Assets = append(config.Assets, asset)
		}
	}

	// Parse operator IDs
	if operatorIDs := os.Getenv("OPERATOR_IDS"); operatorIDs != "" {
		for _, id := range strings.Split(operatorIDs, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				config.OperatorIDs = append(config.OperatorIDs, id)
			}
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if len(config.Assets) == 0 {
			return nil, fmt.Errorf("ASSETS is required")
		}
		if config.PriceFeedURL == "" {
			return nil, fmt.Errorf("PRICE_FEED_URL is required")
		}
	}

	return config, nil
}
