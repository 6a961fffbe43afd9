// Package common provides shared utilities for Benchfolio
package common

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Benchfolio
type Config struct {
	Environment string        `toml:"environment"`
	Benchmarks  []string      `toml:"benchmarks"` // default benchmark tickers (e.g. VOO, SPY)
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Cache       CacheConfig   `toml:"cache"`
	Refresher   RefreshConfig `toml:"refresher"`
	Logging     LoggingConfig `toml:"logging"`
}

// StorageConfig holds the BadgerHold data directory.
type StorageConfig struct {
	Path string `toml:"path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the HTTP timeout duration.
func (c *EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheConfig holds price cache freshness and fallback configuration.
type CacheConfig struct {
	FreshWindow  string `toml:"fresh_window"`  // max age for a current-price record to count as fresh
	QuoteTimeout string `toml:"quote_timeout"` // bound on a blocking live-quote attempt
}

// GetFreshWindow parses the freshness window, defaulting to 15 minutes.
func (c *CacheConfig) GetFreshWindow() time.Duration {
	d, err := time.ParseDuration(c.FreshWindow)
	if err != nil {
		return FreshnessCurrentPrice
	}
	return d
}

// GetQuoteTimeout parses the foreground quote timeout, defaulting to 3 seconds.
func (c *CacheConfig) GetQuoteTimeout() time.Duration {
	d, err := time.ParseDuration(c.QuoteTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// RefreshConfig holds background refresher configuration.
type RefreshConfig struct {
	Workers      int    `toml:"workers"`       // concurrent upstream fetches
	MaxRetries   int    `toml:"max_retries"`   // attempts per ticker per cycle
	RetryBackoff string `toml:"retry_backoff"` // base backoff between attempts
	HistoryDays  int    `toml:"history_days"`  // default backfill span for a brand-new ticker
}

// GetWorkers returns the worker pool size, defaulting to 4.
func (c *RefreshConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetMaxRetries returns the per-ticker attempt limit, defaulting to 3.
func (c *RefreshConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// GetRetryBackoff parses the base retry backoff, defaulting to 500ms.
func (c *RefreshConfig) GetRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.RetryBackoff)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetHistoryDays returns the backfill span, defaulting to 365 days.
func (c *RefreshConfig) GetHistoryDays() int {
	if c.HistoryDays <= 0 {
		return 365
	}
	return c.HistoryDays
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Benchmarks:  []string{"VOO"},
		Storage: StorageConfig{
			Path: "data",
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Cache: CacheConfig{
			FreshWindow:  "15m",
			QuoteTimeout: "3s",
		},
		Refresher: RefreshConfig{
			Workers:      4,
			MaxRetries:   3,
			RetryBackoff: "500ms",
			HistoryDays:  365,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads a TOML config file, applying its values over the defaults.
// A missing file is not an error; defaults are returned.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Environment override for the API key keeps secrets out of the file.
	if key := os.Getenv("EODHD_API_KEY"); key != "" {
		config.Clients.EODHD.APIKey = key
	}

	return config, nil
}
