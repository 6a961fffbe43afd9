// Package app wires configuration, storage, clients, and services into a
// running Benchfolio instance.
package app

import (
	"fmt"
	"os"
	"time"

	"github.com/rjcarver/benchfolio/internal/clients/eodhd"
	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
	"github.com/rjcarver/benchfolio/internal/services/pricecache"
	"github.com/rjcarver/benchfolio/internal/services/refresher"
	"github.com/rjcarver/benchfolio/internal/services/valuation"
	"github.com/rjcarver/benchfolio/internal/storage"
)

// App holds all initialized services, clients, and storage.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	QuoteClient interfaces.QuoteClient
	Refresher   *refresher.Manager
	PriceCache  interfaces.PriceService
	Valuation   *valuation.Service
	StartupTime time.Time
}

// NewApp initializes the full dependency graph from a config file path.
// configPath may be empty, in which case BENCHFOLIO_CONFIG and then
// "benchfolio.toml" are tried; a missing file falls back to defaults.
func NewApp(configPath string) (*App, error) {
	if configPath == "" {
		configPath = os.Getenv("BENCHFOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = "benchfolio.toml"
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if config.Clients.EODHD.APIKey == "" {
		logger.Warn().Msg("EODHD API key not configured - live price refresh will be unavailable")
	}

	quoteClient := eodhd.NewClient(
		config.Clients.EODHD.APIKey,
		eodhd.WithBaseURL(config.Clients.EODHD.BaseURL),
		eodhd.WithRateLimit(config.Clients.EODHD.RateLimit),
		eodhd.WithTimeout(config.Clients.EODHD.GetTimeout()),
		eodhd.WithLogger(logger),
	)

	// Cache and refresher share one freshness tracker: the cache creates
	// states on miss, the refresher updates them as fetches complete.
	cache := pricecache.NewService(storageManager.PriceStorage(), quoteClient, nil, logger, config.Cache)
	refreshManager := refresher.NewManager(quoteClient, storageManager.PriceStorage(), cache.Tracker(), logger, config.Refresher)
	cache.SetRefresher(refreshManager)
	refreshManager.Start()

	valuationService := valuation.NewService(cache, logger)

	logger.Info().
		Str("environment", config.Environment).
		Str("storage", config.Storage.Path).
		Msg("Benchfolio initialized")

	return &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		QuoteClient: quoteClient,
		Refresher:   refreshManager,
		PriceCache:  cache,
		Valuation:   valuationService,
		StartupTime: time.Now(),
	}, nil
}

// Close stops the background refresher and closes storage.
func (a *App) Close() error {
	if a.Refresher != nil {
		a.Refresher.Stop()
	}
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
