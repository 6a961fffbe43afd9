// Package interfaces defines service contracts for Benchfolio
package interfaces

import (
	"context"
	"time"

	"github.com/rjcarver/benchfolio/internal/models"
)

// StorageManager coordinates the storage backends.
type StorageManager interface {
	PriceStorage() PriceStorage
	PortfolioStorage() PortfolioStorage
	Close() error
}

// PriceStorage persists per-ticker, per-date close prices. Writes are atomic
// at the row level: a concurrent reader sees either the old or the new
// PricePoint for a (ticker, date), never a partial record.
type PriceStorage interface {
	// GetRange returns points for a ticker over [start, end] inclusive,
	// ascending by date. The result may be sparse.
	GetRange(ctx context.Context, ticker string, start, end time.Time) (models.PriceSeries, error)

	// GetRangeBatch returns GetRange results for multiple tickers.
	GetRangeBatch(ctx context.Context, tickers []string, start, end time.Time) (map[string]models.PriceSeries, error)

	// Upsert writes a price point, keyed by (ticker, date). Idempotent: a
	// point with a newer CapturedAt replaces the old value, and an intraday
	// snapshot never replaces an end-of-day close for the same date.
	Upsert(ctx context.Context, point models.PricePoint) error

	// LatestDate returns the most recent stored date for a ticker, or the
	// zero time when nothing is stored.
	LatestDate(ctx context.Context, ticker string) (time.Time, error)
}

// PortfolioStorage persists portfolios and their transaction ledgers.
type PortfolioStorage interface {
	GetPortfolio(ctx context.Context, name string) (*models.Portfolio, error)
	SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error
	ListPortfolios(ctx context.Context) ([]string, error)
	DeletePortfolio(ctx context.Context, name string) error
}
