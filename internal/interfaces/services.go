// Package interfaces defines service contracts for Benchfolio
package interfaces

import (
	"context"
	"time"

	"github.com/rjcarver/benchfolio/internal/models"
)

// PriceService is the freshness broker between the valuation engine and the
// quote source / price store. It never blocks a caller beyond the configured
// quote timeout: stale data is returned in preference to failure.
type PriceService interface {
	// GetPrice looks up a single price. For the current day with
	// allowStale=false, a bounded live refresh is attempted before falling
	// back to the last known price marked STALE. Historical dates are served
	// from the store; only gaps trigger an upstream fetch.
	GetPrice(ctx context.Context, ticker string, date time.Time, allowStale bool) (*models.PriceResult, error)

	// BatchGetSeries returns a price series per distinct ticker over
	// [from, to]. At most one upstream request is issued per ticker; a
	// ticker whose fetch fails yields partial data plus a gap annotation
	// instead of failing the batch.
	BatchGetSeries(ctx context.Context, tickers []string, from, to time.Time) (*models.BatchSeriesResult, error)

	// Freshness returns the tracked freshness state for a ticker, or nil
	// when the ticker has never been seen.
	Freshness(ticker string) *models.FreshnessState
}

// Refresher updates prices for a set of tickers asynchronously, off the
// caller's goroutine.
type Refresher interface {
	// Enqueue schedules tickers for refresh. Idempotent: a ticker already
	// pending or in flight is not queued twice.
	Enqueue(tickers ...string)

	// Progress reports the current refresh cycle's counters.
	Progress() models.RefreshProgress
}

// ValuationService replays a portfolio's transactions into a daily
// performance series with benchmark shadow portfolios.
type ValuationService interface {
	ComputeSeries(ctx context.Context, portfolio *models.Portfolio, benchmarks []string, asOf time.Time) (*models.DailySeries, error)
}
