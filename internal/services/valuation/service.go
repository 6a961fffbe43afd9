// Package valuation replays portfolio transactions over a calendar to
// produce a daily series of portfolio value and benchmark shadow values.
package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
	"github.com/rjcarver/benchfolio/internal/models"
)

// Service implements ValuationService. The replay is synchronous and
// sequential because correctness depends on in-order transaction
// application. All price data arrives in one batch call up front, so a run
// makes no hidden per-day network requests.
type Service struct {
	cache  interfaces.PriceService
	logger *common.Logger
	now    func() time.Time // injectable clock for testing
}

// NewService creates a valuation service.
func NewService(cache interfaces.PriceService, logger *common.Logger) *Service {
	return &Service{
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// ComputeSeries replays the portfolio's ledger from its earliest transaction
// through asOf (default: today), producing one point per calendar day.
// Non-trading days reuse the last known price via forward-fill. A portfolio
// with no transactions yields an empty series without error; an oversold
// position aborts the run with an OversoldError naming the ticker and date.
func (s *Service) ComputeSeries(ctx context.Context, portfolio *models.Portfolio, benchmarks []string, asOf time.Time) (*models.DailySeries, error) {
	if len(benchmarks) == 0 {
		return nil, fmt.Errorf("at least one benchmark ticker is required")
	}
	if err := portfolio.Validate(); err != nil {
		return nil, fmt.Errorf("invalid portfolio: %w", err)
	}

	benchmarks = dedupeOrdered(benchmarks)

	if asOf.IsZero() {
		asOf = s.now()
	}
	end := models.DateOnly(asOf)

	result := &models.DailySeries{
		PortfolioID:   portfolio.ID,
		PortfolioName: portfolio.Name,
		Benchmarks:    benchmarks,
	}

	if len(portfolio.Transactions) == 0 {
		return result, nil
	}

	start := models.DateOnly(portfolio.EarliestTransactionDate())
	if end.Before(start) {
		end = start
	}
	result.From = start
	result.To = end

	// Every ticker ever transacted, plus the benchmarks, in one batch.
	tickers := portfolio.Tickers()
	all := append(append([]string{}, tickers...), benchmarks...)

	funcStart := time.Now()
	batch, err := s.cache.BatchGetSeries(ctx, all, start, end)
	if err != nil {
		return nil, fmt.Errorf("batch price load: %w", err)
	}
	warnings := append([]models.DataGap{}, batch.Gaps...)

	s.logger.Debug().
		Str("portfolio", portfolio.Name).
		Int("tickers", len(all)).
		Dur("elapsed", time.Since(funcStart)).
		Msg("Batch price load complete")

	state := newReplayState(portfolio, benchmarks)
	days := calendarDays(start, end)
	points := make([]models.DailyPoint, 0, len(days))

	for _, day := range days {
		if err := state.advanceTo(day, batch.Series, &warnings); err != nil {
			s.logger.Warn().Str("portfolio", portfolio.Name).Err(err).Msg("Replay aborted")
			return nil, err
		}

		points = append(points, models.DailyPoint{
			Date:            day,
			PortfolioValue:  state.valueHoldings(day, tickers, batch.Series, &warnings),
			BenchmarkValues: state.valueShadows(day, batch.Series, &warnings),
		})
	}

	result.Points = points
	result.Warnings = warnings

	s.logger.Info().
		Str("portfolio", portfolio.Name).
		Int("days", len(points)).
		Int("warnings", len(warnings)).
		Dur("elapsed", time.Since(funcStart)).
		Msg("Series computed")

	return result, nil
}

// HoldingSnapshot is one position in a point-in-time portfolio valuation.
type HoldingSnapshot struct {
	Ticker    string          `json:"ticker"`
	Shares    decimal.Decimal `json:"shares"`
	Value     decimal.Decimal `json:"value"`
	WeightPct decimal.Decimal `json:"weight_pct"`
}

// HoldingsAsOf replays the ledger through asOf and values each open
// position, with portfolio weights (0% for an empty portfolio).
func (s *Service) HoldingsAsOf(ctx context.Context, portfolio *models.Portfolio, asOf time.Time) ([]HoldingSnapshot, error) {
	if err := portfolio.Validate(); err != nil {
		return nil, fmt.Errorf("invalid portfolio: %w", err)
	}
	if len(portfolio.Transactions) == 0 {
		return nil, nil
	}

	if asOf.IsZero() {
		asOf = s.now()
	}
	day := models.DateOnly(asOf)
	start := models.DateOnly(portfolio.EarliestTransactionDate())
	if day.Before(start) {
		return nil, nil
	}

	tickers := portfolio.Tickers()
	batch, err := s.cache.BatchGetSeries(ctx, tickers, start, day)
	if err != nil {
		return nil, fmt.Errorf("batch price load: %w", err)
	}

	state := newReplayState(portfolio, nil)
	var gaps []models.DataGap
	if err := state.advanceTo(day, batch.Series, &gaps); err != nil {
		return nil, err
	}

	total := decimal.Zero
	values := make(map[string]decimal.Decimal)
	for _, ticker := range tickers {
		shares := state.holdings[ticker]
		if !shares.IsPositive() {
			continue
		}
		price, _, found := batch.Series[ticker].CloseAsOf(day)
		if !found {
			continue
		}
		values[ticker] = shares.Mul(price)
		total = total.Add(values[ticker])
	}

	var snapshots []HoldingSnapshot
	for _, ticker := range tickers {
		shares := state.holdings[ticker]
		if !shares.IsPositive() {
			continue
		}
		snapshots = append(snapshots, HoldingSnapshot{
			Ticker:    ticker,
			Shares:    shares,
			Value:     values[ticker],
			WeightPct: WeightPct(values[ticker], total),
		})
	}
	return snapshots, nil
}

func dedupeOrdered(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	var out []string
	for _, t := range tickers {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Ensure Service implements ValuationService
var _ interfaces.ValuationService = (*Service)(nil)
