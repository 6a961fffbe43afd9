package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DailyPoint is one day of the computed performance series: the real
// portfolio value and the value of each benchmark shadow portfolio.
type DailyPoint struct {
	Date            time.Time                  `json:"date"`
	PortfolioValue  decimal.Decimal            `json:"portfolio_value"`
	BenchmarkValues map[string]decimal.Decimal `json:"benchmark_values"`
}

// DataGap records a (ticker, date) combination for which no usable price
// could be determined. Non-fatal; the affected contribution is omitted.
type DataGap struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

func (g DataGap) String() string {
	return fmt.Sprintf("%s %s: %s", g.Ticker, g.Date.Format("2006-01-02"), g.Reason)
}

// DailySeries is the full output of a valuation run: one point per calendar
// day plus the data-gap warnings accumulated during replay. The structure is
// plain and serializable so callers can render it without engine involvement.
type DailySeries struct {
	PortfolioID   string       `json:"portfolio_id"`
	PortfolioName string       `json:"portfolio_name"`
	From          time.Time    `json:"from"`
	To            time.Time    `json:"to"`
	Benchmarks    []string     `json:"benchmarks"`
	Points        []DailyPoint `json:"points"`
	Warnings      []DataGap    `json:"warnings,omitempty"`
}

// BatchSeriesResult carries per-ticker price series along with per-ticker
// gap annotations for tickers whose fetch failed or returned nothing.
// A failed ticker never fails the whole batch.
type BatchSeriesResult struct {
	Series map[string]PriceSeries `json:"series"`
	Gaps   []DataGap              `json:"gaps,omitempty"`
}

// RefreshProgress is a process-local snapshot of the background refresh
// cycle. Counters reset when a cycle drains; they are never persisted.
type RefreshProgress struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
