package valuation

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/models"
)

// OversoldError reports a SELL that would drive a holding negative. It is a
// data-integrity failure of the transaction ledger, fatal to the one
// computation that detected it.
type OversoldError struct {
	Ticker string
	Date   time.Time
	Held   decimal.Decimal
	Sold   decimal.Decimal
}

func (e *OversoldError) Error() string {
	return fmt.Sprintf("oversold position: %s on %s holds %s shares but sells %s",
		e.Ticker, e.Date.Format("2006-01-02"), e.Held, e.Sold)
}

// replayState tracks holdings and benchmark shadow positions during a
// single replay run. Never shared across runs.
type replayState struct {
	transactions []models.Transaction // sorted by (date, seq)
	cursor       int                  // next transaction to apply
	holdings     map[string]decimal.Decimal
	shadows      map[string]decimal.Decimal // benchmark ticker → cumulative shares
	benchmarks   []string
}

func newReplayState(p *models.Portfolio, benchmarks []string) *replayState {
	// Replay on a sorted copy so the caller's portfolio is untouched.
	sorted := make([]models.Transaction, len(p.Transactions))
	copy(sorted, p.Transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	return &replayState{
		transactions: sorted,
		holdings:     make(map[string]decimal.Decimal),
		shadows:      make(map[string]decimal.Decimal),
		benchmarks:   benchmarks,
	}
}

// advanceTo applies every transaction dated on or before the given day, in
// ledger order. BUY grows the real holding and every benchmark shadow by the
// transaction's dollar amount at that day's benchmark price; SELL shrinks
// only the real holding; the shadow models buy-and-hold, not mirrored sells.
// A benchmark with no usable price that day skips its shadow increment and
// records a gap.
func (r *replayState) advanceTo(day time.Time, series map[string]models.PriceSeries, gaps *[]models.DataGap) error {
	for r.cursor < len(r.transactions) {
		tx := r.transactions[r.cursor]
		if tx.Date.After(day) {
			break
		}

		switch tx.Type {
		case models.TransactionBuy:
			r.holdings[tx.Ticker] = r.holdings[tx.Ticker].Add(tx.Shares)
			for _, bench := range r.benchmarks {
				price, _, found := series[bench].CloseAsOf(tx.Date)
				if !found || !price.IsPositive() {
					*gaps = append(*gaps, models.DataGap{
						Ticker: bench,
						Date:   tx.Date,
						Reason: "benchmark price unavailable, shadow buy skipped",
					})
					continue
				}
				r.shadows[bench] = r.shadows[bench].Add(tx.TotalValue.Div(price))
			}

		case models.TransactionSell:
			held := r.holdings[tx.Ticker]
			remaining := held.Sub(tx.Shares)
			if remaining.IsNegative() {
				return &OversoldError{
					Ticker: tx.Ticker,
					Date:   tx.Date,
					Held:   held,
					Sold:   tx.Shares,
				}
			}
			r.holdings[tx.Ticker] = remaining
		}

		r.cursor++
	}
	return nil
}

// valueHoldings computes Σ shares × forward-filled close over all positive
// holdings. A ticker with no usable price contributes nothing for that day
// and is recorded as a gap.
func (r *replayState) valueHoldings(day time.Time, tickers []string, series map[string]models.PriceSeries, gaps *[]models.DataGap) decimal.Decimal {
	total := decimal.Zero
	for _, ticker := range tickers {
		shares := r.holdings[ticker]
		if !shares.IsPositive() {
			continue
		}
		price, _, found := series[ticker].CloseAsOf(day)
		if !found {
			*gaps = append(*gaps, models.DataGap{
				Ticker: ticker,
				Date:   day,
				Reason: "no price on or before date",
			})
			continue
		}
		total = total.Add(shares.Mul(price))
	}
	return total
}

// valueShadows computes each benchmark's shadow value for the day.
func (r *replayState) valueShadows(day time.Time, series map[string]models.PriceSeries, gaps *[]models.DataGap) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal, len(r.benchmarks))
	for _, bench := range r.benchmarks {
		shares := r.shadows[bench]
		if !shares.IsPositive() {
			values[bench] = decimal.Zero
			continue
		}
		price, _, found := series[bench].CloseAsOf(day)
		if !found {
			*gaps = append(*gaps, models.DataGap{
				Ticker: bench,
				Date:   day,
				Reason: "no price on or before date",
			})
			values[bench] = decimal.Zero
			continue
		}
		values[bench] = shares.Mul(price)
	}
	return values
}

// calendarDays produces one date per day from start to end (inclusive).
func calendarDays(start, end time.Time) []time.Time {
	start = models.DateOnly(start)
	end = models.DateOnly(end)
	if end.Before(start) {
		return nil
	}

	days := int(end.Sub(start).Hours()/24) + 1
	dates := make([]time.Time, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// WeightPct returns part/total as a percentage, or zero when the total is
// zero: an empty portfolio has 0% weights, not a division error.
func WeightPct(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(decimal.NewFromInt(100))
}
