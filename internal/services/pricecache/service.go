// Package pricecache provides the freshness broker between the valuation
// engine and the quote source / price store. Callers are never blocked
// beyond the configured quote timeout: stale data beats no data.
package pricecache

import (
	"context"
	"fmt"
	"time"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
	"github.com/rjcarver/benchfolio/internal/models"
)

// forwardFillPad is how far before a requested range the cache reads, so
// forward-fill works across weekends and market holidays at the range start.
const forwardFillPad = 14 // days

// Service implements PriceService over a PriceStorage and a QuoteClient.
type Service struct {
	prices    interfaces.PriceStorage
	quotes    interfaces.QuoteClient
	refresher interfaces.Refresher // nil disables background refresh
	tracker   *Tracker
	logger    *common.Logger
	config    common.CacheConfig
	now       func() time.Time // injectable clock for testing
}

// NewService creates a price cache service.
func NewService(prices interfaces.PriceStorage, quotes interfaces.QuoteClient, refresher interfaces.Refresher, logger *common.Logger, config common.CacheConfig) *Service {
	return &Service{
		prices:    prices,
		quotes:    quotes,
		refresher: refresher,
		tracker:   NewTracker(),
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Tracker exposes the freshness tracker so the refresher can report into it.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// SetRefresher installs the background refresher after construction. The
// cache and refresher reference each other, so wiring happens in two steps.
func (s *Service) SetRefresher(r interfaces.Refresher) {
	s.refresher = r
}

// Freshness returns the tracked state for a ticker, or nil when never seen.
func (s *Service) Freshness(ticker string) *models.FreshnessState {
	return s.tracker.Get(ticker)
}

// GetPrice looks up a single price per the freshness policy: historical
// dates are served from the store (one ranged upstream fetch fills a gap),
// while current-day requests with allowStale=false attempt a live refresh
// bounded by the quote timeout before falling back to stale data.
func (s *Service) GetPrice(ctx context.Context, ticker string, date time.Time, allowStale bool) (*models.PriceResult, error) {
	now := s.now()
	today := models.DateOnly(now)
	date = models.DateOnly(date)
	if date.After(today) {
		date = today
	}

	if date.Before(today) {
		return s.getHistorical(ctx, ticker, date)
	}
	return s.getCurrent(ctx, ticker, today, now, allowStale)
}

// getHistorical serves a fully-in-the-past date. Historical closes never go
// stale, so a stored value is always good enough; only a gap triggers one
// ranged upstream fetch.
func (s *Service) getHistorical(ctx context.Context, ticker string, date time.Time) (*models.PriceResult, error) {
	lookback := date.AddDate(0, 0, -forwardFillPad)

	series, err := s.prices.GetRange(ctx, ticker, lookback, date)
	if err != nil {
		return nil, fmt.Errorf("price range read for %s: %w", ticker, err)
	}

	if close, pointDate, found := series.CloseAsOf(date); found {
		return &models.PriceResult{
			Ticker: ticker,
			Date:   pointDate,
			Price:  close,
			Status: models.FreshnessFresh,
		}, nil
	}

	// Gap: one ranged fetch, bounded by the quote timeout.
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.GetQuoteTimeout())
	defer cancel()

	points, err := s.quotes.GetHistory(fetchCtx, ticker, lookback, date)
	if err != nil {
		s.logger.Warn().Str("ticker", ticker).Str("date", date.Format("2006-01-02")).Err(err).
			Msg("Historical gap fetch failed, scheduling background refresh")
		return s.staleOrUnknown(ctx, ticker, date), nil
	}
	for _, point := range points {
		if err := s.prices.Upsert(ctx, point); err != nil {
			return nil, fmt.Errorf("price upsert for %s: %w", ticker, err)
		}
	}

	series = models.PriceSeries(points)
	series.Sort()
	if close, pointDate, found := series.CloseAsOf(date); found {
		return &models.PriceResult{
			Ticker: ticker,
			Date:   pointDate,
			Price:  close,
			Status: models.FreshnessFresh,
		}, nil
	}

	// Upstream answered but had nothing on or before the date.
	return s.staleOrUnknown(ctx, ticker, date), nil
}

// getCurrent serves today's price. A stored capture within the freshness
// window is FRESH; otherwise allowStale=false buys one live attempt bounded
// by the quote timeout, and any failure falls back to the last known price
// marked STALE so the caller can still render something.
func (s *Service) getCurrent(ctx context.Context, ticker string, today, now time.Time, allowStale bool) (*models.PriceResult, error) {
	lookback := today.AddDate(0, 0, -forwardFillPad)

	series, err := s.prices.GetRange(ctx, ticker, lookback, today)
	if err != nil {
		return nil, fmt.Errorf("price range read for %s: %w", ticker, err)
	}

	// A capture from today within the window needs no refresh.
	if len(series) > 0 {
		last := series[len(series)-1]
		if models.SameDay(last.Date, today) && common.IsFreshAt(now, last.CapturedAt, s.config.GetFreshWindow()) {
			return &models.PriceResult{
				Ticker:     ticker,
				Date:       last.Date,
				Price:      last.Close,
				Status:     models.FreshnessFresh,
				CapturedAt: last.CapturedAt,
				Intraday:   last.Intraday,
			}, nil
		}
	}

	if !allowStale {
		quoteCtx, cancel := context.WithTimeout(ctx, s.config.GetQuoteTimeout())
		quote, err := s.quotes.GetCurrentPrice(quoteCtx, ticker)
		cancel()
		if err == nil {
			point := models.PricePoint{
				Ticker:     ticker,
				Date:       today,
				Close:      quote.Price,
				CapturedAt: now,
				Intraday:   true,
			}
			if err := s.prices.Upsert(ctx, point); err != nil {
				return nil, fmt.Errorf("snapshot upsert for %s: %w", ticker, err)
			}
			s.tracker.MarkRefreshed(ticker, quote.Price, now)
			return &models.PriceResult{
				Ticker:     ticker,
				Date:       today,
				Price:      quote.Price,
				Status:     models.FreshnessFresh,
				CapturedAt: now,
				Intraday:   true,
			}, nil
		}
		s.logger.Warn().Str("ticker", ticker).Err(err).
			Msg("Live quote failed, falling back to stale price")
	}

	// Stale fallback: most recent known price, refreshed in the background.
	if close, pointDate, found := series.CloseAsOf(today); found {
		s.enqueueRefresh(ticker)
		return &models.PriceResult{
			Ticker: ticker,
			Date:   pointDate,
			Price:  close,
			Status: models.FreshnessStale,
		}, nil
	}

	return s.staleOrUnknown(ctx, ticker, today), nil
}

// staleOrUnknown is the last stop before a lookup is declared UNKNOWN:
// the store may still hold a price older than the forward-fill pad, and a
// price that old is STALE, not unknown. UNKNOWN is reserved for tickers
// with no stored data on or before the date at all.
func (s *Service) staleOrUnknown(ctx context.Context, ticker string, date time.Time) *models.PriceResult {
	if point := s.lastKnownOnOrBefore(ctx, ticker, date); point != nil {
		s.enqueueRefresh(ticker)
		return &models.PriceResult{
			Ticker: ticker,
			Date:   point.Date,
			Price:  point.Close,
			Status: models.FreshnessStale,
		}
	}
	return s.unknownResult(ticker, date)
}

// lastKnownOnOrBefore finds the most recent stored point on or before the
// date, however old. The latest-date index answers most lookups with a
// single read; only a ticker whose newest data postdates the requested
// date needs the full backwards scan.
func (s *Service) lastKnownOnOrBefore(ctx context.Context, ticker string, date time.Time) *models.PricePoint {
	latest, err := s.prices.LatestDate(ctx, ticker)
	if err != nil || latest.IsZero() {
		return nil
	}
	if latest.After(date) {
		series, err := s.prices.GetRange(ctx, ticker, time.Time{}, date)
		if err != nil || len(series) == 0 {
			return nil
		}
		point := series[len(series)-1]
		return &point
	}
	series, err := s.prices.GetRange(ctx, ticker, latest, latest)
	if err != nil || len(series) == 0 {
		return nil
	}
	point := series[0]
	return &point
}

// unknownResult records the miss, schedules a background refresh, and
// returns an UNKNOWN result. Unavailability is a condition, not an error.
func (s *Service) unknownResult(ticker string, date time.Time) *models.PriceResult {
	s.tracker.MarkMiss(ticker)
	s.enqueueRefresh(ticker)
	return &models.PriceResult{
		Ticker: ticker,
		Date:   date,
		Status: models.FreshnessUnknown,
	}
}

func (s *Service) enqueueRefresh(ticker string) {
	if s.refresher != nil {
		s.refresher.Enqueue(ticker)
	}
}

// BatchGetSeries returns one price series per distinct ticker over
// [from, to], padded backwards so callers can forward-fill at the range
// start. Missing coverage is fetched in at most ONE ranged upstream request
// per ticker; a failed ticker yields its partial stored data plus a gap
// annotation instead of failing the batch.
func (s *Service) BatchGetSeries(ctx context.Context, tickers []string, from, to time.Time) (*models.BatchSeriesResult, error) {
	now := s.now()
	today := models.DateOnly(now)
	from = models.DateOnly(from)
	to = models.DateOnly(to)
	if to.After(today) {
		to = today
	}
	paddedFrom := from.AddDate(0, 0, -forwardFillPad)

	// Today's close does not exist until the market day ends; requiring
	// coverage only through yesterday keeps repeat batch calls from
	// re-fetching every time.
	coverageEnd := to
	if coverageEnd.Equal(today) {
		coverageEnd = today.AddDate(0, 0, -1)
	}

	result := &models.BatchSeriesResult{
		Series: make(map[string]models.PriceSeries),
	}

	for _, ticker := range dedupe(tickers) {
		series, err := s.prices.GetRange(ctx, ticker, paddedFrom, to)
		if err != nil {
			return nil, fmt.Errorf("price range read for %s: %w", ticker, err)
		}

		if covered(series, paddedFrom, coverageEnd) {
			result.Series[ticker] = series
			continue
		}

		// One ranged request spanning everything missing for this ticker.
		// Extending from the tail is only safe when the stored prefix is
		// sound; an interior hole forces a full-range fetch.
		fetchFrom := paddedFrom
		if len(series) > 0 && !series.FirstDate().After(paddedFrom.AddDate(0, 0, forwardFillPad)) && !hasInteriorGap(series) {
			fetchFrom = series.LastDate().AddDate(0, 0, 1)
		}

		points, err := s.quotes.GetHistory(ctx, ticker, fetchFrom, to)
		if err != nil {
			s.logger.Warn().Str("ticker", ticker).Err(err).
				Msg("Batch history fetch failed, returning partial data")
			result.Gaps = append(result.Gaps, models.DataGap{
				Ticker: ticker,
				Date:   fetchFrom,
				Reason: fmt.Sprintf("history fetch failed: %v", err),
			})
			if len(series) == 0 {
				s.tracker.MarkMiss(ticker)
			}
			s.enqueueRefresh(ticker)
			result.Series[ticker] = series
			continue
		}

		for _, point := range points {
			if err := s.prices.Upsert(ctx, point); err != nil {
				return nil, fmt.Errorf("price upsert for %s: %w", ticker, err)
			}
		}

		merged, err := s.prices.GetRange(ctx, ticker, paddedFrom, to)
		if err != nil {
			return nil, fmt.Errorf("price range re-read for %s: %w", ticker, err)
		}
		if len(merged) == 0 {
			s.tracker.MarkMiss(ticker)
			result.Gaps = append(result.Gaps, models.DataGap{
				Ticker: ticker,
				Date:   from,
				Reason: "no price data available",
			})
		}
		result.Series[ticker] = merged
	}

	return result, nil
}

// covered reports whether the stored series spans the requested coverage:
// data at or before the padded start, through the coverage end, with no
// interior hole wider than the forward-fill pad.
func covered(series models.PriceSeries, paddedFrom, coverageEnd time.Time) bool {
	if len(series) == 0 {
		return false
	}
	// Leading coverage: first stored point close enough to the padded start
	// that earlier data would not change forward-fill results.
	if series.FirstDate().After(paddedFrom.AddDate(0, 0, forwardFillPad)) {
		return false
	}
	if series.LastDate().Before(coverageEnd) {
		return false
	}
	return !hasInteriorGap(series)
}

// hasInteriorGap reports whether consecutive stored points sit further apart
// than the forward-fill pad. Market closures never last that long, so a
// wider hole is missing data rather than a holiday.
func hasInteriorGap(series models.PriceSeries) bool {
	for i := 1; i < len(series); i++ {
		if series[i].Date.Sub(series[i-1].Date) > forwardFillPad*24*time.Hour {
			return true
		}
	}
	return false
}

func dedupe(tickers []string) []string {
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

// Ensure Service implements PriceService
var _ interfaces.PriceService = (*Service)(nil)
