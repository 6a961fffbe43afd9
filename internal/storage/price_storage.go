package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/models"
)

type priceStorage struct {
	store  *Store
	logger *common.Logger

	// Serializes the read-compare-write in Upsert. Row replacement itself is
	// atomic in Badger; this only guards the supersession check.
	writeMu sync.Mutex
}

// NewPriceStorage creates a PriceStorage backed by BadgerHold.
func NewPriceStorage(store *Store, logger *common.Logger) *priceStorage {
	return &priceStorage{store: store, logger: logger}
}

func (s *priceStorage) GetRange(_ context.Context, ticker string, start, end time.Time) (models.PriceSeries, error) {
	start = models.DateOnly(start)
	end = models.DateOnly(end)

	var points []models.PricePoint
	query := badgerhold.Where("Ticker").Eq(ticker).Index("Ticker").
		And("Date").Ge(start).And("Date").Le(end)
	if err := s.store.db.Find(&points, query); err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", ticker, err)
	}

	series := models.PriceSeries(points)
	series.Sort()
	return series, nil
}

func (s *priceStorage) GetRangeBatch(ctx context.Context, tickers []string, start, end time.Time) (map[string]models.PriceSeries, error) {
	result := make(map[string]models.PriceSeries, len(tickers))
	for _, ticker := range tickers {
		series, err := s.GetRange(ctx, ticker, start, end)
		if err != nil {
			return nil, err
		}
		result[ticker] = series
	}
	return result, nil
}

// Upsert writes a price point keyed by (ticker, date), applying the
// supersession rules: a newer CapturedAt replaces the old value, an
// end-of-day close replaces an intraday snapshot for the same date, and an
// intraday snapshot never replaces an end-of-day close.
func (s *priceStorage) Upsert(_ context.Context, point models.PricePoint) error {
	if point.Ticker == "" || point.Date.IsZero() {
		return fmt.Errorf("price point missing ticker or date")
	}
	if !point.Close.IsPositive() {
		return fmt.Errorf("price point for %s on %s has non-positive close %s",
			point.Ticker, point.Date.Format("2006-01-02"), point.Close)
	}
	point.Date = models.DateOnly(point.Date)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing models.PricePoint
	err := s.store.db.Get(point.Key(), &existing)
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to read existing price for %s: %w", point.Key(), err)
	}

	if err == nil {
		if !shouldReplace(existing, point) {
			return nil
		}
	}

	if err := s.store.db.Upsert(point.Key(), point); err != nil {
		return fmt.Errorf("failed to upsert price for %s: %w", point.Key(), err)
	}
	return nil
}

// shouldReplace decides whether the incoming point supersedes the stored one.
func shouldReplace(existing, incoming models.PricePoint) bool {
	if existing.Intraday && !incoming.Intraday {
		return true // end-of-day close always wins over a snapshot
	}
	if !existing.Intraday && incoming.Intraday {
		return false // never downgrade a close to a snapshot
	}
	return incoming.CapturedAt.After(existing.CapturedAt)
}

func (s *priceStorage) LatestDate(_ context.Context, ticker string) (time.Time, error) {
	var points []models.PricePoint
	query := badgerhold.Where("Ticker").Eq(ticker).Index("Ticker").
		SortBy("Date").Reverse().Limit(1)
	if err := s.store.db.Find(&points, query); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date for %s: %w", ticker, err)
	}
	if len(points) == 0 {
		return time.Time{}, nil
	}
	return points[0].Date, nil
}
