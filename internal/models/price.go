package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateOnly truncates a timestamp to midnight UTC. All price and transaction
// dates are stored at day precision.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

// PricePoint is one close-price record for a (ticker, date) pair.
// An intraday snapshot may be superseded by the end-of-day close for the
// same date, never the reverse.
type PricePoint struct {
	Ticker     string          `json:"ticker" badgerhold:"index"`
	Date       time.Time       `json:"date"`
	Close      decimal.Decimal `json:"close"`
	CapturedAt time.Time       `json:"captured_at"`
	Intraday   bool            `json:"intraday"`
}

// Key returns the storage key for the logical (ticker, date) record.
func (p PricePoint) Key() string {
	return p.Ticker + "|" + p.Date.Format("2006-01-02")
}

// PriceSeries is an ascending-by-date sequence of price points for one ticker.
// Missing dates are simply absent; callers forward-fill via CloseAsOf.
type PriceSeries []PricePoint

// Sort orders the series ascending by date.
func (s PriceSeries) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
}

// CloseAsOf returns the most recent close on or before the given date,
// using binary search on the ascending series. found is false when the
// date precedes the first recorded price.
func (s PriceSeries) CloseAsOf(date time.Time) (close decimal.Decimal, pointDate time.Time, found bool) {
	if len(s) == 0 {
		return decimal.Zero, time.Time{}, false
	}
	target := DateOnly(date)

	// First index with point date strictly after target; the answer is idx-1.
	idx := sort.Search(len(s), func(i int) bool {
		return s[i].Date.After(target)
	})
	if idx == 0 {
		return decimal.Zero, time.Time{}, false
	}
	p := s[idx-1]
	return p.Close, p.Date, true
}

// FirstDate returns the earliest date in the series, or the zero time.
func (s PriceSeries) FirstDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Date
}

// LastDate returns the latest date in the series, or the zero time.
func (s PriceSeries) LastDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Date
}

// FreshnessStatus classifies how current a price value is.
type FreshnessStatus string

const (
	FreshnessFresh   FreshnessStatus = "FRESH"
	FreshnessStale   FreshnessStatus = "STALE"
	FreshnessUnknown FreshnessStatus = "UNKNOWN"
)

// FreshnessState tracks the refresh lifecycle for one ticker. Created on
// first cache miss, updated on every successful refresh, read-only to the
// valuation engine.
type FreshnessState struct {
	Ticker      string          `json:"ticker"`
	LastUpdated time.Time       `json:"last_updated"`
	LastPrice   decimal.Decimal `json:"last_price"`
	Status      FreshnessStatus `json:"status"`
}

// PriceResult is the cache's answer to a single price lookup.
type PriceResult struct {
	Ticker     string          `json:"ticker"`
	Date       time.Time       `json:"date"`
	Price      decimal.Decimal `json:"price"`
	Status     FreshnessStatus `json:"status"`
	CapturedAt time.Time       `json:"captured_at,omitempty"`
	Intraday   bool            `json:"intraday,omitempty"`
}

// Quote is a current-price snapshot from the upstream quote source.
type Quote struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
