package pricecache

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/models"
)

// Tracker maintains per-ticker freshness state. States are created on first
// cache miss and updated on every successful refresh; readers get copies.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*models.FreshnessState
}

// NewTracker creates an empty freshness tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*models.FreshnessState)}
}

// MarkRefreshed records a successful refresh for a ticker.
func (t *Tracker) MarkRefreshed(ticker string, price decimal.Decimal, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[ticker] = &models.FreshnessState{
		Ticker:      ticker,
		LastUpdated: at,
		LastPrice:   price,
		Status:      models.FreshnessFresh,
	}
}

// MarkFailed downgrades a ticker after a failed refresh cycle: STALE when a
// prior price is known, UNKNOWN otherwise.
func (t *Tracker) MarkFailed(ticker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[ticker]
	if !ok || state.LastUpdated.IsZero() {
		t.states[ticker] = &models.FreshnessState{Ticker: ticker, Status: models.FreshnessUnknown}
		return
	}
	state.Status = models.FreshnessStale
}

// MarkMiss records a first-time cache miss, creating an UNKNOWN state if the
// ticker has never been seen.
func (t *Tracker) MarkMiss(ticker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[ticker]; !ok {
		t.states[ticker] = &models.FreshnessState{Ticker: ticker, Status: models.FreshnessUnknown}
	}
}

// Get returns a copy of the state for a ticker, or nil when never seen.
func (t *Tracker) Get(ticker string) *models.FreshnessState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[ticker]
	if !ok {
		return nil
	}
	copy := *state
	return &copy
}
