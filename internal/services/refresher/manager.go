// Package refresher provides a background worker pool that refreshes price
// data for queued tickers without blocking the request that triggered it.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
	"github.com/rjcarver/benchfolio/internal/models"
)

// pollInterval is how long an idle worker sleeps before re-checking the queue.
const pollInterval = 200 * time.Millisecond

// FreshnessSink receives freshness updates as refreshes complete.
type FreshnessSink interface {
	MarkRefreshed(ticker string, price decimal.Decimal, at time.Time)
	MarkFailed(ticker string)
}

// Manager runs the refresh worker pool. Tickers are deduplicated on enqueue:
// a ticker already pending or in flight is ignored, which also guarantees at
// most one in-flight upstream refresh per ticker.
type Manager struct {
	quotes  interfaces.QuoteClient
	prices  interfaces.PriceStorage
	sink    FreshnessSink
	logger  *common.Logger
	config  common.RefreshConfig
	now     func() time.Time // injectable clock for testing

	mu        sync.Mutex
	queue     []string
	pending   map[string]bool // queued or in flight
	completed int
	failed    int
	total     int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a refresh manager. sink may be nil when no freshness
// tracking is wanted (e.g. storage-only tests).
func NewManager(quotes interfaces.QuoteClient, prices interfaces.PriceStorage, sink FreshnessSink, logger *common.Logger, config common.RefreshConfig) *Manager {
	return &Manager{
		quotes:  quotes,
		prices:  prices,
		sink:    sink,
		logger:  logger,
		config:  config,
		now:     time.Now,
		pending: make(map[string]bool),
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (m *Manager) safeGo(name string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in refresher goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the worker pool. Safe to call multiple times; stops any
// existing pool before starting.
func (m *Manager) Start() {
	if m.cancel != nil {
		m.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	workers := m.config.GetWorkers()
	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("refresh-worker-%d", i)
		m.safeGo(name, func() { m.processLoop(ctx) })
	}

	m.logger.Info().Int("workers", workers).Msg("Refresher started")
}

// Stop cancels the workers and waits for completion.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()
	m.logger.Info().Msg("Refresher stopped")
}

// Enqueue schedules tickers for refresh. Idempotent per ticker: already
// pending or in-flight tickers are ignored. Starting a fresh cycle (nothing
// pending) resets the progress counters.
func (m *Manager) Enqueue(tickers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		// New cycle: counters are process-local and reset per cycle.
		m.completed = 0
		m.failed = 0
		m.total = 0
	}

	for _, ticker := range tickers {
		if ticker == "" || m.pending[ticker] {
			continue
		}
		m.pending[ticker] = true
		m.queue = append(m.queue, ticker)
		m.total++
	}
}

// Progress reports the current refresh cycle's counters.
func (m *Manager) Progress() models.RefreshProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.RefreshProgress{
		Pending:   len(m.pending),
		Completed: m.completed,
		Failed:    m.failed,
		Total:     m.total,
	}
}

// dequeue pops the next queued ticker, or "" when the queue is empty.
// The ticker stays in the pending set until finish() runs.
func (m *Manager) dequeue() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return ""
	}
	ticker := m.queue[0]
	m.queue = m.queue[1:]
	return ticker
}

// finish clears the pending mark and updates cycle counters.
func (m *Manager) finish(ticker string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, ticker)
	if err != nil {
		m.failed++
	} else {
		m.completed++
	}
}

// processLoop continuously dequeues and refreshes tickers.
func (m *Manager) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ticker := m.dequeue()
		if ticker == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		start := m.now()
		err := m.refreshTicker(ctx, ticker)
		elapsed := time.Since(start)

		if err != nil {
			m.logger.Warn().
				Str("ticker", ticker).
				Dur("elapsed", elapsed).
				Err(err).
				Msg("Ticker refresh failed for this cycle")
			if m.sink != nil {
				m.sink.MarkFailed(ticker)
			}
		} else {
			m.logger.Debug().
				Str("ticker", ticker).
				Dur("elapsed", elapsed).
				Msg("Ticker refreshed")
		}

		m.finish(ticker, err)
	}
}

// refreshTicker fetches missing history plus the current price for one
// ticker, with bounded retries and backoff. A failure after the retry budget
// is dropped for this cycle; the next enqueue starts fresh.
func (m *Manager) refreshTicker(ctx context.Context, ticker string) error {
	var lastErr error
	maxAttempts := m.config.GetMaxRetries()
	backoff := m.config.GetRetryBackoff()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = m.fetchAndStore(ctx, ticker)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, interfaces.ErrUnavailable) {
			// Upstream has nothing for this ticker; retrying won't help.
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < maxAttempts {
			m.logger.Debug().
				Str("ticker", ticker).
				Int("attempt", attempt).
				Int("max", maxAttempts).
				Err(lastErr).
				Msg("Retrying ticker refresh")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}

// fetchAndStore performs one refresh attempt: backfill missing daily closes
// in a single ranged request, then capture an intraday snapshot of the
// current price. All writes go through PriceStorage.Upsert, so an intraday
// snapshot never clobbers a stored end-of-day close.
func (m *Manager) fetchAndStore(ctx context.Context, ticker string) error {
	now := m.now()
	today := models.DateOnly(now)

	latest, err := m.prices.LatestDate(ctx, ticker)
	if err != nil {
		return fmt.Errorf("latest date lookup: %w", err)
	}

	from := today.AddDate(0, 0, -m.config.GetHistoryDays())
	if !latest.IsZero() {
		from = latest.AddDate(0, 0, 1)
	}

	if !from.After(today) {
		points, err := m.quotes.GetHistory(ctx, ticker, from, today)
		if err != nil {
			return fmt.Errorf("history fetch: %w", err)
		}
		for _, point := range points {
			if err := m.prices.Upsert(ctx, point); err != nil {
				return fmt.Errorf("history upsert: %w", err)
			}
		}
	}

	quote, err := m.quotes.GetCurrentPrice(ctx, ticker)
	if err != nil {
		if errors.Is(err, interfaces.ErrUnavailable) {
			// History may still have landed; a missing live quote alone
			// does not fail the refresh.
			m.logger.Debug().Str("ticker", ticker).Msg("No live quote available, keeping history only")
			return nil
		}
		return fmt.Errorf("current price fetch: %w", err)
	}

	point := models.PricePoint{
		Ticker:     ticker,
		Date:       today,
		Close:      quote.Price,
		CapturedAt: now,
		Intraday:   true,
	}
	if err := m.prices.Upsert(ctx, point); err != nil {
		return fmt.Errorf("snapshot upsert: %w", err)
	}

	if m.sink != nil {
		m.sink.MarkRefreshed(ticker, quote.Price, now)
	}
	return nil
}

// Ensure Manager implements Refresher
var _ interfaces.Refresher = (*Manager)(nil)
