package refresher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
	"github.com/rjcarver/benchfolio/internal/models"
)

// --- Mocks ---

type memPriceStorage struct {
	mu     sync.Mutex
	points map[string]models.PricePoint
}

func newMemPriceStorage() *memPriceStorage {
	return &memPriceStorage{points: make(map[string]models.PricePoint)}
}

func (m *memPriceStorage) GetRange(_ context.Context, ticker string, start, end time.Time) (models.PriceSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var series models.PriceSeries
	for _, p := range m.points {
		if p.Ticker == ticker && !p.Date.Before(start) && !p.Date.After(end) {
			series = append(series, p)
		}
	}
	series.Sort()
	return series, nil
}

func (m *memPriceStorage) GetRangeBatch(ctx context.Context, tickers []string, start, end time.Time) (map[string]models.PriceSeries, error) {
	result := make(map[string]models.PriceSeries)
	for _, ticker := range tickers {
		series, _ := m.GetRange(ctx, ticker, start, end)
		result[ticker] = series
	}
	return result, nil
}

func (m *memPriceStorage) Upsert(_ context.Context, point models.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	point.Date = models.DateOnly(point.Date)
	existing, ok := m.points[point.Key()]
	if ok && !existing.Intraday && point.Intraday {
		return nil // mirror storage supersession: snapshot never beats a close
	}
	m.points[point.Key()] = point
	return nil
}

func (m *memPriceStorage) LatestDate(_ context.Context, ticker string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	for _, p := range m.points {
		if p.Ticker == ticker && p.Date.After(latest) {
			latest = p.Date
		}
	}
	return latest, nil
}

func (m *memPriceStorage) count(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.points {
		if p.Ticker == ticker {
			n++
		}
	}
	return n
}

// flakyQuoteClient fails GetHistory a configurable number of times before
// succeeding, and records the requested ranges.
type flakyQuoteClient struct {
	mu           sync.Mutex
	failuresLeft int
	failWith     error
	history      []models.PricePoint
	quote        *models.Quote
	quoteErr     error
	historyFroms []time.Time
	attempts     int
}

func (f *flakyQuoteClient) GetHistory(_ context.Context, ticker string, from, to time.Time) ([]models.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	f.historyFroms = append(f.historyFroms, from)
	if f.failuresLeft > 0 {
		f.failuresLeft--
		if f.failWith != nil {
			return nil, f.failWith
		}
		return nil, errors.New("transient upstream failure")
	}
	var points []models.PricePoint
	for _, p := range f.history {
		if !p.Date.Before(from) && !p.Date.After(to) {
			points = append(points, p)
		}
	}
	return points, nil
}

func (f *flakyQuoteClient) GetCurrentPrice(_ context.Context, ticker string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	if f.quote == nil {
		return nil, interfaces.ErrUnavailable
	}
	q := *f.quote
	q.Ticker = ticker
	return &q, nil
}

type recordingSink struct {
	mu        sync.Mutex
	refreshed []string
	failed    []string
}

func (r *recordingSink) MarkRefreshed(ticker string, _ decimal.Decimal, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed = append(r.refreshed, ticker)
}

func (r *recordingSink) MarkFailed(ticker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, ticker)
}

// --- Test helpers ---

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestManager(quotes interfaces.QuoteClient, prices interfaces.PriceStorage, sink FreshnessSink) *Manager {
	config := common.RefreshConfig{Workers: 2, MaxRetries: 3, RetryBackoff: "1ms", HistoryDays: 30}
	m := NewManager(quotes, prices, sink, common.NewSilentLogger(), config)
	m.now = func() time.Time { return testNow }
	return m
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func eodPoint(ticker string, date time.Time, close string) models.PricePoint {
	return models.PricePoint{Ticker: ticker, Date: date, Close: decimal.RequireFromString(close), CapturedAt: date.Add(22 * time.Hour)}
}

// --- Enqueue semantics ---

func TestEnqueue_DedupesPendingTickers(t *testing.T) {
	m := newTestManager(&flakyQuoteClient{}, newMemPriceStorage(), nil)

	m.Enqueue("AAPL", "AAPL", "VOO", "")
	m.Enqueue("AAPL")

	progress := m.Progress()
	if progress.Total != 2 {
		t.Errorf("expected 2 queued, got %d", progress.Total)
	}
	if progress.Pending != 2 {
		t.Errorf("expected 2 pending, got %d", progress.Pending)
	}
}

func TestEnqueue_NewCycleResetsCounters(t *testing.T) {
	m := newTestManager(&flakyQuoteClient{}, newMemPriceStorage(), nil)

	m.Enqueue("AAPL")
	// Simulate the worker draining the cycle.
	if ticker := m.dequeue(); ticker != "AAPL" {
		t.Fatalf("expected AAPL, got %q", ticker)
	}
	m.finish("AAPL", nil)

	progress := m.Progress()
	if progress.Completed != 1 || progress.Pending != 0 {
		t.Fatalf("unexpected drained progress: %+v", progress)
	}

	// Nothing pending, so the next enqueue starts a fresh cycle.
	m.Enqueue("VOO")
	progress = m.Progress()
	if progress.Completed != 0 || progress.Failed != 0 || progress.Total != 1 {
		t.Errorf("expected reset counters, got %+v", progress)
	}
}

func TestFinish_CountsFailures(t *testing.T) {
	m := newTestManager(&flakyQuoteClient{}, newMemPriceStorage(), nil)

	m.Enqueue("AAPL", "VOO")
	m.dequeue()
	m.finish("AAPL", errors.New("boom"))
	m.dequeue()
	m.finish("VOO", nil)

	progress := m.Progress()
	if progress.Failed != 1 || progress.Completed != 1 || progress.Pending != 0 {
		t.Errorf("unexpected progress: %+v", progress)
	}
}

// --- Refresh behavior ---

func TestFetchAndStore_BackfillsAndSnapshots(t *testing.T) {
	prices := newMemPriceStorage()
	quotes := &flakyQuoteClient{
		history: []models.PricePoint{
			eodPoint("AAPL", day(2024, 3, 13), "186"),
			eodPoint("AAPL", day(2024, 3, 14), "187"),
		},
		quote: &models.Quote{Price: decimal.RequireFromString("188.50"), Timestamp: testNow},
	}
	sink := &recordingSink{}
	m := newTestManager(quotes, prices, sink)

	if err := m.fetchAndStore(context.Background(), "AAPL"); err != nil {
		t.Fatalf("fetchAndStore failed: %v", err)
	}

	// Two closes plus today's intraday snapshot.
	if got := prices.count("AAPL"); got != 3 {
		t.Errorf("expected 3 stored points, got %d", got)
	}
	series, _ := prices.GetRange(context.Background(), "AAPL", day(2024, 3, 15), day(2024, 3, 15))
	if len(series) != 1 || !series[0].Intraday || !series[0].Close.Equal(decimal.RequireFromString("188.50")) {
		t.Errorf("expected intraday snapshot 188.50, got %v", series)
	}
	if len(sink.refreshed) != 1 || sink.refreshed[0] != "AAPL" {
		t.Errorf("expected sink notification, got %v", sink.refreshed)
	}
}

func TestFetchAndStore_ResumesFromLatestStoredDate(t *testing.T) {
	prices := newMemPriceStorage()
	prices.Upsert(context.Background(), eodPoint("AAPL", day(2024, 3, 10), "185"))
	quotes := &flakyQuoteClient{}
	m := newTestManager(quotes, prices, nil)

	m.fetchAndStore(context.Background(), "AAPL")

	if len(quotes.historyFroms) != 1 {
		t.Fatalf("expected 1 history request, got %d", len(quotes.historyFroms))
	}
	if !quotes.historyFroms[0].Equal(day(2024, 3, 11)) {
		t.Errorf("expected backfill from 2024-03-11, got %v", quotes.historyFroms[0])
	}
}

func TestFetchAndStore_MissingLiveQuoteIsNotFatal(t *testing.T) {
	prices := newMemPriceStorage()
	quotes := &flakyQuoteClient{
		history:  []models.PricePoint{eodPoint("AAPL", day(2024, 3, 14), "187")},
		quoteErr: interfaces.ErrUnavailable,
	}
	m := newTestManager(quotes, prices, nil)

	if err := m.fetchAndStore(context.Background(), "AAPL"); err != nil {
		t.Fatalf("missing live quote must not fail the refresh: %v", err)
	}
	if got := prices.count("AAPL"); got != 1 {
		t.Errorf("expected history stored, got %d points", got)
	}
}

func TestRefreshTicker_RetriesTransientFailures(t *testing.T) {
	prices := newMemPriceStorage()
	quotes := &flakyQuoteClient{
		failuresLeft: 2,
		history:      []models.PricePoint{eodPoint("AAPL", day(2024, 3, 14), "187")},
		quote:        &models.Quote{Price: decimal.RequireFromString("188"), Timestamp: testNow},
	}
	m := newTestManager(quotes, prices, nil)

	if err := m.refreshTicker(context.Background(), "AAPL"); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if quotes.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", quotes.attempts)
	}
}

func TestRefreshTicker_GivesUpAfterMaxRetries(t *testing.T) {
	prices := newMemPriceStorage()
	quotes := &flakyQuoteClient{failuresLeft: 10}
	m := newTestManager(quotes, prices, nil)

	if err := m.refreshTicker(context.Background(), "AAPL"); err == nil {
		t.Fatal("expected failure after retry budget")
	}
	if quotes.attempts != 3 {
		t.Errorf("expected exactly MaxRetries attempts, got %d", quotes.attempts)
	}
}

func TestRefreshTicker_UnavailableSkipsRetries(t *testing.T) {
	prices := newMemPriceStorage()
	quotes := &flakyQuoteClient{failuresLeft: 10, failWith: interfaces.ErrUnavailable}
	m := newTestManager(quotes, prices, nil)

	err := m.refreshTicker(context.Background(), "DELISTED")
	if !errors.Is(err, interfaces.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if quotes.attempts != 1 {
		t.Errorf("unavailable ticker should not be retried, got %d attempts", quotes.attempts)
	}
}

// --- Worker pool ---

func TestManager_ProcessesQueueInBackground(t *testing.T) {
	prices := newMemPriceStorage()
	quotes := &flakyQuoteClient{
		history: []models.PricePoint{
			eodPoint("AAPL", day(2024, 3, 14), "187"),
			eodPoint("VOO", day(2024, 3, 14), "470"),
		},
		quote: &models.Quote{Price: decimal.RequireFromString("100"), Timestamp: testNow},
	}
	sink := &recordingSink{}
	m := newTestManager(quotes, prices, sink)

	m.Start()
	defer m.Stop()
	m.Enqueue("AAPL", "VOO")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		progress := m.Progress()
		if progress.Pending == 0 && progress.Completed == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	progress := m.Progress()
	if progress.Completed != 2 || progress.Failed != 0 {
		t.Fatalf("expected 2 completed, got %+v", progress)
	}

	sink.mu.Lock()
	refreshed := len(sink.refreshed)
	sink.mu.Unlock()
	if refreshed != 2 {
		t.Errorf("expected 2 sink notifications, got %d", refreshed)
	}

	// Once drained, the same ticker may be enqueued again.
	m.Enqueue("AAPL")
	if m.Progress().Total != 1 {
		t.Errorf("expected fresh cycle with 1 ticker, got %+v", m.Progress())
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := newTestManager(&flakyQuoteClient{}, newMemPriceStorage(), nil)
	m.Start()
	m.Stop()
	m.Stop()
}
