package eodhd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rjcarver/benchfolio/internal/interfaces"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient("test-key", WithBaseURL(server.URL))
	return client, server
}

// --- GetCurrentPrice ---

func TestGetCurrentPrice_Success(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/real-time/AAPL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api_token") != "test-key" {
			t.Error("missing api_token")
		}
		if r.URL.Query().Get("fmt") != "json" {
			t.Error("missing fmt=json")
		}
		w.Write([]byte(`{"code":"AAPL","close":185.50,"timestamp":1704470400}`))
	})
	defer server.Close()

	quote, err := client.GetCurrentPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetCurrentPrice failed: %v", err)
	}
	if quote.Ticker != "AAPL" {
		t.Errorf("expected ticker AAPL, got %s", quote.Ticker)
	}
	if !quote.Price.Equal(decimal.RequireFromString("185.50")) {
		t.Errorf("expected 185.50, got %s", quote.Price)
	}
	if quote.Timestamp.IsZero() {
		t.Error("expected a timestamp from the payload")
	}
}

func TestGetCurrentPrice_NAClose(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"DELISTED","close":"NA","timestamp":0}`))
	})
	defer server.Close()

	_, err := client.GetCurrentPrice(context.Background(), "DELISTED")
	if !errors.Is(err, interfaces.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for NA close, got %v", err)
	}
}

func TestGetCurrentPrice_NotFound(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	_, err := client.GetCurrentPrice(context.Background(), "NOSUCH")
	if !errors.Is(err, interfaces.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for 404, got %v", err)
	}
}

func TestGetCurrentPrice_ServerError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("plan limit exceeded"))
	})
	defer server.Close()

	_, err := client.GetCurrentPrice(context.Background(), "AAPL")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected status 402, got %d", apiErr.StatusCode)
	}
}

// --- GetHistory ---

func TestGetHistory_ParsesAndSkipsBadBars(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eod/VOO" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("from") != "2024-01-01" || r.URL.Query().Get("to") != "2024-01-31" {
			t.Errorf("unexpected range params: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"date":"2024-01-05","close":400.10},
			{"date":"not-a-date","close":401.00},
			{"date":"2024-01-08","close":"NA"},
			{"date":"2024-01-09","close":402.25}
		]`))
	})
	defer server.Close()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	points, err := client.GetHistory(context.Background(), "VOO", from, to)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 usable bars, got %d", len(points))
	}
	if !points[0].Close.Equal(decimal.RequireFromString("400.10")) {
		t.Errorf("unexpected first close %s", points[0].Close)
	}
	for _, p := range points {
		if p.Intraday {
			t.Errorf("EOD bars must not be intraday: %+v", p)
		}
		if p.Ticker != "VOO" {
			t.Errorf("expected ticker VOO, got %s", p.Ticker)
		}
	}
}

func TestGetHistory_NotFound(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer server.Close()

	_, err := client.GetHistory(context.Background(), "NOSUCH", time.Time{}, time.Time{})
	if !errors.Is(err, interfaces.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"code":"AAPL","close":185.50}`))
	})
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetCurrentPrice(ctx, "AAPL")
	if err == nil {
		t.Fatal("expected a context deadline error")
	}
}
