// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/rjcarver/benchfolio/internal/common"
	"github.com/rjcarver/benchfolio/internal/interfaces"
	"github.com/rjcarver/benchfolio/internal/models"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the QuoteClient interface against the EODHD API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Delisted or unknown ticker, an expected condition for callers.
		io.Copy(io.Discard, resp.Body)
		return interfaces.ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// flexDecimal handles JSON values that may be a number, a string, or "NA".
type flexDecimal decimal.Decimal

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `"NA"` || s == `"N/A"` || s == `""` {
		*f = flexDecimal(decimal.Zero)
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("cannot unmarshal %s into decimal", s)
	}
	*f = flexDecimal(d)
	return nil
}

// realTimeResponse represents the EODHD real-time quote payload.
type realTimeResponse struct {
	Code      string      `json:"code"`
	Close     flexDecimal `json:"close"`
	Timestamp int64       `json:"timestamp"`
}

// GetCurrentPrice fetches the latest traded price for a ticker.
func (c *Client) GetCurrentPrice(ctx context.Context, ticker string) (*models.Quote, error) {
	path := fmt.Sprintf("/real-time/%s", ticker)

	var resp realTimeResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}

	price := decimal.Decimal(resp.Close)
	if !price.IsPositive() {
		return nil, interfaces.ErrUnavailable
	}

	ts := time.Unix(resp.Timestamp, 0).UTC()
	if resp.Timestamp == 0 {
		ts = time.Now().UTC()
	}

	return &models.Quote{
		Ticker:    ticker,
		Price:     price,
		Timestamp: ts,
	}, nil
}

// eodBarResponse represents one daily bar in the EODHD EOD payload.
type eodBarResponse struct {
	Date  string      `json:"date"`
	Close flexDecimal `json:"close"`
}

// GetHistory fetches daily closes for a ticker over [from, to] inclusive.
func (c *Client) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]models.PricePoint, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a") // ascending, matching PriceSeries ordering
	if !from.IsZero() {
		params.Set("from", from.Format("2006-01-02"))
	}
	if !to.IsZero() {
		params.Set("to", to.Format("2006-01-02"))
	}

	path := fmt.Sprintf("/eod/%s", ticker)

	var bars []eodBarResponse
	if err := c.get(ctx, path, params, &bars); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	points := make([]models.PricePoint, 0, len(bars))
	for _, bar := range bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			c.logger.Warn().Str("ticker", ticker).Str("date", bar.Date).Msg("Skipping bar with unparseable date")
			continue
		}
		close := decimal.Decimal(bar.Close)
		if !close.IsPositive() {
			continue
		}
		points = append(points, models.PricePoint{
			Ticker:     ticker,
			Date:       models.DateOnly(date),
			Close:      close,
			CapturedAt: now,
			Intraday:   false,
		})
	}

	c.logger.Debug().Str("ticker", ticker).Int("bars", len(points)).Msg("EODHD history fetched")
	return points, nil
}

// Ensure Client implements QuoteClient
var _ interfaces.QuoteClient = (*Client)(nil)
