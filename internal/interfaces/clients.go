// Package interfaces defines service contracts for Benchfolio
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/rjcarver/benchfolio/internal/models"
)

// ErrUnavailable is returned by a QuoteClient when the upstream source has
// no data for a ticker (delisted, unknown, or temporarily missing). It is an
// expected condition, not a crash-worthy failure.
var ErrUnavailable = errors.New("quote source unavailable for ticker")

// QuoteClient provides on-demand access to an upstream market-data provider.
// Implementations are assumed fallible, latent, and rate-limited; callers
// bound every call with a context deadline.
type QuoteClient interface {
	// GetCurrentPrice fetches the latest traded price for a ticker.
	GetCurrentPrice(ctx context.Context, ticker string) (*models.Quote, error)

	// GetHistory fetches daily closes for a ticker over [from, to] inclusive.
	// The result is sparse: only trading days appear.
	GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]models.PricePoint, error)
}
