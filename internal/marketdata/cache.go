package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Cached reads prices written to a shared price cache by an external feed.
// Quotes older than maxAge are treated as missing.
type Cached struct {
	cache  domain.PriceCache
	maxAge time.Duration
}

// NewCached wraps cache. A zero maxAge accepts quotes of any age.
func NewCached(cache domain.PriceCache, maxAge time.Duration) *Cached {
	return &Cached{cache: cache, maxAge: maxAge}
}

// LastPrice implements domain.PriceSource.
func (c *Cached) LastPrice(ctx context.Context, asset domain.Asset, at time.Time) (float64, error) {
	price, ts, err := c.cache.GetPrice(ctx, asset.Symbol)
	if err != nil {
		return 0, fmt.Errorf("marketdata: %s: %w", asset.Symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("marketdata: %s: %w", asset.Symbol, domain.ErrMissingPrice)
	}
	if c.maxAge > 0 && !ts.IsZero() && at.Sub(ts) > c.maxAge {
		return 0, fmt.Errorf("marketdata: %s: quote from %s is stale: %w", asset.Symbol, ts.Format(time.RFC3339), domain.ErrMissingPrice)
	}
	return price, nil
}
