package marketdata

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Feed copies prices from a source into a shared price cache on a fixed
// period. Paper runs use it with a RandomWalk when no external feed writes
// the cache.
type Feed struct {
	src    domain.PriceSource
	cache  domain.PriceCache
	assets []domain.Asset
	period time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewFeed creates a feed for assets.
func NewFeed(src domain.PriceSource, cache domain.PriceCache, assets []domain.Asset, period time.Duration, logger *slog.Logger) *Feed {
	return &Feed{
		src:    src,
		cache:  cache,
		assets: assets,
		period: period,
		now:    time.Now,
		logger: logger.With(slog.String("component", "price_feed")),
	}
}

// Run publishes once immediately and then every period until ctx ends.
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.period)
	defer ticker.Stop()
	for {
		f.Tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick publishes one price per asset. Failures are logged and skipped.
func (f *Feed) Tick(ctx context.Context) {
	at := f.now()
	for _, a := range f.assets {
		price, err := f.src.LastPrice(ctx, a, at)
		if err == nil {
			err = f.cache.SetPrice(ctx, a.Symbol, price, at)
		}
		if err != nil {
			f.logger.WarnContext(ctx, "publish price failed",
				slog.String("symbol", a.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}
