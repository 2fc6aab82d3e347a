package marketdata

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestRandomWalkIsReproducible(t *testing.T) {
	ctx := context.Background()
	asset := domain.Spot("ACME")
	t0 := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	series := func() []float64 {
		w := NewRandomWalk(42, 0.01, map[string]float64{"ACME": 100})
		var out []float64
		for i := 0; i < 20; i++ {
			ts := t0.Add(time.Duration(i) * time.Minute)
			p, err := w.LastPrice(ctx, asset, ts)
			require.NoError(t, err)
			again, err := w.LastPrice(ctx, asset, ts)
			require.NoError(t, err)
			require.Equal(t, p, again, "same timestamp must return the same price")
			out = append(out, p)
		}
		return out
	}

	a, b := series(), series()
	assert.Equal(t, a, b)
	assert.Equal(t, 100.0, a[0])
	assert.NotEqual(t, a[0], a[19])
}

func TestRandomWalkUnknownSymbol(t *testing.T) {
	w := NewRandomWalk(1, 0.01, nil)
	_, err := w.LastPrice(context.Background(), domain.Spot("NOPE"), time.Now())
	assert.ErrorIs(t, err, domain.ErrMissingPrice)
}

type memCache struct {
	price float64
	ts    time.Time
}

func (m memCache) SetPrice(context.Context, string, float64, time.Time) error { return nil }
func (m memCache) GetPrice(context.Context, string) (float64, time.Time, error) {
	return m.price, m.ts, nil
}
func (m memCache) GetPrices(context.Context, []string) (map[string]float64, error) { return nil, nil }

func TestCachedRejectsStaleQuotes(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	src := NewCached(memCache{price: 101.5, ts: now.Add(-time.Minute)}, 5*time.Minute)

	p, err := src.LastPrice(context.Background(), domain.Spot("ACME"), now)
	require.NoError(t, err)
	assert.Equal(t, 101.5, p)

	_, err = src.LastPrice(context.Background(), domain.Spot("ACME"), now.Add(10*time.Minute))
	assert.ErrorIs(t, err, domain.ErrMissingPrice)
}

func TestStatic(t *testing.T) {
	s := NewStatic(map[string]float64{"ACME": 10})
	p, err := s.LastPrice(context.Background(), domain.Spot("ACME"), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10.0, p)

	s.Set("ACME", 12)
	p, _ = s.LastPrice(context.Background(), domain.Spot("ACME"), time.Time{})
	assert.Equal(t, 12.0, p)
}

type mapCache struct {
	prices map[string]float64
	times  map[string]time.Time
}

func (m *mapCache) SetPrice(_ context.Context, symbol string, price float64, ts time.Time) error {
	m.prices[symbol] = price
	m.times[symbol] = ts
	return nil
}

func (m *mapCache) GetPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	p, ok := m.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, m.times[symbol], nil
}

func (m *mapCache) GetPrices(_ context.Context, symbols []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, s := range symbols {
		if p, ok := m.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func TestFeedTickPublishesKnownSymbols(t *testing.T) {
	cache := &mapCache{prices: map[string]float64{}, times: map[string]time.Time{}}
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	f := NewFeed(NewStatic(map[string]float64{"ACME": 101}), cache,
		[]domain.Asset{domain.Spot("ACME"), domain.Spot("NOPE")}, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.now = func() time.Time { return at }

	f.Tick(context.Background())

	assert.Equal(t, map[string]float64{"ACME": 101}, cache.prices)
	price, err := NewCached(cache, time.Minute).LastPrice(context.Background(), domain.Spot("ACME"), at.Add(30*time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 101, price, 1e-12)
}
