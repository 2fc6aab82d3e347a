package marketdata

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// RandomWalk is a synthetic geometric random walk for backtests. Each symbol
// takes one step per distinct timestamp it is asked about, and repeated
// queries for the same timestamp return the same price, so a replay with the
// same seed yields the same series.
type RandomWalk struct {
	volatility float64

	mu    sync.Mutex
	rng   *rand.Rand
	start map[string]float64
	last  map[string]walkPoint
}

type walkPoint struct {
	at    time.Time
	price float64
}

// NewRandomWalk starts each symbol at its entry in start. volatility is the
// standard deviation of the per-step log return.
func NewRandomWalk(seed uint64, volatility float64, start map[string]float64) *RandomWalk {
	w := &RandomWalk{
		volatility: volatility,
		rng:        rand.New(rand.NewPCG(seed, seed+1)),
		start:      make(map[string]float64, len(start)),
		last:       make(map[string]walkPoint),
	}
	for k, v := range start {
		w.start[k] = v
	}
	return w
}

// LastPrice implements domain.PriceSource. Asking about an earlier time than
// the last step returns the last price.
func (w *RandomWalk) LastPrice(_ context.Context, asset domain.Asset, at time.Time) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pt, ok := w.last[asset.Symbol]
	if !ok {
		s, known := w.start[asset.Symbol]
		if !known || s <= 0 {
			return 0, fmt.Errorf("marketdata: %s: %w", asset.Symbol, domain.ErrMissingPrice)
		}
		pt = walkPoint{at: at, price: s}
		w.last[asset.Symbol] = pt
		return s, nil
	}
	if !at.After(pt.at) {
		return pt.price, nil
	}

	step := w.rng.NormFloat64() * w.volatility
	pt = walkPoint{at: at, price: pt.price * math.Exp(step)}
	w.last[asset.Symbol] = pt
	return pt.price, nil
}
