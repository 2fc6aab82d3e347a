// Package marketdata provides the price sources the execution engine and
// strategies read from.
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Static returns fixed prices until they are changed with Set.
type Static struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStatic copies prices into a new source.
func NewStatic(prices map[string]float64) *Static {
	s := &Static{prices: make(map[string]float64, len(prices))}
	for k, v := range prices {
		s.prices[k] = v
	}
	return s
}

// Set updates one symbol.
func (s *Static) Set(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

// LastPrice implements domain.PriceSource.
func (s *Static) LastPrice(_ context.Context, asset domain.Asset, _ time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[asset.Symbol]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("marketdata: %s: %w", asset.Symbol, domain.ErrMissingPrice)
	}
	return p, nil
}
