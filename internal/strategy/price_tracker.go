package strategy

import (
	"math"
	"time"
)

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// PriceTracker keeps a trailing window of observations per symbol. It is
// only touched from the dispatch loop and needs no locking.
type PriceTracker struct {
	history map[string][]PricePoint
	window  time.Duration
	maxLen  int
}

// NewPriceTracker keeps points younger than window, and at most maxLen
// points per symbol when maxLen > 0.
func NewPriceTracker(window time.Duration, maxLen int) *PriceTracker {
	return &PriceTracker{
		history: make(map[string][]PricePoint),
		window:  window,
		maxLen:  maxLen,
	}
}

// Track records an observation and trims points outside the window.
func (pt *PriceTracker) Track(symbol string, price float64, ts time.Time) {
	pts := append(pt.history[symbol], PricePoint{Price: price, Time: ts})

	if pt.window > 0 {
		cutoff := ts.Add(-pt.window)
		i := 0
		for i < len(pts) && pts[i].Time.Before(cutoff) {
			i++
		}
		pts = pts[i:]
	}
	if pt.maxLen > 0 && len(pts) > pt.maxLen {
		pts = pts[len(pts)-pt.maxLen:]
	}
	pt.history[symbol] = pts
}

// Len returns the number of points held for symbol.
func (pt *PriceTracker) Len(symbol string) int {
	return len(pt.history[symbol])
}

// Average returns the mean price in the window, or 0 without data.
func (pt *PriceTracker) Average(symbol string) float64 {
	pts := pt.history[symbol]
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Price
	}
	return sum / float64(len(pts))
}

// Volatility returns the population standard deviation of the window, or 0
// with fewer than two points.
func (pt *PriceTracker) Volatility(symbol string) float64 {
	pts := pt.history[symbol]
	if len(pts) < 2 {
		return 0
	}
	mean := pt.Average(symbol)
	var variance float64
	for _, p := range pts {
		d := p.Price - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(pts)))
}
