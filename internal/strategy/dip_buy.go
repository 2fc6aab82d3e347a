package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/dispatch"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const (
	defaultDropThreshold  = 0.10
	defaultRecoveryTarget = 0.05
	defaultDipWindow      = 2 * time.Hour
	defaultDipMinPoints   = 3
)

// DipBuy buys Quantity when a price falls drop_threshold below its trailing
// average and sells once it recovers recovery_target above the entry.
//
// Params:
//
//   - "drop_threshold" (float): fractional drop below the window average.
//     Defaults to 0.10.
//   - "recovery_target" (float): fractional gain over the entry that closes
//     the position. Defaults to 0.05.
//   - "window" (duration string): trailing window. Defaults to 2h.
//   - "min_points" (int): observations required before trading. Defaults
//     to 3.
type DipBuy struct {
	dispatch.Funcs

	cfg       Config
	assets    []domain.Asset
	tracker   *PriceTracker
	drop      float64
	recovery  float64
	minPoints int
	entries   map[string]float64
	logger    *slog.Logger
}

// NewDipBuy builds a DipBuy from cfg.
func NewDipBuy(cfg Config, logger *slog.Logger) (dispatch.Strategy, error) {
	assets, err := cfg.assets()
	if err != nil {
		return nil, err
	}
	if !(cfg.Quantity > 0) {
		return nil, fmt.Errorf("strategy %s: quantity must be positive", cfg.Name)
	}
	drop := cfg.floatParam("drop_threshold", defaultDropThreshold)
	if !(drop > 0 && drop < 1) {
		return nil, fmt.Errorf("strategy %s: drop_threshold must be in (0, 1), got %v", cfg.Name, drop)
	}
	recovery := cfg.floatParam("recovery_target", defaultRecoveryTarget)
	if recovery < 0 {
		return nil, fmt.Errorf("strategy %s: recovery_target must not be negative", cfg.Name)
	}
	window, err := cfg.durationParam("window", defaultDipWindow)
	if err != nil {
		return nil, err
	}
	minPoints := cfg.intParam("min_points", defaultDipMinPoints)
	if minPoints < 1 {
		return nil, fmt.Errorf("strategy %s: min_points must be at least 1", cfg.Name)
	}

	s := &DipBuy{
		cfg:       cfg,
		assets:    assets,
		tracker:   NewPriceTracker(window, 0),
		drop:      drop,
		recovery:  recovery,
		minPoints: minPoints,
		entries:   make(map[string]float64),
		logger:    logger.With(slog.String("strategy", "dip_buy")),
	}
	s.OnHandleData = s.handleData
	return s, nil
}

func (s *DipBuy) handleData(tc *dispatch.Context, data dispatch.Data) error {
	for _, a := range s.assets {
		price, err := data.Price(a)
		if err != nil {
			return err
		}
		if err := s.evaluate(tc, a, price); err != nil {
			return err
		}
		s.tracker.Track(a.Symbol, price, data.Time())
	}
	return nil
}

// evaluate compares price with the window as it stood before this bar.
func (s *DipBuy) evaluate(tc *dispatch.Context, a domain.Asset, price float64) error {
	if entry, open := s.entries[a.Symbol]; open {
		if price < entry*(1+s.recovery) {
			return nil
		}
		if _, err := tc.OrderTarget(a, 0); err != nil {
			return err
		}
		delete(s.entries, a.Symbol)
		s.logger.Info("dip recovered",
			slog.String("symbol", a.Symbol),
			slog.Float64("entry", entry),
			slog.Float64("price", price),
		)
		return nil
	}

	if s.tracker.Len(a.Symbol) < s.minPoints {
		return nil
	}
	avg := s.tracker.Average(a.Symbol)
	if price > avg*(1-s.drop) {
		return nil
	}
	id, err := tc.OrderTarget(a, s.cfg.Quantity)
	if err != nil {
		return err
	}
	s.entries[a.Symbol] = price
	s.logger.Info("dip detected",
		slog.String("symbol", a.Symbol),
		slog.String("order_id", id),
		slog.Float64("price", price),
		slog.Float64("avg", avg),
	)
	return nil
}
