package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/dispatch"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const (
	defaultStdDevThreshold = 2.0
	defaultExitThreshold   = 0.5
	defaultLookbackWindow  = 20
)

// MeanReversion goes long Quantity when the price falls threshold standard
// deviations below its trailing mean and short when it rises as far above.
// Positions are closed once the deviation falls back inside the exit band.
//
// Params:
//
//   - "lookback_bars" (int): observations in the trailing window. Defaults
//     to 20.
//   - "std_dev_threshold" (float): entry distance in standard deviations.
//     Defaults to 2.0.
//   - "exit_threshold" (float): exit band in standard deviations. Defaults
//     to 0.5.
//   - "long_only" (bool): never open short positions.
type MeanReversion struct {
	dispatch.Funcs

	cfg       Config
	assets    []domain.Asset
	tracker   *PriceTracker
	threshold float64
	exit      float64
	longOnly  bool
	minPoints int
	logger    *slog.Logger
}

// NewMeanReversion builds a MeanReversion strategy from cfg.
func NewMeanReversion(cfg Config, logger *slog.Logger) (dispatch.Strategy, error) {
	assets, err := cfg.assets()
	if err != nil {
		return nil, err
	}
	if !(cfg.Quantity > 0) {
		return nil, fmt.Errorf("strategy %s: quantity must be positive", cfg.Name)
	}
	lookback := cfg.intParam("lookback_bars", defaultLookbackWindow)
	if lookback < 2 {
		return nil, fmt.Errorf("strategy %s: lookback_bars must be at least 2, got %d", cfg.Name, lookback)
	}
	threshold := cfg.floatParam("std_dev_threshold", defaultStdDevThreshold)
	exit := cfg.floatParam("exit_threshold", defaultExitThreshold)
	if !(threshold > 0) || exit < 0 || exit >= threshold {
		return nil, fmt.Errorf("strategy %s: need 0 <= exit_threshold < std_dev_threshold, got %v and %v", cfg.Name, exit, threshold)
	}
	longOnly, _ := cfg.Params["long_only"].(bool)

	mr := &MeanReversion{
		cfg:       cfg,
		assets:    assets,
		tracker:   NewPriceTracker(0, lookback),
		threshold: threshold,
		exit:      exit,
		longOnly:  longOnly,
		minPoints: lookback,
		logger:    logger.With(slog.String("strategy", "mean_reversion")),
	}
	mr.OnHandleData = mr.handleData
	return mr, nil
}

func (mr *MeanReversion) handleData(tc *dispatch.Context, data dispatch.Data) error {
	positions, err := tc.Positions()
	if err != nil {
		return err
	}
	for _, a := range mr.assets {
		price, err := data.Price(a)
		if err != nil {
			return err
		}
		if err := mr.evaluate(tc, a, price, data.Time(), positions[a.Symbol].Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (mr *MeanReversion) evaluate(tc *dispatch.Context, a domain.Asset, price float64, at time.Time, held float64) error {
	mr.tracker.Track(a.Symbol, price, at)
	if mr.tracker.Len(a.Symbol) < mr.minPoints {
		return nil
	}
	avg := mr.tracker.Average(a.Symbol)
	vol := mr.tracker.Volatility(a.Symbol)
	if vol == 0 {
		return nil
	}
	deviation := (price - avg) / vol

	target := held
	switch {
	case deviation <= -mr.threshold:
		target = mr.cfg.Quantity
	case deviation >= mr.threshold && !mr.longOnly:
		target = -mr.cfg.Quantity
	case deviation >= mr.threshold:
		target = 0
	case math.Abs(deviation) <= mr.exit:
		target = 0
	}
	if target == held {
		return nil
	}

	id, err := tc.OrderTarget(a, target)
	if err != nil {
		return err
	}
	if id != "" {
		mr.logger.Info("mean reversion rebalance",
			slog.String("symbol", a.Symbol),
			slog.Float64("price", price),
			slog.Float64("avg", avg),
			slog.Float64("deviation", deviation),
			slog.Float64("target", target),
		)
	}
	return nil
}
