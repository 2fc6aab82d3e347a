package controls

import (
	"log/slog"
)

// Config lists the controls to enable. Zero values leave a control off.
type Config struct {
	MaxOrderQty         float64
	MaxOrderNotional    float64
	MaxPositionQty      float64
	MaxPositionNotional float64
	MaxGrossExposure    float64
	MaxLeverage         float64
	MaxDailyOrders      int
	LongOnly            bool
	Blacklist           []string
}

// FromConfig builds a Set. Invalid limits are reported before any run starts.
func FromConfig(cfg Config, logger *slog.Logger) (*Set, error) {
	set := NewSet(logger)

	if len(cfg.Blacklist) > 0 {
		set.Add(NewBlacklist(cfg.Blacklist...))
	}
	if cfg.LongOnly {
		set.Add(LongOnly{})
	}
	if cfg.MaxOrderQty != 0 || cfg.MaxOrderNotional != 0 {
		c, err := NewMaxOrderSize("", cfg.MaxOrderQty, cfg.MaxOrderNotional)
		if err != nil {
			return nil, err
		}
		set.Add(c)
	}
	if cfg.MaxPositionQty != 0 || cfg.MaxPositionNotional != 0 {
		c, err := NewMaxPositionSize("", cfg.MaxPositionQty, cfg.MaxPositionNotional)
		if err != nil {
			return nil, err
		}
		set.Add(c)
	}
	if cfg.MaxGrossExposure != 0 {
		c, err := NewMaxGrossExposure(cfg.MaxGrossExposure)
		if err != nil {
			return nil, err
		}
		set.Add(c)
	}
	if cfg.MaxLeverage != 0 {
		c, err := NewMaxLeverage(cfg.MaxLeverage)
		if err != nil {
			return nil, err
		}
		set.Add(c)
	}
	if cfg.MaxDailyOrders != 0 {
		c, err := NewMaxDailyOrders(cfg.MaxDailyOrders)
		if err != nil {
			return nil, err
		}
		set.Add(c)
	}
	return set, nil
}
