package strategy

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/tradeloop/internal/dispatch"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/scheduler"
)

// ScheduledBuy buys Quantity of every symbol whenever its calendar rule
// triggers. With a target set it tops positions up to the target instead.
//
// Params:
//
//   - "date_rule" (string): every_day, week_start, week_end, month_start or
//     month_end. Defaults to every_day.
//   - "date_offset" (int): session offset for the date rule.
//   - "time_rule" (string): after_open, before_close or every. Defaults to
//     after_open.
//   - "time" (duration string): offset or period for the time rule.
//     Defaults to "30m".
//   - "target" (float): when positive, order towards this position instead
//     of adding Quantity.
type ScheduledBuy struct {
	dispatch.Funcs

	cfg    Config
	assets []domain.Asset
	rule   scheduler.Rule
	target float64
	logger *slog.Logger
	fired  int
}

// NewScheduledBuy builds a ScheduledBuy from cfg.
func NewScheduledBuy(cfg Config, logger *slog.Logger) (dispatch.Strategy, error) {
	assets, err := cfg.assets()
	if err != nil {
		return nil, err
	}
	target := cfg.floatParam("target", 0)
	if !(cfg.Quantity > 0) && !(target > 0) {
		return nil, fmt.Errorf("strategy %s: quantity or target must be positive", cfg.Name)
	}
	date, err := scheduler.ParseDateRule(cfg.stringParam("date_rule", "every_day"), cfg.intParam("date_offset", 0))
	if err != nil {
		return nil, err
	}
	tr, err := scheduler.ParseTimeRule(cfg.stringParam("time_rule", "after_open"), cfg.stringParam("time", "30m"))
	if err != nil {
		return nil, err
	}
	rule, err := scheduler.NewRule(date, tr)
	if err != nil {
		return nil, err
	}

	s := &ScheduledBuy{
		cfg:    cfg,
		assets: assets,
		rule:   rule,
		target: target,
		logger: logger.With(slog.String("strategy", "scheduled_buy")),
	}
	s.OnInitialize = s.initialize
	return s, nil
}

func (s *ScheduledBuy) initialize(tc *dispatch.Context) error {
	s.logger.Info("scheduling buys", slog.String("rule", s.rule.String()), slog.Int("symbols", len(s.assets)))
	return tc.Schedule("scheduled_buy", s.rule, s.buy)
}

func (s *ScheduledBuy) buy(tc *dispatch.Context) error {
	s.fired++
	for _, a := range s.assets {
		var err error
		if s.target > 0 {
			_, err = tc.OrderTarget(a, s.target)
		} else {
			_, err = tc.Order(a, s.cfg.Quantity)
		}
		if err != nil {
			return fmt.Errorf("scheduled buy %s: %w", a.Symbol, err)
		}
	}
	return nil
}

// Fired returns how many times the rule has triggered.
func (s *ScheduledBuy) Fired() int { return s.fired }
