package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tradeloop/internal/blotter"
	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/controls"
	"github.com/alanyoungcy/tradeloop/internal/dispatch"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/execution"
	"github.com/alanyoungcy/tradeloop/internal/perf"
	"github.com/alanyoungcy/tradeloop/internal/scheduler"
	"github.com/alanyoungcy/tradeloop/internal/strategy"
)

// defaultStartPrice seeds the synthetic walk for symbols without one.
const defaultStartPrice = 100.0

// runtime is the trading stack shared by every mode.
type runtime struct {
	cal        *calendar.Exchange
	engine     *execution.Engine
	blotter    *blotter.Blotter
	dispatcher *dispatch.Dispatcher
}

func newCalendar(cfg config.CalendarConfig) (*calendar.Exchange, error) {
	cal, err := calendar.NewExchange(calendar.Options{
		Timezone: cfg.Timezone,
		Open:     cfg.Open,
		Close:    cfg.Close,
		Holidays: cfg.Holidays,
		Sessions: cfg.Sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("app: calendar: %w", err)
	}
	return cal, nil
}

func newEngine(cfg config.ExecutionConfig, prices domain.PriceSource, capital float64, run string, seed uint64, logger *slog.Logger) (*execution.Engine, error) {
	opts := []execution.Option{
		execution.WithIDGenerator(execution.NewIDGenerator(run)),
		execution.WithLogger(logger),
	}
	if strings.EqualFold(cfg.FillModel, "random") {
		opts = append(opts, execution.WithFillModel(execution.NewRandomFillModel(seed, cfg.MaxSlippage, cfg.MinFillFraction)))
	}
	if cfg.CommissionPerQty > 0 {
		opts = append(opts, execution.WithCommission(execution.PerShareCommission{PerUnit: cfg.CommissionPerQty, Minimum: cfg.MinCommission}))
	} else {
		opts = append(opts, execution.WithCommission(execution.BpsCommission{Bps: cfg.CommissionBps, Minimum: cfg.MinCommission}))
	}
	if len(cfg.MarginRates) > 0 {
		table := execution.DefaultMarginTable()
		for k, v := range cfg.MarginRates {
			table[domain.InstrumentType(k)] = v
		}
		opts = append(opts, execution.WithMarginTable(table))
	}

	eng, err := execution.NewEngine(prices, capital, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: engine: %w", err)
	}
	return eng, nil
}

// newRuntime assembles calendar, engine, blotter, controls, scheduler,
// strategy and dispatcher for one run.
func (a *App) newRuntime(deps *Dependencies, prices domain.PriceSource, capital float64, sink perf.Sink) (*runtime, error) {
	cfg := a.cfg
	cal, err := newCalendar(cfg.Calendar)
	if err != nil {
		return nil, err
	}

	eng, err := newEngine(cfg.Execution, prices, capital, cfg.Algo.Name, cfg.Backtest.Seed, a.logger)
	if err != nil {
		return nil, err
	}

	opts := []blotter.Option{
		blotter.WithLogger(a.logger),
		blotter.WithAlerter(deps.Notifier),
	}
	if deps.LedgerStore != nil {
		opts = append(opts, blotter.WithLedgerStore(deps.LedgerStore))
	}
	if deps.Archiver != nil {
		opts = append(opts, blotter.WithArchiver(deps.Archiver))
	}
	if deps.AuditStore != nil {
		opts = append(opts, blotter.WithAuditStore(deps.AuditStore))
	}
	bl, err := blotter.New(blotter.Config{
		Algo:           cfg.Algo.Name,
		InitialCapital: capital,
		MaxLedgerDays:  cfg.Blotter.MaxLedgerDays,
		EvictChunk:     cfg.Blotter.EvictChunk,
		DriftTolerance: cfg.Blotter.DriftTolerance,
		Location:       cal.Location(),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: blotter: %w", err)
	}

	ctrl, err := controls.FromConfig(controls.Config{
		MaxOrderQty:         cfg.Controls.MaxOrderQty,
		MaxOrderNotional:    cfg.Controls.MaxOrderNotional,
		MaxPositionQty:      cfg.Controls.MaxPositionQty,
		MaxPositionNotional: cfg.Controls.MaxPositionNotional,
		MaxGrossExposure:    cfg.Controls.MaxGrossExposure,
		MaxLeverage:         cfg.Controls.MaxLeverage,
		MaxDailyOrders:      cfg.Controls.MaxDailyOrders,
		LongOnly:            cfg.Controls.LongOnly,
		Blacklist:           cfg.Controls.Blacklist,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: controls: %w", err)
	}

	strat, err := strategy.Builtin().New(strategy.Config{
		Name:     cfg.Algo.Strategy,
		Symbols:  cfg.Algo.Symbols,
		Quantity: cfg.Algo.Quantity,
		Params:   cfg.Algo.Params,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	d, err := dispatch.New(dispatch.Config{
		Algo:           cfg.Algo.Name,
		Mode:           strings.ToLower(cfg.Mode),
		InitialCapital: capital,
		ReconcileEvery: cfg.Blotter.ReconcileEvery,
	}, strat, dispatch.Deps{
		Broker:    eng,
		Prices:    prices,
		Blotter:   bl,
		Scheduler: scheduler.New(cal, a.logger),
		Controls:  ctrl,
		Sink:      sink,
		Alerter:   deps.Notifier,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: dispatcher: %w", err)
	}

	return &runtime{cal: cal, engine: eng, blotter: bl, dispatcher: d}, nil
}

// startPrices fills in the default start price for configured symbols the
// walk has no entry for.
func startPrices(cfg *config.Config) map[string]float64 {
	out := make(map[string]float64, len(cfg.Algo.Symbols))
	for k, v := range cfg.Backtest.StartPrices {
		out[k] = v
	}
	for _, s := range cfg.Algo.Symbols {
		if out[s] <= 0 {
			out[s] = defaultStartPrice
		}
	}
	return out
}
