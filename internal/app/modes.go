package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradeloop/internal/clock"
	"github.com/alanyoungcy/tradeloop/internal/command"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/marketdata"
	"github.com/alanyoungcy/tradeloop/internal/perf"
	"github.com/alanyoungcy/tradeloop/internal/server"
	"github.com/alanyoungcy/tradeloop/internal/server/handler"
	"github.com/alanyoungcy/tradeloop/internal/server/ws"
	"github.com/alanyoungcy/tradeloop/internal/strategy"
)

// reportPartSize is the multipart chunk for report uploads.
const reportPartSize = 8 << 20

// Report is the result of a backtest.
type Report struct {
	Algo      string                       `json:"algo"`
	Strategy  string                       `json:"strategy"`
	Start     string                       `json:"start"`
	End       string                       `json:"end"`
	Seed      uint64                       `json:"seed"`
	Summary   Summary                      `json:"summary"`
	Snapshots []domain.PerformanceSnapshot `json:"snapshots"`
}

// Summary condenses a backtest.
type Summary struct {
	Sessions          int     `json:"sessions"`
	Orders            int     `json:"orders"`
	FinalNetLiquidity float64 `json:"final_net_liquidity"`
	CumulativeReturn  float64 `json:"cumulative_return"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	RealizedPnL       float64 `json:"realized_pnl"`
	Commissions       float64 `json:"commissions"`
}

// Backtest replays the configured date range against a seeded random walk.
// The report is written to backtest.output_path and, when S3 is enabled,
// uploaded under reports/.
func (a *App) Backtest(ctx context.Context, deps *Dependencies) (*Report, error) {
	cfg := a.cfg
	prices := marketdata.NewRandomWalk(cfg.Backtest.Seed, cfg.Backtest.Volatility, startPrices(cfg))
	collector := &perf.Collector{}

	rt, err := a.newRuntime(deps, prices, cfg.Backtest.InitialCapital, collector)
	if err != nil {
		return nil, err
	}

	loc := rt.cal.Location()
	start, err := time.ParseInLocation(time.DateOnly, cfg.Backtest.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("app: backtest start: %w", err)
	}
	end, err := time.ParseInLocation(time.DateOnly, cfg.Backtest.End, loc)
	if err != nil {
		return nil, fmt.Errorf("app: backtest end: %w", err)
	}
	clk, err := clock.NewSimulatedClock(rt.cal, start, end, cfg.Backtest.BarPeriod.Duration, cfg.Calendar.PreOpen.Duration)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.audit(ctx, deps, "run.started", map[string]any{"mode": "backtest", "start": cfg.Backtest.Start, "end": cfg.Backtest.End})
	began := time.Now()
	snaps, err := rt.dispatcher.RunBacktest(ctx, clk)
	if err != nil {
		a.audit(ctx, deps, "run.failed", map[string]any{"mode": "backtest", "error": err.Error()})
		return nil, fmt.Errorf("app: backtest: %w", err)
	}

	report := &Report{
		Algo:      cfg.Algo.Name,
		Strategy:  cfg.Algo.Strategy,
		Start:     cfg.Backtest.Start,
		End:       cfg.Backtest.End,
		Seed:      cfg.Backtest.Seed,
		Snapshots: snaps,
		Summary: Summary{
			Sessions:    len(clk.Sessions()),
			RealizedPnL: rt.blotter.RealizedPnL(),
			Commissions: rt.blotter.Commissions(),
		},
	}
	for _, day := range rt.blotter.Ledger() {
		report.Summary.Orders += len(day.Orders)
	}
	if n := len(snaps); n > 0 {
		last := snaps[n-1]
		report.Summary.FinalNetLiquidity = last.NetLiquidity
		report.Summary.CumulativeReturn = last.CumulativeReturn
		report.Summary.MaxDrawdown = last.MaxDrawdown
	}

	a.logger.InfoContext(ctx, "backtest finished",
		slog.Int("sessions", report.Summary.Sessions),
		slog.Int("orders", report.Summary.Orders),
		slog.Float64("net_liquidity", report.Summary.FinalNetLiquidity),
		slog.Float64("return", report.Summary.CumulativeReturn),
		slog.Duration("elapsed", time.Since(began)),
	)
	a.audit(ctx, deps, "run.finished", map[string]any{"mode": "backtest", "orders": report.Summary.Orders})

	if err := a.writeReport(ctx, deps, report); err != nil {
		return report, err
	}
	return report, nil
}

func (a *App) writeReport(ctx context.Context, deps *Dependencies, r *Report) error {
	if a.cfg.Backtest.OutputPath == "" && deps.BlobWriter == nil {
		return nil
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("app: marshal report: %w", err)
	}
	if path := a.cfg.Backtest.OutputPath; path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("app: write report: %w", err)
		}
		a.logger.InfoContext(ctx, "report written", slog.String("path", path))
	}
	if deps.BlobWriter != nil {
		key := fmt.Sprintf("reports/%s/%s_%s_seed%d.json", r.Algo, r.Start, r.End, r.Seed)
		if err := deps.BlobWriter.PutMultipart(ctx, key, bytes.NewReader(data), reportPartSize); err != nil {
			return fmt.Errorf("app: upload report: %w", err)
		}
		a.logger.InfoContext(ctx, "report uploaded", slog.String("key", key))
	}
	return nil
}

// Paper runs the strategy in real time against prices from the Redis price
// cache and the simulated engine. A Redis lock keeps one writer per algo
// name; losing it ends the run.
func (a *App) Paper(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	if deps.PriceCache == nil || deps.SignalBus == nil || deps.LockManager == nil {
		return errors.New("app: paper mode requires redis")
	}

	lockKey := "algo:" + cfg.Algo.Name
	lost, release, err := deps.LockManager.Hold(ctx, lockKey, cfg.Live.LockTTL.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: algo %q is already running: %w", cfg.Algo.Name, err)
		}
		return fmt.Errorf("app: %w", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sinks := perf.MultiSink{perf.NewBusSink(deps.SignalBus, cfg.Live.PerfChannel).WithHistory(cfg.Live.PerfStream)}
	var hub *ws.Hub
	if cfg.Server.Enabled {
		hub = ws.NewHub(nil, a.logger)
		sinks = append(sinks, hub)
	}

	prices := marketdata.NewCached(deps.PriceCache, cfg.Live.MaxPriceAge.Duration)
	rt, err := a.newRuntime(deps, prices, cfg.Live.InitialCapital, sinks)
	if err != nil {
		return err
	}
	clk, err := clock.NewRealtimeClock(rt.cal, cfg.Live.Period.Duration,
		clock.WithPreOpen(cfg.Calendar.PreOpen.Duration),
		clock.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	queue := command.NewQueue(cfg.Live.CommandQueue, a.logger)

	a.audit(ctx, deps, "run.started", map[string]any{"mode": "paper"})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return rt.dispatcher.RunLive(gctx, clk, queue)
	})
	g.Go(func() error {
		return command.Listen(gctx, deps.SignalBus, cfg.Live.CommandChannel, queue)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-lost:
			return fmt.Errorf("app: lost run lock %s", lockKey)
		}
	})

	if cfg.Live.SyntheticFeed {
		walk := marketdata.NewRandomWalk(cfg.Backtest.Seed, cfg.Backtest.Volatility, startPrices(cfg))
		feed := marketdata.NewFeed(walk, deps.PriceCache, symbolsOf(cfg.Algo.Symbols), cfg.Live.Period.Duration, a.logger)
		g.Go(func() error { return feed.Run(gctx) })
	}

	if hub != nil {
		hub.SetStatus(func() any { return rt.dispatcher.Status() })
		srv := server.New(server.Config{
			Port:             cfg.Server.Port,
			CORSOrigins:      cfg.Server.CORSOrigins,
			AuthToken:        cfg.Server.AuthToken,
			CommandRateLimit: cfg.Server.CommandRateLimit,
		}, server.Handlers{
			Health:    handler.NewHealthHandler(deps.Checks),
			Status:    handler.NewStatusHandler(rt.dispatcher).WithStrategies(strategy.Builtin().ListInfo()),
			Positions: handler.NewPositionHandler(rt.blotter),
			Orders:    handler.NewOrderHandler(rt.blotter, queue),
			Commands:  handler.NewCommandHandler(queue, a.logger),
			Audit:     handler.NewAuditHandler(deps.AuditStore),
			Market:    handler.NewMarketHandler(deps.PriceCache, cfg.Algo.Symbols, deps.SignalBus, cfg.Live.PerfStream),
		}, hub, deps.RateLimiter, a.logger)
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error { return srv.Run(gctx) })
	}

	err = g.Wait()
	detail := map[string]any{"mode": "paper"}
	if err != nil {
		detail["error"] = err.Error()
	}
	a.audit(context.WithoutCancel(ctx), deps, "run.stopped", detail)
	return err
}

func (a *App) audit(ctx context.Context, deps *Dependencies, event string, detail map[string]any) {
	if deps.AuditStore == nil {
		return
	}
	detail["algo"] = a.cfg.Algo.Name
	if err := deps.AuditStore.Log(ctx, event, detail); err != nil {
		a.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func symbolsOf(symbols []string) []domain.Asset {
	out := make([]domain.Asset, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, domain.Spot(s))
	}
	return out
}
