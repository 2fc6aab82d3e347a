package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradeloop/internal/clock"
	"github.com/alanyoungcy/tradeloop/internal/command"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/session"
)

// Replayer produces a finite, ordered event schedule synchronously.
type Replayer interface {
	Replay(ctx context.Context, fn func(domain.TickEvent) error) error
}

// Producer pushes live events into a Latest slot until stopped. It closes
// the slot when it returns.
type Producer interface {
	Run(ctx context.Context, out *clock.Latest[domain.TickEvent]) error
	Stop()
}

// RunBacktest replays clk through the dispatcher on the calling goroutine
// and returns one performance snapshot per completed session. Cleanup runs
// even when the replay fails.
func (d *Dispatcher) RunBacktest(ctx context.Context, clk Replayer) ([]domain.PerformanceSnapshot, error) {
	d.setLive(false)
	d.logger.Info("backtest starting")

	err := clk.Replay(ctx, func(ev domain.TickEvent) error {
		return d.Dispatch(ctx, ev)
	})
	d.cleanup(ctx)

	snaps := d.collector.Snapshots()
	if err != nil {
		d.fail(ctx, err)
		return snaps, fmt.Errorf("dispatch: backtest: %w", err)
	}
	d.logger.Info("backtest finished", slog.Int("sessions", len(snaps)))
	return snaps, nil
}

// RunLive runs the clock and the dispatch loop concurrently. The clock
// goroutine only classifies and publishes events; the consumer goroutine
// owns all trading state. It returns nil when ctx is cancelled, the clock
// finishes, or a stop command arrives, and a wrapped error on a fatal
// failure. Cleanup runs in every case.
func (d *Dispatcher) RunLive(ctx context.Context, clk Producer, cmds command.Source) error {
	d.setLive(true)
	d.logger.Info("live run starting", slog.Int("reconcile_every", d.cfg.ReconcileEvery))

	latest := clock.NewLatest[domain.TickEvent]()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return clk.Run(gctx, latest)
	})
	g.Go(func() error {
		defer clk.Stop()
		return d.consume(gctx, latest, cmds)
	})

	err := g.Wait()
	d.cleanup(ctx)
	if err != nil {
		d.fail(ctx, err)
		return fmt.Errorf("dispatch: live: %w", err)
	}
	d.logger.Info("live run finished",
		slog.String("state", string(d.machine.State())),
		slog.Uint64("coalesced", latest.Dropped()),
	)
	return nil
}

// consume polls one command and then waits for the next event. A command
// arriving during the wait ends it early, so stop takes effect without
// waiting for a tick.
func (d *Dispatcher) consume(ctx context.Context, latest *clock.Latest[domain.TickEvent], cmds command.Source) error {
	var wake <-chan struct{}
	if n, ok := cmds.(command.Notifier); ok {
		wake = n.Ready()
	}
	for {
		if cmds != nil {
			if cmd, ok := cmds.Poll(); ok {
				err := d.HandleCommand(ctx, cmd)
				if errors.Is(err, domain.ErrStopRequested) {
					return nil
				}
				if err != nil {
					return err
				}
			}
		}

		ev, ok, err := latest.ReceiveOrWake(ctx, wake)
		if err != nil {
			if errors.Is(err, clock.ErrClosed) || ctx.Err() != nil {
				return nil // clean shutdown
			}
			return err
		}
		if !ok {
			continue
		}
		if err := d.dispatchLive(ctx, ev); err != nil {
			return err
		}
	}
}

// dispatchLive replays a boundary phase that was coalesced away before ev
// when ev would otherwise be illegal. Sparse wakes can legitimately skip a
// boundary: a session first seen after its close, or a consumer that fell
// behind the clock.
func (d *Dispatcher) dispatchLive(ctx context.Context, ev domain.TickEvent) error {
	trigger, ok := session.TriggerFor(ev.Phase)
	for i := 0; ok && i < 3 && !d.machine.Paused() && !d.machine.Can(trigger); i++ {
		missing, ok := bridge(d.machine.State(), ev.Phase)
		if !ok {
			break
		}
		d.logger.Warn("boundary phase coalesced, replaying",
			slog.String("missing", string(missing)),
			slog.String("received", string(ev.Phase)),
			slog.Time("at", ev.Timestamp),
		)
		if err := d.Dispatch(ctx, domain.TickEvent{Timestamp: ev.Timestamp, Phase: missing}); err != nil {
			return err
		}
	}
	return d.Dispatch(ctx, ev)
}

// bridge returns the phase that makes p legal from s.
func bridge(s session.State, p domain.Phase) (domain.Phase, bool) {
	switch {
	case s == session.StateStartup && p != domain.PhaseAlgoStart:
		return domain.PhaseAlgoStart, true
	case p == domain.PhaseTradingBar && (s == session.StateInitialized || s == session.StateAfterTradingHours):
		return domain.PhaseBeforeTradingStart, true
	case p == domain.PhaseBeforeTradingStart && s == session.StateTradingBar:
		return domain.PhaseAfterTradingHours, true
	case p == domain.PhaseAfterTradingHours && (s == session.StateBeforeTradingStart || s == session.StateInitialized):
		return domain.PhaseHeartbeat, true
	default:
		return "", false
	}
}

func (d *Dispatcher) setLive(live bool) {
	d.mu.Lock()
	d.live = live
	d.mu.Unlock()
}

func (d *Dispatcher) fail(ctx context.Context, err error) {
	d.logger.Error("run aborted", slog.String("error", err.Error()))
	d.notify(context.WithoutCancel(ctx), domain.EventRunFatal, "Run aborted", fmt.Sprintf("%s: %v", d.cfg.Algo, err))
}
