package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/blotter"
	"github.com/alanyoungcy/tradeloop/internal/controls"
	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/perf"
	"github.com/alanyoungcy/tradeloop/internal/scheduler"
	"github.com/alanyoungcy/tradeloop/internal/session"
)

const defaultCleanupTimeout = 15 * time.Second

// Config holds the dispatcher settings.
type Config struct {
	Algo           string
	// Mode is the run mode name reported by Status. Empty reports live or
	// backtest by how the run was started.
	Mode           string
	InitialCapital float64
	// ReconcileEvery reconciles every N trading bars in live runs. Zero
	// leaves reconciliation to the end of each session.
	ReconcileEvery int
	CleanupTimeout time.Duration
}

// Deps are the components a Dispatcher drives. Broker, Blotter and
// Scheduler are required.
type Deps struct {
	Broker    domain.Broker
	Prices    domain.PriceSource
	Blotter   *blotter.Blotter
	Scheduler *scheduler.Scheduler
	Controls  *controls.Set
	Sink      perf.Sink
	Alerter   domain.Alerter
	Logger    *slog.Logger
}

// Optional phase hooks. The simulated engine implements all three; a live
// venue adapter usually implements none.
type (
	beforeTradingStartHook interface {
		BeforeTradingStart(ctx context.Context, ts time.Time) error
	}
	tradingBarHook interface {
		OnTradingBar(ctx context.Context, ts time.Time) error
	}
	afterTradingHoursHook interface {
		AfterTradingHours(ctx context.Context, ts time.Time) error
	}
)

// Status is a point-in-time view of the run for operators.
type Status struct {
	Algo  string        `json:"algo"`
	Mode  string        `json:"mode"`
	State session.State `json:"state"`
	Phase domain.Phase  `json:"phase"`
	Time  time.Time     `json:"time"`
}

// Dispatcher routes clock events to the engine, the blotter and the user
// strategy in a fixed order, guarded by the session state machine.
type Dispatcher struct {
	cfg      Config
	strategy Strategy
	broker   domain.Broker
	prices   domain.PriceSource
	blotter  *blotter.Blotter
	sched    *scheduler.Scheduler
	controls *controls.Set
	sink     perf.Sink
	alerter  domain.Alerter
	logger   *slog.Logger

	machine   *session.Machine
	tracker   *perf.Tracker
	collector *perf.Collector
	shutdown  []func(ctx context.Context) error

	live        bool
	initialized bool
	bars        int
	cleanOnce   sync.Once

	mu    sync.RWMutex
	phase domain.Phase
	now   time.Time
}

// New validates the configuration and returns a dispatcher in Startup.
func New(cfg Config, strategy Strategy, deps Deps) (*Dispatcher, error) {
	var errs []error
	if cfg.Algo == "" {
		errs = append(errs, errors.New("algo name is required"))
	}
	if !(cfg.InitialCapital > 0) {
		errs = append(errs, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital))
	}
	if cfg.ReconcileEvery < 0 {
		errs = append(errs, fmt.Errorf("reconcile interval must not be negative, got %d", cfg.ReconcileEvery))
	}
	if strategy == nil {
		errs = append(errs, errors.New("strategy is required"))
	}
	if deps.Broker == nil {
		errs = append(errs, errors.New("broker is required"))
	}
	if deps.Blotter == nil {
		errs = append(errs, errors.New("blotter is required"))
	}
	if deps.Scheduler == nil {
		errs = append(errs, errors.New("scheduler is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("dispatch: %w", errors.Join(errs...))
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:       cfg,
		strategy:  strategy,
		broker:    deps.Broker,
		prices:    deps.Prices,
		blotter:   deps.Blotter,
		sched:     deps.Scheduler,
		controls:  deps.Controls,
		sink:      deps.Sink,
		alerter:   deps.Alerter,
		logger:    logger.With(slog.String("component", "dispatcher"), slog.String("algo", cfg.Algo)),
		machine:   session.New(),
		tracker:   perf.NewTracker(cfg.InitialCapital),
		collector: &perf.Collector{},
	}, nil
}

// State returns the session state.
func (d *Dispatcher) State() session.State { return d.machine.State() }

// Status returns the current run status. It is safe to call from other
// goroutines.
func (d *Dispatcher) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	mode := d.cfg.Mode
	switch {
	case mode != "":
	case d.live:
		mode = "live"
	default:
		mode = "backtest"
	}
	return Status{
		Algo:  d.cfg.Algo,
		Mode:  mode,
		State: d.machine.State(),
		Phase: d.phase,
		Time:  d.now,
	}
}

// LastSnapshot returns the most recent performance snapshot.
func (d *Dispatcher) LastSnapshot() (domain.PerformanceSnapshot, bool) {
	return d.tracker.Last()
}

// Dispatch processes one clock event. The state transition is applied first
// and an illegal one aborts the run. Within the phase, steps run in order;
// a recoverable failure is reported and the remaining steps still run, a
// fatal one is returned immediately. While paused, events only advance time.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.TickEvent) error {
	d.blotter.Advance(ev.Timestamp)
	d.mu.Lock()
	d.now = ev.Timestamp
	d.mu.Unlock()

	if d.machine.Paused() {
		d.logger.Debug("paused, event skipped", slog.String("phase", string(ev.Phase)), slog.Time("at", ev.Timestamp))
		return nil
	}

	trigger, ok := session.TriggerFor(ev.Phase)
	if !ok {
		return fmt.Errorf("dispatch: unknown phase %q: %w", ev.Phase, domain.ErrFatal)
	}
	if _, err := d.machine.Fire(trigger); err != nil {
		return fmt.Errorf("dispatch: %s at %s: %w", ev.Phase, ev.Timestamp.Format(time.RFC3339), err)
	}
	d.mu.Lock()
	d.phase = ev.Phase
	d.mu.Unlock()

	tc := d.newContext(ctx, ev.Timestamp, ev.Phase)
	switch ev.Phase {
	case domain.PhaseAlgoStart:
		return d.steps(ctx, ev,
			step{"strategy", func() error {
				if d.initialized {
					return nil
				}
				d.initialized = true
				return d.strategy.Initialize(tc)
			}},
		)

	case domain.PhaseBeforeTradingStart:
		if d.controls != nil {
			d.controls.OnBeforeTradingStart()
		}
		return d.steps(ctx, ev,
			step{"engine", func() error {
				if h, ok := d.broker.(beforeTradingStartHook); ok {
					return h.BeforeTradingStart(ctx, ev.Timestamp)
				}
				return nil
			}},
			step{"performance", func() error {
				acct, err := d.broker.Account(ctx)
				if err != nil {
					return err
				}
				d.tracker.StartDay(acct.NetLiquidity)
				return nil
			}},
			step{"strategy", func() error { return d.strategy.BeforeTradingStart(tc) }},
		)

	case domain.PhaseTradingBar:
		err := d.steps(ctx, ev,
			step{"scheduler", func() error { return d.sched.TriggerDue(ctx, ev.Timestamp) }},
			step{"engine", func() error {
				if h, ok := d.broker.(tradingBarHook); ok {
					return h.OnTradingBar(ctx, ev.Timestamp)
				}
				return nil
			}},
			step{"strategy", func() error { return d.strategy.HandleData(tc, tc.Data()) }},
		)
		if err != nil || !d.live {
			return err
		}
		d.bars++
		var extra []step
		if d.cfg.ReconcileEvery > 0 && d.bars%d.cfg.ReconcileEvery == 0 {
			extra = append(extra, step{"reconcile", func() error {
				_, err := d.reconcile(ctx)
				return err
			}})
		}
		extra = append(extra, step{"performance", func() error { return d.snapshot(ctx, ev) }})
		return d.steps(ctx, ev, extra...)

	case domain.PhaseAfterTradingHours:
		return d.steps(ctx, ev,
			step{"engine", func() error {
				if h, ok := d.broker.(afterTradingHoursHook); ok {
					return h.AfterTradingHours(ctx, ev.Timestamp)
				}
				return nil
			}},
			step{"reconcile", func() error {
				_, err := d.reconcile(ctx)
				return err
			}},
			step{"performance", func() error { return d.snapshot(ctx, ev) }},
			step{"strategy", func() error { return d.strategy.AfterTradingHours(tc) }},
		)

	case domain.PhaseHeartbeat:
		return d.steps(ctx, ev,
			step{"strategy", func() error { return d.strategy.Heartbeat(tc) }},
		)

	case domain.PhaseAlgoEnd:
		return d.steps(ctx, ev,
			step{"strategy", func() error { return d.strategy.Analyze(tc, d.collector.Snapshots()) }},
		)
	}
	return nil
}

type step struct {
	name string
	fn   func() error
}

func (d *Dispatcher) steps(ctx context.Context, ev domain.TickEvent, steps ...step) error {
	for _, s := range steps {
		err := s.fn()
		if err == nil {
			continue
		}
		if domain.IsFatal(err) {
			return fmt.Errorf("dispatch: %s %s: %w", ev.Phase, s.name, err)
		}
		d.logger.Warn("dispatch step failed",
			slog.String("phase", string(ev.Phase)),
			slog.String("step", s.name),
			slog.Time("at", ev.Timestamp),
			slog.String("error", err.Error()),
		)
		d.notify(ctx, domain.EventRunError, "Recoverable error",
			fmt.Sprintf("%s: %s %s at %s: %v", d.cfg.Algo, ev.Phase, s.name, ev.Timestamp.Format(time.RFC3339), err))
	}
	return nil
}

// HandleCommand applies an operator command. Commands that are illegal in
// the current state are logged and ignored. A stop returns
// domain.ErrStopRequested.
func (d *Dispatcher) HandleCommand(ctx context.Context, cmd domain.Command) error {
	log := d.logger.With(slog.String("command", string(cmd.Kind())))

	switch c := cmd.(type) {
	case domain.PauseCommand:
		if _, err := d.machine.Fire(session.TriggerPause); err != nil {
			log.Warn("command ignored", slog.String("error", err.Error()))
			return nil
		}
		log.Info("run paused", slog.String("reason", c.Reason))
		d.notify(ctx, domain.EventRunState, "Run paused", fmt.Sprintf("%s paused: %s", d.cfg.Algo, c.Reason))

	case domain.ResumeCommand:
		if !d.machine.Paused() {
			log.Warn("command ignored", slog.String("state", string(d.machine.State())))
			return nil
		}
		// Re-enter through the startup path without calling Initialize again.
		for _, t := range []session.Trigger{session.TriggerResume, session.TriggerInitialize, session.TriggerHeartbeat} {
			if _, err := d.machine.Fire(t); err != nil {
				return fmt.Errorf("dispatch: resume: %w", err)
			}
		}
		log.Info("run resumed")
		d.notify(ctx, domain.EventRunState, "Run resumed", d.cfg.Algo+" resumed")

	case domain.StopCommand:
		if _, err := d.machine.Fire(session.TriggerStop); err != nil {
			return fmt.Errorf("dispatch: stop: %w", err)
		}
		log.Info("stop requested", slog.String("reason", c.Reason))
		return domain.ErrStopRequested

	case domain.CancelOrderCommand:
		if _, err := d.broker.CancelOrder(ctx, c.OrderID); err != nil {
			log.Warn("cancel failed", slog.String("order_id", c.OrderID), slog.String("error", err.Error()))
			return nil
		}
		log.Info("order cancelled", slog.String("order_id", c.OrderID))

	case domain.ReconcileCommand:
		res, err := d.reconcile(ctx)
		if err != nil {
			log.Warn("reconcile failed", slog.String("error", err.Error()))
			return nil
		}
		log.Info("reconciled on request", slog.Bool("matched", res.Matched))

	default:
		log.Warn("unsupported command")
	}
	return nil
}

func (d *Dispatcher) reconcile(ctx context.Context) (domain.ReconciliationResult, error) {
	orders, err := d.broker.Orders(ctx)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("dispatch: reconcile orders: %w", err)
	}
	positions, err := d.broker.Positions(ctx)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("dispatch: reconcile positions: %w", err)
	}
	acct, err := d.broker.Account(ctx)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("dispatch: reconcile account: %w", err)
	}
	if fr, ok := d.broker.(domain.FillReporter); ok {
		d.blotter.RecordFills(fr.Trades())
	}
	return d.blotter.Reconcile(ctx, orders, positions, acct), nil
}

func (d *Dispatcher) snapshot(ctx context.Context, ev domain.TickEvent) error {
	acct, err := d.broker.Account(ctx)
	if err != nil {
		return err
	}
	positions, err := d.broker.Positions(ctx)
	if err != nil {
		return err
	}
	realized := d.blotter.ExpectedRealizedPnL()
	if pr, ok := d.broker.(domain.PnLReporter); ok {
		realized = pr.RealizedPnL()
	}
	snap := d.tracker.Snapshot(ev.Timestamp, ev.Phase, acct, positions, realized, len(d.blotter.Pending()))
	if !d.live {
		_ = d.collector.Publish(ctx, snap)
	}
	if d.sink == nil {
		return nil
	}
	return d.sink.Publish(ctx, snap)
}

func (d *Dispatcher) notify(ctx context.Context, event, title, message string) {
	if d.alerter == nil {
		return
	}
	if err := d.alerter.Notify(ctx, event, title, message); err != nil {
		d.logger.Warn("alert delivery failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// cleanup saves the blotter and runs shutdown callbacks. It runs once, on a
// context detached from the run's cancellation.
func (d *Dispatcher) cleanup(ctx context.Context) {
	d.cleanOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.CleanupTimeout)
		defer cancel()

		if err := d.blotter.Save(ctx); err != nil {
			d.logger.Error("blotter save failed", slog.String("error", err.Error()))
		}
		for i, fn := range d.shutdown {
			d.runShutdown(ctx, i, fn)
		}
		d.logger.Info("cleanup complete", slog.Int("shutdown_callbacks", len(d.shutdown)))
	})
}

func (d *Dispatcher) runShutdown(ctx context.Context, i int, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("shutdown callback panicked", slog.Int("index", i), slog.Any("panic", r))
		}
	}()
	if err := fn(ctx); err != nil {
		d.logger.Warn("shutdown callback failed", slog.Int("index", i), slog.String("error", err.Error()))
	}
}
