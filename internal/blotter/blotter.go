// Package blotter owns the local view of orders, positions and the
// transaction ledger, and reconciles it against what the broker reports.
package blotter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/calendar"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const quantityEpsilon = 1e-9

// Config holds the blotter settings.
type Config struct {
	Algo           string
	InitialCapital float64
	MaxLedgerDays  int
	EvictChunk     int
	DriftTolerance float64 // absolute net liquidity drift accepted as matched
	Location       *time.Location
}

// Blotter tracks pending orders until the broker reports them terminal,
// then books them into the ledger and the committed positions.
//
// The dispatch loop is the only writer; the lock lets status readers take
// snapshots.
type Blotter struct {
	cfg      Config
	store    domain.LedgerStore
	archiver domain.LedgerArchiver
	audit    domain.AuditStore
	alerter  domain.Alerter
	logger   *slog.Logger

	mu           sync.RWMutex
	now          time.Time
	ledger       *Ledger
	pending      map[string]domain.Order
	pendingOrder []string
	fills        map[string][]domain.Trade // pending order ID -> broker fills
	positions    map[string]*domain.Position
	commissions  float64
	dirty        map[string]struct{}
	last         *domain.ReconciliationResult
}

// Option customises a Blotter.
type Option func(*Blotter)

// WithLedgerStore persists ledger days and positions on Save.
func WithLedgerStore(s domain.LedgerStore) Option {
	return func(b *Blotter) { b.store = s }
}

// WithArchiver receives ledger days evicted from memory.
func WithArchiver(a domain.LedgerArchiver) Option {
	return func(b *Blotter) { b.archiver = a }
}

// WithAuditStore records reconciliation mismatches.
func WithAuditStore(s domain.AuditStore) Option {
	return func(b *Blotter) { b.audit = s }
}

// WithAlerter notifies operators of reconciliation mismatches.
func WithAlerter(a domain.Alerter) Option {
	return func(b *Blotter) { b.alerter = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Blotter) {
		if l != nil {
			b.logger = l.With(slog.String("component", "blotter"))
		}
	}
}

// New validates cfg and returns an empty blotter.
func New(cfg Config, opts ...Option) (*Blotter, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DriftTolerance < 0 {
		return nil, fmt.Errorf("blotter: drift tolerance must not be negative, got %v", cfg.DriftTolerance)
	}
	ledger, err := NewLedger(cfg.MaxLedgerDays, cfg.EvictChunk)
	if err != nil {
		return nil, err
	}
	b := &Blotter{
		cfg:       cfg,
		logger:    slog.Default().With(slog.String("component", "blotter")),
		ledger:    ledger,
		pending:   make(map[string]domain.Order),
		fills:     make(map[string][]domain.Trade),
		positions: make(map[string]*domain.Position),
		dirty:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Advance sets the time used for reconciliation timestamps and for orders
// that carry no timestamp of their own.
func (b *Blotter) Advance(ts time.Time) {
	b.mu.Lock()
	b.now = ts
	b.mu.Unlock()
}

// AddPendingOrder starts tracking an order the broker has accepted.
func (b *Blotter) AddPendingOrder(id string, order domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order.ID = id
	if _, ok := b.pending[id]; !ok {
		b.pendingOrder = append(b.pendingOrder, id)
	}
	b.pending[id] = order
}

// RecordFills keeps the broker's fills for orders that are still pending.
// Each call replaces what was held for those orders, so passing the full
// fill history on every cycle is safe.
func (b *Blotter) RecordFills(trades []domain.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string][]domain.Trade)
	for _, t := range trades {
		if _, ok := b.pending[t.OrderID]; !ok {
			continue
		}
		seen[t.OrderID] = append(seen[t.OrderID], t)
	}
	for id, ts := range seen {
		b.fills[id] = ts
	}
}

// Reconcile compares the local view with the broker's report. Terminal
// orders are booked, missing ones stay pending for the next cycle, and any
// disagreement yields Matched=false. It never fails: a mismatch is logged,
// audited and sent to the operator.
func (b *Blotter) Reconcile(ctx context.Context, orders map[string]domain.Order, positions map[string]domain.Position, account domain.Account) domain.ReconciliationResult {
	b.mu.Lock()
	res, evicted := b.reconcile(orders, positions, account)
	b.last = &res
	b.mu.Unlock()

	if len(evicted) > 0 {
		b.archive(ctx, evicted)
	}
	if !res.Matched {
		b.report(ctx, res)
	}
	return res
}

func (b *Blotter) reconcile(orders map[string]domain.Order, positions map[string]domain.Position, account domain.Account) (domain.ReconciliationResult, []domain.LedgerDay) {
	res := domain.ReconciliationResult{
		MatchedOrders:        make(map[string]domain.Order),
		UnexplainedPositions: make(map[string]float64),
		Timestamp:            b.now,
	}

	var evicted []domain.LedgerDay
	still := b.pendingOrder[:0]
	for _, id := range b.pendingOrder {
		local := b.pending[id]
		rep, ok := orders[id]
		switch {
		case !ok:
			res.MissingOrders = append(res.MissingOrders, local)
			still = append(still, id)
		case rep.IsTerminal():
			res.MatchedOrders[id] = rep
			evicted = append(evicted, b.commit(rep)...)
			delete(b.pending, id)
			delete(b.fills, id)
		default:
			res.MatchedOrders[id] = rep
			b.pending[id] = rep
			still = append(still, id)
		}
	}
	b.pendingOrder = still

	res.ExtraOrders = b.extras(orders)

	expected := b.expectedPositions()
	for sym, delta := range positionDiff(expected, positions) {
		res.UnexplainedPositions[sym] = delta
	}

	res.AccountDrift = account.NetLiquidity - b.impliedNetLiquidity(expected, positions)
	for sym, rep := range positions {
		if p, ok := b.positions[sym]; ok {
			p.Mark(rep.LastPrice)
		}
	}

	res.Matched = len(res.MissingOrders) == 0 &&
		len(res.ExtraOrders) == 0 &&
		len(res.UnexplainedPositions) == 0 &&
		math.Abs(res.AccountDrift) <= b.cfg.DriftTolerance
	return res, evicted
}

// commit books a terminal order into the ledger and committed positions.
func (b *Blotter) commit(o domain.Order) []domain.LedgerDay {
	date := b.tradeDate(o)
	evicted := b.ledger.Add(date, o)
	b.dirty[date] = struct{}{}

	if o.Filled > quantityEpsilon {
		p, ok := b.positions[o.Asset.Symbol]
		if !ok {
			p = &domain.Position{Asset: o.Asset}
			b.positions[o.Asset.Symbol] = p
		}
		b.applyFills(p, o)
	}
	b.commissions += o.Commission
	return evicted
}

// applyFills books o's filled quantity into p. Recorded fills are applied
// one by one when they account for the whole filled quantity; otherwise the
// order is booked as a single fill at its average price.
func (b *Blotter) applyFills(p *domain.Position, o domain.Order) {
	fills := b.fills[o.ID]
	var total float64
	for _, t := range fills {
		total += t.Quantity
	}
	if len(fills) == 0 || math.Abs(total-o.Filled) > quantityEpsilon {
		p.Apply(o.SignedFilled(), o.AvgPrice)
		return
	}
	for _, t := range fills {
		p.Apply(t.SignedQuantity(), t.Price)
	}
}

// extras returns reported orders nobody here placed, oldest first. Orders
// from dates already evicted from the ledger are no longer known and are
// skipped.
func (b *Blotter) extras(orders map[string]domain.Order) []domain.Order {
	var out []domain.Order
	for id, o := range orders {
		if _, ok := b.pending[id]; ok {
			continue
		}
		if b.ledger.Contains(id) {
			continue
		}
		if b.ledger.Evicted(b.tradeDate(o)) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// expectedPositions is the committed book plus fills on orders that are
// still open at the broker.
func (b *Blotter) expectedPositions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(b.positions))
	for sym, p := range b.positions {
		out[sym] = *p
	}
	for _, id := range b.pendingOrder {
		o := b.pending[id]
		if o.Filled <= quantityEpsilon {
			continue
		}
		p, ok := out[o.Asset.Symbol]
		if !ok {
			p = domain.Position{Asset: o.Asset}
		}
		b.applyFills(&p, o)
		out[o.Asset.Symbol] = p
	}
	return out
}

func (b *Blotter) impliedNetLiquidity(expected, reported map[string]domain.Position) float64 {
	nl := b.cfg.InitialCapital - b.commissions
	for _, id := range b.pendingOrder {
		nl -= b.pending[id].Commission
	}
	for sym, p := range expected {
		if rep, ok := reported[sym]; ok {
			p.Mark(rep.LastPrice)
		} else if p.LastPrice > 0 {
			p.Mark(p.LastPrice)
		}
		nl += p.RealizedPnL + p.UnrealizedPnL
	}
	return nl
}

// positionDiff returns reported minus expected quantity for every symbol
// where they differ.
func positionDiff(expected, reported map[string]domain.Position) map[string]float64 {
	out := make(map[string]float64)
	for sym, rep := range reported {
		if d := rep.Quantity - expected[sym].Quantity; math.Abs(d) > quantityEpsilon {
			out[sym] = d
		}
	}
	for sym, exp := range expected {
		if _, ok := reported[sym]; ok {
			continue
		}
		if math.Abs(exp.Quantity) > quantityEpsilon {
			out[sym] = -exp.Quantity
		}
	}
	return out
}

func (b *Blotter) tradeDate(o domain.Order) string {
	ts := o.UpdatedAt
	if ts.IsZero() {
		ts = o.CreatedAt
	}
	if ts.IsZero() {
		ts = b.now
	}
	return ts.In(b.cfg.Location).Format(calendar.DateLayout)
}

func (b *Blotter) archive(ctx context.Context, days []domain.LedgerDay) {
	b.logger.Info("ledger days evicted", slog.Int("days", len(days)), slog.String("oldest", days[0].Date))

	if b.store != nil {
		for _, d := range days {
			b.mu.Lock()
			_, dirty := b.dirty[d.Date]
			delete(b.dirty, d.Date)
			b.mu.Unlock()
			if !dirty {
				continue
			}
			if err := b.store.SaveDay(ctx, b.cfg.Algo, d); err != nil {
				b.logger.Error("persist evicted day failed", slog.String("date", d.Date), slog.String("error", err.Error()))
			}
		}
	}
	if b.archiver != nil {
		if err := b.archiver.ArchiveDays(ctx, b.cfg.Algo, days); err != nil {
			b.logger.Error("archive evicted days failed", slog.String("error", err.Error()))
		}
	}
}

func (b *Blotter) report(ctx context.Context, res domain.ReconciliationResult) {
	b.logger.Warn("reconciliation mismatch",
		slog.Int("missing_orders", len(res.MissingOrders)),
		slog.Int("extra_orders", len(res.ExtraOrders)),
		slog.Int("unexplained_positions", len(res.UnexplainedPositions)),
		slog.Float64("account_drift", res.AccountDrift),
	)

	if b.audit != nil {
		detail := map[string]any{
			"algo":                  b.cfg.Algo,
			"missing_orders":        orderIDs(res.MissingOrders),
			"extra_orders":          orderIDs(res.ExtraOrders),
			"unexplained_positions": res.UnexplainedPositions,
			"account_drift":         res.AccountDrift,
		}
		if err := b.audit.Log(ctx, domain.EventReconcileMismatch, detail); err != nil {
			b.logger.Error("audit reconciliation failed", slog.String("error", err.Error()))
		}
	}
	if b.alerter != nil {
		msg := fmt.Sprintf("algo %s: %d missing, %d extra orders, %d unexplained positions, drift %.2f",
			b.cfg.Algo, len(res.MissingOrders), len(res.ExtraOrders), len(res.UnexplainedPositions), res.AccountDrift)
		if err := b.alerter.Notify(ctx, domain.EventReconcileMismatch, "Reconciliation mismatch", msg); err != nil {
			b.logger.Error("alert reconciliation failed", slog.String("error", err.Error()))
		}
	}
}

// Save flushes changed ledger days and the committed positions to the
// ledger store. Without a store it does nothing.
func (b *Blotter) Save(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	b.mu.RLock()
	var days []domain.LedgerDay
	for date := range b.dirty {
		if d, ok := b.ledger.Day(date); ok {
			days = append(days, d)
		}
	}
	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, *p)
	}
	asOf := b.now
	b.mu.RUnlock()

	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	sort.Slice(positions, func(i, j int) bool { return positions[i].Asset.Symbol < positions[j].Asset.Symbol })

	var errs []error
	for _, d := range days {
		if err := b.store.SaveDay(ctx, b.cfg.Algo, d); err != nil {
			errs = append(errs, fmt.Errorf("blotter: save day %s: %w", d.Date, err))
			continue
		}
		b.mu.Lock()
		delete(b.dirty, d.Date)
		b.mu.Unlock()
	}
	if err := b.store.SavePositions(ctx, b.cfg.Algo, asOf, positions); err != nil {
		errs = append(errs, fmt.Errorf("blotter: save positions: %w", err))
	}
	return errors.Join(errs...)
}

// Restore loads committed positions saved by a previous run.
func (b *Blotter) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	saved, err := b.store.LoadPositions(ctx, b.cfg.Algo)
	if err != nil {
		return fmt.Errorf("blotter: restore positions: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range saved {
		b.positions[p.Asset.Symbol] = &p
	}
	b.logger.Info("positions restored", slog.Int("count", len(saved)))
	return nil
}

// Positions returns the committed positions.
func (b *Blotter) Positions() map[string]domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]domain.Position, len(b.positions))
	for sym, p := range b.positions {
		out[sym] = *p
	}
	return out
}

// Pending returns the orders not yet booked, in placement order.
func (b *Blotter) Pending() []domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Order, 0, len(b.pendingOrder))
	for _, id := range b.pendingOrder {
		out = append(out, b.pending[id])
	}
	return out
}

// Ledger returns the retained ledger days, oldest first.
func (b *Blotter) Ledger() []domain.LedgerDay {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ledger.Days()
}

// RealizedPnL sums realized PnL over committed positions.
func (b *Blotter) RealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sum float64
	for _, p := range b.positions {
		sum += p.RealizedPnL
	}
	return sum
}

// ExpectedRealizedPnL is RealizedPnL plus what fills on still pending
// orders have realized.
func (b *Blotter) ExpectedRealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sum float64
	for _, p := range b.expectedPositions() {
		sum += p.RealizedPnL
	}
	return sum
}

// UnrealizedPnL sums unrealized PnL over committed positions at the last
// reconciled marks.
func (b *Blotter) UnrealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sum float64
	for _, p := range b.positions {
		sum += p.UnrealizedPnL
	}
	return sum
}

// Commissions returns the commission paid on booked orders.
func (b *Blotter) Commissions() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commissions
}

// LastResult returns the most recent reconciliation, if any.
func (b *Blotter) LastResult() (domain.ReconciliationResult, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return domain.ReconciliationResult{}, false
	}
	return *b.last, true
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}
