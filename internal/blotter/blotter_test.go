package blotter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/execution"
	"github.com/alanyoungcy/tradeloop/internal/marketdata"
)

var day1 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

type halfFills struct{}

// Fill trades half of the original quantity per bar.
func (halfFills) Fill(o domain.Order, ref float64) (float64, float64, bool) {
	return o.Quantity / 2, ref, true
}

// scriptedFills fills each bar from a fixed list of quantity and price pairs.
type scriptedFills struct{ fills [][2]float64 }

func (s *scriptedFills) Fill(domain.Order, float64) (float64, float64, bool) {
	if len(s.fills) == 0 {
		return 0, 0, false
	}
	f := s.fills[0]
	s.fills = s.fills[1:]
	return f[0], f[1], true
}

type fakeStore struct {
	mu        sync.Mutex
	days      map[string]domain.LedgerDay
	saves     int
	positions []domain.Position
}

func (f *fakeStore) SaveDay(_ context.Context, _ string, d domain.LedgerDay) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.days == nil {
		f.days = make(map[string]domain.LedgerDay)
	}
	f.days[d.Date] = d
	f.saves++
	return nil
}

func (f *fakeStore) ListDay(_ context.Context, _, date string) ([]domain.Order, error) {
	return f.days[date].Orders, nil
}

func (f *fakeStore) SavePositions(_ context.Context, _ string, _ time.Time, p []domain.Position) error {
	f.positions = p
	return nil
}

func (f *fakeStore) LoadPositions(context.Context, string) ([]domain.Position, error) {
	return f.positions, nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeAlerter struct{ events []string }

func (f *fakeAlerter) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

type fakeArchiver struct{ days []domain.LedgerDay }

func (f *fakeArchiver) ArchiveDays(_ context.Context, _ string, days []domain.LedgerDay) error {
	f.days = append(f.days, days...)
	return nil
}

type harness struct {
	engine  *execution.Engine
	prices  *marketdata.Static
	blotter *Blotter
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newHarnessWith(t, Config{Algo: "test", InitialCapital: 100_000, MaxLedgerDays: 30, EvictChunk: 5, DriftTolerance: 1e-6}, nil, opts...)
}

func newHarnessWith(t *testing.T, cfg Config, fill execution.FillModel, opts ...Option) *harness {
	t.Helper()
	prices := marketdata.NewStatic(map[string]float64{"ACME": 100, "BETA": 50})
	engOpts := []execution.Option{execution.WithCommission(execution.BpsCommission{Bps: 5, Minimum: 1})}
	if fill != nil {
		engOpts = append(engOpts, execution.WithFillModel(fill))
	}
	eng, err := execution.NewEngine(prices, cfg.InitialCapital, engOpts...)
	require.NoError(t, err)
	b, err := New(cfg, opts...)
	require.NoError(t, err)
	return &harness{engine: eng, prices: prices, blotter: b}
}

func (h *harness) place(t *testing.T, o domain.Order, ts time.Time) string {
	t.Helper()
	o.CreatedAt = ts
	id, err := h.engine.PlaceOrder(context.Background(), o)
	require.NoError(t, err)
	h.blotter.AddPendingOrder(id, o)
	return id
}

func (h *harness) reconcile(t *testing.T) domain.ReconciliationResult {
	t.Helper()
	ctx := context.Background()
	orders, err := h.engine.Orders(ctx)
	require.NoError(t, err)
	positions, err := h.engine.Positions(ctx)
	require.NoError(t, err)
	acct, err := h.engine.Account(ctx)
	require.NoError(t, err)
	h.blotter.RecordFills(h.engine.Trades())
	return h.blotter.Reconcile(ctx, orders, positions, acct)
}

func order(sym string, side domain.OrderSide, qty float64) domain.Order {
	return domain.Order{Asset: domain.Spot(sym), Side: side, Type: domain.OrderTypeMarket, Quantity: qty}
}

func TestReconcileRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.place(t, order("ACME", domain.OrderSideBuy, 10), day1)
	h.place(t, order("BETA", domain.OrderSideBuy, 20), day1)
	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(time.Minute)))

	h.prices.Set("ACME", 104)
	h.place(t, order("ACME", domain.OrderSideSell, 4), day1.Add(time.Minute))
	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(2*time.Minute)))
	require.NoError(t, h.engine.AfterTradingHours(ctx, day1.Add(time.Hour)))

	res := h.reconcile(t)
	assert.True(t, res.Matched)
	assert.Empty(t, res.MissingOrders)
	assert.Empty(t, res.ExtraOrders)
	assert.Empty(t, res.UnexplainedPositions)
	assert.InDelta(t, 0, res.AccountDrift, 1e-6)
	assert.Len(t, res.MatchedOrders, 3)

	assert.Empty(t, h.blotter.Pending())
	ledger := h.blotter.Ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, "2024-01-02", ledger[0].Date)
	assert.Len(t, ledger[0].Orders, 3)

	positions := h.blotter.Positions()
	assert.InDelta(t, 6, positions["ACME"].Quantity, 1e-9)
	assert.InDelta(t, 20, positions["BETA"].Quantity, 1e-9)
	assert.InDelta(t, 16, h.blotter.RealizedPnL(), 1e-9) // 4 * (104 - 100)
	assert.InDelta(t, 24, h.blotter.UnrealizedPnL(), 1e-9)

	again := h.reconcile(t)
	assert.True(t, again.Matched, "booked orders are not reported as extra")
	assert.Len(t, h.blotter.Ledger()[0].Orders, 3, "no double booking")
}

func TestReconcileTracksInFlightPartialFills(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, Config{Algo: "test", InitialCapital: 100_000, MaxLedgerDays: 10, EvictChunk: 1, DriftTolerance: 1e-6}, halfFills{})

	id := h.place(t, order("ACME", domain.OrderSideBuy, 10), day1)
	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(time.Minute)))

	res := h.reconcile(t)
	assert.True(t, res.Matched, "a half-filled order is explained by the pending book")
	assert.Equal(t, 5.0, res.MatchedOrders[id].Filled)
	require.Len(t, h.blotter.Pending(), 1)
	assert.Empty(t, h.blotter.Ledger())
	assert.Empty(t, h.blotter.Positions(), "open orders are not booked yet")

	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(2*time.Minute)))
	res = h.reconcile(t)
	assert.True(t, res.Matched)
	assert.Empty(t, h.blotter.Pending())
	assert.InDelta(t, 10, h.blotter.Positions()["ACME"].Quantity, 1e-9)
}

func TestReconcileBooksFlipFillByFill(t *testing.T) {
	ctx := context.Background()
	fills := &scriptedFills{fills: [][2]float64{{10, 100}, {10, 110}, {10, 90}}}
	h := newHarnessWith(t, Config{Algo: "test", InitialCapital: 100_000, MaxLedgerDays: 10, EvictChunk: 1, DriftTolerance: 1e-6}, fills)

	h.place(t, order("ACME", domain.OrderSideBuy, 10), day1)
	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(time.Minute)))
	id := h.place(t, order("ACME", domain.OrderSideSell, 20), day1.Add(time.Minute))
	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(2*time.Minute)))

	res := h.reconcile(t)
	assert.True(t, res.Matched)
	require.Len(t, h.blotter.Pending(), 1, "sell is half filled")
	assert.InDelta(t, 0, h.blotter.RealizedPnL(), 1e-9)
	assert.InDelta(t, 100, h.blotter.ExpectedRealizedPnL(), 1e-9, "pending fills count")

	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(3*time.Minute)))
	res = h.reconcile(t)
	require.True(t, res.Matched)
	assert.Equal(t, domain.OrderStatusComplete, res.MatchedOrders[id].Status)
	assert.InDelta(t, 100, res.MatchedOrders[id].AvgPrice, 1e-9)

	reported, err := h.engine.Positions(ctx)
	require.NoError(t, err)
	p := h.blotter.Positions()["ACME"]
	assert.InDelta(t, -10, p.Quantity, 1e-9)
	assert.InDelta(t, 90, p.AvgPrice, 1e-9, "residual short opens at the flip fill price")
	assert.InDelta(t, 100, p.RealizedPnL, 1e-9, "closing leg realizes 10 * (110 - 100)")
	assert.InDelta(t, reported["ACME"].RealizedPnL, p.RealizedPnL, 1e-9)
	assert.InDelta(t, reported["ACME"].AvgPrice, p.AvgPrice, 1e-9)
}

func TestReconcileFallsBackToAveragePriceWithoutFills(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.place(t, order("ACME", domain.OrderSideBuy, 10), day1)
	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(time.Minute)))

	orders, err := h.engine.Orders(ctx)
	require.NoError(t, err)
	positions, err := h.engine.Positions(ctx)
	require.NoError(t, err)
	acct, err := h.engine.Account(ctx)
	require.NoError(t, err)

	res := h.blotter.Reconcile(ctx, orders, positions, acct)
	assert.True(t, res.Matched)
	assert.InDelta(t, 100, h.blotter.Positions()["ACME"].AvgPrice, 1e-9)
}

func TestReconcileMissingOrdersStayPending(t *testing.T) {
	audit, alerts := &fakeAudit{}, &fakeAlerter{}
	h := newHarness(t, WithAuditStore(audit), WithAlerter(alerts))

	h.blotter.AddPendingOrder("lost-1", order("ACME", domain.OrderSideBuy, 1))
	h.blotter.AddPendingOrder("lost-2", order("BETA", domain.OrderSideBuy, 1))

	res := h.reconcile(t)
	assert.False(t, res.Matched)
	require.Len(t, res.MissingOrders, 2, "every missing order is reported, not just the last")
	assert.Equal(t, "lost-1", res.MissingOrders[0].ID)
	assert.Equal(t, "lost-2", res.MissingOrders[1].ID)
	assert.Len(t, h.blotter.Pending(), 2)

	assert.Equal(t, []string{domain.EventReconcileMismatch}, audit.events)
	assert.Equal(t, []string{domain.EventReconcileMismatch}, alerts.events)

	last, ok := h.blotter.LastResult()
	require.True(t, ok)
	assert.False(t, last.Matched)

	// The broker catches up on the next cycle.
	reported := map[string]domain.Order{
		"lost-1": {ID: "lost-1", Asset: domain.Spot("ACME"), Side: domain.OrderSideBuy, Quantity: 1, Status: domain.OrderStatusCancelled, UpdatedAt: day1},
		"lost-2": {ID: "lost-2", Asset: domain.Spot("BETA"), Side: domain.OrderSideBuy, Quantity: 1, Status: domain.OrderStatusCancelled, UpdatedAt: day1},
	}
	res = h.blotter.Reconcile(context.Background(), reported, nil, domain.Account{NetLiquidity: 100_000})
	assert.True(t, res.Matched)
	assert.Empty(t, h.blotter.Pending())
}

func TestReconcileFlagsExtraOrdersAndPositions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reported := map[string]domain.Order{
		"manual-2": {ID: "manual-2", Asset: domain.Spot("ACME"), Status: domain.OrderStatusComplete, Filled: 5, Quantity: 5, CreatedAt: day1.Add(time.Minute)},
		"manual-1": {ID: "manual-1", Asset: domain.Spot("ACME"), Status: domain.OrderStatusComplete, Filled: 5, Quantity: 5, CreatedAt: day1},
	}
	positions := map[string]domain.Position{
		"ACME": {Asset: domain.Spot("ACME"), Quantity: 10, LastPrice: 100},
	}
	res := h.blotter.Reconcile(ctx, reported, positions, domain.Account{NetLiquidity: 100_250})

	assert.False(t, res.Matched)
	require.Len(t, res.ExtraOrders, 2)
	assert.Equal(t, "manual-1", res.ExtraOrders[0].ID)
	assert.Equal(t, "manual-2", res.ExtraOrders[1].ID)
	assert.Equal(t, map[string]float64{"ACME": 10}, res.UnexplainedPositions)
	assert.InDelta(t, 250, res.AccountDrift, 1e-9)
	assert.Empty(t, h.blotter.Positions(), "extra activity is never absorbed")
}

func TestReconcileDetectsMissingPosition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.place(t, order("ACME", domain.OrderSideBuy, 10), day1)
	require.NoError(t, h.engine.OnTradingBar(ctx, day1.Add(time.Minute)))

	orders, _ := h.engine.Orders(ctx)
	acct, _ := h.engine.Account(ctx)
	res := h.blotter.Reconcile(ctx, orders, map[string]domain.Position{}, acct)

	assert.False(t, res.Matched)
	assert.Equal(t, map[string]float64{"ACME": -10}, res.UnexplainedPositions)
}

func TestLedgerEvictionArchivesAndPersists(t *testing.T) {
	ctx := context.Background()
	store, archiver := &fakeStore{}, &fakeArchiver{}
	cfg := Config{Algo: "test", InitialCapital: 100_000, MaxLedgerDays: 3, EvictChunk: 2, DriftTolerance: 1e-6}
	h := newHarnessWith(t, cfg, nil, WithLedgerStore(store), WithArchiver(archiver))

	for d := 0; d < 4; d++ {
		ts := day1.AddDate(0, 0, d)
		h.place(t, order("ACME", domain.OrderSideBuy, 1), ts)
		require.NoError(t, h.engine.OnTradingBar(ctx, ts.Add(time.Minute)))
		h.blotter.Advance(ts.Add(time.Hour))
		res := h.reconcile(t)
		require.True(t, res.Matched, "day %d", d)
	}

	ledger := h.blotter.Ledger()
	require.Len(t, ledger, 2)
	assert.Equal(t, "2024-01-04", ledger[0].Date)
	require.Len(t, archiver.days, 2)
	assert.Equal(t, "2024-01-02", archiver.days[0].Date)
	assert.Equal(t, "2024-01-03", archiver.days[1].Date)
	assert.Len(t, store.days, 2, "evicted days are persisted before they are dropped")

	require.NoError(t, h.blotter.Save(ctx))
	assert.Len(t, store.days, 4)
	require.Len(t, store.positions, 1)
	assert.InDelta(t, 4, store.positions[0].Quantity, 1e-9)

	saves := store.saves
	require.NoError(t, h.blotter.Save(ctx))
	assert.Equal(t, saves, store.saves, "clean days are not written again")

	// Evicted orders are still reported by the broker but are not extras.
	res := h.reconcile(t)
	assert.True(t, res.Matched)

	restored, err := New(cfg, WithLedgerStore(store))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))
	assert.InDelta(t, 4, restored.Positions()["ACME"].Quantity, 1e-9)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{MaxLedgerDays: 0, EvictChunk: 1})
	assert.Error(t, err)
	_, err = New(Config{MaxLedgerDays: 5, EvictChunk: 1, DriftTolerance: -1})
	assert.Error(t, err)
}
