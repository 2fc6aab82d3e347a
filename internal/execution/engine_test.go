package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/marketdata"
)

var bar0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func bar(i int) time.Time { return bar0.Add(time.Duration(i) * time.Minute) }

type scriptedFills struct {
	qty []float64
	i   int
}

func (s *scriptedFills) Fill(_ domain.Order, ref float64) (float64, float64, bool) {
	if s.i >= len(s.qty) {
		return 0, 0, false
	}
	q := s.qty[s.i]
	s.i++
	return q, ref, true
}

func newEngine(t *testing.T, capital float64, prices map[string]float64, opts ...Option) (*Engine, *marketdata.Static) {
	t.Helper()
	src := marketdata.NewStatic(prices)
	e, err := NewEngine(src, capital, opts...)
	require.NoError(t, err)
	return e, src
}

func buy(sym string, qty float64) domain.Order {
	return domain.Order{Asset: domain.Spot(sym), Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: qty}
}

func sell(sym string, qty float64) domain.Order {
	o := buy(sym, qty)
	o.Side = domain.OrderSideSell
	return o
}

func order(t *testing.T, e *Engine, id string) domain.Order {
	t.Helper()
	orders, err := e.Orders(context.Background())
	require.NoError(t, err)
	o, ok := orders[id]
	require.True(t, ok)
	return o
}

func TestPartialFillsSumToQuantity(t *testing.T) {
	ctx := context.Background()
	fills := &scriptedFills{qty: []float64{4, 3, 5}}
	e, _ := newEngine(t, 10_000, map[string]float64{"ACME": 100}, WithFillModel(fills))

	id, err := e.PlaceOrder(ctx, buy("ACME", 10))
	require.NoError(t, err)

	require.NoError(t, e.OnTradingBar(ctx, bar(1)))
	o := order(t, e, id)
	assert.Equal(t, 4.0, o.Filled)
	assert.Equal(t, domain.OrderStatusOpen, o.Status)

	require.NoError(t, e.OnTradingBar(ctx, bar(2)))
	require.NoError(t, e.OnTradingBar(ctx, bar(3)))
	o = order(t, e, id)
	assert.Equal(t, 10.0, o.Filled, "third fill is capped at the remaining 3")
	assert.Equal(t, domain.OrderStatusComplete, o.Status)
	assert.Empty(t, e.OpenOrders())

	var sum float64
	for _, tr := range e.Trades() {
		sum += tr.Quantity
	}
	assert.Equal(t, 10.0, sum)
	assert.Equal(t, 3, fills.i)

	require.NoError(t, e.OnTradingBar(ctx, bar(4)))
	assert.Len(t, e.Trades(), 3, "closed orders are not matched again")
}

func TestShortFillStaysOpen(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, 10_000, map[string]float64{"ACME": 100}, WithFillModel(&scriptedFills{qty: []float64{2, 2}}))

	id, err := e.PlaceOrder(ctx, buy("ACME", 10))
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, e.OnTradingBar(ctx, bar(i)))
	}

	o := order(t, e, id)
	assert.Equal(t, 4.0, o.Filled)
	assert.Equal(t, domain.OrderStatusOpen, o.Status)
	assert.InDelta(t, 6.0, o.Remaining(), 1e-9)
}

func TestSpotSettlementAndCommission(t *testing.T) {
	ctx := context.Background()
	e, src := newEngine(t, 10_000, map[string]float64{"ACME": 100}, WithCommission(BpsCommission{Bps: 10, Minimum: 1}))

	_, err := e.PlaceOrder(ctx, buy("ACME", 10))
	require.NoError(t, err)
	require.NoError(t, e.OnTradingBar(ctx, bar(1)))

	acct, err := e.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10_000-1000-1, acct.Cash, 1e-9)
	assert.Zero(t, acct.Margin)
	assert.InDelta(t, 10_000-1, acct.NetLiquidity, 1e-9)

	src.Set("ACME", 105)
	require.NoError(t, e.AfterTradingHours(ctx, bar(2)))
	acct, _ = e.Account(ctx)
	assert.InDelta(t, 10_000-1+50, acct.NetLiquidity, 1e-9)

	trades := e.Trades()
	require.Len(t, trades, 1)
	assert.InDelta(t, -1001, trades[0].CashDelta, 1e-9)
	assert.InDelta(t, 1, trades[0].Commission, 1e-9)
}

func TestInsufficientFundsRejects(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, 500, map[string]float64{"ACME": 100})

	id, err := e.PlaceOrder(ctx, buy("ACME", 10))
	require.NoError(t, err)

	err = e.OnTradingBar(ctx, bar(1))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.False(t, domain.IsFatal(err))

	o := order(t, e, id)
	assert.Equal(t, domain.OrderStatusRejected, o.Status)
	assert.Equal(t, "insufficient fund", o.Reason)
	assert.Zero(t, o.Filled)
	assert.Empty(t, e.Trades())
	assert.Empty(t, e.OpenOrders())

	positions, _ := e.Positions(ctx)
	assert.Empty(t, positions)
	acct, _ := e.Account(ctx)
	assert.Equal(t, 500.0, acct.Cash)

	require.NoError(t, e.OnTradingBar(ctx, bar(2)), "rejected orders are not retried")
}

func TestEngineFlipsPosition(t *testing.T) {
	ctx := context.Background()
	e, src := newEngine(t, 10_000, map[string]float64{"ACME": 100})

	_, err := e.PlaceOrder(ctx, buy("ACME", 10))
	require.NoError(t, err)
	require.NoError(t, e.OnTradingBar(ctx, bar(1)))

	src.Set("ACME", 110)
	_, err = e.PlaceOrder(ctx, sell("ACME", 15))
	require.NoError(t, err)
	require.NoError(t, e.OnTradingBar(ctx, bar(2)))

	positions, _ := e.Positions(ctx)
	p := positions["ACME"]
	assert.InDelta(t, -5, p.Quantity, 1e-9)
	assert.InDelta(t, 110, p.AvgPrice, 1e-9)
	assert.InDelta(t, 100, p.RealizedPnL, 1e-9, "realized only on the 10 closed")

	acct, _ := e.Account(ctx)
	assert.InDelta(t, 10_000-1000+1650, acct.Cash, 1e-9)
	assert.InDelta(t, 10_100, acct.NetLiquidity, 1e-9)
}

func TestMarginedSettlement(t *testing.T) {
	ctx := context.Background()
	e, src := newEngine(t, 1_000, map[string]float64{"ES": 100}, WithMarginTable(MarginTable{domain.InstrumentFutures: 0.1}))
	es := domain.Asset{Symbol: "ES", Type: domain.InstrumentFutures}

	_, err := e.PlaceOrder(ctx, domain.Order{Asset: es, Side: domain.OrderSideBuy, Quantity: 10})
	require.NoError(t, err)
	require.NoError(t, e.OnTradingBar(ctx, bar(1)))

	acct, _ := e.Account(ctx)
	assert.InDelta(t, 900, acct.Cash, 1e-9)
	assert.InDelta(t, 100, acct.Margin, 1e-9)
	assert.InDelta(t, 1_000, acct.NetLiquidity, 1e-9)

	src.Set("ES", 110)
	_, err = e.PlaceOrder(ctx, domain.Order{Asset: es, Side: domain.OrderSideSell, Quantity: 10})
	require.NoError(t, err)
	require.NoError(t, e.OnTradingBar(ctx, bar(2)))

	acct, _ = e.Account(ctx)
	assert.InDelta(t, 1_100, acct.Cash, 1e-9)
	assert.InDelta(t, 0, acct.Margin, 1e-9)
	trades := e.Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 100, trades[0].MarginDelta, 1e-9)
	assert.InDelta(t, -100, trades[1].MarginDelta, 1e-9)
}

func TestSettlementCorruptionIsFatal(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, 1_000, map[string]float64{"ES": 100}, WithMarginTable(MarginTable{domain.InstrumentFutures: -0.1}))

	_, err := e.PlaceOrder(ctx, domain.Order{Asset: domain.Asset{Symbol: "ES", Type: domain.InstrumentFutures}, Side: domain.OrderSideBuy, Quantity: 10})
	require.NoError(t, err)

	err = e.OnTradingBar(ctx, bar(1))
	assert.ErrorIs(t, err, domain.ErrFatal)
	assert.Empty(t, e.Trades())
}

func TestLimitOrders(t *testing.T) {
	ctx := context.Background()
	e, src := newEngine(t, 10_000, map[string]float64{"ACME": 100})

	lim := buy("ACME", 5)
	lim.Type = domain.OrderTypeLimit
	lim.Price = 95
	id, err := e.PlaceOrder(ctx, lim)
	require.NoError(t, err)

	require.NoError(t, e.OnTradingBar(ctx, bar(1)))
	assert.Equal(t, domain.OrderStatusOpen, order(t, e, id).Status)

	src.Set("ACME", 94)
	require.NoError(t, e.OnTradingBar(ctx, bar(2)))
	o := order(t, e, id)
	assert.Equal(t, domain.OrderStatusComplete, o.Status)
	assert.Equal(t, 94.0, o.AvgPrice)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, 10_000, map[string]float64{"ACME": 100})

	_, err := e.CancelOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	id, err := e.PlaceOrder(ctx, buy("ACME", 1))
	require.NoError(t, err)
	got, err := e.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, domain.OrderStatusCancelled, order(t, e, id).Status)

	_, err = e.CancelOrder(ctx, id)
	assert.ErrorIs(t, err, domain.ErrOrderClosed)

	require.NoError(t, e.OnTradingBar(ctx, bar(1)))
	assert.Empty(t, e.Trades())
}

func TestMissingPriceIsRecoverable(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, 10_000, map[string]float64{})

	id, err := e.PlaceOrder(ctx, buy("GHOST", 1))
	require.NoError(t, err)

	err = e.OnTradingBar(ctx, bar(1))
	assert.ErrorIs(t, err, domain.ErrMissingPrice)
	assert.False(t, domain.IsFatal(err))
	assert.Equal(t, domain.OrderStatusOpen, order(t, e, id).Status)
}

func TestPlaceOrderValidation(t *testing.T) {
	e, _ := newEngine(t, 10_000, nil)
	_, err := e.PlaceOrder(context.Background(), buy("ACME", 0))
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	lim := buy("ACME", 1)
	lim.Type = domain.OrderTypeLimit
	_, err = e.PlaceOrder(context.Background(), lim)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestRandomFillsAreReproducible(t *testing.T) {
	run := func() []domain.Trade {
		ctx := context.Background()
		e, _ := newEngine(t, 1_000_000, map[string]float64{"ACME": 100},
			WithFillModel(NewRandomFillModel(7, 0.002, 0.25)),
			WithIDGenerator(NewIDGenerator("repro")),
		)
		_, err := e.PlaceOrder(ctx, buy("ACME", 100))
		require.NoError(t, err)
		_, err = e.PlaceOrder(ctx, sell("ACME", 30))
		require.NoError(t, err)
		for i := 1; i <= 10; i++ {
			require.NoError(t, e.OnTradingBar(ctx, bar(i)))
		}
		return e.Trades()
	}

	a, b := run(), run()
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	for _, tr := range a {
		assert.InDelta(t, 100, tr.Price, 0.2+1e-9)
	}
}

func TestIDGenerator(t *testing.T) {
	a, b, c := NewIDGenerator("alpha"), NewIDGenerator("alpha"), NewIDGenerator("beta")
	first := a.NextOrder()
	assert.Equal(t, first, b.NextOrder())
	assert.NotEqual(t, first, c.NextOrder())
	assert.NotEqual(t, first, a.NextOrder())
	assert.NotEqual(t, first, a.NextTrade())
}
