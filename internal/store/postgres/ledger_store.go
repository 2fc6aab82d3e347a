package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// LedgerStore implements domain.LedgerStore. A saved day replaces any
// previous rows for the same algo and date, so saving is idempotent.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const insertLedgerOrder = `
	INSERT INTO ledger_orders (
		algo, trade_date, seq, order_id, symbol, instrument, side, order_type,
		quantity, filled, limit_price, avg_price, commission, status, reason,
		strategy, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

// SaveDay writes one trade date of the ledger in insertion order.
func (s *LedgerStore) SaveDay(ctx context.Context, algo string, day domain.LedgerDay) error {
	date, err := time.Parse(time.DateOnly, day.Date)
	if err != nil {
		return fmt.Errorf("postgres: ledger date %q: %w", day.Date, err)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ledger_orders WHERE algo = $1 AND trade_date = $2`, algo, date); err != nil {
			return fmt.Errorf("postgres: clear ledger day %s: %w", day.Date, err)
		}
		if len(day.Orders) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for i, o := range day.Orders {
			batch.Queue(insertLedgerOrder, ledgerArgs(algo, date, i, o)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert ledger day %s: %w", day.Date, err)
		}
		return nil
	})
}

// ListDay returns the orders booked on date, in insertion order.
func (s *LedgerStore) ListDay(ctx context.Context, algo, date string) ([]domain.Order, error) {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("postgres: ledger date %q: %w", date, err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, symbol, instrument, side, order_type, quantity, filled,
		       limit_price, avg_price, commission, status, reason, strategy,
		       created_at, updated_at
		FROM ledger_orders
		WHERE algo = $1 AND trade_date = $2
		ORDER BY seq`, algo, d)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger day %s: %w", date, err)
	}
	orders, err := pgx.CollectRows(rows, scanLedgerOrder)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ledger day %s: %w", date, err)
	}
	return orders, nil
}

// SavePositions replaces the stored position snapshot for algo.
func (s *LedgerStore) SavePositions(ctx context.Context, algo string, asOf time.Time, positions []domain.Position) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM position_snapshots WHERE algo = $1`, algo); err != nil {
			return fmt.Errorf("postgres: clear positions: %w", err)
		}
		rows := make([][]any, 0, len(positions))
		for _, p := range positions {
			rows = append(rows, []any{
				algo, p.Asset.Symbol, string(p.Asset.Type), p.Quantity, p.AvgPrice,
				p.BuyQty, p.BuyPrice, p.SellQty, p.SellPrice,
				p.RealizedPnL, p.UnrealizedPnL, p.LastPrice, p.Margin, asOf,
			})
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"position_snapshots"}, []string{
			"algo", "symbol", "instrument", "quantity", "avg_price",
			"buy_qty", "buy_price", "sell_qty", "sell_price",
			"realized_pnl", "unrealized_pnl", "last_price", "margin", "as_of",
		}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("postgres: copy positions: %w", err)
		}
		return nil
	})
}

// LoadPositions returns the last saved snapshot, ordered by symbol.
func (s *LedgerStore) LoadPositions(ctx context.Context, algo string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, instrument, quantity, avg_price, buy_qty, buy_price,
		       sell_qty, sell_price, realized_pnl, unrealized_pnl, last_price, margin
		FROM position_snapshots
		WHERE algo = $1
		ORDER BY symbol`, algo)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	positions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Position, error) {
		var (
			p          domain.Position
			instrument string
		)
		err := row.Scan(&p.Asset.Symbol, &instrument, &p.Quantity, &p.AvgPrice,
			&p.BuyQty, &p.BuyPrice, &p.SellQty, &p.SellPrice,
			&p.RealizedPnL, &p.UnrealizedPnL, &p.LastPrice, &p.Margin)
		p.Asset.Type = domain.InstrumentType(instrument)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

func ledgerArgs(algo string, date time.Time, seq int, o domain.Order) []any {
	instrument := o.Asset.Type
	if instrument == "" {
		instrument = domain.InstrumentSpot
	}
	orderType := o.Type
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	return []any{
		algo, date, seq, o.ID, o.Asset.Symbol, string(instrument), string(o.Side), string(orderType),
		o.Quantity, o.Filled, o.Price, o.AvgPrice, o.Commission, string(o.Status), o.Reason,
		o.Strategy, o.CreatedAt, o.UpdatedAt,
	}
}

func scanLedgerOrder(row pgx.CollectableRow) (domain.Order, error) {
	var o domain.Order
	var instrument, side, orderType, status string
	err := row.Scan(&o.ID, &o.Asset.Symbol, &instrument, &side, &orderType,
		&o.Quantity, &o.Filled, &o.Price, &o.AvgPrice, &o.Commission,
		&status, &o.Reason, &o.Strategy, &o.CreatedAt, &o.UpdatedAt)
	o.Asset.Type = domain.InstrumentType(instrument)
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	return o, err
}
