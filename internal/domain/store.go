package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerDay is one trade date of the transaction ledger, in insertion order.
type LedgerDay struct {
	Date   string // YYYY-MM-DD in the calendar timezone
	Orders []Order
}

// LedgerStore persists the blotter's transaction ledger and positions.
type LedgerStore interface {
	SaveDay(ctx context.Context, algo string, day LedgerDay) error
	ListDay(ctx context.Context, algo, date string) ([]Order, error)
	SavePositions(ctx context.Context, algo string, asOf time.Time, positions []Position) error
	LoadPositions(ctx context.Context, algo string) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
