package blotter

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Ledger holds closed orders grouped by trade date. It keeps at most
// maxDays dates; when a new date pushes it over, the evictChunk oldest dates
// are removed together and returned to the caller.
type Ledger struct {
	maxDays    int
	evictChunk int

	dates     []string // ascending
	entries   map[string][]domain.Order
	ids       map[string]string // order id -> date
	watermark string            // newest evicted date
}

// NewLedger validates the bounds.
func NewLedger(maxDays, evictChunk int) (*Ledger, error) {
	if maxDays < 1 {
		return nil, fmt.Errorf("blotter: max ledger days must be at least 1, got %d", maxDays)
	}
	if evictChunk < 1 || evictChunk > maxDays {
		return nil, fmt.Errorf("blotter: evict chunk must be in [1, %d], got %d", maxDays, evictChunk)
	}
	return &Ledger{
		maxDays:    maxDays,
		evictChunk: evictChunk,
		entries:    make(map[string][]domain.Order),
		ids:        make(map[string]string),
	}, nil
}

// Add appends o under date and returns any days evicted as a result. An order
// already in the ledger is ignored.
func (l *Ledger) Add(date string, o domain.Order) []domain.LedgerDay {
	if _, dup := l.ids[o.ID]; dup {
		return nil
	}
	if _, ok := l.entries[date]; !ok {
		i := sort.SearchStrings(l.dates, date)
		l.dates = append(l.dates, "")
		copy(l.dates[i+1:], l.dates[i:])
		l.dates[i] = date
	}
	l.entries[date] = append(l.entries[date], o)
	l.ids[o.ID] = date

	if len(l.dates) <= l.maxDays {
		return nil
	}
	return l.evict()
}

func (l *Ledger) evict() []domain.LedgerDay {
	n := l.evictChunk
	if n > len(l.dates) {
		n = len(l.dates)
	}
	out := make([]domain.LedgerDay, 0, n)
	for _, d := range l.dates[:n] {
		orders := l.entries[d]
		for _, o := range orders {
			delete(l.ids, o.ID)
		}
		delete(l.entries, d)
		out = append(out, domain.LedgerDay{Date: d, Orders: orders})
		if d > l.watermark {
			l.watermark = d
		}
	}
	l.dates = append([]string(nil), l.dates[n:]...)
	return out
}

// Contains reports whether the order is in the ledger.
func (l *Ledger) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}

// Evicted reports whether date is at or before the newest evicted date.
func (l *Ledger) Evicted(date string) bool {
	return l.watermark != "" && date <= l.watermark
}

// Day returns the orders of one date in insertion order.
func (l *Ledger) Day(date string) (domain.LedgerDay, bool) {
	orders, ok := l.entries[date]
	if !ok {
		return domain.LedgerDay{}, false
	}
	return domain.LedgerDay{Date: date, Orders: append([]domain.Order(nil), orders...)}, true
}

// Days returns every retained date, oldest first.
func (l *Ledger) Days() []domain.LedgerDay {
	out := make([]domain.LedgerDay, 0, len(l.dates))
	for _, d := range l.dates {
		out = append(out, domain.LedgerDay{Date: d, Orders: append([]domain.Order(nil), l.entries[d]...)})
	}
	return out
}

// Len returns the number of retained dates.
func (l *Ledger) Len() int { return len(l.dates) }

// Orders returns the number of retained orders.
func (l *Ledger) Orders() int { return len(l.ids) }
