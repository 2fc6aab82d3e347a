package execution

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator issues deterministic identifiers: the n-th order of a run with
// a given namespace always gets the same ID, which keeps backtests
// repeatable.
type IDGenerator struct {
	ns     uuid.UUID
	orders atomic.Uint64
	trades atomic.Uint64
}

// NewIDGenerator derives the namespace from a run name.
func NewIDGenerator(run string) *IDGenerator {
	return &IDGenerator{ns: uuid.NewSHA1(uuid.NameSpaceOID, []byte("tradeloop/"+run))}
}

// NextOrder returns the next order ID.
func (g *IDGenerator) NextOrder() string {
	return uuid.NewSHA1(g.ns, []byte("order-"+strconv.FormatUint(g.orders.Add(1), 10))).String()
}

// NextTrade returns the next trade ID.
func (g *IDGenerator) NextTrade() string {
	return uuid.NewSHA1(g.ns, []byte("trade-"+strconv.FormatUint(g.trades.Add(1), 10))).String()
}
