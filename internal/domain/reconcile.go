package domain

import "time"

// ReconciliationResult is produced fresh by every reconciliation cycle. It is
// surfaced to the caller, never persisted as state.
type ReconciliationResult struct {
	Matched              bool
	MissingOrders        []Order
	ExtraOrders          []Order
	MatchedOrders        map[string]Order
	UnexplainedPositions map[string]float64 // symbol -> reported minus expected quantity
	AccountDrift         float64            // reported minus implied net liquidity
	Timestamp            time.Time
}
