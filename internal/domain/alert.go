package domain

import "context"

// Alert event types. Operators filter notifications on these names.
const (
	EventReconcileMismatch = "reconcile_mismatch"
	EventOrderRejected     = "order_rejected"
	EventRunError          = "run_error"
	EventRunFatal          = "run_fatal"
	EventRunState          = "run_state"
)

// Alerter delivers operator-facing notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}
