package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrOrderClosed       = errors.New("order already closed")
	ErrInsufficientFunds = errors.New(RejectReasonInsufficientFund)
	ErrUnknownCommand    = errors.New("unknown command")
	ErrControlViolation  = errors.New("trading control violation")
	ErrMissingPrice      = errors.New("missing market price")
	ErrLockHeld          = errors.New("lock already held")
	ErrStopRequested     = errors.New("stop requested")

	// ErrFatal marks errors that must abort a run after best-effort cleanup.
	// Components wrap it (or implement Is) rather than returning it bare.
	ErrFatal = errors.New("fatal")
)

// IsFatal reports whether err belongs to the fatal/control class.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
