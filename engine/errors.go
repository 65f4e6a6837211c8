package engine

import "errors"

// User-facing error kinds. All are recoverable; none are fatal to the
// process.
var (
	ErrInvalidLeverage     = errors.New("leverage must be between 1x and 50x")
	ErrInvalidMargin       = errors.New("margin amount must be positive")
	ErrInvalidLimitPrice   = errors.New("limit price would fill immediately")
	ErrInsufficientBalance = errors.New("insufficient USD balance")
	ErrPositionNotFound    = errors.New("position not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
)
