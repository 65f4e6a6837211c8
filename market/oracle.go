package market

import (
	"context"
	"errors"
	"time"
)

// ErrPriceUnavailable reports an upstream price feed failure or an
// unsupported symbol. Callers must treat it as "do not act", never as a
// zero price.
var ErrPriceUnavailable = errors.New("price unavailable")

// CrossDirection tells a trigger scan which side of the candle matters.
type CrossDirection int

const (
	// CrossDown looks for the first candle whose low touches or falls
	// below the target.
	CrossDown CrossDirection = iota
	// CrossUp looks for the first candle whose high touches or rises
	// above the target.
	CrossUp
)

// Oracle is the price feed the lifecycle engine reads. Implementations
// wrap every failure in ErrPriceUnavailable.
type Oracle interface {
	// Spot returns the current spot price for a symbol.
	Spot(ctx context.Context, symbol string) (float64, error)

	// RangeExtremes returns the lowest and highest price observed across
	// [start, end]. A zero or negative window, or a window with no
	// historical samples, degrades to the current spot price for both.
	RangeExtremes(ctx context.Context, symbol string, start, end time.Time) (low, high float64, err error)

	// FirstCrossing scans [start, end] chronologically and returns the
	// timestamp of the first sample crossing target in the given
	// direction. ok is false when no sample crossed.
	FirstCrossing(ctx context.Context, symbol string, target float64, dir CrossDirection, start, end time.Time) (ts time.Time, ok bool, err error)
}
