// Package engine implements the position lifecycle: liquidation math,
// trigger detection against historical price ranges, manual open/close
// operations, and periodic batch settlement.
package engine

import (
	"context"
	"time"

	"perpsim/ledger"
	"perpsim/market"
)

// Leverage bounds accepted when opening a position.
const (
	MinLeverage = 1
	MaxLeverage = 50
)

// LiquidationPrice returns the price at which an adverse move of
// 1/leverage from entry wipes the escrowed margin. ok is false when
// leverage is zero or negative; callers must treat that as "never
// liquidates", not as price zero.
func LiquidationPrice(p *ledger.Position) (float64, bool) {
	if p.Leverage <= 0 {
		return 0, false
	}
	move := 1.0 / float64(p.Leverage)
	if p.Side == market.Long {
		return p.Entry * (1.0 - move), true
	}
	return p.Entry * (1.0 + move), true
}

// UnrealizedPNL computes profit or loss at current price. Loss is clamped
// at -margin: isolated margin, the balance can never go negative.
func UnrealizedPNL(p *ledger.Position, current float64) float64 {
	var pct float64
	if p.Side == market.Long {
		pct = (current - p.Entry) / p.Entry
	} else {
		pct = (p.Entry - current) / p.Entry
	}
	pnl := pct * p.Margin * float64(p.Leverage)
	if pnl < -p.Margin {
		pnl = -p.Margin
	}
	return pnl
}

// limitFillTime reports when a pending limit order first filled, scanning
// history from order creation to now. Longs fill when price touches or
// falls below the limit, shorts when it touches or rises above. An oracle
// failure leaves the order pending: fill detection defers, it never
// fails the sweep.
func limitFillTime(ctx context.Context, oracle market.Oracle, o *ledger.Order, now time.Time) (time.Time, bool) {
	dir := market.CrossDown
	if o.Side == market.Short {
		dir = market.CrossUp
	}
	ts, ok, err := oracle.FirstCrossing(ctx, o.Symbol, o.Limit, dir, o.CreatedAt, now)
	if err != nil || !ok {
		return time.Time{}, false
	}
	return ts, true
}

// crossedSince reports whether price history crossed target in the
// adverse (for stops) or favorable (for take-profits) direction between
// since and now. down selects the low-side comparison.
func crossedSince(ctx context.Context, oracle market.Oracle, symbol string, target float64, down bool, since, now time.Time) (bool, error) {
	low, high, err := oracle.RangeExtremes(ctx, symbol, since, now)
	if err != nil {
		return false, err
	}
	if down {
		return low <= target, nil
	}
	return high >= target, nil
}

// shouldStopLoss reports whether the stop, if set, was crossed since it
// was set. Long stops trigger on the low, short stops on the high.
func shouldStopLoss(ctx context.Context, oracle market.Oracle, p *ledger.Position, now time.Time) (bool, error) {
	if p.StopLoss == nil {
		return false, nil
	}
	return crossedSince(ctx, oracle, p.Symbol, p.StopLoss.Price, p.Side == market.Long, p.StopLoss.SetAt, now)
}

// shouldTakeProfit mirrors shouldStopLoss on the favorable side.
func shouldTakeProfit(ctx context.Context, oracle market.Oracle, p *ledger.Position, now time.Time) (bool, error) {
	if p.TakeProfit == nil {
		return false, nil
	}
	return crossedSince(ctx, oracle, p.Symbol, p.TakeProfit.Price, p.Side == market.Short, p.TakeProfit.SetAt, now)
}

// shouldLiquidate checks the liquidation threshold against history since
// the position opened. It fails safe: with leverage out of range or the
// oracle unavailable it returns false, because liquidation is
// irreversible and punitive.
func shouldLiquidate(ctx context.Context, oracle market.Oracle, p *ledger.Position, now time.Time) bool {
	liq, ok := LiquidationPrice(p)
	if !ok {
		return false
	}
	hit, err := crossedSince(ctx, oracle, p.Symbol, liq, p.Side == market.Long, p.OpenedAt, now)
	if err != nil {
		return false
	}
	return hit
}
