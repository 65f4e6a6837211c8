package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"perpsim/journal"
	"perpsim/ledger"
)

// Sweep runs one settlement pass over every account: pending limit orders
// are filled, then take-profit/stop-loss triggers, then liquidations. It
// returns human-readable fill and close descriptions for the caller to
// publish. Oracle failures are isolated to the failing symbol; the rest
// of the batch still settles. The ledger is flushed once, only when
// something changed.
//
// Take-profit and stop-loss settle at the current spot price, not at the
// exact historical trigger price the range scan found.
func (e *Engine) Sweep(ctx context.Context) (fills, closes []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()
	changed := false

	// Spot prices fetched once per symbol per sweep; a failed symbol is
	// skipped everywhere this pass and retried on the next one.
	spots := make(map[string]float64)
	failed := make(map[string]bool)
	spotFor := func(symbol string) (float64, bool) {
		if failed[symbol] {
			return 0, false
		}
		if spot, ok := spots[symbol]; ok {
			return spot, true
		}
		spot, err := e.oracle.Spot(ctx, symbol)
		if err != nil {
			e.log.WithError(err).WithField("symbol", symbol).Warn("sweep: spot unavailable, skipping symbol")
			failed[symbol] = true
			return 0, false
		}
		spots[symbol] = spot
		return spot, true
	}

	for _, user := range e.store.UserIDs() {
		acct := e.store.Account(user)

		// Phase 1: pending limit orders.
		pending := acct.Orders[:0]
		for _, o := range acct.Orders {
			if failed[o.Symbol] {
				pending = append(pending, o)
				continue
			}
			ts, ok := limitFillTime(ctx, e.oracle, o, now)
			if !ok {
				pending = append(pending, o)
				continue
			}
			pos := o.Fill(ts)
			acct.Positions = append(acct.Positions, pos)
			changed = true
			fills = append(fills, fmt.Sprintf(
				"<@%s> limit order #%d filled: %s %s/USDT $%.2f margin at %dx, entry $%.2f",
				user, pos.ID, pos.Side, pos.Symbol, pos.Margin, pos.Leverage, pos.Entry))
			e.recordTrade(user, pos, pos.Entry, ts, 0, journal.ReasonLimitFill)
		}
		acct.Orders = pending

		// Phase 2: triggers, then liquidation. A position closed by a
		// trigger is not also liquidated in the same pass.
		open := acct.Positions[:0]
		for _, p := range acct.Positions {
			if failed[p.Symbol] {
				open = append(open, p)
				continue
			}

			reason, ok := e.closeReason(ctx, p, now)
			if !ok {
				open = append(open, p)
				continue
			}

			var pnl float64
			var exit float64
			if reason == journal.ReasonLiquidation {
				// Full margin forfeited regardless of where price sits now.
				pnl = -p.Margin
				liq, _ := LiquidationPrice(p)
				exit = liq
			} else {
				spot, ok := spotFor(p.Symbol)
				if !ok {
					open = append(open, p)
					continue
				}
				pnl = UnrealizedPNL(p, spot)
				exit = spot
			}

			acct.USD += p.Margin + pnl
			changed = true
			closes = append(closes, fmt.Sprintf(
				"<@%s> %s %s/USDT #%d closed by %s: PNL $%+.2f, balance $%.2f",
				user, p.Side, p.Symbol, p.ID, describeReason(reason), pnl, acct.USD))
			e.recordTrade(user, p, exit, now, pnl, reason)
		}
		acct.Positions = open
	}

	if changed {
		if err := e.store.Save(); err != nil {
			return fills, closes, err
		}
	}
	return fills, closes, nil
}

// closeReason decides whether a position closes this pass: take-profit
// first, then stop-loss, then liquidation. Oracle failures during trigger
// checks leave the position untouched; liquidation already fails safe
// internally.
func (e *Engine) closeReason(ctx context.Context, p *ledger.Position, now time.Time) (string, bool) {
	hit, err := shouldTakeProfit(ctx, e.oracle, p, now)
	if err != nil {
		e.log.WithError(err).WithField("position", p.ID).Warn("sweep: take-profit check deferred")
		return "", false
	}
	if hit {
		return journal.ReasonTakeProfit, true
	}

	hit, err = shouldStopLoss(ctx, e.oracle, p, now)
	if err != nil {
		e.log.WithError(err).WithField("position", p.ID).Warn("sweep: stop-loss check deferred")
		return "", false
	}
	if hit {
		return journal.ReasonStopLoss, true
	}

	if shouldLiquidate(ctx, e.oracle, p, now) {
		return journal.ReasonLiquidation, true
	}
	return "", false
}

func describeReason(reason string) string {
	switch reason {
	case journal.ReasonTakeProfit:
		return "take-profit"
	case journal.ReasonStopLoss:
		return "stop-loss"
	case journal.ReasonLiquidation:
		return "liquidation"
	}
	return reason
}

// Standing is one row of the portfolio leaderboard: balance plus the
// marked value of every open position and escrowed order margin.
type Standing struct {
	User  string
	Total float64
}

// Standings values every account at current spot and returns rows sorted
// by total, best first. Unlike the sweep, a price failure fails the whole
// call: a leaderboard with holes would misrank users.
func (e *Engine) Standings(ctx context.Context) ([]Standing, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()
	spots := make(map[string]float64)

	rows := make([]Standing, 0)
	for _, user := range e.store.UserIDs() {
		acct := e.store.Account(user)
		total := acct.USD
		for _, p := range acct.Positions {
			spot, ok := spots[p.Symbol]
			if !ok {
				var err error
				spot, err = e.oracle.Spot(ctx, p.Symbol)
				if err != nil {
					return nil, err
				}
				spots[p.Symbol] = spot
			}
			total += p.Margin + UnrealizedPNL(p, spot)
		}
		for _, o := range acct.Orders {
			total += o.Margin
		}
		rows = append(rows, Standing{User: user, Total: total})

		if err := e.journal.RecordStandings(journal.StandingsSnapshot{
			Time:   now,
			User:   user,
			USD:    acct.USD,
			Equity: total,
		}); err != nil {
			e.log.WithError(err).WithField("user", user).Warn("journal standings record failed")
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Total > rows[j].Total })
	return rows, nil
}
