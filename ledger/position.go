// Package ledger owns user accounts, positions, pending orders and their
// persistence as a single JSON document.
package ledger

import (
	"time"

	"perpsim/market"
)

// Trigger is an optional force-close price paired with the moment it was
// set. Trigger detection only scans price history from SetAt forward,
// never retroactively.
type Trigger struct {
	Price float64
	SetAt time.Time
}

// Position is an active leveraged position. Margin is escrowed from the
// account balance while the position is open.
type Position struct {
	ID       int64
	Symbol   string
	Side     market.Direction
	OpenedAt time.Time
	Entry    float64
	Margin   float64
	Leverage int

	TakeProfit *Trigger
	StopLoss   *Trigger

	// idSet distinguishes a persisted position_id of 0, which is a real
	// ID, from a record that carried none. Load renumbers only the
	// latter; an ID is immutable once set.
	idSet bool
}

// Order is a pending limit order: a position that activates once price
// reaches Limit. Its margin is already escrowed.
type Order struct {
	ID        int64
	Symbol    string
	Side      market.Direction
	CreatedAt time.Time
	Limit     float64
	Margin    float64
	Leverage  int

	TakeProfit *Trigger
	StopLoss   *Trigger

	idSet bool
}

// Fill converts a filled order into an open position. The limit price
// becomes the entry, and any attached trigger is re-stamped to the fill
// time so it starts observing history from the fill, not from order
// creation.
func (o *Order) Fill(ts time.Time) *Position {
	p := &Position{
		ID:       o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		OpenedAt: ts,
		Entry:    o.Limit,
		Margin:   o.Margin,
		Leverage: o.Leverage,
	}
	if o.TakeProfit != nil {
		p.TakeProfit = &Trigger{Price: o.TakeProfit.Price, SetAt: ts}
	}
	if o.StopLoss != nil {
		p.StopLoss = &Trigger{Price: o.StopLoss.Price, SetAt: ts}
	}
	return p
}
