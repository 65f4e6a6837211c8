package ledger

import (
	"encoding/json"
	"time"

	"perpsim/market"
)

// record is the persisted shape shared by positions and pending orders.
// Orders store their creation time in timestamp and the limit price in
// entry, which is the legacy document layout.
type record struct {
	PositionID    *int64           `json:"position_id"`
	Crypto        string           `json:"crypto"`
	Side          market.Direction `json:"side"`
	Timestamp     *int64           `json:"timestamp"`
	Entry         float64          `json:"entry"`
	Margin        float64          `json:"margin"`
	Lev           int              `json:"lev"`
	TakeProfit    *float64         `json:"take_profit,omitempty"`
	StopLoss      *float64         `json:"stop_loss,omitempty"`
	TPTimestamp   *int64           `json:"tp_timestamp,omitempty"`
	StopTimestamp *int64           `json:"stop_timestamp,omitempty"`
}

func unixPtr(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ts := t.Unix()
	return &ts
}

func timeOf(ts *int64) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return time.Unix(*ts, 0).UTC()
}

func triggerToWire(tr *Trigger) (*float64, *int64) {
	if tr == nil {
		return nil, nil
	}
	price := tr.Price
	return &price, unixPtr(tr.SetAt)
}

func triggerFromWire(price *float64, ts *int64) *Trigger {
	if price == nil {
		return nil
	}
	return &Trigger{Price: *price, SetAt: timeOf(ts)}
}

// MarshalJSON writes the position in the persisted document layout.
func (p *Position) MarshalJSON() ([]byte, error) {
	r := record{
		Crypto: p.Symbol,
		Side:   p.Side,
		Entry:  p.Entry,
		Margin: p.Margin,
		Lev:    p.Leverage,
	}
	id := p.ID
	r.PositionID = &id
	r.Timestamp = unixPtr(p.OpenedAt)
	r.TakeProfit, r.TPTimestamp = triggerToWire(p.TakeProfit)
	r.StopLoss, r.StopTimestamp = triggerToWire(p.StopLoss)
	return json.Marshal(r)
}

// UnmarshalJSON reads the persisted layout. Missing id or timestamp is
// tolerated here and repaired by Store.Load.
func (p *Position) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*p = Position{
		Symbol:     market.Normalize(r.Crypto),
		Side:       r.Side,
		OpenedAt:   timeOf(r.Timestamp),
		Entry:      r.Entry,
		Margin:     r.Margin,
		Leverage:   r.Lev,
		TakeProfit: triggerFromWire(r.TakeProfit, r.TPTimestamp),
		StopLoss:   triggerFromWire(r.StopLoss, r.StopTimestamp),
	}
	if r.PositionID != nil {
		p.ID = *r.PositionID
		p.idSet = true
	}
	return nil
}

// MarshalJSON writes the order in the same document layout positions use.
func (o *Order) MarshalJSON() ([]byte, error) {
	r := record{
		Crypto: o.Symbol,
		Side:   o.Side,
		Entry:  o.Limit,
		Margin: o.Margin,
		Lev:    o.Leverage,
	}
	id := o.ID
	r.PositionID = &id
	r.Timestamp = unixPtr(o.CreatedAt)
	r.TakeProfit, r.TPTimestamp = triggerToWire(o.TakeProfit)
	r.StopLoss, r.StopTimestamp = triggerToWire(o.StopLoss)
	return json.Marshal(r)
}

// UnmarshalJSON reads the persisted layout for a pending order.
func (o *Order) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*o = Order{
		Symbol:     market.Normalize(r.Crypto),
		Side:       r.Side,
		CreatedAt:  timeOf(r.Timestamp),
		Limit:      r.Entry,
		Margin:     r.Margin,
		Leverage:   r.Lev,
		TakeProfit: triggerFromWire(r.TakeProfit, r.TPTimestamp),
		StopLoss:   triggerFromWire(r.StopLoss, r.StopTimestamp),
	}
	if r.PositionID != nil {
		o.ID = *r.PositionID
		o.idSet = true
	}
	return nil
}
