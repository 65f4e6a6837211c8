// Package journal records settled trades and standings snapshots for
// later inspection. It is an audit trail: the ledger document remains the
// source of truth, and journal failures never abort settlement.
package journal

import (
	"time"
)

// Close reasons recorded with every settled trade.
const (
	ReasonLimitFill   = "limit_fill"
	ReasonManualClose = "manual_close"
	ReasonTakeProfit  = "take_profit"
	ReasonStopLoss    = "stop_loss"
	ReasonLiquidation = "liquidation"
)

// TradeRecord is one settled (or filled) position event.
type TradeRecord struct {
	EventID     string
	User        string
	PositionID  int64
	Symbol      string
	Side        string
	Margin      float64
	Leverage    int
	EntryPrice  float64
	ExitPrice   float64
	OpenTime    time.Time
	CloseTime   time.Time
	RealizedPNL float64
	Reason      string
}

// StandingsSnapshot is one user's balance and equity at a point in time.
type StandingsSnapshot struct {
	Time   time.Time
	User   string
	USD    float64
	Equity float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordStandings(StandingsSnapshot) error
	Close() error
}

// Nop discards everything. Used when journaling is disabled.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error           { return nil }
func (Nop) RecordStandings(StandingsSnapshot) error { return nil }
func (Nop) Close() error                            { return nil }
