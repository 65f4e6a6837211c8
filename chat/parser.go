// Package chat turns free-text chat commands into engine calls and
// formats the replies. It also hosts the websocket gateway that connects
// the bot to the chat server.
package chat

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"perpsim/market"
)

// Kind identifies what a parsed command wants.
type Kind int

const (
	KindUnknown Kind = iota
	KindOpen
	KindCloseID
	KindCloseSymbol
	KindCloseAll
	KindCancel
	KindSetTakeProfit
	KindSetStopLoss
	KindPrice
	KindBalance
	KindPositions
	KindStandings
	KindBrag
	KindHelp
	KindAdminSet
	KindAdminAdd
)

// Intent is one parsed command.
type Intent struct {
	Kind     Kind
	Side     market.Direction
	Symbol   string
	Margin   float64
	Leverage int
	Limit    *float64
	ID       int64
	Price    float64
	Target   string // admin commands: the user being adjusted
	Amount   float64
}

// DefaultLeverage applies when a buy/sell omits the Nx suffix.
const DefaultLeverage = 10

var (
	sideRe     = regexp.MustCompile(`(?i)\b(buy|sell)\b`)
	marginRe   = regexp.MustCompile(`\$([\d.]+)`)
	pairRe     = regexp.MustCompile(`\b([A-Z]{2,10})/(?:USDT|USD)\b`)
	leverageRe = regexp.MustCompile(`(?i)\b(\d+)x\b`)
	limitRe    = regexp.MustCompile(`(?i)\blimit\s+\$?([\d.]+)`)
	closeRe    = regexp.MustCompile(`(?i)^close\s+(.+)$`)
	cancelRe   = regexp.MustCompile(`(?i)^cancel\s+#?(\d+)$`)
	triggerRe  = regexp.MustCompile(`(?i)^(?:set\s+)?(tp|take.?profit|sl|stop.?loss)\s+\$?([\d.]+)(?:\s+(?:on|for))?\s+#?(\d+)$`)
	priceRe    = regexp.MustCompile(`(?i)^price\s+(\S+)$`)
	bragRe     = regexp.MustCompile(`(?i)^brag\s+(\S+)$`)
	adminRe    = regexp.MustCompile(`(?i)^admin\s+(set|add)\s+<@(\w+)>\s+\$([\d.]+)$`)
)

// Parse classifies one stripped message. The buy/sell grammar is
// deliberately forgiving about word order: side, margin and pair may
// appear anywhere in the text.
func Parse(text string) Intent {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	if m := adminRe.FindStringSubmatch(text); m != nil {
		amount, ok := parseMoney(m[3])
		if !ok {
			return Intent{Kind: KindUnknown}
		}
		kind := KindAdminSet
		if strings.EqualFold(m[1], "add") {
			kind = KindAdminAdd
		}
		return Intent{Kind: kind, Target: m[2], Amount: amount}
	}

	switch lower {
	case "help":
		return Intent{Kind: KindHelp}
	case "check balance", "balance":
		return Intent{Kind: KindBalance}
	case "check positions", "positions":
		return Intent{Kind: KindPositions}
	case "check standings", "standings":
		return Intent{Kind: KindStandings}
	case "close all":
		return Intent{Kind: KindCloseAll}
	}

	if m := triggerRe.FindStringSubmatch(text); m != nil {
		price, ok := parseMoney(m[2])
		if !ok {
			return Intent{Kind: KindUnknown}
		}
		id, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return Intent{Kind: KindUnknown}
		}
		kind := KindSetStopLoss
		if strings.HasPrefix(strings.ToLower(m[1]), "t") {
			kind = KindSetTakeProfit
		}
		return Intent{Kind: kind, ID: id, Price: price}
	}

	if m := cancelRe.FindStringSubmatch(text); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Intent{Kind: KindUnknown}
		}
		return Intent{Kind: KindCancel, ID: id}
	}

	if m := closeRe.FindStringSubmatch(text); m != nil {
		arg := strings.TrimSpace(m[1])
		if id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64); err == nil {
			return Intent{Kind: KindCloseID, ID: id}
		}
		if p := pairRe.FindStringSubmatch(strings.ToUpper(arg)); p != nil {
			return Intent{Kind: KindCloseSymbol, Symbol: p[1]}
		}
		return Intent{Kind: KindUnknown}
	}

	if m := priceRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindPrice, Symbol: market.Normalize(m[1])}
	}
	if m := bragRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindBrag, Symbol: market.Normalize(m[1])}
	}

	// Open grammar: buy/sell + $margin + PAIR anywhere in the text,
	// optional Nx leverage and "limit $P".
	side := sideRe.FindStringSubmatch(text)
	pair := pairRe.FindStringSubmatch(strings.ToUpper(text))
	if side != nil && pair != nil {
		intent := Intent{Kind: KindOpen, Symbol: pair[1], Leverage: DefaultLeverage}

		direction, err := market.ParseDirection(side[1])
		if err != nil {
			return Intent{Kind: KindUnknown}
		}
		intent.Side = direction

		rest := text
		if lm := limitRe.FindStringSubmatch(rest); lm != nil {
			limit, ok := parseMoney(lm[1])
			if !ok {
				return Intent{Kind: KindUnknown}
			}
			intent.Limit = &limit
			rest = limitRe.ReplaceAllString(rest, "")
		}

		mm := marginRe.FindStringSubmatch(rest)
		if mm == nil {
			return Intent{Kind: KindUnknown}
		}
		margin, ok := parseMoney(mm[1])
		if !ok {
			return Intent{Kind: KindUnknown}
		}
		intent.Margin = margin

		if lv := leverageRe.FindStringSubmatch(rest); lv != nil {
			lev, err := strconv.Atoi(lv[1])
			if err != nil {
				return Intent{Kind: KindUnknown}
			}
			intent.Leverage = lev
		}
		return intent
	}

	return Intent{Kind: KindUnknown}
}

// parseMoney parses a dollar amount exactly, then converts once to the
// float the engine works in.
func parseMoney(s string) (float64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}
