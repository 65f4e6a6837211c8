package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"perpsim/engine"
	"perpsim/ledger"
	"perpsim/market"
)

const helpText = `**Crypto Futures Simulator Commands** (pretend trading):

• **buy** $AMOUNT of CRYPTO/USDT [LEVERAGE]x [limit $PRICE]
  e.g. buy $100 of SOL/USDT 20x    (default 10x if omitted)

• **sell** $AMOUNT of CRYPTO/USDT [LEVERAGE]x [limit $PRICE]
  (opens short position; limit queues a pending order)

• **close** ID | CRYPTO/USDT | all → realizes PNL

• **cancel** ID → cancels a pending limit order, refunds margin

• **tp** $PRICE on ID / **sl** $PRICE on ID → take-profit / stop-loss

• **check balance** → shows USD + all positions with PNL

• **check positions** → show all user positions

• **check standings** → portfolio value leaderboard

• **price** CRYPTO → current spot price (e.g. price DOGE)

• **admin set** @user $AMOUNT / **admin add** @user $AMOUNT → admin only

Most cryptos supported by Coinbase spot prices work (SOL, DOGE, AVAX, XRP, ADA, etc.).
Leverage: 1x – 50x. All values are simulated — no real money involved!`

// Processor executes parsed intents against the engine and renders the
// replies.
type Processor struct {
	engine *engine.Engine
	oracle market.Oracle
	admin  string
	log    *logrus.Entry
}

func NewProcessor(eng *engine.Engine, oracle market.Oracle, adminUser string, log *logrus.Entry) *Processor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{engine: eng, oracle: oracle, admin: adminUser, log: log}
}

// Handle processes one message from user. A settlement pass runs first so
// the user always acts on settled state; its events are returned for the
// gateway to announce.
func (p *Processor) Handle(ctx context.Context, user, text string) (reply string, events []string) {
	if err := p.engine.Ensure(user); err != nil {
		p.log.WithError(err).Warn("ensure user failed")
	}

	fills, closes, err := p.engine.Sweep(ctx)
	if err != nil {
		p.log.WithError(err).Warn("inline sweep failed")
	}
	events = append(events, fills...)
	events = append(events, closes...)

	return p.dispatch(ctx, user, Parse(text)), events
}

func (p *Processor) dispatch(ctx context.Context, user string, intent Intent) string {
	switch intent.Kind {
	case KindOpen:
		return p.open(ctx, user, intent)
	case KindCloseID:
		res, err := p.engine.Close(ctx, user, intent.ID)
		if err != nil {
			return p.errorReply(err, intent.Symbol)
		}
		pos := res.Positions[0]
		return fmt.Sprintf("Closed position #%d (**%s %s/USDT**). Realized PNL: **%s** → New USD balance: **%s**",
			pos.ID, pos.Side, pos.Symbol, signedUSD(res.PNL), usd(res.Balance))
	case KindCloseSymbol:
		res, err := p.engine.CloseSymbol(ctx, user, intent.Symbol)
		if err != nil {
			if errors.Is(err, engine.ErrPositionNotFound) {
				return fmt.Sprintf("No open positions found for **%s/USDT**.", intent.Symbol)
			}
			return p.errorReply(err, intent.Symbol)
		}
		return fmt.Sprintf("Closed all **%s/USDT** positions. Realized PNL: **%s** → New USD balance: **%s**",
			intent.Symbol, signedUSD(res.PNL), usd(res.Balance))
	case KindCloseAll:
		res, err := p.engine.CloseAll(ctx, user)
		if err != nil {
			if errors.Is(err, engine.ErrPositionNotFound) {
				return "No open positions to close."
			}
			return p.errorReply(err, "")
		}
		return fmt.Sprintf("Closed %d position(s). Realized PNL: **%s** → New USD balance: **%s**",
			len(res.Positions), signedUSD(res.PNL), usd(res.Balance))
	case KindCancel:
		res, err := p.engine.CancelOrder(user, intent.ID)
		if err != nil {
			return p.errorReply(err, "")
		}
		return fmt.Sprintf("Cancelled order #%d, refunded **%s** margin → New USD balance: **%s**",
			intent.ID, usd(res.Margin), usd(res.Balance))
	case KindSetTakeProfit:
		if err := p.engine.SetTakeProfit(user, intent.ID, intent.Price); err != nil {
			return p.errorReply(err, "")
		}
		return fmt.Sprintf("Take-profit for #%d set at **%s** — tracking from now.", intent.ID, usd(intent.Price))
	case KindSetStopLoss:
		if err := p.engine.SetStopLoss(user, intent.ID, intent.Price); err != nil {
			return p.errorReply(err, "")
		}
		return fmt.Sprintf("Stop-loss for #%d set at **%s** — tracking from now.", intent.ID, usd(intent.Price))
	case KindPrice:
		spot, err := p.oracle.Spot(ctx, intent.Symbol)
		if err != nil {
			return p.errorReply(err, intent.Symbol)
		}
		return fmt.Sprintf("Current **%s/USD** spot price: **%s**", intent.Symbol, usd(spot))
	case KindBalance:
		return p.balance(ctx, user)
	case KindPositions:
		return p.positions(ctx)
	case KindStandings:
		return p.standings(ctx)
	case KindBrag:
		return p.brag(ctx, user, intent.Symbol)
	case KindHelp:
		return helpText
	case KindAdminSet, KindAdminAdd:
		return p.adminAdjust(user, intent)
	}
	return "Unknown command. Try 'help'."
}

func (p *Processor) open(ctx context.Context, user string, intent Intent) string {
	res, err := p.engine.Open(ctx, user, engine.OpenRequest{
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Margin:   intent.Margin,
		Leverage: intent.Leverage,
		Limit:    intent.Limit,
	})
	if err != nil {
		return p.errorReply(err, intent.Symbol)
	}
	if res.Order != nil {
		o := res.Order
		return fmt.Sprintf("Placed **%s** limit order #%d on **%s/USDT**: fills at **%s**, **%s** margin at **%dx** leverage. Spot is %s.",
			o.Side, o.ID, o.Symbol, usd(o.Limit), usd(o.Margin), o.Leverage, usd(res.Spot))
	}
	pos := res.Position
	return fmt.Sprintf("Opened **%s** position #%d on **%s/USDT** with **%s** margin at **%dx** leverage. Entry price: **%s**",
		pos.Side, pos.ID, pos.Symbol, usd(pos.Margin), pos.Leverage, usd(pos.Entry))
}

func (p *Processor) balance(ctx context.Context, user string) string {
	view, ok := p.engine.Snapshot(user)
	if !ok {
		return "**USD balance**: $0.00\n\nNo open positions."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**USD balance**: %s\n\n", usd(view.USD))

	if len(view.Positions) > 0 {
		b.WriteString("**Open Positions**:\n")
		for i := range view.Positions {
			b.WriteString(p.positionLine(ctx, &view.Positions[i]))
		}
	} else {
		b.WriteString("No open positions.")
	}

	if len(view.Orders) > 0 {
		b.WriteString("\n**Pending Orders**:\n")
		for _, o := range view.Orders {
			fmt.Fprintf(&b, "• **%s %s/USDT** #%d @%dx | Margin: %s | Fills at: %s\n",
				o.Side, o.Symbol, o.ID, o.Leverage, usd(o.Margin), usd(o.Limit))
		}
	}
	return b.String()
}

func (p *Processor) positionLine(ctx context.Context, pos *ledger.Position) string {
	cur, err := p.oracle.Spot(ctx, pos.Symbol)
	if err != nil {
		return fmt.Sprintf("• **%s %s/USDT** #%d @%dx | Margin: %s | Entry: %s | Current: N/A (price fetch failed)\n",
			pos.Side, pos.Symbol, pos.ID, pos.Leverage, usd(pos.Margin), usd(pos.Entry))
	}
	pnl := engine.UnrealizedPNL(pos, cur)
	return fmt.Sprintf("• **%s %s/USDT** #%d @%dx | Margin: %s | Entry: %s | Current: %s | PNL: **%s**\n",
		pos.Side, pos.Symbol, pos.ID, pos.Leverage, usd(pos.Margin), usd(pos.Entry), usd(cur), signedUSD(pnl))
}

func (p *Processor) positions(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("User Positions:\n")
	for _, view := range p.engine.SnapshotAll() {
		fmt.Fprintf(&b, "**<@%s>**:\n", view.User)
		if len(view.Positions) == 0 {
			b.WriteString("No open positions.\n\n")
			continue
		}
		for i := range view.Positions {
			b.WriteString(p.positionLine(ctx, &view.Positions[i]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (p *Processor) standings(ctx context.Context) string {
	rows, err := p.engine.Standings(ctx)
	if err != nil {
		return "Error fetching price for standings."
	}
	var b strings.Builder
	b.WriteString("Standings:\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "<@%s> = %s\n", row.User, usd(row.Total))
	}
	return b.String()
}

func (p *Processor) brag(ctx context.Context, user, symbol string) string {
	view, ok := p.engine.Snapshot(user)
	if !ok {
		return fmt.Sprintf("You don't have an open position in %s/USDT.", symbol)
	}

	var b strings.Builder
	found := false
	for i := range view.Positions {
		pos := &view.Positions[i]
		if pos.Symbol != symbol {
			continue
		}
		found = true
		cur, err := p.oracle.Spot(ctx, symbol)
		if err != nil {
			return p.errorReply(err, symbol)
		}
		pnl := engine.UnrealizedPNL(pos, cur)
		fmt.Fprintf(&b, "My %s position in %s/USDT is on 🔥!\n", strings.ToLower(pos.Side.String()), symbol)
		fmt.Fprintf(&b, "Entry price: %s\n", usd(pos.Entry))
		fmt.Fprintf(&b, "Current price: %s\n", usd(cur))
		fmt.Fprintf(&b, "PNL: %s\n", signedUSD(pnl))
		b.WriteString("🚀🚀🚀 TO THE MOON! 🚀🚀🚀\n")
	}
	if !found {
		return fmt.Sprintf("You don't have an open position in %s/USDT.", symbol)
	}
	return b.String()
}

func (p *Processor) adminAdjust(user string, intent Intent) string {
	if p.admin == "" || user != p.admin {
		return "You are not an admin."
	}
	if intent.Kind == KindAdminSet {
		balance, err := p.engine.AdminSet(intent.Target, intent.Amount)
		if err != nil {
			return p.errorReply(err, "")
		}
		return fmt.Sprintf("Set <@%s>'s USD balance to %s", intent.Target, usd(balance))
	}
	balance, err := p.engine.AdminAdd(intent.Target, intent.Amount)
	if err != nil {
		return p.errorReply(err, "")
	}
	return fmt.Sprintf("Added %s to <@%s>'s USD balance (now %s)", usd(intent.Amount), intent.Target, usd(balance))
}

// errorReply maps engine errors to the phrasing users see.
func (p *Processor) errorReply(err error, symbol string) string {
	switch {
	case errors.Is(err, market.ErrPriceUnavailable):
		if symbol != "" {
			return fmt.Sprintf("Could not fetch price for %s/USD — possibly unsupported pair. Try again later.", symbol)
		}
		return "Could not fetch price — try again later."
	case errors.Is(err, engine.ErrInvalidLeverage):
		return "Leverage must be between 1x and 50x."
	case errors.Is(err, engine.ErrInvalidMargin):
		return "Margin amount must be positive."
	case errors.Is(err, engine.ErrInvalidAmount):
		return "Amount must be positive."
	case errors.Is(err, engine.ErrInsufficientBalance):
		return capitalize(err.Error())
	case errors.Is(err, engine.ErrInvalidLimitPrice):
		return capitalize(err.Error())
	case errors.Is(err, engine.ErrPositionNotFound):
		return "No position or order found with that ID."
	}
	p.log.WithError(err).Error("command failed")
	return "Something went wrong — try again."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
