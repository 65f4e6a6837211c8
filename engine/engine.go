package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"perpsim/journal"
	"perpsim/ledger"
	"perpsim/market"
)

// Engine owns the ledger store for the process. Every mutating method
// holds one lock around the whole read-decide-mutate-persist batch, so
// interactive commands and the background sweeper never interleave on the
// same account.
type Engine struct {
	mu      sync.Mutex
	store   *ledger.Store
	oracle  market.Oracle
	journal journal.Journal
	log     *logrus.Entry

	now func() time.Time // injectable clock for tests
}

func New(store *ledger.Store, oracle market.Oracle, j journal.Journal, log *logrus.Entry) *Engine {
	if j == nil {
		j = journal.Nop{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		store:   store,
		oracle:  oracle,
		journal: j,
		log:     log,
		now:     time.Now,
	}
}

// Ensure registers the user on first contact and persists the new
// account.
func (e *Engine) Ensure(user string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.Account(user) != nil {
		return nil
	}
	e.store.Ensure(user)
	return e.store.Save()
}

// OpenRequest describes a position to open. Limit nil means a market
// (spot) open; non-nil queues a pending limit order at that price.
type OpenRequest struct {
	Symbol   string
	Side     market.Direction
	Margin   float64
	Leverage int
	Limit    *float64
}

// OpenResult reports what Open did. Exactly one of Position and Order is
// set.
type OpenResult struct {
	Position *ledger.Position
	Order    *ledger.Order
	Spot     float64
	Balance  float64
}

// Open validates the request, escrows margin from the balance and either
// opens a position at spot or queues a limit order. A limit that would
// fill immediately (long at or above spot, short at or below) is rejected
// rather than silently market-filled.
func (e *Engine) Open(ctx context.Context, user string, req OpenRequest) (*OpenResult, error) {
	if req.Leverage < MinLeverage || req.Leverage > MaxLeverage {
		return nil, ErrInvalidLeverage
	}
	if req.Margin <= 0 {
		return nil, ErrInvalidMargin
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.store.Ensure(user)
	if req.Margin > acct.USD {
		return nil, fmt.Errorf("%w: you have $%.2f", ErrInsufficientBalance, acct.USD)
	}

	symbol := market.Normalize(req.Symbol)
	spot, err := e.oracle.Spot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	res := &OpenResult{Spot: spot}

	if req.Limit != nil {
		limit := *req.Limit
		if limit <= 0 {
			return nil, ErrInvalidLimitPrice
		}
		if req.Side == market.Long && limit > spot {
			return nil, fmt.Errorf("%w: long limit $%.2f is above spot $%.2f", ErrInvalidLimitPrice, limit, spot)
		}
		if req.Side == market.Short && limit < spot {
			return nil, fmt.Errorf("%w: short limit $%.2f is below spot $%.2f", ErrInvalidLimitPrice, limit, spot)
		}
		order := &ledger.Order{
			ID:        e.store.NextID(),
			Symbol:    symbol,
			Side:      req.Side,
			CreatedAt: now,
			Limit:     limit,
			Margin:    req.Margin,
			Leverage:  req.Leverage,
		}
		acct.Orders = append(acct.Orders, order)
		res.Order = order
	} else {
		pos := &ledger.Position{
			ID:       e.store.NextID(),
			Symbol:   symbol,
			Side:     req.Side,
			OpenedAt: now,
			Entry:    spot,
			Margin:   req.Margin,
			Leverage: req.Leverage,
		}
		acct.Positions = append(acct.Positions, pos)
		res.Position = pos
	}

	acct.USD -= req.Margin
	res.Balance = acct.USD

	if err := e.store.Save(); err != nil {
		return nil, err
	}
	return res, nil
}

// CloseResult is one settlement applied to the balance. Closing by symbol
// or closing all aggregates every matching position into a single update.
type CloseResult struct {
	Positions []ledger.Position
	Margin    float64
	PNL       float64
	Balance   float64
}

// Close settles the position with the given ID at current spot.
func (e *Engine) Close(ctx context.Context, user string, id int64) (*CloseResult, error) {
	return e.closeMatching(ctx, user, func(p *ledger.Position) bool { return p.ID == id })
}

// CloseSymbol settles every position on symbol in one aggregated balance
// update.
func (e *Engine) CloseSymbol(ctx context.Context, user, symbol string) (*CloseResult, error) {
	want := market.Normalize(symbol)
	return e.closeMatching(ctx, user, func(p *ledger.Position) bool { return p.Symbol == want })
}

// CloseAll settles every open position for the user.
func (e *Engine) CloseAll(ctx context.Context, user string) (*CloseResult, error) {
	return e.closeMatching(ctx, user, func(*ledger.Position) bool { return true })
}

func (e *Engine) closeMatching(ctx context.Context, user string, match func(*ledger.Position) bool) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.store.Account(user)
	if acct == nil {
		return nil, ErrPositionNotFound
	}

	var matched []*ledger.Position
	for _, p := range acct.Positions {
		if match(p) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil, ErrPositionNotFound
	}

	// Fetch each distinct symbol's spot once; any failure aborts before
	// anything is mutated.
	spots := make(map[string]float64)
	for _, p := range matched {
		if _, ok := spots[p.Symbol]; ok {
			continue
		}
		spot, err := e.oracle.Spot(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		spots[p.Symbol] = spot
	}

	now := e.now().UTC()
	res := &CloseResult{}
	remaining := acct.Positions[:0]
	for _, p := range acct.Positions {
		if !match(p) {
			remaining = append(remaining, p)
			continue
		}
		spot := spots[p.Symbol]
		pnl := UnrealizedPNL(p, spot)
		res.Margin += p.Margin
		res.PNL += pnl
		res.Positions = append(res.Positions, *p)
		e.recordTrade(user, p, spot, now, pnl, journal.ReasonManualClose)
	}
	acct.Positions = remaining

	acct.USD += res.Margin + res.PNL
	res.Balance = acct.USD

	if err := e.store.Save(); err != nil {
		return nil, err
	}
	return res, nil
}

// CancelOrder removes a pending limit order and refunds its escrowed
// margin.
func (e *Engine) CancelOrder(user string, id int64) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.store.Account(user)
	if acct == nil {
		return nil, ErrPositionNotFound
	}

	for i, o := range acct.Orders {
		if o.ID != id {
			continue
		}
		acct.Orders = append(acct.Orders[:i], acct.Orders[i+1:]...)
		acct.USD += o.Margin
		res := &CloseResult{Margin: o.Margin, Balance: acct.USD}
		if err := e.store.Save(); err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, ErrPositionNotFound
}

// SetTakeProfit attaches or replaces a take-profit trigger on a position
// or pending order. The trigger observes price history from now on only.
func (e *Engine) SetTakeProfit(user string, id int64, price float64) error {
	return e.setTrigger(user, id, price, true)
}

// SetStopLoss attaches or replaces a stop-loss trigger on a position or
// pending order.
func (e *Engine) SetStopLoss(user string, id int64, price float64) error {
	return e.setTrigger(user, id, price, false)
}

func (e *Engine) setTrigger(user string, id int64, price float64, takeProfit bool) error {
	if price <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.store.Account(user)
	if acct == nil {
		return ErrPositionNotFound
	}

	tr := &ledger.Trigger{Price: price, SetAt: e.now().UTC()}

	for _, p := range acct.Positions {
		if p.ID != id {
			continue
		}
		if takeProfit {
			p.TakeProfit = tr
		} else {
			p.StopLoss = tr
		}
		return e.store.Save()
	}
	for _, o := range acct.Orders {
		if o.ID != id {
			continue
		}
		if takeProfit {
			o.TakeProfit = tr
		} else {
			o.StopLoss = tr
		}
		return e.store.Save()
	}
	return ErrPositionNotFound
}

// AdminSet overwrites a user's USD balance.
func (e *Engine) AdminSet(user string, amount float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.store.Ensure(user)
	acct.USD = amount
	return acct.USD, e.store.Save()
}

// AdminAdd credits a user's USD balance.
func (e *Engine) AdminAdd(user string, amount float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.store.Ensure(user)
	acct.USD += amount
	return acct.USD, e.store.Save()
}

// AccountView is a copied snapshot of one account, safe to read without
// the engine lock.
type AccountView struct {
	User      string
	USD       float64
	Positions []ledger.Position
	Orders    []ledger.Order
}

// Snapshot returns a copy of one user's account, or ok=false when the
// user is unknown.
func (e *Engine) Snapshot(user string) (AccountView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.store.Account(user)
	if acct == nil {
		return AccountView{}, false
	}
	return copyAccount(user, acct), true
}

// SnapshotAll returns copies of every account in stable (sorted user)
// order.
func (e *Engine) SnapshotAll() []AccountView {
	e.mu.Lock()
	defer e.mu.Unlock()

	views := make([]AccountView, 0)
	for _, user := range e.store.UserIDs() {
		views = append(views, copyAccount(user, e.store.Account(user)))
	}
	return views
}

func copyAccount(user string, acct *ledger.Account) AccountView {
	v := AccountView{
		User:      user,
		USD:       acct.USD,
		Positions: make([]ledger.Position, len(acct.Positions)),
		Orders:    make([]ledger.Order, len(acct.Orders)),
	}
	for i, p := range acct.Positions {
		v.Positions[i] = *p
	}
	for i, o := range acct.Orders {
		v.Orders[i] = *o
	}
	return v
}

func (e *Engine) recordTrade(user string, p *ledger.Position, exit float64, closeTime time.Time, pnl float64, reason string) {
	err := e.journal.RecordTrade(journal.TradeRecord{
		User:        user,
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side.String(),
		Margin:      p.Margin,
		Leverage:    p.Leverage,
		EntryPrice:  p.Entry,
		ExitPrice:   exit,
		OpenTime:    p.OpenedAt,
		CloseTime:   closeTime,
		RealizedPNL: pnl,
		Reason:      reason,
	})
	if err != nil {
		e.log.WithError(err).WithField("position", p.ID).Warn("journal trade record failed")
	}
}
