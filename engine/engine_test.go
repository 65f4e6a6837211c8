package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"perpsim/journal"
	"perpsim/ledger"
	"perpsim/market"
)

type testJournal struct {
	trades    []journal.TradeRecord
	standings []journal.StandingsSnapshot
}

func (j *testJournal) RecordTrade(rec journal.TradeRecord) error {
	j.trades = append(j.trades, rec)
	return nil
}

func (j *testJournal) RecordStandings(rec journal.StandingsSnapshot) error {
	j.standings = append(j.standings, rec)
	return nil
}

func (j *testJournal) Close() error { return nil }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, oracle market.Oracle) *Engine {
	t.Helper()
	store, err := ledger.Load(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	e := New(store, oracle, nil, nil)
	e.now = func() time.Time { return testNow }
	return e
}

func fund(t *testing.T, e *Engine, user string, amount float64) {
	t.Helper()
	if _, err := e.AdminSet(user, amount); err != nil {
		t.Fatalf("fund %s: %v", user, err)
	}
}

func mustOpen(t *testing.T, e *Engine, user string, req OpenRequest) *OpenResult {
	t.Helper()
	res, err := e.Open(context.Background(), user, req)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return res
}

func TestOpenMarketPosition(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 150

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 1000)

	res := mustOpen(t, e, "alice", OpenRequest{Symbol: "sol/usdt", Side: market.Long, Margin: 100, Leverage: 10})
	if res.Position == nil || res.Order != nil {
		t.Fatalf("expected a spot-opened position, got %+v", res)
	}
	if res.Position.Symbol != "SOL" {
		t.Fatalf("symbol not normalized: %q", res.Position.Symbol)
	}
	if res.Position.Entry != 150 {
		t.Fatalf("entry %.2f, want spot 150", res.Position.Entry)
	}
	if !res.Position.OpenedAt.Equal(testNow) {
		t.Fatalf("opened at %v, want %v", res.Position.OpenedAt, testNow)
	}
	if res.Balance != 900 {
		t.Fatalf("balance %.2f after escrow, want 900", res.Balance)
	}

	second := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Short, Margin: 50, Leverage: 5})
	if second.Position.ID == res.Position.ID {
		t.Fatal("position IDs must be unique")
	}
}

func TestOpenValidation(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 200)

	ctx := context.Background()
	if _, err := e.Open(ctx, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 0}); !errors.Is(err, ErrInvalidLeverage) {
		t.Fatalf("leverage 0: got %v", err)
	}
	if _, err := e.Open(ctx, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 51}); !errors.Is(err, ErrInvalidLeverage) {
		t.Fatalf("leverage 51: got %v", err)
	}
	if _, err := e.Open(ctx, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 0, Leverage: 10}); !errors.Is(err, ErrInvalidMargin) {
		t.Fatalf("margin 0: got %v", err)
	}
	if _, err := e.Open(ctx, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 500, Leverage: 10}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("margin over balance: got %v", err)
	}

	// Validation failures must not touch the balance.
	view, ok := e.Snapshot("alice")
	if !ok || view.USD != 200 {
		t.Fatalf("balance disturbed by rejected opens: %+v", view)
	}
}

func TestOpenLimitOrderValidation(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 55

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 1000)
	ctx := context.Background()

	limit := func(v float64) *float64 { return &v }

	// A long limit above spot or a short limit below spot would fill the
	// instant the sweeper looks at it.
	if _, err := e.Open(ctx, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10, Limit: limit(60)}); !errors.Is(err, ErrInvalidLimitPrice) {
		t.Fatalf("long limit above spot: got %v", err)
	}
	if _, err := e.Open(ctx, "alice", OpenRequest{Symbol: "SOL", Side: market.Short, Margin: 100, Leverage: 10, Limit: limit(50)}); !errors.Is(err, ErrInvalidLimitPrice) {
		t.Fatalf("short limit below spot: got %v", err)
	}
	if _, err := e.Open(ctx, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10, Limit: limit(-5)}); !errors.Is(err, ErrInvalidLimitPrice) {
		t.Fatalf("negative limit: got %v", err)
	}

	res := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10, Limit: limit(50)})
	if res.Order == nil || res.Position != nil {
		t.Fatalf("expected a queued order, got %+v", res)
	}
	if res.Order.Limit != 50 {
		t.Fatalf("order limit %.2f, want 50", res.Order.Limit)
	}
	if res.Balance != 900 {
		t.Fatalf("margin not escrowed on queue: balance %.2f", res.Balance)
	}

	short := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Short, Margin: 100, Leverage: 10, Limit: limit(60)})
	if short.Order == nil {
		t.Fatalf("short limit above spot should queue, got %+v", short)
	}
}

func TestCloseSettlesAtSpot(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 1000)
	ctx := context.Background()

	pos := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10}).Position

	oracle.spot["SOL"] = 105
	res, err := e.Close(ctx, "alice", pos.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !approxEqual(res.PNL, 50, 1e-9) {
		t.Fatalf("pnl %.2f, want 50 for +5%% at 10x", res.PNL)
	}
	if !approxEqual(res.Balance, 1050, 1e-9) {
		t.Fatalf("balance %.2f, want 1050", res.Balance)
	}

	if _, err := e.Close(ctx, "alice", pos.ID); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("double close: got %v", err)
	}
}

func TestCloseSymbolAggregates(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100
	oracle.spot["ETH"] = 2000

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 1000)
	ctx := context.Background()

	mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10})
	mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Short, Margin: 50, Leverage: 2})
	mustOpen(t, e, "alice", OpenRequest{Symbol: "ETH", Side: market.Long, Margin: 200, Leverage: 5})

	oracle.spot["SOL"] = 110
	res, err := e.CloseSymbol(ctx, "alice", "sol/usdt")
	if err != nil {
		t.Fatalf("close symbol: %v", err)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("closed %d positions, want 2", len(res.Positions))
	}
	if res.Margin != 150 {
		t.Fatalf("released margin %.2f, want 150", res.Margin)
	}
	// Long: +10% at 10x on $100 = +100. Short: -10% at 2x on $50 = -10.
	if !approxEqual(res.PNL, 90, 1e-9) {
		t.Fatalf("aggregated pnl %.2f, want 90", res.PNL)
	}
	// 1000 - 350 escrowed + 150 margin + 90 pnl.
	if !approxEqual(res.Balance, 890, 1e-9) {
		t.Fatalf("balance %.2f, want 890", res.Balance)
	}

	view, _ := e.Snapshot("alice")
	if len(view.Positions) != 1 || view.Positions[0].Symbol != "ETH" {
		t.Fatalf("ETH position should survive: %+v", view.Positions)
	}
}

func TestCloseAbortsWhenPriceUnavailable(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 1000)
	ctx := context.Background()

	mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10})

	oracle.fail["SOL"] = true
	if _, err := e.CloseAll(ctx, "alice"); !errors.Is(err, market.ErrPriceUnavailable) {
		t.Fatalf("close with failing oracle: got %v", err)
	}

	// Nothing settled, nothing refunded.
	view, _ := e.Snapshot("alice")
	if len(view.Positions) != 1 || view.USD != 900 {
		t.Fatalf("aborted close mutated the account: %+v", view)
	}
}

func TestCancelOrderRefundsMargin(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 500)

	limit := 90.0
	order := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 120, Leverage: 10, Limit: &limit}).Order

	res, err := e.CancelOrder("alice", order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Margin != 120 || res.Balance != 500 {
		t.Fatalf("refund wrong: margin %.2f balance %.2f", res.Margin, res.Balance)
	}
	if _, err := e.CancelOrder("alice", order.ID); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("double cancel: got %v", err)
	}
}

func TestSetTriggersOnPositionsAndOrders(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 1000)

	pos := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10}).Position
	limit := 90.0
	order := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10, Limit: &limit}).Order

	if err := e.SetTakeProfit("alice", pos.ID, 120); err != nil {
		t.Fatalf("set tp on position: %v", err)
	}
	if err := e.SetStopLoss("alice", order.ID, 80); err != nil {
		t.Fatalf("set sl on order: %v", err)
	}

	view, _ := e.Snapshot("alice")
	tp := view.Positions[0].TakeProfit
	if tp == nil || tp.Price != 120 || !tp.SetAt.Equal(testNow) {
		t.Fatalf("position take-profit: %+v", tp)
	}
	sl := view.Orders[0].StopLoss
	if sl == nil || sl.Price != 80 || !sl.SetAt.Equal(testNow) {
		t.Fatalf("order stop-loss: %+v", sl)
	}

	if err := e.SetTakeProfit("alice", pos.ID, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative trigger price: got %v", err)
	}
	if err := e.SetStopLoss("alice", 9999, 80); !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("unknown id: got %v", err)
	}
}

func TestAdminBalanceOps(t *testing.T) {
	e := newTestEngine(t, newFakeOracle())

	if bal, err := e.AdminSet("bob", 250); err != nil || bal != 250 {
		t.Fatalf("admin set: bal %.2f err %v", bal, err)
	}
	if bal, err := e.AdminAdd("bob", 50); err != nil || bal != 300 {
		t.Fatalf("admin add: bal %.2f err %v", bal, err)
	}
	if bal, err := e.AdminSet("bob", 100); err != nil || bal != 100 {
		t.Fatalf("admin set overwrite: bal %.2f err %v", bal, err)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	e := newTestEngine(t, newFakeOracle())

	if err := e.Ensure("carol"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	fund(t, e, "carol", 400)
	if err := e.Ensure("carol"); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}

	view, ok := e.Snapshot("carol")
	if !ok || view.USD != 400 {
		t.Fatalf("re-ensure reset the account: %+v", view)
	}
}

func TestJournalRecordsSettlements(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100

	store, err := ledger.Load(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	j := &testJournal{}
	e := New(store, oracle, j, nil)
	e.now = func() time.Time { return testNow }
	fund(t, e, "alice", 1000)
	ctx := context.Background()

	pos := mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10}).Position
	oracle.spot["SOL"] = 105
	if _, err := e.Close(ctx, "alice", pos.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(j.trades) != 1 {
		t.Fatalf("trades %d, want 1", len(j.trades))
	}
	rec := j.trades[0]
	if rec.Reason != journal.ReasonManualClose || rec.User != "alice" || rec.ExitPrice != 105 {
		t.Fatalf("trade record %+v", rec)
	}
	if !approxEqual(rec.RealizedPNL, 50, 1e-9) {
		t.Fatalf("recorded pnl %.2f, want 50", rec.RealizedPNL)
	}

	mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10})
	oracle.low["SOL"] = 80
	oracle.high["SOL"] = 106
	if _, _, err := e.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(j.trades) != 2 {
		t.Fatalf("trades %d, want 2", len(j.trades))
	}
	if j.trades[1].Reason != journal.ReasonLiquidation {
		t.Fatalf("sweep trade record %+v", j.trades[1])
	}

	if _, err := e.Standings(ctx); err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(j.standings) != 1 {
		t.Fatalf("standings snapshots %d, want 1", len(j.standings))
	}
}

func TestSnapshotReturnsCopies(t *testing.T) {
	oracle := newFakeOracle()
	oracle.spot["SOL"] = 100

	e := newTestEngine(t, oracle)
	fund(t, e, "alice", 1000)
	mustOpen(t, e, "alice", OpenRequest{Symbol: "SOL", Side: market.Long, Margin: 100, Leverage: 10})

	view, _ := e.Snapshot("alice")
	view.Positions[0].Margin = 9999

	again, _ := e.Snapshot("alice")
	if again.Positions[0].Margin != 100 {
		t.Fatal("snapshot aliases engine state")
	}
}
