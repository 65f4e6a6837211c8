package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *SQLite {
	t.Helper()
	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordTrade(t *testing.T) {
	j := newTestJournal(t)

	opened := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rec := TradeRecord{
		User:        "alice",
		PositionID:  3,
		Symbol:      "SOL",
		Side:        "LONG",
		Margin:      100,
		Leverage:    10,
		EntryPrice:  100,
		ExitPrice:   118,
		OpenTime:    opened,
		CloseTime:   opened.Add(2 * time.Hour),
		RealizedPNL: 180,
		Reason:      ReasonTakeProfit,
	}
	require.NoError(t, j.RecordTrade(rec))
	require.NoError(t, j.RecordTrade(rec), "event IDs are generated per insert")

	rows, err := j.db.Query(`SELECT event_id, user, symbol, realized_pnl, reason FROM trades ORDER BY event_id`)
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, user, symbol, reason string
		var pnl float64
		require.NoError(t, rows.Scan(&id, &user, &symbol, &pnl, &reason))
		assert.Equal(t, "alice", user)
		assert.Equal(t, "SOL", symbol)
		assert.Equal(t, 180.0, pnl)
		assert.Equal(t, ReasonTakeProfit, reason)
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestRecordTradeKeepsCallerEventID(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.RecordTrade(TradeRecord{
		EventID: "fixed-id",
		User:    "bob",
		Symbol:  "ETH",
		Reason:  ReasonLiquidation,
	}))

	var id string
	require.NoError(t, j.db.QueryRow(`SELECT event_id FROM trades`).Scan(&id))
	assert.Equal(t, "fixed-id", id)
}

func TestRecordStandings(t *testing.T) {
	j := newTestJournal(t)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordStandings(StandingsSnapshot{Time: at, User: "alice", USD: 900, Equity: 1100}))
	require.NoError(t, j.RecordStandings(StandingsSnapshot{Time: at, User: "bob", USD: 1050, Equity: 1050}))

	var count int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM standings`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(TradeRecord{User: "alice", Symbol: "SOL", Reason: ReasonManualClose}))
	require.NoError(t, j.Close())

	// Reopening runs the schema again against existing tables.
	j, err = NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	var count int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&count))
	assert.Equal(t, 1, count)
}
