package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"perpsim/internal/id"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	if t.EventID == "" {
		t.EventID = id.New()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(event_id, user, position_id, symbol, side, margin, leverage, entry_price, exit_price, open_time, close_time, realized_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.EventID, t.User, t.PositionID, t.Symbol, t.Side, t.Margin, t.Leverage,
		t.EntryPrice, t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPNL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordStandings(s StandingsSnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO standings (time, user, usd, equity)
		VALUES (?, ?, ?, ?)`,
		s.Time, s.User, s.USD, s.Equity,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
