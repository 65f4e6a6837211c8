package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	event_id TEXT PRIMARY KEY,
	user TEXT NOT NULL,
	position_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	margin REAL NOT NULL,
	leverage INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pnl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user);

CREATE TABLE IF NOT EXISTS standings (
	time DATETIME NOT NULL,
	user TEXT NOT NULL,
	usd REAL NOT NULL,
	equity REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_standings_time ON standings(time);
`
