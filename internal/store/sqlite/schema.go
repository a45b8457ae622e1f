package sqlite

import "database/sql"

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			email           TEXT    NOT NULL UNIQUE COLLATE NOCASE,
			full_name       TEXT    NOT NULL DEFAULT '',
			hashed_password TEXT    NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 1,
			email_verified  INTEGER NOT NULL DEFAULT 0,
			totp_secret     TEXT    NOT NULL DEFAULT '',
			totp_enabled    INTEGER NOT NULL DEFAULT 0,
			last_login      INTEGER,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS portfolios (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name        TEXT    NOT NULL,
			description TEXT    NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_portfolios_user ON portfolios(user_id);

		CREATE TABLE IF NOT EXISTS holdings (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			portfolio_id   INTEGER NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
			symbol         TEXT    NOT NULL,
			quantity       INTEGER NOT NULL,
			purchase_price REAL    NOT NULL,
			realized_pnl   REAL    NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL,
			UNIQUE (portfolio_id, symbol)
		);

		CREATE TABLE IF NOT EXISTS orders (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			portfolio_id     INTEGER REFERENCES portfolios(id) ON DELETE SET NULL,
			symbol           TEXT    NOT NULL,
			order_type       TEXT    NOT NULL,
			side             TEXT    NOT NULL,
			quantity         INTEGER NOT NULL,
			filled_quantity  INTEGER NOT NULL DEFAULT 0,
			limit_price      REAL,
			stop_price       REAL,
			avg_fill_price   REAL,
			status           TEXT    NOT NULL,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL,
			filled_at        INTEGER,
			cancelled_at     INTEGER,
			rejection_reason TEXT    NOT NULL DEFAULT '',
			notes            TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

		CREATE TABLE IF NOT EXISTS trade_executions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id     INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			symbol       TEXT    NOT NULL,
			side         TEXT    NOT NULL,
			quantity     INTEGER NOT NULL,
			price        REAL    NOT NULL,
			commission   REAL    NOT NULL DEFAULT 0,
			executed_at  INTEGER NOT NULL,
			execution_id TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_executions_order ON trade_executions(order_id);

		CREATE TABLE IF NOT EXISTS stocks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL UNIQUE,
			name       TEXT    NOT NULL DEFAULT '',
			exchange   TEXT    NOT NULL DEFAULT '',
			sector     TEXT    NOT NULL DEFAULT '',
			currency   TEXT    NOT NULL DEFAULT 'USD',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS market_data (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL,
			price          REAL    NOT NULL,
			open           REAL    NOT NULL DEFAULT 0,
			high           REAL    NOT NULL DEFAULT 0,
			low            REAL    NOT NULL DEFAULT 0,
			previous_close REAL    NOT NULL DEFAULT 0,
			change         REAL    NOT NULL DEFAULT 0,
			change_percent REAL    NOT NULL DEFAULT 0,
			volume         INTEGER NOT NULL DEFAULT 0,
			ts             INTEGER NOT NULL,
			source         TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_market_data_symbol_ts ON market_data(symbol, ts);

		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS watchlists (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			stock_id   INTEGER NOT NULL REFERENCES stocks(id) ON DELETE CASCADE,
			created_at INTEGER NOT NULL,
			UNIQUE (user_id, stock_id)
		);

		CREATE TABLE IF NOT EXISTS market_indices (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL UNIQUE,
			name           TEXT    NOT NULL,
			current_value  REAL    NOT NULL,
			change         REAL    NOT NULL DEFAULT 0,
			change_percent REAL    NOT NULL DEFAULT 0,
			ts             INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS price_alerts (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			symbol          TEXT    NOT NULL,
			condition       TEXT    NOT NULL,
			threshold       REAL    NOT NULL,
			period          INTEGER NOT NULL DEFAULT 0,
			status          TEXT    NOT NULL,
			note            TEXT    NOT NULL DEFAULT '',
			triggered_at    INTEGER,
			triggered_value REAL,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON price_alerts(status);

		CREATE TABLE IF NOT EXISTS api_keys (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id      INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name         TEXT    NOT NULL,
			key_hash     TEXT    NOT NULL UNIQUE,
			prefix       TEXT    NOT NULL DEFAULT '',
			scopes       TEXT    NOT NULL DEFAULT '[]',
			is_active    INTEGER NOT NULL DEFAULT 1,
			last_used_at INTEGER,
			expires_at   INTEGER,
			created_at   INTEGER NOT NULL,
			revoked_at   INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);

		CREATE TABLE IF NOT EXISTS user_settings (
			user_id              INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			default_portfolio_id INTEGER,
			timezone             TEXT    NOT NULL DEFAULT 'America/New_York',
			currency             TEXT    NOT NULL DEFAULT 'USD',
			email_notifications  INTEGER NOT NULL DEFAULT 1,
			webhook_url          TEXT    NOT NULL DEFAULT '',
			max_order_pct        REAL    NOT NULL DEFAULT 0,
			max_daily_trades     INTEGER NOT NULL DEFAULT 0,
			updated_at           INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS support_tickets (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			subject    TEXT    NOT NULL,
			category   TEXT    NOT NULL DEFAULT 'general',
			message    TEXT    NOT NULL,
			status     TEXT    NOT NULL DEFAULT 'open',
			created_at INTEGER NOT NULL
		);
	`)
	return err
}
