package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradedesk/internal/model"
)

// ── stocks ──

const stockColumns = `id, symbol, name, exchange, sector, currency, created_at, updated_at`

func scanStock(row scanner) (*model.Stock, error) {
	var (
		st               model.Stock
		created, updated int64
	)
	if err := row.Scan(&st.ID, &st.Symbol, &st.Name, &st.Exchange, &st.Sector, &st.Currency, &created, &updated); err != nil {
		return nil, err
	}
	st.CreatedAt, st.UpdatedAt = fromMs(created), fromMs(updated)
	return &st, nil
}

// UpsertStock inserts the stock or refreshes its descriptive fields, keeping
// existing values where the update leaves them empty. st.ID is set.
func (s *Store) UpsertStock(ctx context.Context, st *model.Stock) error {
	now := toMs(s.now())
	st.Symbol = strings.ToUpper(st.Symbol)
	if st.Currency == "" {
		st.Currency = "USD"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (symbol, name, exchange, sector, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE stocks.name END,
			exchange = CASE WHEN excluded.exchange != '' THEN excluded.exchange ELSE stocks.exchange END,
			sector = CASE WHEN excluded.sector != '' THEN excluded.sector ELSE stocks.sector END,
			currency = excluded.currency,
			updated_at = excluded.updated_at`,
		st.Symbol, st.Name, st.Exchange, st.Sector, st.Currency, now, now)
	if err != nil {
		return mapErr("upsert stock", err)
	}
	got, err := s.StockBySymbol(ctx, st.Symbol)
	if err != nil {
		return err
	}
	*st = *got
	return nil
}

// StockBySymbol loads a stock.
func (s *Store) StockBySymbol(ctx context.Context, symbol string) (*model.Stock, error) {
	st, err := scanStock(s.db.QueryRowContext(ctx,
		`SELECT `+stockColumns+` FROM stocks WHERE symbol = ?`, strings.ToUpper(symbol)))
	return st, mapErr("stock by symbol", err)
}

// SearchStocks matches symbol prefixes and name substrings, symbol matches first.
func (s *Store) SearchStocks(ctx context.Context, query string, limit int) ([]model.Stock, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.TrimSpace(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stockColumns+` FROM stocks
		WHERE symbol LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
		ORDER BY CASE WHEN symbol LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, symbol
		LIMIT ?`,
		likeEscape(strings.ToUpper(q))+"%", "%"+likeEscape(q)+"%", likeEscape(strings.ToUpper(q))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite search stocks: %w", err)
	}
	defer rows.Close()

	var out []model.Stock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan stock: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ── stored quotes ──

const quoteColumns = `symbol, price, open, high, low, previous_close, change, change_percent, volume, ts, source`

func scanQuote(row scanner) (*model.Quote, error) {
	var (
		q  model.Quote
		ts int64
	)
	if err := row.Scan(&q.Symbol, &q.Price, &q.Open, &q.High, &q.Low, &q.PreviousClose,
		&q.Change, &q.ChangePercent, &q.Volume, &ts, &q.Source); err != nil {
		return nil, err
	}
	q.Timestamp = fromMs(ts)
	return &q, nil
}

// InsertQuote appends a quote to market_data.
func (s *Store) InsertQuote(ctx context.Context, q model.Quote) error {
	return s.insertQuoteBatch(ctx, []model.Quote{q})
}

// insertQuoteBatch inserts quotes in a single transaction.
func (s *Store) insertQuoteBatch(ctx context.Context, quotes []model.Quote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_data (`+quoteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, q := range quotes {
		ts := q.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		_, err := stmt.ExecContext(ctx, strings.ToUpper(q.Symbol), q.Price, q.Open, q.High, q.Low, q.PreviousClose,
			q.Change, q.ChangePercent, q.Volume, toMs(ts), q.Source)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert quote %s: %w", q.Symbol, err)
		}
	}

	return tx.Commit()
}

// LatestQuote returns the most recent stored quote for symbol.
func (s *Store) LatestQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	q, err := scanQuote(s.db.QueryRowContext(ctx, `
		SELECT `+quoteColumns+` FROM market_data WHERE symbol = ?
		ORDER BY ts DESC, id DESC LIMIT 1`, strings.ToUpper(symbol)))
	return q, mapErr("latest quote", err)
}

// PreviousQuote returns the most recent stored quote strictly before t.
func (s *Store) PreviousQuote(ctx context.Context, symbol string, before time.Time) (*model.Quote, error) {
	q, err := scanQuote(s.db.QueryRowContext(ctx, `
		SELECT `+quoteColumns+` FROM market_data WHERE symbol = ? AND ts < ?
		ORDER BY ts DESC, id DESC LIMIT 1`, strings.ToUpper(symbol), toMs(before)))
	return q, mapErr("previous quote", err)
}

// LatestQuotes returns the newest stored quote of every symbol.
func (s *Store) LatestQuotes(ctx context.Context) ([]model.Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+quoteColumns+` FROM market_data m
		WHERE m.id = (SELECT id FROM market_data x WHERE x.symbol = m.symbol ORDER BY ts DESC, id DESC LIMIT 1)
		ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite latest quotes: %w", err)
	}
	defer rows.Close()

	var out []model.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan quote: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// ── candles ──

// UpsertCandles stores history bars, replacing bars with the same start time.
func (s *Store) UpsertCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, strings.ToUpper(c.Symbol), toMs(c.TS), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert candle: %w", err)
		}
	}
	return tx.Commit()
}

// Candles reads bars in [from, to] ordered by time ascending.
func (s *Store) Candles(ctx context.Context, symbol string, from, to time.Time) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, strings.ToUpper(symbol), toMs(from), toMs(to))
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var (
			c  model.Candle
			ts int64
		)
		if err := rows.Scan(&c.Symbol, &ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.TS = fromMs(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ── watchlist ──

// AddWatchlist inserts item (UserID and StockID required). A duplicate is a conflict.
func (s *Store) AddWatchlist(ctx context.Context, item *model.WatchlistItem) error {
	now := fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlists (user_id, stock_id, created_at) VALUES (?, ?, ?)`,
		item.UserID, item.StockID, toMs(now))
	if err != nil {
		return mapErr("add watchlist", err)
	}
	item.ID, _ = res.LastInsertId()
	item.CreatedAt = now
	return nil
}

// Watchlist returns the user's watched stocks in the order they were added.
func (s *Store) Watchlist(ctx context.Context, userID int64) ([]model.WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.user_id, w.stock_id, s.symbol, s.name, w.created_at
		FROM watchlists w JOIN stocks s ON s.id = w.stock_id
		WHERE w.user_id = ?
		ORDER BY w.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query watchlist: %w", err)
	}
	defer rows.Close()

	var out []model.WatchlistItem
	for rows.Next() {
		var (
			w  model.WatchlistItem
			ts int64
		)
		if err := rows.Scan(&w.ID, &w.UserID, &w.StockID, &w.Symbol, &w.Name, &ts); err != nil {
			return nil, fmt.Errorf("sqlite scan watchlist: %w", err)
		}
		w.CreatedAt = fromMs(ts)
		out = append(out, w)
	}
	return out, rows.Err()
}

// RemoveWatchlist deletes symbol from the user's watchlist.
func (s *Store) RemoveWatchlist(ctx context.Context, userID int64, symbol string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlists
		WHERE user_id = ? AND stock_id = (SELECT id FROM stocks WHERE symbol = ?)`,
		userID, strings.ToUpper(symbol))
	return affected("remove watchlist", res, err)
}

// ── indices ──

const indexColumns = `id, symbol, name, current_value, change, change_percent, ts`

func scanIndex(row scanner) (*model.MarketIndex, error) {
	var (
		idx model.MarketIndex
		ts  int64
	)
	if err := row.Scan(&idx.ID, &idx.Symbol, &idx.Name, &idx.CurrentValue, &idx.Change, &idx.ChangePercent, &ts); err != nil {
		return nil, err
	}
	idx.Timestamp = fromMs(ts)
	return &idx, nil
}

// UpsertIndex inserts or replaces an index level by symbol and sets idx.ID.
func (s *Store) UpsertIndex(ctx context.Context, idx *model.MarketIndex) error {
	if idx.Timestamp.IsZero() {
		idx.Timestamp = s.now()
	}
	idx.Symbol = strings.ToUpper(idx.Symbol)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_indices (symbol, name, current_value, change, change_percent, ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name, current_value = excluded.current_value, change = excluded.change,
			change_percent = excluded.change_percent, ts = excluded.ts`,
		idx.Symbol, idx.Name, idx.CurrentValue, idx.Change, idx.ChangePercent, toMs(idx.Timestamp))
	if err != nil {
		return mapErr("upsert index", err)
	}
	got, err := s.IndexBySymbol(ctx, idx.Symbol)
	if err != nil {
		return err
	}
	*idx = *got
	return nil
}

// Indices returns all indices ordered by symbol.
func (s *Store) Indices(ctx context.Context) ([]model.MarketIndex, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+indexColumns+` FROM market_indices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query indices: %w", err)
	}
	defer rows.Close()

	var out []model.MarketIndex
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan index: %w", err)
		}
		out = append(out, *idx)
	}
	return out, rows.Err()
}

// IndexBySymbol loads one index.
func (s *Store) IndexBySymbol(ctx context.Context, symbol string) (*model.MarketIndex, error) {
	idx, err := scanIndex(s.db.QueryRowContext(ctx,
		`SELECT `+indexColumns+` FROM market_indices WHERE symbol = ?`, strings.ToUpper(symbol)))
	return idx, mapErr("index by symbol", err)
}
