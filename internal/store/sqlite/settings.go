package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"tradedesk/internal/model"
)

// Settings loads the user's settings; ErrNotFound if never saved.
func (s *Store) Settings(ctx context.Context, userID int64) (*model.Settings, error) {
	var (
		st        model.Settings
		portfolio sql.NullInt64
		email     int
		updated   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, default_portfolio_id, timezone, currency, email_notifications, webhook_url,
			max_order_pct, max_daily_trades, updated_at
		FROM user_settings WHERE user_id = ?`, userID).
		Scan(&st.UserID, &portfolio, &st.Timezone, &st.Currency, &email, &st.WebhookURL,
			&st.MaxOrderPct, &st.MaxDailyTrades, &updated)
	if err != nil {
		return nil, mapErr("settings", err)
	}
	st.DefaultPortfolioID = intPtr(portfolio)
	st.EmailNotifications = email == 1
	st.UpdatedAt = fromMs(updated)
	return &st, nil
}

// SaveSettings inserts or replaces the user's settings.
func (s *Store) SaveSettings(ctx context.Context, st *model.Settings) error {
	st.UpdatedAt = fromMs(toMs(s.now()))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, default_portfolio_id, timezone, currency, email_notifications,
			webhook_url, max_order_pct, max_daily_trades, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			default_portfolio_id = excluded.default_portfolio_id, timezone = excluded.timezone,
			currency = excluded.currency, email_notifications = excluded.email_notifications,
			webhook_url = excluded.webhook_url, max_order_pct = excluded.max_order_pct,
			max_daily_trades = excluded.max_daily_trades, updated_at = excluded.updated_at`,
		st.UserID, nullInt(st.DefaultPortfolioID), st.Timezone, st.Currency, boolInt(st.EmailNotifications),
		st.WebhookURL, st.MaxOrderPct, st.MaxDailyTrades, toMs(st.UpdatedAt))
	return mapErr("save settings", err)
}

// CreateTicket stores a support ticket.
func (s *Store) CreateTicket(ctx context.Context, t *model.SupportTicket) error {
	now := fromMs(toMs(s.now()))
	if t.Status == "" {
		t.Status = "open"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO support_tickets (user_id, subject, category, message, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Subject, t.Category, t.Message, t.Status, toMs(now))
	if err != nil {
		return mapErr("create ticket", err)
	}
	t.ID, _ = res.LastInsertId()
	t.CreatedAt = now
	return nil
}

// ListTickets returns the user's tickets, newest first.
func (s *Store) ListTickets(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, subject, category, message, status, created_at
		FROM support_tickets WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query tickets: %w", err)
	}
	defer rows.Close()

	var out []model.SupportTicket
	for rows.Next() {
		var (
			t  model.SupportTicket
			ts int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Subject, &t.Category, &t.Message, &t.Status, &ts); err != nil {
			return nil, fmt.Errorf("sqlite scan ticket: %w", err)
		}
		t.CreatedAt = fromMs(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}
