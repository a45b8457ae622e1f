package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"tradedesk/internal/model"
)

const alertColumns = `id, user_id, symbol, condition, threshold, period, status, note,
	triggered_at, triggered_value, created_at, updated_at`

func scanAlert(row scanner) (*model.PriceAlert, error) {
	var (
		a                model.PriceAlert
		cond, status     string
		triggeredAt      sql.NullInt64
		triggeredValue   sql.NullFloat64
		created, updated int64
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &cond, &a.Threshold, &a.Period, &status, &a.Note,
		&triggeredAt, &triggeredValue, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.Condition, a.Status = model.AlertCondition(cond), model.AlertStatus(status)
	a.TriggeredAt, a.TriggeredValue = timePtr(triggeredAt), floatPtr(triggeredValue)
	a.CreatedAt, a.UpdatedAt = fromMs(created), fromMs(updated)
	return &a, nil
}

// CreateAlert inserts a and sets its ID and timestamps.
func (s *Store) CreateAlert(ctx context.Context, a *model.PriceAlert) error {
	now := fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_alerts (user_id, symbol, condition, threshold, period, status, note,
			triggered_at, triggered_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Symbol, string(a.Condition), a.Threshold, a.Period, string(a.Status), a.Note,
		nullTime(a.TriggeredAt), nullFloat(a.TriggeredValue), toMs(now), toMs(now))
	if err != nil {
		return mapErr("create alert", err)
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

// Alert loads one alert.
func (s *Store) Alert(ctx context.Context, id int64) (*model.PriceAlert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM price_alerts WHERE id = ?`, id))
	return a, mapErr("alert", err)
}

// ListAlerts returns the user's alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, userID int64) ([]model.PriceAlert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM price_alerts WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ActiveAlerts returns every active alert across users.
func (s *Store) ActiveAlerts(ctx context.Context) ([]model.PriceAlert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM price_alerts WHERE status = ? ORDER BY symbol, id`,
		string(model.AlertActive))
}

func (s *Store) queryAlerts(ctx context.Context, q string, args ...any) ([]model.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateAlert writes all mutable alert fields.
func (s *Store) UpdateAlert(ctx context.Context, a *model.PriceAlert) error {
	a.UpdatedAt = fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx, `
		UPDATE price_alerts SET symbol = ?, condition = ?, threshold = ?, period = ?, status = ?, note = ?,
			triggered_at = ?, triggered_value = ?, updated_at = ?
		WHERE id = ?`,
		a.Symbol, string(a.Condition), a.Threshold, a.Period, string(a.Status), a.Note,
		nullTime(a.TriggeredAt), nullFloat(a.TriggeredValue), toMs(a.UpdatedAt), a.ID)
	return affected("update alert", res, err)
}

// DeleteAlert removes one alert.
func (s *Store) DeleteAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE id = ?`, id)
	return affected("delete alert", res, err)
}
