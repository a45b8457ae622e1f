package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tradedesk/internal/model"
)

const orderColumns = `id, user_id, portfolio_id, symbol, order_type, side, quantity, filled_quantity,
	limit_price, stop_price, avg_fill_price, status, created_at, updated_at, filled_at, cancelled_at,
	rejection_reason, notes`

func scanOrder(row scanner) (*model.Order, error) {
	var (
		o                       model.Order
		portfolioID             sql.NullInt64
		limit, stop, avg        sql.NullFloat64
		created, updated        int64
		filledAt, cancelledAt   sql.NullInt64
		orderType, side, status string
	)
	err := row.Scan(&o.ID, &o.UserID, &portfolioID, &o.Symbol, &orderType, &side, &o.Quantity, &o.FilledQuantity,
		&limit, &stop, &avg, &status, &created, &updated, &filledAt, &cancelledAt,
		&o.RejectionReason, &o.Notes)
	if err != nil {
		return nil, err
	}
	o.PortfolioID = intPtr(portfolioID)
	o.Type, o.Side, o.Status = model.OrderType(orderType), model.OrderSide(side), model.OrderStatus(status)
	o.LimitPrice, o.StopPrice, o.AvgFillPrice = floatPtr(limit), floatPtr(stop), floatPtr(avg)
	o.CreatedAt, o.UpdatedAt = fromMs(created), fromMs(updated)
	o.FilledAt, o.CancelledAt = timePtr(filledAt), timePtr(cancelledAt)
	return &o, nil
}

// CreateOrder inserts o and sets its ID and timestamps.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	now := fromMs(toMs(s.now()))
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (user_id, portfolio_id, symbol, order_type, side, quantity, filled_quantity,
			limit_price, stop_price, avg_fill_price, status, created_at, updated_at, filled_at, cancelled_at,
			rejection_reason, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, nullInt(o.PortfolioID), o.Symbol, string(o.Type), string(o.Side), o.Quantity, o.FilledQuantity,
		nullFloat(o.LimitPrice), nullFloat(o.StopPrice), nullFloat(o.AvgFillPrice), string(o.Status),
		toMs(o.CreatedAt), toMs(o.UpdatedAt), nullTime(o.FilledAt), nullTime(o.CancelledAt),
		o.RejectionReason, o.Notes)
	if err != nil {
		return mapErr("create order", err)
	}
	o.ID, _ = res.LastInsertId()
	return nil
}

// Order loads one order.
func (s *Store) Order(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	return o, mapErr("order", err)
}

// UpdateOrder writes every mutable order field. It only applies to an order
// that is still pending and unchanged since o was loaded; otherwise it
// returns model.ErrConflict.
func (s *Store) UpdateOrder(ctx context.Context, o *model.Order) error {
	return updateOrder(ctx, s.db, s.now(), o)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func updateOrder(ctx context.Context, db execer, now time.Time, o *model.Order) error {
	loaded := toMs(o.UpdatedAt)
	next := toMs(now)
	if next <= loaded {
		next = loaded + 1
	}
	res, err := db.ExecContext(ctx, `
		UPDATE orders SET portfolio_id = ?, quantity = ?, filled_quantity = ?, limit_price = ?, stop_price = ?,
			avg_fill_price = ?, status = ?, updated_at = ?, filled_at = ?, cancelled_at = ?,
			rejection_reason = ?, notes = ?
		WHERE id = ? AND status = ? AND updated_at = ?`,
		nullInt(o.PortfolioID), o.Quantity, o.FilledQuantity, nullFloat(o.LimitPrice), nullFloat(o.StopPrice),
		nullFloat(o.AvgFillPrice), string(o.Status), next, nullTime(o.FilledAt), nullTime(o.CancelledAt),
		o.RejectionReason, o.Notes, o.ID, string(model.StatusPending), loaded)
	if err != nil {
		return mapErr("update order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n == 0 {
		var status string
		err := db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, o.ID).Scan(&status)
		if err != nil {
			return mapErr("update order", err)
		}
		return fmt.Errorf("update order %d (now %s): %w", o.ID, status, model.ErrConflict)
	}
	o.UpdatedAt = fromMs(next)
	return nil
}

// ListOrders returns one page of the user's orders, newest first.
func (s *Store) ListOrders(ctx context.Context, userID int64, f model.OrderFilter) ([]model.Order, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(f.Symbol))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite count orders: %w", err)
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+cond+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite query orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	return orders, total, err
}

// PendingOrders returns pending orders oldest first; userID 0 means all users.
func (s *Store) PendingOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE status = ?`
	args := []any{string(model.StatusPending)}
	if userID != 0 {
		q += ` AND user_id = ?`
		args = append(args, userID)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query pending orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]model.Order, error) {
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// CountOrdersSince counts the user's orders created at or after since.
func (s *Store) CountOrdersSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = ? AND created_at >= ?`, userID, toMs(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite count orders since: %w", err)
	}
	return n, nil
}

// FillOrder updates o and inserts e in one transaction.
func (s *Store) FillOrder(ctx context.Context, o *model.Order, e *model.Execution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("fill order: begin: %w", err)
	}
	if err := updateOrder(ctx, tx, s.now(), o); err != nil {
		tx.Rollback()
		return err
	}
	e.OrderID = o.ID
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = s.now()
	}
	e.ExecutedAt = fromMs(toMs(e.ExecutedAt))
	res, err := tx.ExecContext(ctx, `
		INSERT INTO trade_executions (order_id, symbol, side, quantity, price, commission, executed_at, execution_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OrderID, e.Symbol, string(e.Side), e.Quantity, e.Price, e.Commission, toMs(e.ExecutedAt), e.ExecutionID)
	if err != nil {
		tx.Rollback()
		return mapErr("insert execution", err)
	}
	e.ID, _ = res.LastInsertId()
	return tx.Commit()
}

const executionColumns = `e.id, e.order_id, e.symbol, e.side, e.quantity, e.price, e.commission, e.executed_at, e.execution_id`

func collectExecutions(rows *sql.Rows) ([]model.Execution, error) {
	var out []model.Execution
	for rows.Next() {
		var (
			e    model.Execution
			side string
			ts   int64
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Symbol, &side, &e.Quantity, &e.Price, &e.Commission, &ts, &e.ExecutionID); err != nil {
			return nil, fmt.Errorf("sqlite scan execution: %w", err)
		}
		e.Side = model.OrderSide(side)
		e.ExecutedAt = fromMs(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Executions returns the fills of one order, oldest first.
func (s *Store) Executions(ctx context.Context, orderID int64) ([]model.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM trade_executions e WHERE e.order_id = ? ORDER BY e.executed_at, e.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// ListExecutions returns the user's most recent fills, newest first.
func (s *Store) ListExecutions(ctx context.Context, userID int64, limit int) ([]model.Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM trade_executions e JOIN orders o ON o.id = e.order_id
		WHERE o.user_id = ?
		ORDER BY e.executed_at DESC, e.id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}
