package sqlite

import (
	"context"
	"fmt"

	"tradedesk/internal/model"
)

// CreatePortfolio inserts p and sets its ID and timestamps.
func (s *Store) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	now := fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (user_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Description, toMs(now), toMs(now))
	if err != nil {
		return mapErr("create portfolio", err)
	}
	p.ID, _ = res.LastInsertId()
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

const portfolioSelect = `
	SELECT p.id, p.user_id, p.name, p.description, p.created_at, p.updated_at,
		(SELECT COUNT(*) FROM holdings h WHERE h.portfolio_id = p.id)
	FROM portfolios p`

func scanPortfolio(row scanner) (*model.Portfolio, error) {
	var (
		p                model.Portfolio
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &created, &updated, &p.HoldingsCount); err != nil {
		return nil, err
	}
	p.CreatedAt, p.UpdatedAt = fromMs(created), fromMs(updated)
	return &p, nil
}

// Portfolio loads one portfolio with its holdings count.
func (s *Store) Portfolio(ctx context.Context, id int64) (*model.Portfolio, error) {
	p, err := scanPortfolio(s.db.QueryRowContext(ctx, portfolioSelect+` WHERE p.id = ?`, id))
	return p, mapErr("portfolio", err)
}

// ListPortfolios returns the user's portfolios in creation order.
func (s *Store) ListPortfolios(ctx context.Context, userID int64) ([]model.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, portfolioSelect+` WHERE p.user_id = ? ORDER BY p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query portfolios: %w", err)
	}
	defer rows.Close()

	var out []model.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan portfolio: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePortfolio writes name and description.
func (s *Store) UpdatePortfolio(ctx context.Context, p *model.Portfolio) error {
	p.UpdatedAt = fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx,
		`UPDATE portfolios SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, toMs(p.UpdatedAt), p.ID)
	return affected("update portfolio", res, err)
}

// DeletePortfolio removes the portfolio; holdings cascade.
func (s *Store) DeletePortfolio(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = ?`, id)
	return affected("delete portfolio", res, err)
}

// ── holdings ──

const holdingColumns = `id, portfolio_id, symbol, quantity, purchase_price, realized_pnl, created_at, updated_at`

func scanHolding(row scanner) (*model.Holding, error) {
	var (
		h                model.Holding
		created, updated int64
	)
	if err := row.Scan(&h.ID, &h.PortfolioID, &h.Symbol, &h.Quantity, &h.PurchasePrice, &h.RealizedPnL, &created, &updated); err != nil {
		return nil, err
	}
	h.CreatedAt, h.UpdatedAt = fromMs(created), fromMs(updated)
	return &h, nil
}

// CreateHolding inserts h. A second holding of the same symbol in the same
// portfolio is a conflict.
func (s *Store) CreateHolding(ctx context.Context, h *model.Holding) error {
	now := fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings (portfolio_id, symbol, quantity, purchase_price, realized_pnl, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.PortfolioID, h.Symbol, h.Quantity, h.PurchasePrice, h.RealizedPnL, toMs(now), toMs(now))
	if err != nil {
		return mapErr("create holding", err)
	}
	h.ID, _ = res.LastInsertId()
	h.CreatedAt, h.UpdatedAt = now, now
	return nil
}

// Holding loads one holding.
func (s *Store) Holding(ctx context.Context, id int64) (*model.Holding, error) {
	h, err := scanHolding(s.db.QueryRowContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE id = ?`, id))
	return h, mapErr("holding", err)
}

// HoldingBySymbol loads the portfolio's holding of symbol.
func (s *Store) HoldingBySymbol(ctx context.Context, portfolioID int64, symbol string) (*model.Holding, error) {
	h, err := scanHolding(s.db.QueryRowContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE portfolio_id = ? AND symbol = ?`, portfolioID, symbol))
	return h, mapErr("holding by symbol", err)
}

// ListHoldings returns the portfolio's holdings ordered by symbol.
func (s *Store) ListHoldings(ctx context.Context, portfolioID int64) ([]model.Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query holdings: %w", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan holding: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

// UpdateHolding writes quantity, cost and realized P&L.
func (s *Store) UpdateHolding(ctx context.Context, h *model.Holding) error {
	h.UpdatedAt = fromMs(toMs(s.now()))
	res, err := s.db.ExecContext(ctx, `
		UPDATE holdings SET symbol = ?, quantity = ?, purchase_price = ?, realized_pnl = ?, updated_at = ?
		WHERE id = ?`,
		h.Symbol, h.Quantity, h.PurchasePrice, h.RealizedPnL, toMs(h.UpdatedAt), h.ID)
	return affected("update holding", res, err)
}

// DeleteHolding removes one holding.
func (s *Store) DeleteHolding(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM holdings WHERE id = ?`, id)
	return affected("delete holding", res, err)
}
