package model

import "time"

// Portfolio is a named collection of holdings owned by one user.
type Portfolio struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	HoldingsCount int       `json:"holdings_count"`
}

// Holding is a position in one symbol inside a portfolio.
type Holding struct {
	ID            int64     `json:"id"`
	PortfolioID   int64     `json:"portfolio_id"`
	Symbol        string    `json:"symbol"`
	Quantity      int64     `json:"quantity"`
	PurchasePrice float64   `json:"purchase_price"` // average cost per share
	RealizedPnL   float64   `json:"realized_pnl"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	CurrentPrice  *float64  `json:"current_price,omitempty"`
}
