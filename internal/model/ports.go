package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple business logic from concrete storage implementations
// (SQLite, Redis, in-memory). Lookups that find nothing return ErrNotFound.

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
}

// PortfolioStore persists portfolios and their holdings.
type PortfolioStore interface {
	CreatePortfolio(ctx context.Context, p *Portfolio) error
	Portfolio(ctx context.Context, id int64) (*Portfolio, error)
	// ListPortfolios returns the user's portfolios with HoldingsCount set.
	ListPortfolios(ctx context.Context, userID int64) ([]Portfolio, error)
	UpdatePortfolio(ctx context.Context, p *Portfolio) error
	// DeletePortfolio removes the portfolio and all its holdings.
	DeletePortfolio(ctx context.Context, id int64) error

	CreateHolding(ctx context.Context, h *Holding) error
	Holding(ctx context.Context, id int64) (*Holding, error)
	HoldingBySymbol(ctx context.Context, portfolioID int64, symbol string) (*Holding, error)
	ListHoldings(ctx context.Context, portfolioID int64) ([]Holding, error)
	UpdateHolding(ctx context.Context, h *Holding) error
	DeleteHolding(ctx context.Context, id int64) error
}

// OrderStore persists orders and executions.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *Order) error
	Order(ctx context.Context, id int64) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
	// ListOrders returns one page of the user's orders (newest first) and the
	// total number of orders matching the filter.
	ListOrders(ctx context.Context, userID int64, f OrderFilter) ([]Order, int, error)
	// PendingOrders returns every pending order, optionally for one user
	// (userID 0 means all users), oldest first.
	PendingOrders(ctx context.Context, userID int64) ([]Order, error)
	// CountOrdersSince counts orders the user created at or after since.
	CountOrdersSince(ctx context.Context, userID int64, since time.Time) (int, error)
	// FillOrder stores the updated order and its execution atomically.
	FillOrder(ctx context.Context, o *Order, e *Execution) error
	Executions(ctx context.Context, orderID int64) ([]Execution, error)
	ListExecutions(ctx context.Context, userID int64, limit int) ([]Execution, error)
}

// MarketStore persists stocks, stored quotes, candles, watchlists and indices.
type MarketStore interface {
	UpsertStock(ctx context.Context, s *Stock) error
	StockBySymbol(ctx context.Context, symbol string) (*Stock, error)
	SearchStocks(ctx context.Context, query string, limit int) ([]Stock, error)

	InsertQuote(ctx context.Context, q Quote) error
	LatestQuote(ctx context.Context, symbol string) (*Quote, error)
	// PreviousQuote returns the most recent stored quote strictly before t.
	PreviousQuote(ctx context.Context, symbol string, before time.Time) (*Quote, error)
	// LatestQuotes returns the most recent stored quote of every symbol.
	LatestQuotes(ctx context.Context) ([]Quote, error)

	UpsertCandles(ctx context.Context, candles []Candle) error
	Candles(ctx context.Context, symbol string, from, to time.Time) ([]Candle, error)

	AddWatchlist(ctx context.Context, item *WatchlistItem) error
	Watchlist(ctx context.Context, userID int64) ([]WatchlistItem, error)
	RemoveWatchlist(ctx context.Context, userID int64, symbol string) error

	UpsertIndex(ctx context.Context, idx *MarketIndex) error
	Indices(ctx context.Context) ([]MarketIndex, error)
	IndexBySymbol(ctx context.Context, symbol string) (*MarketIndex, error)
}

// AlertStore persists price alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *PriceAlert) error
	Alert(ctx context.Context, id int64) (*PriceAlert, error)
	ListAlerts(ctx context.Context, userID int64) ([]PriceAlert, error)
	ActiveAlerts(ctx context.Context) ([]PriceAlert, error)
	UpdateAlert(ctx context.Context, a *PriceAlert) error
	DeleteAlert(ctx context.Context, id int64) error
}

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *APIKey) error
	APIKey(ctx context.Context, id int64) (*APIKey, error)
	APIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, userID int64) ([]APIKey, error)
	UpdateAPIKey(ctx context.Context, k *APIKey) error
	DeleteAPIKey(ctx context.Context, id int64) error
}

// SettingsStore persists user settings and support tickets.
type SettingsStore interface {
	Settings(ctx context.Context, userID int64) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error
	CreateTicket(ctx context.Context, t *SupportTicket) error
	ListTickets(ctx context.Context, userID int64) ([]SupportTicket, error)
}

// QuoteCache is a short-lived cache of live quotes (Redis or in-memory).
// GetQuote returns nil, nil on a miss.
type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	SetQuote(ctx context.Context, q Quote) error
}

// QuoteBus fans live quotes out to subscribers (Redis pub/sub or in-memory).
type QuoteBus interface {
	PublishQuote(ctx context.Context, q Quote) error
	// SubscribeQuotes calls fn for every published quote until ctx is done.
	SubscribeQuotes(ctx context.Context, fn func(Quote)) error
}
