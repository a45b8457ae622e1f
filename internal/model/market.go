package model

import "time"

// Stock is a tradeable listed instrument.
type Stock struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	Exchange  string    `json:"exchange,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quote is the latest price snapshot for a symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source,omitempty"`
}

// WatchlistItem is one symbol on a user's watchlist.
type WatchlistItem struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	StockID   int64     `json:"stock_id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Quote     *Quote    `json:"quote,omitempty"`
}

// MarketIndex is a benchmark index level (SPX, NDX, DJI...).
type MarketIndex struct {
	ID            int64     `json:"id"`
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	CurrentValue  float64   `json:"current_value"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Mover is a symbol ranked in a market snapshot.
type Mover struct {
	Symbol        string  `json:"symbol"`
	Open          float64 `json:"open"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
}

// MarketSnapshot summarises the market for the dashboard.
type MarketSnapshot struct {
	Indices    []MarketIndex `json:"indices"`
	Gainers    []Mover       `json:"top_gainers"`
	Losers     []Mover       `json:"top_losers"`
	MostActive []Mover       `json:"most_active"`
	MarketOpen bool          `json:"market_open"`
	Status     string        `json:"market_status"`
	Timestamp  time.Time     `json:"timestamp"`
}
