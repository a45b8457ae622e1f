package model

import "time"

// OrderType enumerates supported order types.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderMarket, OrderLimit, OrderStop, OrderStopLimit:
		return true
	}
	return false
}

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Valid reports whether s is buy or sell.
func (s OrderSide) Valid() bool { return s == SideBuy || s == SideSell }

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusFilled, StatusPartiallyFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Order is a user's paper-trading order.
type Order struct {
	ID              int64       `json:"id"`
	UserID          int64       `json:"user_id"`
	PortfolioID     *int64      `json:"portfolio_id,omitempty"`
	Symbol          string      `json:"symbol"`
	Type            OrderType   `json:"order_type"`
	Side            OrderSide   `json:"side"`
	Quantity        int64       `json:"quantity"`
	FilledQuantity  int64       `json:"filled_quantity"`
	LimitPrice      *float64    `json:"limit_price"`
	StopPrice       *float64    `json:"stop_price"`
	AvgFillPrice    *float64    `json:"avg_fill_price,omitempty"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	FilledAt        *time.Time  `json:"filled_at"`
	CancelledAt     *time.Time  `json:"cancelled_at"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

// IsPending reports whether the order can still be cancelled or modified.
func (o *Order) IsPending() bool { return o.Status == StatusPending }

// Execution is a (paper) fill of an order.
type Execution struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	Quantity    int64     `json:"quantity"`
	Price       float64   `json:"price"`
	Commission  float64   `json:"commission"`
	ExecutedAt  time.Time `json:"executed_at"`
	ExecutionID string    `json:"execution_id"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status   OrderStatus
	Symbol   string
	Page     int
	PageSize int
}
