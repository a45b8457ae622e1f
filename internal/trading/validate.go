package trading

import (
	"fmt"
	"strings"

	"tradedesk/internal/model"
)

const maxNotesLen = 500

// OrderInput is a new order request.
type OrderInput struct {
	Symbol      string          `json:"symbol"`
	Type        model.OrderType `json:"order_type"`
	Side        model.OrderSide `json:"side"`
	Quantity    int64           `json:"quantity"`
	LimitPrice  *float64        `json:"limit_price"`
	StopPrice   *float64        `json:"stop_price"`
	PortfolioID *int64          `json:"portfolio_id"`
	Notes       string          `json:"notes"`
}

// OrderUpdate modifies a pending order. Nil fields are unchanged.
type OrderUpdate struct {
	Quantity   *int64   `json:"quantity"`
	LimitPrice *float64 `json:"limit_price"`
	StopPrice  *float64 `json:"stop_price"`
	Notes      *string  `json:"notes"`
}

// ValidationResult is the outcome of order validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Err returns the result as a *model.ValidationError, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &model.ValidationError{Errors: r.Errors, Warnings: r.Warnings}
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks an order's own fields against the account. Checks that
// need stored state (portfolio ownership, held quantity) are made by
// Service.Validate.
func Validate(user *model.User, in OrderInput) ValidationResult {
	r := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if user == nil || !user.IsActive {
		r.errorf("User account is not active")
	}
	sym := strings.TrimSpace(in.Symbol)
	if len(sym) < 1 || len(sym) > 20 {
		r.errorf("Invalid stock symbol")
	}
	if in.Quantity <= 0 {
		r.errorf("Quantity must be greater than 0")
	}
	if !in.Type.Valid() {
		r.errorf("Invalid order type %q", in.Type)
	}
	if !in.Side.Valid() {
		r.errorf("Invalid order side %q", in.Side)
	}

	if in.Type == model.OrderLimit && in.LimitPrice == nil {
		r.errorf("Limit price is required for limit orders")
	}
	if (in.Type == model.OrderStop || in.Type == model.OrderStopLimit) && in.StopPrice == nil {
		r.errorf("Stop price is required for stop orders")
	}
	if in.Type == model.OrderStopLimit {
		if in.LimitPrice == nil {
			r.errorf("Limit price is required for stop-limit orders")
		} else if in.StopPrice != nil {
			if in.Side == model.SideBuy && *in.StopPrice > *in.LimitPrice {
				r.warnf("Stop price is above limit price for buy stop-limit order")
			} else if in.Side == model.SideSell && *in.StopPrice < *in.LimitPrice {
				r.warnf("Stop price is below limit price for sell stop-limit order")
			}
		}
	}
	if in.LimitPrice != nil && *in.LimitPrice <= 0 {
		r.errorf("Limit price must be greater than 0")
	}
	if in.StopPrice != nil && *in.StopPrice <= 0 {
		r.errorf("Stop price must be greater than 0")
	}
	if in.Type == model.OrderMarket && (in.LimitPrice != nil || in.StopPrice != nil) {
		r.warnf("Limit and stop prices are ignored for market orders")
	}
	if len(in.Notes) > maxNotesLen {
		r.errorf("Notes must be at most %d characters", maxNotesLen)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

// Crosses reports whether a pending order is marketable at price.
//
//	buy limit: price <= limit    sell limit: price >= limit
//	buy stop:  price >= stop     sell stop:  price <= stop
//	stop_limit: stop triggered and limit satisfied
func Crosses(o *model.Order, price float64) bool {
	if price <= 0 {
		return false
	}
	limitOK := func() bool {
		if o.LimitPrice == nil {
			return false
		}
		if o.Side == model.SideBuy {
			return price <= *o.LimitPrice
		}
		return price >= *o.LimitPrice
	}
	stopHit := func() bool {
		if o.StopPrice == nil {
			return false
		}
		if o.Side == model.SideBuy {
			return price >= *o.StopPrice
		}
		return price <= *o.StopPrice
	}

	switch o.Type {
	case model.OrderMarket:
		return true
	case model.OrderLimit:
		return limitOK()
	case model.OrderStop:
		return stopHit()
	case model.OrderStopLimit:
		return stopHit() && limitOK()
	}
	return false
}
