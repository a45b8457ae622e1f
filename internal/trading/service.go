// Package trading places, modifies and cancels paper-trading orders. Market
// orders fill immediately at the current quote; limit, stop and stop-limit
// orders stay pending until MatchPending sees the market cross them. Fills
// against a portfolio update its holdings.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
	"tradedesk/internal/portfolio"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Quoter returns the latest quote for a symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
}

// Positions is the portfolio side of trading: ownership checks, valuation
// for risk checks, and booking fills into holdings.
type Positions interface {
	Get(ctx context.Context, userID, id int64) (*model.Portfolio, error)
	Holdings(ctx context.Context, userID, portfolioID int64) ([]model.Holding, error)
	Summary(ctx context.Context, userID, portfolioID int64) (*portfolio.Summary, error)
	ApplyFill(ctx context.Context, portfolioID int64, symbol string, f portfolio.Fill) (*model.Holding, float64, error)
}

// Service is the order management service.
type Service struct {
	orders    model.OrderStore
	quotes    Quoter
	positions Positions
	exec      Executor
	risk      *portfolio.RiskManager
	settings  model.SettingsStore // per-user risk overrides; may be nil
	metrics   *metrics.Metrics
	now       func() time.Time

	// OnFill is called after an order fills and holdings are updated.
	OnFill func(o model.Order, e model.Execution)
}

// NewService wires the trading service. positions and settings may be nil.
func NewService(orders model.OrderStore, quotes Quoter, positions Positions, exec Executor,
	risk *portfolio.RiskManager, settings model.SettingsStore) *Service {
	return &Service{
		orders:    orders,
		quotes:    quotes,
		positions: positions,
		exec:      exec,
		risk:      risk,
		settings:  settings,
		now:       time.Now,
	}
}

// SetMetrics enables Prometheus instrumentation.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// OrderPage is one page of a user's orders.
type OrderPage struct {
	Orders   []model.Order `json:"orders"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// OrderDetail is an order with its executions.
type OrderDetail struct {
	model.Order
	Executions []model.Execution `json:"executions"`
}

// Validate runs the field rules plus the portfolio checks.
func (s *Service) Validate(ctx context.Context, user *model.User, in OrderInput) (ValidationResult, error) {
	r := Validate(user, in)
	if in.PortfolioID == nil || s.positions == nil || user == nil {
		return r, nil
	}

	if _, err := s.positions.Get(ctx, user.ID, *in.PortfolioID); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return r, err
		}
		r.errorf("Portfolio not found")
		r.Valid = false
		return r, nil
	}
	if in.Side == model.SideSell && in.Quantity > 0 {
		hs, err := s.positions.Holdings(ctx, user.ID, *in.PortfolioID)
		if err != nil {
			return r, err
		}
		sym := strings.ToUpper(strings.TrimSpace(in.Symbol))
		var held int64
		for _, h := range hs {
			if h.Symbol == sym {
				held += h.Quantity
			}
		}
		if in.Quantity > held {
			r.warnf("Sell quantity %d exceeds held quantity %d", in.Quantity, held)
		}
	}
	return r, nil
}

// limits returns the user's risk overrides; zero fields mean server defaults.
func (s *Service) limits(ctx context.Context, userID int64) portfolio.RiskLimits {
	if s.settings == nil {
		return portfolio.RiskLimits{}
	}
	st, err := s.settings.Settings(ctx, userID)
	if err != nil {
		return portfolio.RiskLimits{}
	}
	return portfolio.RiskLimits{MaxOrderPct: st.MaxOrderPct, MaxDailyTrades: st.MaxDailyTrades}
}

func (s *Service) reject() {
	if s.metrics != nil {
		s.metrics.OrdersRejected.Inc()
	}
}

// Create validates and stores an order. Market orders fill at once; when no
// quote is available they are stored as rejected. Orders without a portfolio
// are booked to the user's default portfolio, if one is set.
func (s *Service) Create(ctx context.Context, user *model.User, in OrderInput) (*model.Order, error) {
	if in.PortfolioID == nil && s.settings != nil {
		if st, err := s.settings.Settings(ctx, user.ID); err == nil {
			in.PortfolioID = st.DefaultPortfolioID
		}
	}
	v, err := s.Validate(ctx, user, in)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		s.reject()
		return nil, v.Err()
	}
	if s.risk != nil {
		max := s.risk.Limits().MaxDailyTrades
		if o := s.limits(ctx, user.ID).MaxDailyTrades; o > 0 {
			max = o
		}
		if max > 0 && s.risk.DailyTrades(user.ID) >= max {
			s.reject()
			return nil, model.Invalid(fmt.Sprintf("daily trade limit of %d reached", max))
		}
	}

	o := &model.Order{
		UserID:      user.ID,
		PortfolioID: in.PortfolioID,
		Symbol:      strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Type:        in.Type,
		Side:        in.Side,
		Quantity:    in.Quantity,
		LimitPrice:  in.LimitPrice,
		StopPrice:   in.StopPrice,
		Status:      model.StatusPending,
		Notes:       in.Notes,
	}
	if o.Type == model.OrderMarket {
		o.LimitPrice, o.StopPrice = nil, nil
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("trading: create order: %w", err)
	}
	if s.risk != nil {
		s.risk.RecordTrade(user.ID)
	}
	if s.metrics != nil {
		s.metrics.OrdersPlaced.WithLabelValues(string(o.Type), string(o.Side)).Inc()
	}

	q, qerr := s.quotes.Quote(ctx, o.Symbol)
	switch {
	case o.Type == model.OrderMarket && qerr != nil:
		o.Status = model.StatusRejected
		o.RejectionReason = fmt.Sprintf("No market price available for %s", o.Symbol)
		if err := s.orders.UpdateOrder(ctx, o); err != nil {
			return nil, fmt.Errorf("trading: reject order: %w", err)
		}
		s.reject()
	case qerr == nil && Crosses(o, q.Price):
		if err := s.fill(ctx, o, q.Price); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// fill executes o at price, stores the fill and books it into the portfolio.
func (s *Service) fill(ctx context.Context, o *model.Order, price float64) error {
	e := s.exec.Execute(o, price)
	now := e.ExecutedAt
	o.Status = model.StatusFilled
	o.FilledQuantity = o.Quantity
	o.AvgFillPrice = &e.Price
	o.FilledAt = &now
	if err := s.orders.FillOrder(ctx, o, &e); err != nil {
		return fmt.Errorf("trading: fill order %d: %w", o.ID, err)
	}
	if s.metrics != nil {
		s.metrics.OrdersFilled.Inc()
	}

	if o.PortfolioID != nil && s.positions != nil {
		h, realized, err := s.positions.ApplyFill(ctx, *o.PortfolioID, o.Symbol,
			portfolio.Fill{Side: o.Side, Quantity: e.Quantity, Price: e.Price})
		if err != nil {
			log.Printf("[trading] order %d filled but portfolio %d not updated: %v", o.ID, *o.PortfolioID, err)
		} else if h != nil {
			log.Printf("[trading] order %d booked to portfolio %d: %s qty=%d avg=%.4f realized=%.2f",
				o.ID, *o.PortfolioID, h.Symbol, h.Quantity, h.PurchasePrice, realized)
		}
	}
	if s.OnFill != nil {
		s.OnFill(*o, e)
	}
	return nil
}

// owned loads an order belonging to userID.
func (s *Service) owned(ctx context.Context, userID, id int64) (*model.Order, error) {
	o, err := s.orders.Order(ctx, id)
	if errors.Is(err, model.ErrNotFound) || (err == nil && o.UserID != userID) {
		return nil, model.E(model.ErrNotFound, "Order not found")
	}
	return o, err
}

// Get returns an order with its executions.
func (s *Service) Get(ctx context.Context, userID, id int64) (*OrderDetail, error) {
	o, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	execs, err := s.orders.Executions(ctx, id)
	if err != nil {
		return nil, err
	}
	if execs == nil {
		execs = []model.Execution{}
	}
	return &OrderDetail{Order: *o, Executions: execs}, nil
}

// Executions returns the fills of one order.
func (s *Service) Executions(ctx context.Context, userID, id int64) ([]model.Execution, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return d.Executions, nil
}

// RecentExecutions returns the user's latest fills across orders.
func (s *Service) RecentExecutions(ctx context.Context, userID int64, limit int) ([]model.Execution, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return s.orders.ListExecutions(ctx, userID, limit)
}

// List returns a page of the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID int64, f model.OrderFilter) (*OrderPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.E(model.ErrInvalid, fmt.Sprintf("Invalid order status: %s", f.Status))
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		return nil, model.E(model.ErrInvalid, fmt.Sprintf("page_size must be at most %d", maxPageSize))
	}
	orders, total, err := s.orders.ListOrders(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return &OrderPage{Orders: orders, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// Pending returns the user's pending orders, oldest first.
func (s *Service) Pending(ctx context.Context, userID int64) ([]model.Order, error) {
	orders, err := s.orders.PendingOrders(ctx, userID)
	if orders == nil && err == nil {
		orders = []model.Order{}
	}
	return orders, err
}

// Cancel cancels a pending order.
func (s *Service) Cancel(ctx context.Context, userID, id int64) (*model.Order, error) {
	o, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !o.IsPending() {
		return nil, model.E(model.ErrInvalid, fmt.Sprintf("Cannot cancel order with status %s", o.Status))
	}
	now := s.now().UTC()
	o.Status = model.StatusCancelled
	o.CancelledAt = &now
	if err := s.orders.UpdateOrder(ctx, o); err != nil {
		return nil, changedErr(err)
	}
	return o, nil
}

// changedErr reports a lost race with a fill, cancel or modify.
func changedErr(err error) error {
	if errors.Is(err, model.ErrConflict) {
		return model.E(model.ErrConflict, "Order changed or is no longer pending; reload it and try again")
	}
	return err
}

// Modify changes a pending order's quantity, prices or notes and
// re-validates it.
func (s *Service) Modify(ctx context.Context, user *model.User, id int64, in OrderUpdate) (*model.Order, error) {
	o, err := s.owned(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	if !o.IsPending() {
		return nil, model.E(model.ErrInvalid, fmt.Sprintf("Cannot modify order with status %s", o.Status))
	}
	if in.Quantity != nil {
		o.Quantity = *in.Quantity
	}
	if in.LimitPrice != nil {
		o.LimitPrice = in.LimitPrice
	}
	if in.StopPrice != nil {
		o.StopPrice = in.StopPrice
	}
	if in.Notes != nil {
		o.Notes = *in.Notes
	}

	v, err := s.Validate(ctx, user, OrderInput{
		Symbol: o.Symbol, Type: o.Type, Side: o.Side, Quantity: o.Quantity,
		LimitPrice: o.LimitPrice, StopPrice: o.StopPrice, PortfolioID: o.PortfolioID, Notes: o.Notes,
	})
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, v.Err()
	}
	if err := s.orders.UpdateOrder(ctx, o); err != nil {
		return nil, changedErr(err)
	}
	return o, nil
}

// RiskCheck sizes an order against the user's limits and, when the order
// names a portfolio, against that portfolio's current valuation.
func (s *Service) RiskCheck(ctx context.Context, user *model.User, in OrderInput) (*portfolio.RiskCheck, error) {
	if s.risk == nil {
		return nil, model.E(model.ErrUnavailable, "Risk checks are not configured")
	}
	sym := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if sym == "" {
		return nil, model.Invalid("Invalid stock symbol")
	}
	if in.Quantity <= 0 {
		return nil, model.Invalid("Quantity must be greater than 0")
	}

	price := 0.0
	if in.LimitPrice != nil && *in.LimitPrice > 0 {
		price = *in.LimitPrice
	} else if q, err := s.quotes.Quote(ctx, sym); err == nil {
		price = q.Price
	}

	o := portfolio.OrderRisk{UserID: user.ID, Symbol: sym, Side: in.Side, Quantity: in.Quantity, Price: price}
	if in.PortfolioID != nil && s.positions != nil {
		sum, err := s.positions.Summary(ctx, user.ID, *in.PortfolioID)
		if err != nil {
			return nil, err
		}
		o.Portfolio = sum
	}
	res := s.risk.Check(o, s.limits(ctx, user.ID))
	return &res, nil
}

// MatchPending fills every pending order the current market crosses and
// returns how many filled. Quotes are fetched once per symbol.
func (s *Service) MatchPending(ctx context.Context) (int, error) {
	pending, err := s.orders.PendingOrders(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("trading: pending orders: %w", err)
	}

	prices := make(map[string]float64)
	filled := 0
	for i := range pending {
		o := &pending[i]
		price, ok := prices[o.Symbol]
		if !ok {
			if q, err := s.quotes.Quote(ctx, o.Symbol); err == nil {
				price = q.Price
			}
			prices[o.Symbol] = price
		}
		if !Crosses(o, price) {
			continue
		}
		if err := s.fill(ctx, o, price); err != nil {
			if errors.Is(err, model.ErrConflict) {
				log.Printf("[trading] order %d changed before it matched, skipping", o.ID)
			} else {
				log.Printf("[trading] match order %d: %v", o.ID, err)
			}
			continue
		}
		filled++
	}
	if filled > 0 {
		log.Printf("[trading] matched %d of %d pending orders", filled, len(pending))
	}
	return filled, nil
}
