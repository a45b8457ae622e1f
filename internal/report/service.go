// Package report exports portfolios and order history as CSV, renders
// markdown portfolio reports, and takes support tickets.
package report

import (
	"context"
	"io"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/trading"
)

const (
	riskLookbackDays = 90
	exportPageSize   = 100
)

// Portfolios is satisfied by *portfolio.Service.
type Portfolios interface {
	Get(ctx context.Context, userID, id int64) (*model.Portfolio, error)
	Summary(ctx context.Context, userID, portfolioID int64) (*portfolio.Summary, error)
	Risk(ctx context.Context, userID, portfolioID int64, days int) (*portfolio.RiskMetrics, error)
}

// Orders is satisfied by *trading.Service.
type Orders interface {
	List(ctx context.Context, userID int64, f model.OrderFilter) (*trading.OrderPage, error)
}

// Service builds exports for one user's data.
type Service struct {
	portfolios Portfolios
	orders     Orders
	settings   model.SettingsStore
	now        func() time.Time
}

// NewService wires the report service. settings may be nil.
func NewService(portfolios Portfolios, orders Orders, settings model.SettingsStore) *Service {
	return &Service{portfolios: portfolios, orders: orders, settings: settings, now: time.Now}
}

// HoldingsCSV writes the valued holdings of a portfolio.
func (s *Service) HoldingsCSV(ctx context.Context, userID, portfolioID int64, w io.Writer) error {
	sum, err := s.portfolios.Summary(ctx, userID, portfolioID)
	if err != nil {
		return err
	}
	return WriteHoldingsCSV(w, sum)
}

// OrdersCSV writes every order of the user (optionally one status), newest
// first.
func (s *Service) OrdersCSV(ctx context.Context, userID int64, status model.OrderStatus, w io.Writer) error {
	var all []model.Order
	for page := 1; ; page++ {
		p, err := s.orders.List(ctx, userID, model.OrderFilter{Status: status, Page: page, PageSize: exportPageSize})
		if err != nil {
			return err
		}
		all = append(all, p.Orders...)
		if len(p.Orders) < exportPageSize || len(all) >= p.Total {
			break
		}
	}
	return WriteOrdersCSV(w, all)
}

func (s *Service) currency(ctx context.Context, userID int64) string {
	if s.settings != nil {
		if st, err := s.settings.Settings(ctx, userID); err == nil && st.Currency != "" {
			return st.Currency
		}
	}
	return "USD"
}

// Portfolio assembles the markdown report of one portfolio. The risk section
// is left out when there is no price history.
func (s *Service) Portfolio(ctx context.Context, userID, portfolioID int64) (*PortfolioReport, error) {
	p, err := s.portfolios.Get(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	sum, err := s.portfolios.Summary(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	r := &PortfolioReport{
		Portfolio:   *p,
		Summary:     *sum,
		Currency:    s.currency(ctx, userID),
		GeneratedAt: s.now(),
	}
	risk, err := s.portfolios.Risk(ctx, userID, portfolioID, riskLookbackDays)
	if err != nil {
		return nil, err
	}
	if risk.Observations > 0 {
		r.Risk = risk
	}
	return r, nil
}
