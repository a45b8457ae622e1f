package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"tradedesk/internal/model"
)

// Pricer supplies latest quotes keyed by upper-case symbol. Symbols with no
// quote are absent from the map.
type Pricer interface {
	Quotes(ctx context.Context, symbols []string) map[string]model.Quote
}

// History supplies daily closes, oldest first.
type History interface {
	DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
}

// Benchmark is the symbol betas are measured against.
const Benchmark = "SPY"

// Service owns portfolio and holding operations for a user.
type Service struct {
	store   model.PortfolioStore
	pricer  Pricer
	history History
}

// NewService creates a Service. pricer and history may be nil.
func NewService(store model.PortfolioStore, pricer Pricer, history History) *Service {
	return &Service{store: store, pricer: pricer, history: history}
}

// PortfolioInput carries create/update fields. Nil means unchanged on update.
type PortfolioInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// HoldingInput carries holding create/update fields.
type HoldingInput struct {
	Symbol        string   `json:"symbol"`
	Quantity      *int64   `json:"quantity"`
	PurchasePrice *float64 `json:"purchase_price"`
}

// List returns the user's portfolios with holdings counts.
func (s *Service) List(ctx context.Context, userID int64) ([]model.Portfolio, error) {
	return s.store.ListPortfolios(ctx, userID)
}

// Get returns a portfolio owned by userID; other users' portfolios are not found.
func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Portfolio, error) {
	p, err := s.store.Portfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("portfolio %d: %w", id, model.ErrNotFound)
	}
	return p, nil
}

// Create adds a portfolio.
func (s *Service) Create(ctx context.Context, userID int64, in PortfolioInput) (*model.Portfolio, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, model.Invalid("name is required")
	}
	if len(*in.Name) > 100 {
		return nil, model.Invalid("name must be at most 100 characters")
	}
	p := &model.Portfolio{UserID: userID, Name: strings.TrimSpace(*in.Name)}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes name and/or description.
func (s *Service) Update(ctx context.Context, userID, id int64, in PortfolioInput) (*model.Portfolio, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, model.Invalid("name cannot be empty")
		}
		p.Name = name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if err := s.store.UpdatePortfolio(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a portfolio and its holdings.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeletePortfolio(ctx, id)
}

// Holdings lists a portfolio's holdings with current prices where known.
func (s *Service) Holdings(ctx context.Context, userID, portfolioID int64) ([]model.Holding, error) {
	if _, err := s.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	hs, err := s.store.ListHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	quotes := s.quotes(ctx, hs)
	for i := range hs {
		if q, ok := quotes[hs[i].Symbol]; ok {
			p := q.Price
			hs[i].CurrentPrice = &p
		}
	}
	return hs, nil
}

func validateHolding(in HoldingInput, create bool) error {
	var errs []string
	if create {
		sym := strings.TrimSpace(in.Symbol)
		if sym == "" || len(sym) > 20 {
			errs = append(errs, "symbol must be 1-20 characters")
		}
		if in.Quantity == nil {
			errs = append(errs, "quantity is required")
		}
		if in.PurchasePrice == nil {
			errs = append(errs, "purchase_price is required")
		}
	}
	if in.Quantity != nil && *in.Quantity <= 0 {
		errs = append(errs, "quantity must be greater than 0")
	}
	if in.PurchasePrice != nil && *in.PurchasePrice <= 0 {
		errs = append(errs, "purchase_price must be greater than 0")
	}
	if len(errs) > 0 {
		return model.Invalid(errs...)
	}
	return nil
}

// AddHolding creates a holding. If the symbol is already held the lot is
// merged into it at the weighted average cost.
func (s *Service) AddHolding(ctx context.Context, userID, portfolioID int64, in HoldingInput) (*model.Holding, error) {
	if err := validateHolding(in, true); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	sym := strings.ToUpper(strings.TrimSpace(in.Symbol))

	existing, err := s.store.HoldingBySymbol(ctx, portfolioID, sym)
	switch {
	case err == nil:
		if _, err := ApplyFill(existing, Fill{Side: model.SideBuy, Quantity: *in.Quantity, Price: *in.PurchasePrice}); err != nil {
			return nil, err
		}
		if err := s.store.UpdateHolding(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	h := &model.Holding{PortfolioID: portfolioID, Symbol: sym, Quantity: *in.Quantity, PurchasePrice: *in.PurchasePrice}
	if err := s.store.CreateHolding(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) ownedHolding(ctx context.Context, userID, portfolioID, holdingID int64) (*model.Holding, error) {
	if _, err := s.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	h, err := s.store.Holding(ctx, holdingID)
	if err != nil {
		return nil, err
	}
	if h.PortfolioID != portfolioID {
		return nil, fmt.Errorf("holding %d: %w", holdingID, model.ErrNotFound)
	}
	return h, nil
}

// HoldingPortfolio returns the id of the user's portfolio that contains
// holdingID.
func (s *Service) HoldingPortfolio(ctx context.Context, userID, holdingID int64) (int64, error) {
	h, err := s.store.Holding(ctx, holdingID)
	if errors.Is(err, model.ErrNotFound) {
		return 0, model.E(model.ErrNotFound, "Holding not found")
	}
	if err != nil {
		return 0, err
	}
	if _, err := s.Get(ctx, userID, h.PortfolioID); err != nil {
		return 0, model.E(model.ErrNotFound, "Holding not found")
	}
	return h.PortfolioID, nil
}

// UpdateHolding changes quantity and/or purchase price.
func (s *Service) UpdateHolding(ctx context.Context, userID, portfolioID, holdingID int64, in HoldingInput) (*model.Holding, error) {
	if err := validateHolding(in, false); err != nil {
		return nil, err
	}
	h, err := s.ownedHolding(ctx, userID, portfolioID, holdingID)
	if err != nil {
		return nil, err
	}
	if in.Quantity != nil {
		h.Quantity = *in.Quantity
	}
	if in.PurchasePrice != nil {
		h.PurchasePrice = *in.PurchasePrice
	}
	if err := s.store.UpdateHolding(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// DeleteHolding removes a holding.
func (s *Service) DeleteHolding(ctx context.Context, userID, portfolioID, holdingID int64) error {
	if _, err := s.ownedHolding(ctx, userID, portfolioID, holdingID); err != nil {
		return err
	}
	return s.store.DeleteHolding(ctx, holdingID)
}

func (s *Service) quotes(ctx context.Context, hs []model.Holding) map[string]model.Quote {
	if s.pricer == nil || len(hs) == 0 {
		return nil
	}
	syms := make([]string, 0, len(hs))
	for _, h := range hs {
		syms = append(syms, h.Symbol)
	}
	return s.pricer.Quotes(ctx, syms)
}

// Summary values the portfolio at the latest quotes.
func (s *Service) Summary(ctx context.Context, userID, portfolioID int64) (*Summary, error) {
	if _, err := s.Get(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	hs, err := s.store.ListHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	sum := Valuate(portfolioID, hs, s.quotes(ctx, hs))
	return &sum, nil
}

// Risk computes risk metrics over the last days of history.
func (s *Service) Risk(ctx context.Context, userID, portfolioID int64, days int) (*RiskMetrics, error) {
	sum, err := s.Summary(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 90
	}
	hs, err := s.store.ListHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	closes := make(map[string][]float64)
	assetReturns := make(map[string][]float64)
	var bench []float64
	if s.history != nil {
		for _, h := range hs {
			if _, seen := closes[h.Symbol]; seen {
				continue
			}
			c, err := s.history.DailyCloses(ctx, h.Symbol, days)
			if err != nil {
				log.Printf("[portfolio] history %s: %v", h.Symbol, err)
				continue
			}
			closes[h.Symbol] = c
			assetReturns[h.Symbol] = Returns(c)
		}
		if c, err := s.history.DailyCloses(ctx, Benchmark, days); err == nil {
			bench = Returns(c)
		}
	}

	m := Analyze(*sum, ValueSeries(hs, closes), assetReturns, bench)
	return &m, nil
}

// ApplyFill books a fill into the portfolio's holding for symbol, creating
// the holding on a first buy. Sells of an unheld symbol are ignored.
func (s *Service) ApplyFill(ctx context.Context, portfolioID int64, symbol string, f Fill) (*model.Holding, float64, error) {
	sym := strings.ToUpper(symbol)
	h, err := s.store.HoldingBySymbol(ctx, portfolioID, sym)
	if errors.Is(err, model.ErrNotFound) {
		if f.Side != model.SideBuy {
			return nil, 0, nil
		}
		h = &model.Holding{PortfolioID: portfolioID, Symbol: sym, Quantity: f.Quantity, PurchasePrice: f.Price}
		if err := s.store.CreateHolding(ctx, h); err != nil {
			return nil, 0, err
		}
		return h, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	realized, err := ApplyFill(h, f)
	if err != nil {
		return nil, 0, err
	}
	if err := s.store.UpdateHolding(ctx, h); err != nil {
		return nil, 0, err
	}
	return h, realized, nil
}
