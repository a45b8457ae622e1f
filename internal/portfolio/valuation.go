// Package portfolio values holdings, applies fills to positions, and runs
// portfolio risk analytics and pre-trade risk checks.
package portfolio

import (
	"strings"

	"tradedesk/internal/model"

	"github.com/shopspring/decimal"
)

// HoldingValue is one holding marked to the latest quote.
type HoldingValue struct {
	HoldingID     int64    `json:"holding_id"`
	Symbol        string   `json:"symbol"`
	Quantity      int64    `json:"quantity"`
	PurchasePrice float64  `json:"purchase_price"`
	CurrentPrice  *float64 `json:"current_price"`
	CostBasis     float64  `json:"cost_basis"`
	MarketValue   float64  `json:"market_value"`
	UnrealizedPnL float64  `json:"unrealized_pnl"`
	UnrealizedPct float64  `json:"unrealized_pnl_percent"`
	DayChange     float64  `json:"day_change"`
	DayChangePct  float64  `json:"day_change_percent"`
	Weight        float64  `json:"weight"`
	RealizedPnL   float64  `json:"realized_pnl"`
}

// Summary is the valuation of a whole portfolio.
type Summary struct {
	PortfolioID   int64          `json:"portfolio_id"`
	Holdings      []HoldingValue `json:"holdings"`
	TotalCost     float64        `json:"total_cost"`
	TotalValue    float64        `json:"total_value"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	UnrealizedPct float64        `json:"unrealized_pnl_percent"`
	DayChange     float64        `json:"day_change"`
	DayChangePct  float64        `json:"day_change_percent"`
	RealizedPnL   float64        `json:"realized_pnl"`
	Priced        int            `json:"priced_holdings"`
}

var hundred = decimal.NewFromInt(100)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func money2(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

// pct returns num/den*100, or zero when den is zero.
func pct(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den).Mul(hundred)
}

// Valuate marks holdings to quotes (keyed by upper-case symbol). A holding
// without a quote is carried at its purchase price with no day change.
func Valuate(portfolioID int64, holdings []model.Holding, quotes map[string]model.Quote) Summary {
	type row struct {
		h              model.Holding
		cost, value    decimal.Decimal
		day, prevValue decimal.Decimal
		price          *float64
	}

	rows := make([]row, 0, len(holdings))
	var totalCost, totalValue, totalDay, totalPrev, totalRealized decimal.Decimal
	priced := 0
	for _, h := range holdings {
		qty := decimal.NewFromInt(h.Quantity)
		r := row{h: h, cost: qty.Mul(dec(h.PurchasePrice))}
		r.value, r.prevValue = r.cost, r.cost

		if q, ok := quotes[strings.ToUpper(h.Symbol)]; ok && q.Price > 0 {
			p := q.Price
			r.price = &p
			r.value = qty.Mul(dec(q.Price))
			r.day = qty.Mul(dec(q.Change))
			r.prevValue = r.value.Sub(r.day)
			priced++
		}
		totalCost = totalCost.Add(r.cost)
		totalValue = totalValue.Add(r.value)
		totalDay = totalDay.Add(r.day)
		totalPrev = totalPrev.Add(r.prevValue)
		totalRealized = totalRealized.Add(dec(h.RealizedPnL))
		rows = append(rows, r)
	}

	out := Summary{
		PortfolioID:   portfolioID,
		Holdings:      make([]HoldingValue, 0, len(rows)),
		TotalCost:     money2(totalCost),
		TotalValue:    money2(totalValue),
		UnrealizedPnL: money2(totalValue.Sub(totalCost)),
		UnrealizedPct: money2(pct(totalValue.Sub(totalCost), totalCost)),
		DayChange:     money2(totalDay),
		DayChangePct:  money2(pct(totalDay, totalPrev)),
		RealizedPnL:   money2(totalRealized),
		Priced:        priced,
	}
	for _, r := range rows {
		weight := decimal.Zero
		if !totalValue.IsZero() {
			weight = r.value.Div(totalValue)
		}
		out.Holdings = append(out.Holdings, HoldingValue{
			HoldingID:     r.h.ID,
			Symbol:        r.h.Symbol,
			Quantity:      r.h.Quantity,
			PurchasePrice: r.h.PurchasePrice,
			CurrentPrice:  r.price,
			CostBasis:     money2(r.cost),
			MarketValue:   money2(r.value),
			UnrealizedPnL: money2(r.value.Sub(r.cost)),
			UnrealizedPct: money2(pct(r.value.Sub(r.cost), r.cost)),
			DayChange:     money2(r.day),
			DayChangePct:  money2(pct(r.day, r.prevValue)),
			Weight:        weight.Round(4).InexactFloat64(),
			RealizedPnL:   r.h.RealizedPnL,
		})
	}
	return out
}

// Weights returns each holding's share of market value by symbol.
func (s Summary) Weights() map[string]float64 {
	w := make(map[string]float64, len(s.Holdings))
	for _, h := range s.Holdings {
		w[h.Symbol] += h.Weight
	}
	return w
}
