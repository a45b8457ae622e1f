package portfolio

import (
	"fmt"

	"tradedesk/internal/model"

	"github.com/shopspring/decimal"
)

// Fill is one execution applied to a holding.
type Fill struct {
	Side     model.OrderSide
	Quantity int64
	Price    float64
}

// ApplyFill updates h for f and returns the realized P&L of the fill.
//
// Buys move the average cost to the quantity-weighted average. Sells realize
// (price - avg cost) on at most the held quantity; the average cost of the
// remainder is unchanged. A holding sold down to zero keeps its row with
// quantity 0 so realized P&L stays attached.
func ApplyFill(h *model.Holding, f Fill) (float64, error) {
	if f.Quantity <= 0 || f.Price <= 0 {
		return 0, fmt.Errorf("portfolio: apply fill: quantity and price must be positive")
	}
	qty := decimal.NewFromInt(h.Quantity)
	avg := dec(h.PurchasePrice)
	fillQty := decimal.NewFromInt(f.Quantity)
	price := dec(f.Price)

	switch f.Side {
	case model.SideBuy:
		if h.Quantity <= 0 {
			h.Quantity = f.Quantity
			h.PurchasePrice = f.Price
			return 0, nil
		}
		total := avg.Mul(qty).Add(price.Mul(fillQty))
		h.Quantity += f.Quantity
		h.PurchasePrice = total.Div(decimal.NewFromInt(h.Quantity)).Round(6).InexactFloat64()
		return 0, nil

	case model.SideSell:
		sellQty := f.Quantity
		if sellQty > h.Quantity {
			sellQty = h.Quantity
		}
		realized := price.Sub(avg).Mul(decimal.NewFromInt(sellQty))
		h.Quantity -= sellQty
		h.RealizedPnL = money2(dec(h.RealizedPnL).Add(realized))
		return money2(realized), nil

	default:
		return 0, fmt.Errorf("portfolio: apply fill: unknown side %q", f.Side)
	}
}
