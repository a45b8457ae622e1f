package trading

import (
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"tradedesk/internal/model"
)

// Executor turns an order and a market price into a fill.
type Executor interface {
	Execute(o *model.Order, marketPrice float64) model.Execution
}

// PaperExecutor simulates order execution without a broker.
type PaperExecutor struct {
	now func() time.Time

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
	commission  float64 // flat fee per fill
}

// NewPaperExecutor creates a paper trading executor.
func NewPaperExecutor(slippageBps, commission float64) *PaperExecutor {
	return &PaperExecutor{
		now:         time.Now,
		slippageBps: slippageBps,
		commission:  commission,
	}
}

// FillPrice applies slippage against the taker (buys higher, sells lower)
// and never fills a limit order through its limit.
func (p *PaperExecutor) FillPrice(o *model.Order, marketPrice float64) float64 {
	price := marketPrice
	if p.slippageBps > 0 {
		slip := marketPrice * p.slippageBps / 10000
		if o.Side == model.SideBuy {
			price += slip
		} else {
			price -= slip
		}
	}
	if o.LimitPrice != nil && (o.Type == model.OrderLimit || o.Type == model.OrderStopLimit) {
		if o.Side == model.SideBuy {
			price = math.Min(price, *o.LimitPrice)
		} else {
			price = math.Max(price, *o.LimitPrice)
		}
	}
	return math.Round(price*10000) / 10000
}

// Execute fills the whole order at marketPrice plus simulated slippage.
func (p *PaperExecutor) Execute(o *model.Order, marketPrice float64) model.Execution {
	fillPrice := p.FillPrice(o, marketPrice)
	e := model.Execution{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Quantity:    o.Quantity - o.FilledQuantity,
		Price:       fillPrice,
		Commission:  p.commission,
		ExecutedAt:  p.now().UTC(),
		ExecutionID: "PAPER-" + uuid.NewString(),
	}

	log.Printf("[paper] %s %s qty=%d price=%.4f (mkt=%.4f) order=%d exec=%s",
		o.Side, o.Symbol, e.Quantity, fillPrice, marketPrice, o.ID, e.ExecutionID)
	return e
}
