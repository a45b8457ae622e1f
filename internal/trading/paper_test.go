package trading

import (
	"strings"
	"testing"

	"tradedesk/internal/model"
)

func TestPaperExecutor_FillPrice(t *testing.T) {
	p := NewPaperExecutor(10, 0) // 0.10%

	buy := &model.Order{Type: model.OrderMarket, Side: model.SideBuy, Quantity: 1}
	if got := p.FillPrice(buy, 100); got != 100.1 {
		t.Errorf("buy fill = %v, want 100.1", got)
	}
	sell := &model.Order{Type: model.OrderMarket, Side: model.SideSell, Quantity: 1}
	if got := p.FillPrice(sell, 100); got != 99.9 {
		t.Errorf("sell fill = %v, want 99.9", got)
	}

	// slippage never pushes a limit order through its limit
	limBuy := &model.Order{Type: model.OrderLimit, Side: model.SideBuy, Quantity: 1, LimitPrice: f64(100.05)}
	if got := p.FillPrice(limBuy, 100); got != 100.05 {
		t.Errorf("limit buy fill = %v, want 100.05", got)
	}
	limSell := &model.Order{Type: model.OrderLimit, Side: model.SideSell, Quantity: 1, LimitPrice: f64(99.95)}
	if got := p.FillPrice(limSell, 100); got != 99.95 {
		t.Errorf("limit sell fill = %v, want 99.95", got)
	}
}

func TestPaperExecutor_Execute(t *testing.T) {
	p := NewPaperExecutor(0, 1.5)
	o := &model.Order{ID: 7, Symbol: "MSFT", Type: model.OrderMarket, Side: model.SideBuy, Quantity: 10, FilledQuantity: 4}

	e := p.Execute(o, 300)
	if e.OrderID != 7 || e.Symbol != "MSFT" || e.Quantity != 6 {
		t.Errorf("execution = %+v", e)
	}
	if e.Price != 300 || e.Commission != 1.5 {
		t.Errorf("price/commission = %v/%v", e.Price, e.Commission)
	}
	if !strings.HasPrefix(e.ExecutionID, "PAPER-") {
		t.Errorf("execution id = %q", e.ExecutionID)
	}
	if again := p.Execute(o, 300); again.ExecutionID == e.ExecutionID {
		t.Errorf("execution ids repeat: %q", again.ExecutionID)
	}
}
