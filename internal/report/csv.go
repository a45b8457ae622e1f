package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/portfolio"
)

var (
	holdingsHeader = []string{
		"symbol", "quantity", "purchase_price", "current_price", "cost_basis", "market_value",
		"unrealized_pnl", "unrealized_pnl_percent", "day_change", "weight", "realized_pnl",
	}
	ordersHeader = []string{
		"id", "created_at", "symbol", "side", "order_type", "quantity", "filled_quantity",
		"limit_price", "stop_price", "avg_fill_price", "status", "filled_at", "rejection_reason",
	}
)

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func optNum(f *float64) string {
	if f == nil {
		return ""
	}
	return num(*f)
}

func optTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteHoldingsCSV writes one row per valued holding.
func WriteHoldingsCSV(w io.Writer, s *portfolio.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(holdingsHeader); err != nil {
		return fmt.Errorf("report: write holdings header: %w", err)
	}
	for _, h := range s.Holdings {
		if err := cw.Write([]string{
			h.Symbol,
			strconv.FormatInt(h.Quantity, 10),
			num(h.PurchasePrice),
			optNum(h.CurrentPrice),
			num(h.CostBasis),
			num(h.MarketValue),
			num(h.UnrealizedPnL),
			num(h.UnrealizedPct),
			num(h.DayChange),
			num(h.Weight),
			num(h.RealizedPnL),
		}); err != nil {
			return fmt.Errorf("report: write holding %s: %w", h.Symbol, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOrdersCSV writes one row per order, in the order given.
func WriteOrdersCSV(w io.Writer, orders []model.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ordersHeader); err != nil {
		return fmt.Errorf("report: write orders header: %w", err)
	}
	for _, o := range orders {
		if err := cw.Write([]string{
			strconv.FormatInt(o.ID, 10),
			o.CreatedAt.UTC().Format(time.RFC3339),
			o.Symbol,
			string(o.Side),
			string(o.Type),
			strconv.FormatInt(o.Quantity, 10),
			strconv.FormatInt(o.FilledQuantity, 10),
			optNum(o.LimitPrice),
			optNum(o.StopPrice),
			optNum(o.AvgFillPrice),
			string(o.Status),
			optTime(o.FilledAt),
			o.RejectionReason,
		}); err != nil {
			return fmt.Errorf("report: write order %d: %w", o.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
