package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	md "github.com/nao1215/markdown"

	"tradedesk/internal/model"
	"tradedesk/internal/portfolio"
)

// PortfolioReport is everything rendered into the markdown report.
type PortfolioReport struct {
	Portfolio   model.Portfolio
	Summary     portfolio.Summary
	Risk        *portfolio.RiskMetrics // nil when there is not enough history
	Currency    string
	GeneratedAt time.Time
}

// Markdown renders the report.
func (r *PortfolioReport) Markdown() (string, error) {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	s := r.Summary
	cur := r.Currency

	doc.H1(r.Portfolio.Name)
	if r.Portfolio.Description != "" {
		doc.PlainText(r.Portfolio.Description)
	}
	doc.PlainText(fmt.Sprintf("Generated %s", r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")))

	doc.H2("Summary")
	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight},
		Header:    []string{md.Bold("Market Value"), md.Bold(Money(s.TotalValue, cur)), ""},
		Rows: [][]string{
			{"Cost Basis", Money(s.TotalCost, cur), ""},
			{"Unrealized P&L", SignedMoney(s.UnrealizedPnL, cur), Percent(s.UnrealizedPct)},
			{"Day's Change", SignedMoney(s.DayChange, cur), Percent(s.DayChangePct)},
			{"Realized P&L", SignedMoney(s.RealizedPnL, cur), ""},
		},
	})

	if len(s.Holdings) > 0 {
		holdings := append([]portfolio.HoldingValue(nil), s.Holdings...)
		sort.SliceStable(holdings, func(i, j int) bool { return holdings[i].MarketValue > holdings[j].MarketValue })

		doc.H2("Holdings")
		table := md.TableSet{
			Alignment: []md.TableAlignment{
				md.AlignLeft,
				md.AlignRight,
				md.AlignRight,
				md.AlignRight,
				md.AlignRight,
				md.AlignRight,
				md.AlignRight,
			},
			Header: []string{"Symbol", "Quantity", "Avg Cost", "Price", "Market Value", "Unrealized P&L", "Weight"},
		}
		for _, h := range holdings {
			price := "n/a"
			if h.CurrentPrice != nil {
				price = Money(*h.CurrentPrice, cur)
			}
			table.Rows = append(table.Rows, []string{
				h.Symbol,
				fmt.Sprintf("%d", h.Quantity),
				Money(h.PurchasePrice, cur),
				price,
				Money(h.MarketValue, cur),
				fmt.Sprintf("%s (%s)", SignedMoney(h.UnrealizedPnL, cur), Percent(h.UnrealizedPct)),
				fmt.Sprintf("%.1f%%", h.Weight*100),
			})
		}
		doc.Table(table)
		if s.Priced < len(s.Holdings) {
			doc.PlainText(md.Italic(fmt.Sprintf("%d holding(s) without a current quote are carried at cost.", len(s.Holdings)-s.Priced)))
		}
	}

	if r.Risk != nil {
		risk := r.Risk
		doc.H2("Risk")
		rows := [][]string{
			{"Largest Weight", fmt.Sprintf("%.1f%% (%s)", risk.MaxWeight*100, risk.TopHolding)},
			{"Concentration (HHI)", fmt.Sprintf("%.4f", risk.HHI)},
			{"Annualized Volatility", fmt.Sprintf("%.2f%%", risk.Volatility*100)},
			{"Max Drawdown", fmt.Sprintf("%.2f%%", risk.MaxDrawdown*100)},
			{"Sharpe Ratio", fmt.Sprintf("%.2f", risk.Sharpe)},
			{"Observations", fmt.Sprintf("%d", risk.Observations)},
		}
		doc.Table(md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
			Header:    []string{"Metric", "Value"},
			Rows:      rows,
		})
	}

	if err := doc.Error(); err != nil {
		return "", fmt.Errorf("report: render markdown: %w", err)
	}
	return doc.String(), nil
}
