package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/notification"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/store/sqlite"
	"tradedesk/internal/trading"
)

func f64(v float64) *float64 { return &v }

func TestMoney(t *testing.T) {
	cases := []struct {
		amount   float64
		currency string
		want     string
	}{
		{1234.5, "USD", "$1,234.50"},
		{-12.5, "USD", "-$12.50"},
		{0.005, "USD", "$0.01"},
		{1234.6, "JPY", "¥1,235"},
		{10, "eur", "€10.00"},
		{10, "", "$10.00"},
		{10, "ZZZ", "$10.00"},
	}
	for _, c := range cases {
		if got := Money(c.amount, c.currency); got != c.want {
			t.Errorf("Money(%v, %q) = %q, want %q", c.amount, c.currency, got, c.want)
		}
	}
	if got := SignedMoney(25, "USD"); got != "+$25.00" {
		t.Errorf("SignedMoney(25) = %q", got)
	}
	if got := SignedMoney(0, "USD"); got != "-" {
		t.Errorf("SignedMoney(0) = %q", got)
	}
	if got := Percent(-4.5); got != "-4.50%" {
		t.Errorf("Percent(-4.5) = %q", got)
	}
}

// Two holdings: AAPL 10 @ 100 now 110, MSFT 5 @ 200 unpriced.
func sampleSummary() portfolio.Summary {
	return portfolio.Valuate(1, []model.Holding{
		{ID: 1, Symbol: "AAPL", Quantity: 10, PurchasePrice: 100},
		{ID: 2, Symbol: "MSFT", Quantity: 5, PurchasePrice: 200},
	}, map[string]model.Quote{"AAPL": {Symbol: "AAPL", Price: 110, Change: 2}})
}

func TestWriteHoldingsCSV(t *testing.T) {
	s := sampleSummary()
	var buf bytes.Buffer
	if err := WriteHoldingsCSV(&buf, &s); err != nil {
		t.Fatalf("WriteHoldingsCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "symbol" {
		t.Fatalf("rows = %v", rows)
	}
	aapl := rows[1]
	if aapl[0] != "AAPL" || aapl[1] != "10" || aapl[3] != "110" || aapl[5] != "1100" || aapl[6] != "100" {
		t.Errorf("AAPL row = %v", aapl)
	}
	if msft := rows[2]; msft[3] != "" || msft[5] != "1000" {
		t.Errorf("unpriced MSFT row = %v", msft)
	}
}

func TestWriteOrdersCSV(t *testing.T) {
	filled := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	orders := []model.Order{
		{ID: 2, Symbol: "AAPL", Side: model.SideBuy, Type: model.OrderLimit, Quantity: 5, LimitPrice: f64(99.5),
			Status: model.StatusPending, CreatedAt: filled},
		{ID: 1, Symbol: "MSFT", Side: model.SideSell, Type: model.OrderMarket, Quantity: 3, FilledQuantity: 3,
			AvgFillPrice: f64(410.25), Status: model.StatusFilled, CreatedAt: filled, FilledAt: &filled},
	}
	var buf bytes.Buffer
	if err := WriteOrdersCSV(&buf, orders); err != nil {
		t.Fatalf("WriteOrdersCSV: %v", err)
	}
	rows, _ := csv.NewReader(&buf).ReadAll()
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if r := rows[1]; r[7] != "99.5" || r[9] != "" || r[10] != "pending" {
		t.Errorf("limit row = %v", r)
	}
	if r := rows[2]; r[9] != "410.25" || r[11] != "2024-06-03T15:00:00Z" {
		t.Errorf("filled row = %v", r)
	}
}

func TestPortfolioReport_Markdown(t *testing.T) {
	r := &PortfolioReport{
		Portfolio:   model.Portfolio{Name: "Growth"},
		Summary:     sampleSummary(),
		Risk:        &portfolio.RiskMetrics{MaxWeight: 0.5238, TopHolding: "AAPL", Observations: 30},
		Currency:    "USD",
		GeneratedAt: time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC),
	}
	out, err := r.Markdown()
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	for _, want := range []string{
		"# Growth",
		"## Holdings",
		"| AAPL | 10 | $100.00 | $110.00 | $1,100.00 | +$100.00 (+10.00%) |",
		"| MSFT | 5 | $200.00 | n/a |",
		"1 holding(s) without a current quote",
		"## Risk",
		"52.4% (AAPL)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
	// AAPL (1100) sorts ahead of MSFT (1000)
	if strings.Index(out, "| AAPL") > strings.Index(out, "| MSFT") {
		t.Error("holdings are not sorted by market value")
	}
}

type pagedOrders struct {
	total int
	calls int
}

func (p *pagedOrders) List(_ context.Context, _ int64, f model.OrderFilter) (*trading.OrderPage, error) {
	p.calls++
	start := (f.Page - 1) * f.PageSize
	var out []model.Order
	for i := start; i < p.total && i < start+f.PageSize; i++ {
		out = append(out, model.Order{ID: int64(p.total - i), Symbol: "AAPL", Status: model.StatusFilled})
	}
	return &trading.OrderPage{Orders: out, Total: p.total, Page: f.Page, PageSize: f.PageSize}, nil
}

func TestService_OrdersCSVPaginates(t *testing.T) {
	orders := &pagedOrders{total: 250}
	svc := NewService(nil, orders, nil)
	var buf bytes.Buffer
	if err := svc.OrdersCSV(context.Background(), 1, "", &buf); err != nil {
		t.Fatalf("OrdersCSV: %v", err)
	}
	rows, _ := csv.NewReader(&buf).ReadAll()
	if len(rows) != 251 || orders.calls != 3 {
		t.Errorf("rows = %d, calls = %d", len(rows), orders.calls)
	}
}

type recordingNotifier struct {
	msgs []notification.Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.msgs = append(n.msgs, m)
	return n.err
}

func TestSupport_Submit(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	u := &model.User{Email: "help@example.com", HashedPassword: "x", IsActive: true}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	n := &recordingNotifier{err: errors.New("webhook down")}
	sup := NewSupport(st, n)

	_, err = sup.Submit(ctx, u, TicketInput{Category: "astrology"})
	var ve *model.ValidationError
	if !errors.As(err, &ve) || len(ve.Errors) != 3 {
		t.Fatalf("expected 3 validation errors, got %v", err)
	}

	tk, err := sup.Submit(ctx, u, TicketInput{Subject: " Fill price ", Message: "Order 12 filled high", Category: "Trading"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tk.ID == 0 || tk.Status != "open" || tk.Subject != "Fill price" || tk.Category != "trading" {
		t.Errorf("ticket = %+v", tk)
	}
	if len(n.msgs) != 1 || n.msgs[0].Fields["email"] != "help@example.com" {
		t.Errorf("notifications = %+v", n.msgs)
	}

	list, err := sup.List(ctx, u.ID)
	if err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v", list, err)
	}
}
