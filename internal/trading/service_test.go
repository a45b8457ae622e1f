package trading

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/store/sqlite"
)

type fakeQuoter struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (q *fakeQuoter) set(symbol string, price float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[symbol] = price
}

func (q *fakeQuoter) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.prices[symbol]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &model.Quote{Symbol: symbol, Price: p, Timestamp: time.Now()}, nil
}

type fixture struct {
	store  *sqlite.Store
	quotes *fakeQuoter
	svc    *Service
	pos    *portfolio.Service
	user   *model.User
	pid    int64
	fills  []model.Execution
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "trading.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	u := &model.User{Email: "trader@example.com", HashedPassword: "x", IsActive: true}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	pos := portfolio.NewService(st, nil, nil)
	name := "Main"
	p, err := pos.Create(ctx, u.ID, portfolio.PortfolioInput{Name: &name})
	if err != nil {
		t.Fatalf("create portfolio: %v", err)
	}

	quotes := &fakeQuoter{prices: map[string]float64{"AAPL": 100}}
	risk := portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), func(userID int64, since time.Time) (int, error) {
		return st.CountOrdersSince(context.Background(), userID, since)
	})
	f := &fixture{store: st, quotes: quotes, pos: pos, user: u, pid: p.ID}
	f.svc = NewService(st, quotes, pos, NewPaperExecutor(0, 0), risk, st)
	f.svc.OnFill = func(_ model.Order, e model.Execution) { f.fills = append(f.fills, e) }
	return f
}

func i64(v int64) *int64 { return &v }

func TestService_MarketOrderFillsAndBooksHolding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "aapl", Type: model.OrderMarket, Side: model.SideBuy, Quantity: 10, PortfolioID: &f.pid,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != model.StatusFilled || o.FilledQuantity != 10 {
		t.Fatalf("order = %+v", o)
	}
	if o.AvgFillPrice == nil || *o.AvgFillPrice != 100 {
		t.Errorf("avg fill = %v", o.AvgFillPrice)
	}
	if len(f.fills) != 1 {
		t.Errorf("OnFill calls = %d", len(f.fills))
	}

	d, err := f.svc.Get(ctx, f.user.ID, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Status != model.StatusFilled || len(d.Executions) != 1 || d.Executions[0].Quantity != 10 {
		t.Errorf("detail = %+v", d)
	}

	hs, err := f.pos.Holdings(ctx, f.user.ID, f.pid)
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if len(hs) != 1 || hs[0].Symbol != "AAPL" || hs[0].Quantity != 10 || hs[0].PurchasePrice != 100 {
		t.Errorf("holdings = %+v", hs)
	}
}

func TestService_LimitOrderMatchesLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderMarket, Side: model.SideBuy, Quantity: 10, PortfolioID: &f.pid,
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	o, err := f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderLimit, Side: model.SideSell, Quantity: 4, LimitPrice: f64(120), PortfolioID: &f.pid,
	})
	if err != nil {
		t.Fatalf("sell limit: %v", err)
	}
	if o.Status != model.StatusPending {
		t.Fatalf("limit order status = %s, want pending", o.Status)
	}

	f.quotes.set("AAPL", 110)
	if n, err := f.svc.MatchPending(ctx); err != nil || n != 0 {
		t.Fatalf("match at 110 = %d, %v", n, err)
	}

	f.quotes.set("AAPL", 125)
	if n, err := f.svc.MatchPending(ctx); err != nil || n != 1 {
		t.Fatalf("match at 125 = %d, %v", n, err)
	}

	d, err := f.svc.Get(ctx, f.user.ID, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Status != model.StatusFilled || d.AvgFillPrice == nil || *d.AvgFillPrice != 125 {
		t.Errorf("matched order = %+v", d.Order)
	}

	hs, _ := f.pos.Holdings(ctx, f.user.ID, f.pid)
	if len(hs) != 1 || hs[0].Quantity != 6 {
		t.Fatalf("holdings = %+v", hs)
	}
	if math.Abs(hs[0].RealizedPnL-100) > 1e-9 {
		t.Errorf("realized = %v, want 100", hs[0].RealizedPnL)
	}

	pending, _ := f.svc.Pending(ctx, f.user.ID)
	if len(pending) != 0 {
		t.Errorf("pending = %d", len(pending))
	}
}

func TestService_MarketOrderWithoutQuoteIsRejected(t *testing.T) {
	f := newFixture(t)
	o, err := f.svc.Create(context.Background(), f.user, OrderInput{
		Symbol: "ZZZZ", Type: model.OrderMarket, Side: model.SideBuy, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != model.StatusRejected || o.RejectionReason == "" {
		t.Errorf("order = %+v", o)
	}
}

func TestService_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user, OrderInput{Symbol: "AAPL", Type: model.OrderLimit, Side: model.SideBuy, Quantity: 1})
	var ve *model.ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("err = %v", err)
	}

	_, err = f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderMarket, Side: model.SideBuy, Quantity: 1, PortfolioID: i64(f.pid + 99),
	})
	if !errors.As(err, &ve) || len(ve.Errors) != 1 || ve.Errors[0] != "Portfolio not found" {
		t.Errorf("foreign portfolio err = %v", err)
	}

	v, err := f.svc.Validate(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderMarket, Side: model.SideSell, Quantity: 5, PortfolioID: &f.pid,
	})
	if err != nil || !v.Valid || len(v.Warnings) != 1 {
		t.Errorf("oversell validate = %+v, %v", v, err)
	}
}

func TestService_CancelAndModify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderLimit, Side: model.SideBuy, Quantity: 5, LimitPrice: f64(90),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	qty := int64(8)
	m, err := f.svc.Modify(ctx, f.user, o.ID, OrderUpdate{Quantity: &qty, LimitPrice: f64(95)})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if m.Quantity != 8 || *m.LimitPrice != 95 {
		t.Errorf("modified = %+v", m)
	}
	if _, err := f.svc.Modify(ctx, f.user, o.ID, OrderUpdate{LimitPrice: f64(-1)}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("bad modify err = %v", err)
	}

	other := &model.User{ID: f.user.ID + 1, IsActive: true}
	if _, err := f.svc.Cancel(ctx, other.ID, o.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("foreign cancel err = %v", err)
	}

	c, err := f.svc.Cancel(ctx, f.user.ID, o.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.Status != model.StatusCancelled || c.CancelledAt == nil {
		t.Errorf("cancelled = %+v", c)
	}
	_, err = f.svc.Cancel(ctx, f.user.ID, o.ID)
	if !errors.Is(err, model.ErrInvalid) || err.Error() != "Cannot cancel order with status cancelled" {
		t.Errorf("second cancel err = %v", err)
	}
	if _, err := f.svc.Modify(ctx, f.user, o.ID, OrderUpdate{Quantity: &qty}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("modify cancelled err = %v", err)
	}
}

func TestService_ListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := f.svc.Create(ctx, f.user, OrderInput{
			Symbol: "AAPL", Type: model.OrderLimit, Side: model.SideBuy, Quantity: int64(i + 1), LimitPrice: f64(50),
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := f.svc.List(ctx, f.user.ID, model.OrderFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || len(page.Orders) != 2 || page.Page != 2 || page.PageSize != 2 {
		t.Errorf("page = %+v", page)
	}

	if _, err := f.svc.List(ctx, f.user.ID, model.OrderFilter{PageSize: 101}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("oversized page err = %v", err)
	}
	if _, err := f.svc.List(ctx, f.user.ID, model.OrderFilter{Status: "bogus"}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("bad status err = %v", err)
	}

	filled, _ := f.svc.List(ctx, f.user.ID, model.OrderFilter{Status: model.StatusFilled})
	if filled.Total != 0 || len(filled.Orders) != 0 {
		t.Errorf("filled = %+v", filled)
	}
}

func TestService_DailyTradeLimitFromSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.SaveSettings(ctx, &model.Settings{UserID: f.user.ID, Timezone: "UTC", Currency: "USD", MaxDailyTrades: 2}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	in := OrderInput{Symbol: "AAPL", Type: model.OrderMarket, Side: model.SideBuy, Quantity: 1}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Create(ctx, f.user, in); err != nil {
			t.Fatalf("order %d: %v", i, err)
		}
	}
	if _, err := f.svc.Create(ctx, f.user, in); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("third order err = %v, want ErrInvalid", err)
	}
}

func TestService_RiskCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RiskCheck(ctx, f.user, OrderInput{Symbol: "AAPL", Side: model.SideBuy, Quantity: 3})
	if err != nil {
		t.Fatalf("risk check: %v", err)
	}
	if !res.Passed || res.Details["order_value"] != 300.0 {
		t.Errorf("risk = %+v", res)
	}

	if _, err := f.svc.RiskCheck(ctx, f.user, OrderInput{Symbol: "AAPL", Quantity: 0}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("zero qty err = %v", err)
	}
}

// racingQuoter runs before once, the first time a quote is requested, to
// change an order between the matcher loading it and filling it.
type racingQuoter struct {
	price  float64
	before func()
	once   sync.Once
}

func (q *racingQuoter) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	q.once.Do(q.before)
	return &model.Quote{Symbol: symbol, Price: q.price, Timestamp: time.Now()}, nil
}

func TestMatchPending_SkipsOrderCancelledMidMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderLimit, Side: model.SideBuy, Quantity: 5, LimitPrice: f64(90), PortfolioID: &f.pid,
	})
	if err != nil || o.Status != model.StatusPending {
		t.Fatalf("create: %+v, %v", o, err)
	}

	q := &racingQuoter{price: 85, before: func() {
		if _, err := f.svc.Cancel(ctx, f.user.ID, o.ID); err != nil {
			t.Errorf("cancel: %v", err)
		}
	}}
	matcher := NewService(f.store, q, f.pos, NewPaperExecutor(0, 0), nil, f.store)
	n, err := matcher.MatchPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("matched = %d, want 0", n)
	}

	d, err := f.svc.Get(ctx, f.user.ID, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != model.StatusCancelled || len(d.Executions) != 0 {
		t.Errorf("order = %s with %d executions, want cancelled with none", d.Status, len(d.Executions))
	}
	if hs, _ := f.pos.Holdings(ctx, f.user.ID, f.pid); len(hs) != 0 {
		t.Errorf("holdings = %+v, want none", hs)
	}
}

func TestMatchPending_SkipsOrderModifiedMidMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderLimit, Side: model.SideBuy, Quantity: 5, LimitPrice: f64(90), PortfolioID: &f.pid,
	})
	if err != nil {
		t.Fatal(err)
	}

	q := &racingQuoter{price: 85, before: func() {
		if _, err := f.svc.Modify(ctx, f.user, o.ID, OrderUpdate{Quantity: i64(3)}); err != nil {
			t.Errorf("modify: %v", err)
		}
	}}
	matcher := NewService(f.store, q, f.pos, NewPaperExecutor(0, 0), nil, f.store)
	if n, _ := matcher.MatchPending(ctx); n != 0 {
		t.Fatalf("matched stale order: %d", n)
	}

	// The next run sees the modified order and fills its new quantity.
	if n, _ := matcher.MatchPending(ctx); n != 1 {
		t.Fatalf("second run matched %d, want 1", n)
	}
	d, _ := f.svc.Get(ctx, f.user.ID, o.ID)
	if d.Status != model.StatusFilled || d.FilledQuantity != 3 {
		t.Errorf("order = %s filled %d, want filled 3", d.Status, d.FilledQuantity)
	}
}

func TestCancel_AlreadyFilledConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, f.user, OrderInput{
		Symbol: "AAPL", Type: model.OrderLimit, Side: model.SideBuy, Quantity: 2, LimitPrice: f64(90),
	})
	if err != nil {
		t.Fatal(err)
	}
	stale := *o
	f.quotes.set("AAPL", 80)
	if n, _ := f.svc.MatchPending(ctx); n != 1 {
		t.Fatalf("matched = %d, want 1", n)
	}

	stale.Status = model.StatusCancelled
	if err := f.store.UpdateOrder(ctx, &stale); !errors.Is(err, model.ErrConflict) {
		t.Errorf("update of filled order err = %v, want ErrConflict", err)
	}
}
