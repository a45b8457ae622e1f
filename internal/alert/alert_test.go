package alert

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"tradedesk/internal/model"
	"tradedesk/internal/notification"
	"tradedesk/internal/store/sqlite"
)

type fakeQuotes map[string]model.Quote

func (f fakeQuotes) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	q, ok := f[symbol]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &q, nil
}

type fakeHistory map[string][]float64

func (f fakeHistory) DailyCloses(_ context.Context, symbol string, days int) ([]float64, error) {
	c := f[symbol]
	if len(c) > days {
		c = c[len(c)-days:]
	}
	return c, nil
}

type captured struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (c *captured) Send(_ context.Context, msg notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func newStore(t *testing.T) (*sqlite.Store, int64) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	u := &model.User{Email: "alerts@example.com", HashedPassword: "x", IsActive: true}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return st, u.ID
}

func fp(v float64) *float64 { return &v }

func TestCheck(t *testing.T) {
	tests := []struct {
		cond      model.AlertCondition
		threshold float64
		value     float64
		want      bool
	}{
		{model.AlertPriceAbove, 100, 100, true},
		{model.AlertPriceAbove, 100, 99.99, false},
		{model.AlertPriceBelow, 100, 99, true},
		{model.AlertPriceBelow, 100, 101, false},
		{model.AlertChangePctAbove, 2, 2.5, true},
		{model.AlertChangePctBelow, -3, -2, false},
		{model.AlertChangePctBelow, -3, -3.1, true},
		{model.AlertRSIAbove, 70, 71, true},
		{model.AlertRSIBelow, 30, 31, false},
		{model.AlertPriceAbove, 100, math.NaN(), false},
	}
	for _, tt := range tests {
		a := model.PriceAlert{Condition: tt.cond, Threshold: tt.threshold}
		if got := Check(a, tt.value); got != tt.want {
			t.Errorf("Check(%s %v, %v) = %v, want %v", tt.cond, tt.threshold, tt.value, got, tt.want)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	st, uid := newStore(t)
	s := NewService(st, fakeQuotes{}, nil, nil, nil)
	ctx := context.Background()

	if _, err := s.Create(ctx, uid, Input{Symbol: "AAPL", Condition: model.AlertPriceAbove}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("missing threshold err = %v", err)
	}
	if _, err := s.Create(ctx, uid, Input{Symbol: "AAPL", Condition: "crosses", Threshold: fp(1)}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("bad condition err = %v", err)
	}
	if _, err := s.Create(ctx, uid, Input{Symbol: "AAPL", Condition: model.AlertRSIAbove, Threshold: fp(150)}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("rsi threshold err = %v", err)
	}

	a, err := s.Create(ctx, uid, Input{Symbol: " msft ", Condition: model.AlertRSIBelow, Threshold: fp(30)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Symbol != "MSFT" || a.Period != DefaultRSIPeriod || a.Status != model.AlertActive {
		t.Errorf("alert = %+v", a)
	}
}

func TestCRUD_Ownership(t *testing.T) {
	st, uid := newStore(t)
	s := NewService(st, fakeQuotes{}, nil, nil, nil)
	ctx := context.Background()

	a, err := s.Create(ctx, uid, Input{Symbol: "AAPL", Condition: model.AlertPriceAbove, Threshold: fp(200)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Get(ctx, uid+1, a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("foreign get err = %v", err)
	}

	disabled := model.AlertDisabled
	u, err := s.Update(ctx, uid, a.ID, Update{Threshold: fp(210), Status: &disabled})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.Threshold != 210 || u.Status != model.AlertDisabled {
		t.Errorf("updated = %+v", u)
	}

	list, _ := s.List(ctx, uid)
	if len(list) != 1 {
		t.Errorf("list = %d alerts", len(list))
	}
	if err := s.Delete(ctx, uid+1, a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("foreign delete err = %v", err)
	}
	if err := s.Delete(ctx, uid, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, _ := s.List(ctx, uid); len(list) != 0 {
		t.Errorf("list after delete = %d", len(list))
	}
}

func TestEvaluate(t *testing.T) {
	st, uid := newStore(t)
	quotes := fakeQuotes{
		"AAPL": {Symbol: "AAPL", Price: 201, ChangePercent: 1.2},
		"TSLA": {Symbol: "TSLA", Price: 150, ChangePercent: -4.5},
	}
	// strictly rising closes: RSI = 100 - 100/101
	rising := make([]float64, 40)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	history := fakeHistory{"NVDA": rising}
	sink := &captured{}

	var (
		hookMu      sync.Mutex
		webhookHits int
		webhookBody map[string]any
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hookMu.Lock()
		defer hookMu.Unlock()
		webhookHits++
		json.NewDecoder(r.Body).Decode(&webhookBody)
	}))
	defer hook.Close()
	ctx := context.Background()
	if err := st.SaveSettings(ctx, &model.Settings{UserID: uid, Timezone: "UTC", Currency: "USD", WebhookURL: hook.URL}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	s := NewService(st, quotes, history, sink, st)
	var hooked []model.PriceAlert
	s.OnTrigger = func(a model.PriceAlert) { hooked = append(hooked, a) }

	mk := func(sym string, c model.AlertCondition, th float64) *model.PriceAlert {
		a, err := s.Create(ctx, uid, Input{Symbol: sym, Condition: c, Threshold: fp(th)})
		if err != nil {
			t.Fatalf("create %s %s: %v", sym, c, err)
		}
		return a
	}
	above := mk("AAPL", model.AlertPriceAbove, 200)
	mk("AAPL", model.AlertPriceBelow, 150)
	drop := mk("TSLA", model.AlertChangePctBelow, -3)
	rsi := mk("NVDA", model.AlertRSIAbove, 70)
	mk("ZZZZ", model.AlertPriceAbove, 1) // no quote, never fires

	fired, err := s.Evaluate(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	hookMu.Lock()
	hits, level := webhookHits, webhookBody["level"]
	hookMu.Unlock()
	if len(fired) != 3 || len(hooked) != 3 || len(sink.msgs) != 3 || hits != 3 {
		t.Fatalf("fired=%d hooked=%d notified=%d webhook=%d", len(fired), len(hooked), len(sink.msgs), hits)
	}
	if level != "WARNING" {
		t.Errorf("webhook level = %v", level)
	}

	got, _ := s.Get(ctx, uid, above.ID)
	if got.Status != model.AlertTriggered || got.TriggeredAt == nil || *got.TriggeredValue != 201 {
		t.Errorf("price alert = %+v", got)
	}
	got, _ = s.Get(ctx, uid, drop.ID)
	if *got.TriggeredValue != -4.5 {
		t.Errorf("change alert value = %v", *got.TriggeredValue)
	}
	got, _ = s.Get(ctx, uid, rsi.ID)
	if want := math.Round((100-100.0/101)*1e4) / 1e4; *got.TriggeredValue != want {
		t.Errorf("rsi alert value = %v, want %v", *got.TriggeredValue, want)
	}

	// triggered alerts do not fire again until re-armed
	if again, _ := s.Evaluate(ctx); len(again) != 0 {
		t.Errorf("second pass fired %d", len(again))
	}
	active := model.AlertActive
	if _, err := s.Update(ctx, uid, above.ID, Update{Status: &active}); err != nil {
		t.Fatalf("re-arm: %v", err)
	}
	if again, _ := s.Evaluate(ctx); len(again) != 1 || again[0].ID != above.ID {
		t.Errorf("re-armed pass fired %+v", again)
	}
}
