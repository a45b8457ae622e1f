package market

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/store/memory"
	"tradedesk/internal/store/sqlite"
)

type fakeProvider struct {
	quotes map[string]model.Quote
	bars   map[string][]model.Candle
	err    error
	calls  int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	q, ok := p.quotes[symbol]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &q, nil
}

func (p *fakeProvider) History(_ context.Context, symbol, _, _ string) ([]model.Candle, error) {
	if p.err != nil {
		return nil, p.err
	}
	return append([]model.Candle(nil), p.bars[symbol]...), nil
}

func (p *fakeProvider) Search(_ context.Context, query string) ([]model.Stock, error) {
	if _, ok := p.quotes[query]; ok {
		return []model.Stock{{Symbol: query, Name: query + " Corp"}}, nil
	}
	return nil, nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func dailyBars(symbol string, n int) []model.Candle {
	base := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		c := float64(i + 1)
		out[i] = model.Candle{Symbol: symbol, TS: base.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return out
}

func TestQuote_ProviderThenCache(t *testing.T) {
	st := newTestStore(t)
	p := &fakeProvider{quotes: map[string]model.Quote{
		"AAPL": {Price: 110, PreviousClose: 100, Change: 10, ChangePercent: 10, Timestamp: time.Now().UTC()},
	}}
	svc := NewService(st, p, memory.NewCache(time.Minute), nil)
	var seen []model.Quote
	svc.OnQuote = func(q model.Quote) { seen = append(seen, q) }
	ctx := context.Background()

	q, err := svc.Quote(ctx, " aapl ")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Symbol != "AAPL" || q.Price != 110 {
		t.Errorf("quote = %+v", q)
	}
	if len(seen) != 1 {
		t.Errorf("OnQuote called %d times, want 1", len(seen))
	}
	if _, err := st.StockBySymbol(ctx, "AAPL"); err != nil {
		t.Errorf("stock row not created: %v", err)
	}
	if stored, err := st.LatestQuote(ctx, "AAPL"); err != nil || stored.Price != 110 {
		t.Errorf("stored quote = %+v, %v", stored, err)
	}

	if _, err := svc.Quote(ctx, "AAPL"); err != nil {
		t.Fatalf("second Quote: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (second read from cache)", p.calls)
	}
}

func TestQuote_FallsBackToStore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.InsertQuote(ctx, model.Quote{Symbol: "MSFT", Price: 300, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	svc := NewService(st, &fakeProvider{err: errors.New("upstream down")}, nil, nil)

	q, err := svc.Quote(ctx, "MSFT")
	if err != nil || q.Price != 300 {
		t.Fatalf("fallback quote = %+v, %v", q, err)
	}
	if _, err := svc.Quote(ctx, "ZZZZ"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown symbol err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Quote(ctx, "BAD SYMBOL"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("invalid symbol err = %v, want ErrInvalid", err)
	}
}

func TestIngest_ChangeAgainstPreviousPrice(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil, nil, nil)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	first, err := svc.Ingest(ctx, "tsla", IngestInput{Price: 200, Timestamp: &t0})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if first.Change != 0 || first.Open != 200 || first.High != 200 || first.Low != 200 {
		t.Errorf("first ingest = %+v", first)
	}

	second, err := svc.Ingest(ctx, "TSLA", IngestInput{Price: 210, Volume: 500, Timestamp: &t1})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if second.PreviousClose != 200 || second.Change != 10 || second.ChangePercent != 5 {
		t.Errorf("second ingest = %+v, want change 10 (5%%)", second)
	}

	_, err = svc.Ingest(ctx, "TSLA", IngestInput{Price: 0, Volume: -1})
	var verr *model.ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) != 2 {
		t.Errorf("invalid ingest err = %v", err)
	}
}

func TestSnapshot_RanksMovers(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil, nil, nil)
	ctx := context.Background()

	for _, in := range []struct {
		sym         string
		open, price float64
		vol         int64
	}{
		{"AAA", 100, 110, 10},
		{"BBB", 100, 90, 50},
		{"CCC", 100, 105, 30},
		{"DDD", 0, 50, 0},
	} {
		if _, err := svc.Ingest(ctx, in.sym, IngestInput{Open: in.open, Price: in.price, Volume: in.vol}); err != nil {
			t.Fatalf("Ingest %s: %v", in.sym, err)
		}
	}

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Indices) != len(DefaultIndices) {
		t.Errorf("got %d indices, want %d seeded", len(snap.Indices), len(DefaultIndices))
	}
	symbols := func(ms []model.Mover) []string {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m.Symbol
		}
		return out
	}
	assertOrder(t, "gainers", symbols(snap.Gainers), "AAA", "CCC")
	assertOrder(t, "losers", symbols(snap.Losers), "BBB")
	// DDD has no intraday move and no volume.
	assertOrder(t, "most active", symbols(snap.MostActive), "BBB", "CCC", "AAA")
	if snap.Gainers[0].ChangePercent != 10 {
		t.Errorf("AAA change = %v, want 10", snap.Gainers[0].ChangePercent)
	}
}

func assertOrder(t *testing.T, name string, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s = %v, want %v", name, got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
	}
}

func TestWatchlist(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := &model.User{Email: "w@example.com", HashedPassword: "x", IsActive: true}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	p := &fakeProvider{quotes: map[string]model.Quote{"NVDA": {Price: 900, Timestamp: time.Now().UTC()}}}
	svc := NewService(st, p, nil, nil)

	item, err := svc.AddWatchlist(ctx, u.ID, "nvda")
	if err != nil {
		t.Fatalf("AddWatchlist: %v", err)
	}
	if item.Symbol != "NVDA" || item.Name != "NVDA Corp" || item.Quote == nil {
		t.Errorf("item = %+v", item)
	}
	if _, err := svc.AddWatchlist(ctx, u.ID, "NVDA"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate err = %v, want ErrConflict", err)
	}
	// Unknown upstream symbols are still accepted and get a stock row.
	if _, err := svc.AddWatchlist(ctx, u.ID, "NEWCO"); err != nil {
		t.Fatalf("AddWatchlist unknown: %v", err)
	}

	items, err := svc.Watchlist(ctx, u.ID)
	if err != nil || len(items) != 2 {
		t.Fatalf("Watchlist = %v, %v", items, err)
	}
	if items[0].Quote == nil || items[0].Quote.Price != 900 || items[1].Quote != nil {
		t.Errorf("watchlist quotes = %+v / %+v", items[0].Quote, items[1].Quote)
	}

	if err := svc.RemoveWatchlist(ctx, u.ID, "nvda"); err != nil {
		t.Fatalf("RemoveWatchlist: %v", err)
	}
	err = svc.RemoveWatchlist(ctx, u.ID, "NVDA")
	if !errors.Is(err, model.ErrNotFound) || err.Error() != "Watchlist item not found" {
		t.Errorf("second remove err = %v", err)
	}
}

func TestIndices_SeedCreateUpdate(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil, nil, nil)
	ctx := context.Background()

	got, err := svc.Indices(ctx)
	if err != nil || len(got) != 3 {
		t.Fatalf("Indices = %v, %v", got, err)
	}
	if _, err := svc.Indices(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	name, value := "Russell 2000", 2000.5
	idx, err := svc.CreateIndex(ctx, IndexInput{Symbol: "rut", Name: &name, CurrentValue: &value})
	if err != nil || idx.Symbol != "RUT" {
		t.Fatalf("CreateIndex = %+v, %v", idx, err)
	}
	if _, err := svc.CreateIndex(ctx, IndexInput{Symbol: "RUT", Name: &name, CurrentValue: &value}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate index err = %v", err)
	}
	if _, err := svc.CreateIndex(ctx, IndexInput{Symbol: "X"}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("incomplete index err = %v", err)
	}

	change := -1.25
	idx, err = svc.UpdateIndex(ctx, "RUT", IndexInput{ChangePercent: &change})
	if err != nil || idx.ChangePercent != -1.25 || idx.CurrentValue != 2000.5 {
		t.Errorf("UpdateIndex = %+v, %v", idx, err)
	}
	if _, err := svc.UpdateIndex(ctx, "NOPE", IndexInput{}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing index err = %v", err)
	}
}

func TestHistoryAndIndicators(t *testing.T) {
	st := newTestStore(t)
	p := &fakeProvider{bars: map[string][]model.Candle{"AAPL": dailyBars("AAPL", 30)}}
	svc := NewService(st, p, nil, nil)
	ctx := context.Background()

	h, err := svc.History(ctx, "aapl", "3M", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if h.Timeframe != "3M" || len(h.Data) != 10 || h.Data[9].Close != 30 {
		t.Errorf("history = %s, %d bars", h.Timeframe, len(h.Data))
	}
	if _, err := svc.History(ctx, "AAPL", "2W", 10); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("bad timeframe err = %v", err)
	}

	ind, err := svc.Indicators(ctx, "AAPL", "3M", "SMA_5,RSI_14")
	if err != nil {
		t.Fatalf("Indicators: %v", err)
	}
	sma := ind.Series["SMA_5"]
	if len(sma) != 30 || sma[3] != nil || sma[4] == nil {
		t.Fatalf("SMA_5 warm-up wrong: len %d", len(sma))
	}
	if v := ind.Latest["SMA_5"]; v == nil || math.Abs(*v-28) > 1e-9 {
		t.Errorf("latest SMA_5 = %v, want 28", v)
	}
	// Only gains in the window: RS is taken as 100, RSI = 100 - 100/101.
	if v := ind.Latest["RSI_14"]; v == nil || math.Abs(*v-(100-100.0/101)) > 1e-9 {
		t.Errorf("latest RSI_14 = %v, want %v", v, 100-100.0/101)
	}
	if _, err := svc.Indicators(ctx, "AAPL", "3M", "FOO_3"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("bad indicator err = %v", err)
	}
	if _, err := svc.Indicators(ctx, "AAPL", "3M", "SMA_100000000000"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("oversized period err = %v", err)
	}

	if err := svc.SetDefaultIndicators("SMA_3,NOPE"); err == nil {
		t.Error("SetDefaultIndicators accepted an unknown indicator")
	}
	if err := svc.SetDefaultIndicators("ema:10"); err != nil {
		t.Fatalf("SetDefaultIndicators: %v", err)
	}
	ind, err = svc.Indicators(ctx, "AAPL", "3M", "")
	if err != nil {
		t.Fatalf("default Indicators: %v", err)
	}
	if _, ok := ind.Series["EMA_10"]; !ok || len(ind.Series) != 1 {
		t.Errorf("default series = %v, want only EMA_10", len(ind.Series))
	}

	closes, err := svc.DailyCloses(ctx, "AAPL", 5)
	if err != nil || len(closes) != 5 || closes[0] != 26 {
		t.Errorf("DailyCloses = %v, %v", closes, err)
	}

	// Bars fetched upstream were persisted and are served offline.
	offline := NewService(st, NewStoreProvider(st), nil, nil)
	h, err = offline.History(ctx, "AAPL", "ALL", 100)
	if err != nil || len(h.Data) != 30 {
		t.Errorf("offline history = %d bars, %v", len(h.Data), err)
	}
}

func TestSearch_MergesProviderHits(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.UpsertStock(ctx, &model.Stock{Symbol: "AMD", Name: "Advanced Micro Devices"}); err != nil {
		t.Fatal(err)
	}
	p := &fakeProvider{quotes: map[string]model.Quote{"AMZN": {Price: 1}}}
	svc := NewService(st, p, nil, nil)

	got, err := svc.Search(ctx, "AMZN", 10)
	if err != nil || len(got) != 1 || got[0].Symbol != "AMZN" {
		t.Fatalf("Search AMZN = %v, %v", got, err)
	}
	if _, err := st.StockBySymbol(ctx, "AMZN"); err != nil {
		t.Errorf("provider hit not stored: %v", err)
	}
	got, err = svc.Search(ctx, "AM", 10)
	if err != nil || len(got) != 2 {
		t.Errorf("Search AM = %v, %v", got, err)
	}
	if _, err := svc.Search(ctx, "  ", 10); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("empty query err = %v", err)
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("")
	if err != nil || tf.Name != "1M" || tf.Interval != "1d" {
		t.Errorf("default timeframe = %+v, %v", tf, err)
	}
	if tf, _ := ParseTimeframe("5Y"); tf.Interval != "1wk" {
		t.Errorf("5Y interval = %q", tf.Interval)
	}
}
