package market

import (
	"context"
	"testing"
	"time"

	"tradedesk/internal/indicator"
	"tradedesk/internal/model"
)

func TestFoldQuote(t *testing.T) {
	t0 := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	bar := foldQuote(nil, model.Quote{Symbol: "X", Price: 100, Volume: 10, Timestamp: t0})
	want := model.Candle{Symbol: "X", TS: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Open: 100, High: 100, Low: 100, Close: 100, Volume: 10}
	if bar != want {
		t.Fatalf("first bar = %+v, want %+v", bar, want)
	}

	bar = foldQuote(&bar, model.Quote{Symbol: "X", Price: 104, Volume: 30, Timestamp: t0.Add(time.Hour)})
	bar = foldQuote(&bar, model.Quote{Symbol: "X", Price: 97, Volume: 25, Timestamp: t0.Add(2 * time.Hour)})
	if bar.Open != 100 || bar.High != 104 || bar.Low != 97 || bar.Close != 97 || bar.Volume != 30 {
		t.Fatalf("folded bar = %+v", bar)
	}

	next := foldQuote(&bar, model.Quote{Symbol: "X", Price: 99, Open: 98, High: 101, Timestamp: t0.Add(24 * time.Hour)})
	if !next.TS.Equal(bar.TS.Add(24*time.Hour)) || next.Open != 98 || next.High != 101 || next.Low != 98 || next.Close != 99 {
		t.Fatalf("next day bar = %+v", next)
	}
}

func TestIngest_BuildsDailyHistory(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil, nil, nil)
	ctx := context.Background()
	day1 := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	for _, in := range []IngestInput{
		{Price: 50, Timestamp: &day1},
		{Price: 55, Timestamp: ptrTime(day1.Add(time.Hour))},
		{Price: 52, Timestamp: &day2},
	} {
		if _, err := svc.Ingest(ctx, "abc", in); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	bars, err := st.Candles(ctx, "ABC", dayBucket(day1), dayBucket(day2))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %+v, want 2", bars)
	}
	if bars[0].Open != 50 || bars[0].High != 55 || bars[0].Close != 55 || bars[1].Close != 52 {
		t.Errorf("bars = %+v", bars)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestQuoteSinkFallsBackWhenFull(t *testing.T) {
	st := newTestStore(t)
	svc := NewService(st, nil, nil, nil)
	sink := make(chan model.Quote, 1)
	svc.SetQuoteSink(sink)
	ctx := context.Background()

	for _, p := range []float64{10, 11} {
		if _, err := svc.Ingest(ctx, "SNK", IngestInput{Price: p}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}
	if got := <-sink; got.Price != 10 {
		t.Errorf("sink quote = %v, want 10", got.Price)
	}
	q, err := st.LatestQuote(ctx, "SNK")
	if err != nil {
		t.Fatalf("LatestQuote: %v", err)
	}
	if q.Price != 11 {
		t.Errorf("stored price = %v, want 11", q.Price)
	}
}

func TestLivePreview(t *testing.T) {
	day0 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := []model.Candle{
		{Symbol: "X", TS: day0, Close: 1},
		{Symbol: "X", TS: day0.Add(24 * time.Hour), Close: 2},
		{Symbol: "X", TS: day0.Add(48 * time.Hour), Close: 3},
	}
	specs := []indicator.Spec{
		{Kind: indicator.KindSMA, Period: 2},
		{Kind: indicator.KindSMA, Period: 5},
		{Kind: indicator.KindMACD, Fast: 1, Slow: 2, Signal: 1},
	}

	// Inside the last bar: the quote replaces its close.
	in := model.Quote{Price: 5, Timestamp: day0.Add(50 * time.Hour)}
	got := livePreview(specs, bars, "1d", in)
	if v := got["SMA_2"]; v == nil || *v != 3.5 {
		t.Errorf("forming SMA_2 = %v, want 3.5", v)
	}
	if _, ok := got["SMA_5"]; ok {
		t.Error("SMA_5 is still warming up")
	}
	if _, ok := got["MACD_1_2_1"]; ok {
		t.Error("MACD has no streaming preview")
	}

	// After the last bar: the quote opens the next one.
	next := model.Quote{Price: 5, Timestamp: day0.Add(74 * time.Hour)}
	if v := livePreview(specs, bars, "1d", next)["SMA_2"]; v == nil || *v != 4 {
		t.Errorf("next-bar SMA_2 = %v, want 4", v)
	}

	stale := model.Quote{Price: 5, Timestamp: day0}
	if got := livePreview(specs, bars, "1d", stale); got != nil {
		t.Errorf("stale quote preview = %v, want nil", got)
	}
}
