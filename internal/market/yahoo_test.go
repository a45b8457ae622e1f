package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"tradedesk/internal/model"
)

const chartBody = `{"chart":{"result":[{
	"meta":{"currency":"USD","symbol":"%s","exchangeName":"NMS","longName":"Apple Inc.",
		"regularMarketPrice":190.5,"regularMarketTime":1700000000,
		"regularMarketDayHigh":191,"regularMarketDayLow":188,"regularMarketVolume":5000000},
	"timestamp":[1699972800,1699800000,1699886400],
	"indicators":{"quote":[{
		"open":[187,185,null],"high":[191,186,null],"low":[188,184,null],
		"close":[189,185.5,null],"volume":[5000000,1000,null]}]}}],"error":null}}`

type requestLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *requestLog) first() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.paths) == 0 {
		return ""
	}
	return l.paths[0]
}

func newYahooServer(t *testing.T) (*YahooProvider, *requestLog) {
	t.Helper()
	reqs := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs.mu.Lock()
		reqs.paths = append(reqs.paths, r.URL.Path+"?"+r.URL.RawQuery)
		reqs.mu.Unlock()
		if r.Header.Get("User-Agent") == "" {
			t.Error("request without User-Agent")
		}
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL", "/v8/finance/chart/^GSPC":
			fmt.Fprintf(w, chartBody, "AAPL")
		case "/v8/finance/chart/BROKEN":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return NewYahooProvider(srv.URL+"/", ""), reqs
}

func TestYahooProvider_History(t *testing.T) {
	p, reqs := newYahooServer(t)

	bars, err := p.History(context.Background(), "AAPL", "1mo", "1d")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2 (null bar skipped)", len(bars))
	}
	if !bars[0].TS.Before(bars[1].TS) {
		t.Error("bars not sorted by time")
	}
	if bars[0].Close != 185.5 || bars[1].Close != 189 || bars[1].Volume != 5000000 {
		t.Errorf("unexpected bars: %+v", bars)
	}
	if got := reqs.first(); got != "/v8/finance/chart/AAPL?interval=1d&range=1mo" {
		t.Errorf("request = %q", got)
	}
}

func TestYahooProvider_Quote(t *testing.T) {
	p, _ := newYahooServer(t)

	q, err := p.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	// Meta price 190.5 against the prior bar's close 185.5.
	if q.Price != 190.5 || q.PreviousClose != 185.5 {
		t.Errorf("price/prev = %v/%v", q.Price, q.PreviousClose)
	}
	if q.Change != 5 || math.Abs(q.ChangePercent-2.7) > 1e-9 {
		t.Errorf("change = %v (%v%%), want 5 (2.7%%)", q.Change, q.ChangePercent)
	}
	if q.High != 191 || q.Low != 188 || q.Volume != 5000000 || q.Source != "yahoo" {
		t.Errorf("unexpected quote: %+v", q)
	}
}

func TestYahooProvider_SymbolMapAndErrors(t *testing.T) {
	p, _ := newYahooServer(t)
	ctx := context.Background()

	if _, err := p.Quote(ctx, "SPX"); err != nil {
		t.Errorf("SPX should map to ^GSPC: %v", err)
	}
	if _, err := p.Quote(ctx, "NOPE"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown symbol err = %v, want ErrNotFound", err)
	}
	if _, err := p.Quote(ctx, "BROKEN"); err == nil || errors.Is(err, model.ErrNotFound) {
		t.Errorf("server error should be a plain error, got %v", err)
	}
}

func TestYahooProvider_Search(t *testing.T) {
	p, _ := newYahooServer(t)
	ctx := context.Background()

	hits, err := p.Search(ctx, " aapl ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Symbol != "AAPL" || hits[0].Name != "Apple Inc." || hits[0].Exchange != "NMS" {
		t.Errorf("hits = %+v", hits)
	}
	hits, err = p.Search(ctx, "NOPE")
	if err != nil || len(hits) != 0 {
		t.Errorf("unknown search = %v, %v", hits, err)
	}
}
