package market

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/model"
)

// Provider is an upstream source of quotes, history and symbol lookups.
type Provider interface {
	Name() string
	// Quote returns the latest quote for symbol.
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
	// History returns bars covering rng ("1mo", "1y"...) at interval
	// ("5m", "1d", "1wk"...), oldest first.
	History(ctx context.Context, symbol, rng, interval string) ([]model.Candle, error)
	// Search resolves query to matching instruments.
	Search(ctx context.Context, query string) ([]model.Stock, error)
}

// Timeframe maps a chart timeframe to an upstream range and bar interval.
type Timeframe struct {
	Name     string
	Range    string
	Interval string
	Lookback time.Duration // 0 means all stored history
}

var timeframes = map[string]Timeframe{
	"1D":  {"1D", "1d", "5m", 24 * time.Hour},
	"1W":  {"1W", "5d", "30m", 7 * 24 * time.Hour},
	"1M":  {"1M", "1mo", "1d", 31 * 24 * time.Hour},
	"3M":  {"3M", "3mo", "1d", 92 * 24 * time.Hour},
	"6M":  {"6M", "6mo", "1d", 183 * 24 * time.Hour},
	"1Y":  {"1Y", "1y", "1d", 366 * 24 * time.Hour},
	"5Y":  {"5Y", "5y", "1wk", 5 * 366 * 24 * time.Hour},
	"ALL": {"ALL", "max", "1mo", 0},
}

// ParseTimeframe looks up a timeframe by name; empty means "1M".
func ParseTimeframe(name string) (Timeframe, error) {
	if name == "" {
		name = "1M"
	}
	tf, ok := timeframes[name]
	if !ok {
		return Timeframe{}, model.Invalid(fmt.Sprintf("unknown timeframe %q (use 1D, 1W, 1M, 3M, 6M, 1Y, 5Y, ALL)", name))
	}
	return tf, nil
}

// rangeLookback converts an upstream range string to a duration.
func rangeLookback(rng string) time.Duration {
	for _, tf := range timeframes {
		if tf.Range == rng {
			return tf.Lookback
		}
	}
	switch rng {
	case "2y":
		return 2 * 366 * 24 * time.Hour
	case "10y":
		return 10 * 366 * 24 * time.Hour
	}
	return 0
}

// StoreProvider serves quotes and history already persisted in the store.
// It is the provider used offline and when no upstream is configured.
type StoreProvider struct {
	store model.MarketStore
	now   func() time.Time
}

// NewStoreProvider wraps a MarketStore as a Provider.
func NewStoreProvider(store model.MarketStore) *StoreProvider {
	return &StoreProvider{store: store, now: time.Now}
}

func (p *StoreProvider) Name() string { return "store" }

func (p *StoreProvider) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	return p.store.LatestQuote(ctx, symbol)
}

func (p *StoreProvider) History(ctx context.Context, symbol, rng, _ string) ([]model.Candle, error) {
	to := p.now()
	from := time.Unix(0, 0)
	if lb := rangeLookback(rng); lb > 0 {
		from = to.Add(-lb)
	}
	return p.store.Candles(ctx, symbol, from, to)
}

func (p *StoreProvider) Search(ctx context.Context, query string) ([]model.Stock, error) {
	return p.store.SearchStocks(ctx, query, 20)
}
