// Package market serves quotes, price history, indicator series, watchlists,
// benchmark indices and the dashboard snapshot. Quotes are resolved through
// the quote cache, then the upstream provider, then the last stored price;
// every fresh quote is persisted and published on the quote bus.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"tradedesk/internal/indicator"
	"tradedesk/internal/logger"
	"tradedesk/internal/markethours"
	"tradedesk/internal/metrics"
	"tradedesk/internal/model"
)

// DefaultIndices are seeded on first use.
var DefaultIndices = []model.MarketIndex{
	{Symbol: "SPX", Name: "S&P 500"},
	{Symbol: "NDX", Name: "NASDAQ 100"},
	{Symbol: "DJI", Name: "DOW JONES"},
}

const (
	moversLimit     = 5
	maxHistoryLimit = 1000
)

// Service is the market data application service.
type Service struct {
	store    model.MarketStore
	provider Provider // nil disables upstream lookups
	upstream bool     // provider data is new and must be persisted
	cache    model.QuoteCache
	bus      model.QuoteBus
	sink     chan<- model.Quote // batched quote persistence, optional
	metrics  *metrics.Metrics
	defaults string // indicator list used when a request names none
	now      func() time.Time

	// OnQuote is called for every fresh quote after it is recorded.
	OnQuote func(model.Quote)
}

// NewService wires the market service. provider, cache and bus may be nil.
func NewService(store model.MarketStore, provider Provider, cache model.QuoteCache, bus model.QuoteBus) *Service {
	_, local := provider.(*StoreProvider)
	return &Service{
		store:    store,
		provider: provider,
		upstream: provider != nil && !local,
		cache:    cache,
		bus:      bus,
		now:      time.Now,
	}
}

// SetMetrics enables Prometheus instrumentation.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetQuoteSink hands recorded quotes to a batching writer instead of
// inserting them one at a time. When the sink is full the quote is
// inserted directly.
func (s *Service) SetQuoteSink(ch chan<- model.Quote) { s.sink = ch }

// SetDefaultIndicators replaces DefaultIndicators for requests that name
// no indicators. The list is checked when it is set.
func (s *Service) SetDefaultIndicators(names string) error {
	if _, err := indicator.ParseSpecs(names); err != nil {
		return err
	}
	s.defaults = names
	return nil
}

func normalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

func validSymbol(sym string) error {
	if sym == "" || len(sym) > 20 {
		return model.E(model.ErrInvalid, "Symbol must be 1-20 characters")
	}
	for _, r := range sym {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '^') {
			return model.E(model.ErrInvalid, fmt.Sprintf("Invalid symbol %q", sym))
		}
	}
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, model.ErrNotFound) }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// applyChange fills Change and ChangePercent from PreviousClose.
func applyChange(q *model.Quote) {
	if q.PreviousClose > 0 {
		q.Change = round2(q.Price - q.PreviousClose)
		q.ChangePercent = round2((q.Price - q.PreviousClose) / q.PreviousClose * 100)
	}
}

func (s *Service) countSource(source string) {
	if s.metrics != nil {
		s.metrics.QuoteFetches.WithLabelValues(source).Inc()
	}
}

// Quote returns the freshest available quote for symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	sym := normalizeSymbol(symbol)
	if err := validSymbol(sym); err != nil {
		return nil, err
	}

	if s.cache != nil {
		q, err := s.cache.GetQuote(ctx, sym)
		if err != nil {
			slog.Warn("quote cache read failed", append(logger.LogWithTrace(ctx), "symbol", sym, "err", err)...)
		} else if q != nil {
			s.countSource("cache")
			return q, nil
		}
	}

	if s.provider != nil {
		q, err := s.provider.Quote(ctx, sym)
		if err == nil && !s.upstream {
			s.countSource("store")
			return q, nil
		}
		if err == nil {
			q.Symbol = sym
			if err := s.record(ctx, *q); err != nil {
				slog.Warn("quote record failed", append(logger.LogWithTrace(ctx), "symbol", sym, "err", err)...)
			}
			s.countSource("provider")
			return q, nil
		}
		if !isNotFound(err) {
			slog.Warn("quote provider failed",
				append(logger.LogWithTrace(ctx), "provider", s.provider.Name(), "symbol", sym, "err", err)...)
			if s.metrics != nil {
				s.metrics.QuoteFetchErrors.WithLabelValues(s.provider.Name()).Inc()
			}
		}
	}

	q, err := s.store.LatestQuote(ctx, sym)
	if isNotFound(err) {
		return nil, model.E(model.ErrNotFound, fmt.Sprintf("No market data for %s", sym))
	}
	if err != nil {
		return nil, fmt.Errorf("market: latest quote %s: %w", sym, err)
	}
	s.countSource("store")
	return q, nil
}

// Quotes returns quotes for every symbol that resolves; failures are skipped.
func (s *Service) Quotes(ctx context.Context, symbols []string) map[string]model.Quote {
	out := make(map[string]model.Quote, len(symbols))
	for _, sym := range symbols {
		sym = normalizeSymbol(sym)
		if _, ok := out[sym]; ok {
			continue
		}
		if q, err := s.Quote(ctx, sym); err == nil {
			out[sym] = *q
		}
	}
	return out
}

// record persists, caches and publishes a fresh quote. The stock row is
// created on first sight.
func (s *Service) record(ctx context.Context, q model.Quote) error {
	if err := s.ensureStock(ctx, q.Symbol, ""); err != nil {
		return err
	}
	if err := s.persist(ctx, q); err != nil {
		return fmt.Errorf("market: store quote: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, q); err != nil {
			slog.Warn("quote cache write failed", "symbol", q.Symbol, "err", err)
		}
	}
	if s.bus != nil {
		if err := s.bus.PublishQuote(ctx, q); err != nil {
			slog.Warn("quote publish failed", "symbol", q.Symbol, "err", err)
		}
	}
	if s.OnQuote != nil {
		s.OnQuote(q)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, q model.Quote) error {
	if s.sink != nil {
		select {
		case s.sink <- q:
			return nil
		default:
		}
	}
	return s.store.InsertQuote(ctx, q)
}

func (s *Service) ensureStock(ctx context.Context, sym, name string) error {
	if _, err := s.store.StockBySymbol(ctx, sym); err == nil {
		return nil
	} else if !isNotFound(err) {
		return err
	}
	if name == "" {
		name = sym
	}
	return s.store.UpsertStock(ctx, &model.Stock{Symbol: sym, Name: name})
}

// Refresh fetches fresh quotes for symbols from the provider, bypassing the
// cache. It returns the quotes that were recorded.
func (s *Service) Refresh(ctx context.Context, symbols []string) []model.Quote {
	if !s.upstream {
		return nil
	}
	var out []model.Quote
	for _, sym := range symbols {
		sym = normalizeSymbol(sym)
		q, err := s.provider.Quote(ctx, sym)
		if err != nil {
			if s.metrics != nil {
				s.metrics.QuoteFetchErrors.WithLabelValues(s.provider.Name()).Inc()
			}
			continue
		}
		q.Symbol = sym
		if err := s.record(ctx, *q); err != nil {
			slog.Warn("quote record failed", "symbol", sym, "err", err)
			continue
		}
		out = append(out, *q)
	}
	return out
}

// ── stocks ──

// StockInfo is a stock with its latest quote and the session state.
type StockInfo struct {
	model.Stock
	Quote      *model.Quote `json:"quote"`
	MarketOpen bool         `json:"is_market_open"`
}

// lookupStock finds a stock in the store or, failing that, upstream.
func (s *Service) lookupStock(ctx context.Context, sym string) (*model.Stock, error) {
	st, err := s.store.StockBySymbol(ctx, sym)
	if err == nil {
		return st, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	if s.upstream {
		hits, perr := s.provider.Search(ctx, sym)
		if perr != nil {
			slog.Warn("stock lookup failed", "provider", s.provider.Name(), "symbol", sym, "err", perr)
		}
		for _, h := range hits {
			if normalizeSymbol(h.Symbol) == sym {
				if err := s.store.UpsertStock(ctx, &h); err != nil {
					return nil, err
				}
				return &h, nil
			}
		}
	}
	return nil, model.E(model.ErrNotFound, "Stock not found")
}

// Stock returns the stock's details and its current quote.
func (s *Service) Stock(ctx context.Context, symbol string) (*StockInfo, error) {
	sym := normalizeSymbol(symbol)
	if err := validSymbol(sym); err != nil {
		return nil, err
	}
	st, err := s.lookupStock(ctx, sym)
	if err != nil {
		return nil, err
	}
	info := &StockInfo{Stock: *st, MarketOpen: markethours.IsMarketOpen(s.now())}
	if q, err := s.Quote(ctx, sym); err == nil {
		info.Quote = q
	}
	return info, nil
}

// Search returns stored stocks matching query merged with provider hits.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.Stock, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.E(model.ErrInvalid, "Search query is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	out, err := s.store.SearchStocks(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("market: search: %w", err)
	}
	if !s.upstream || len(out) >= limit {
		return out, nil
	}

	seen := make(map[string]bool, len(out))
	for _, st := range out {
		seen[st.Symbol] = true
	}
	hits, err := s.provider.Search(ctx, query)
	if err != nil {
		slog.Warn("provider search failed", "provider", s.provider.Name(), "query", query, "err", err)
		return out, nil
	}
	for _, h := range hits {
		h.Symbol = normalizeSymbol(h.Symbol)
		if seen[h.Symbol] || len(out) >= limit {
			continue
		}
		if err := s.store.UpsertStock(ctx, &h); err != nil {
			return nil, err
		}
		seen[h.Symbol] = true
		out = append(out, h)
	}
	return out, nil
}

// ── history and indicators ──

// History is a symbol's bars over a timeframe.
type History struct {
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	Data      []model.Candle `json:"data"`
}

// candles fetches bars from the provider (persisting them) and falls back
// to stored bars when the provider is absent or fails.
func (s *Service) candles(ctx context.Context, sym string, tf Timeframe) ([]model.Candle, error) {
	if s.provider != nil {
		bars, err := s.provider.History(ctx, sym, tf.Range, tf.Interval)
		if err == nil && len(bars) > 0 {
			if !s.upstream {
				return bars, nil
			}
			for i := range bars {
				bars[i].Symbol = sym
			}
			if err := s.store.UpsertCandles(ctx, bars); err != nil {
				slog.Warn("candle store failed", "symbol", sym, "err", err)
			}
			return bars, nil
		}
		if err != nil && !isNotFound(err) {
			slog.Warn("history provider failed", "provider", s.provider.Name(), "symbol", sym, "err", err)
			if s.metrics != nil {
				s.metrics.QuoteFetchErrors.WithLabelValues(s.provider.Name()).Inc()
			}
		}
	}
	to := s.now()
	from := time.Unix(0, 0)
	if tf.Lookback > 0 {
		from = to.Add(-tf.Lookback)
	}
	return s.store.Candles(ctx, sym, from, to)
}

// History returns up to limit of the most recent bars for timeframe.
func (s *Service) History(ctx context.Context, symbol, timeframe string, limit int) (*History, error) {
	sym := normalizeSymbol(symbol)
	if err := validSymbol(sym); err != nil {
		return nil, err
	}
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		return nil, model.E(model.ErrInvalid, fmt.Sprintf("limit must be at most %d", maxHistoryLimit))
	}
	bars, err := s.candles(ctx, sym, tf)
	if err != nil {
		return nil, fmt.Errorf("market: history %s: %w", sym, err)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	if bars == nil {
		bars = []model.Candle{}
	}
	return &History{Symbol: sym, Timeframe: tf.Name, Data: bars}, nil
}

// dailyRange picks the smallest upstream range covering days sessions.
func dailyRange(days int) string {
	switch {
	case days <= 21:
		return "1mo"
	case days <= 63:
		return "3mo"
	case days <= 126:
		return "6mo"
	case days <= 252:
		return "1y"
	case days <= 504:
		return "2y"
	}
	return "5y"
}

// DailyCloses returns up to the last days daily closes for symbol, oldest
// first.
func (s *Service) DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	sym := normalizeSymbol(symbol)
	rng := dailyRange(days)
	tf := Timeframe{Name: rng, Range: rng, Interval: "1d", Lookback: rangeLookback(rng)}
	bars, err := s.candles(ctx, sym, tf)
	if err != nil {
		return nil, err
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return model.Closes(bars), nil
}

// DefaultIndicators are computed when a request names none.
const DefaultIndicators = "SMA_20,EMA_20,RSI_14,MACD_12_26_9,BB_20_2"

// Indicators is a set of indicator series aligned to the bars they were
// computed from. Undefined (warm-up) points are null. Live holds the
// single-series indicators previewed at the current quote price.
type Indicators struct {
	Symbol     string                `json:"symbol"`
	Timeframe  string                `json:"timeframe"`
	Timestamps []time.Time           `json:"timestamps"`
	Closes     []float64             `json:"closes"`
	Series     map[string][]*float64 `json:"series"`
	Latest     map[string]*float64   `json:"latest"`
	LivePrice  *float64              `json:"live_price,omitempty"`
	Live       map[string]*float64   `json:"live,omitempty"`
}

// Indicators computes the named indicators over the timeframe's closes.
func (s *Service) Indicators(ctx context.Context, symbol, timeframe, names string) (*Indicators, error) {
	sym := normalizeSymbol(symbol)
	if err := validSymbol(sym); err != nil {
		return nil, err
	}
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(names) == "" {
		names = s.defaults
	}
	if strings.TrimSpace(names) == "" {
		names = DefaultIndicators
	}
	specs, err := indicator.ParseSpecs(names)
	if err != nil {
		return nil, model.E(model.ErrInvalid, err.Error())
	}

	bars, err := s.candles(ctx, sym, tf)
	if err != nil {
		return nil, fmt.Errorf("market: indicators %s: %w", sym, err)
	}
	closes := model.Closes(bars)
	res := &Indicators{
		Symbol:     sym,
		Timeframe:  tf.Name,
		Timestamps: make([]time.Time, len(bars)),
		Closes:     closes,
		Series:     make(map[string][]*float64),
		Latest:     make(map[string]*float64),
	}
	for i, b := range bars {
		res.Timestamps[i] = b.TS
	}
	for name, series := range indicator.ComputeAll(specs, closes) {
		res.Series[name] = indicator.Nullable(series)
		if v, ok := indicator.Last(series); ok {
			res.Latest[name] = &v
		} else {
			res.Latest[name] = nil
		}
	}
	if len(bars) > 0 {
		if q, err := s.Quote(ctx, sym); err == nil {
			if res.Live = livePreview(specs, bars, tf.Interval, *q); res.Live != nil {
				res.LivePrice = &q.Price
			}
		}
	}
	return res, nil
}

// ── watchlist ──

// AddWatchlist puts symbol on the user's watchlist, creating the stock row
// when it is unknown.
func (s *Service) AddWatchlist(ctx context.Context, userID int64, symbol string) (*model.WatchlistItem, error) {
	sym := normalizeSymbol(symbol)
	if err := validSymbol(sym); err != nil {
		return nil, err
	}
	st, err := s.lookupStock(ctx, sym)
	if isNotFound(err) {
		st = &model.Stock{Symbol: sym, Name: sym}
		err = s.store.UpsertStock(ctx, st)
	}
	if err != nil {
		return nil, err
	}

	item := &model.WatchlistItem{UserID: userID, StockID: st.ID, Symbol: st.Symbol, Name: st.Name}
	if err := s.store.AddWatchlist(ctx, item); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, model.E(model.ErrConflict, "Stock already in watchlist")
		}
		return nil, err
	}
	if q, err := s.Quote(ctx, sym); err == nil {
		item.Quote = q
	}
	return item, nil
}

// Watchlist returns the user's watchlist with current quotes.
func (s *Service) Watchlist(ctx context.Context, userID int64) ([]model.WatchlistItem, error) {
	items, err := s.store.Watchlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(items))
	for i, it := range items {
		symbols[i] = it.Symbol
	}
	quotes := s.Quotes(ctx, symbols)
	for i := range items {
		if q, ok := quotes[items[i].Symbol]; ok {
			items[i].Quote = &q
		}
	}
	if items == nil {
		items = []model.WatchlistItem{}
	}
	return items, nil
}

// RemoveWatchlist takes symbol off the user's watchlist.
func (s *Service) RemoveWatchlist(ctx context.Context, userID int64, symbol string) error {
	err := s.store.RemoveWatchlist(ctx, userID, normalizeSymbol(symbol))
	if isNotFound(err) {
		return model.E(model.ErrNotFound, "Watchlist item not found")
	}
	return err
}

// ── indices ──

// IndexInput creates or updates a market index.
type IndexInput struct {
	Symbol        string   `json:"symbol"`
	Name          *string  `json:"name"`
	CurrentValue  *float64 `json:"current_value"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"change_percent"`
}

// SeedIndices inserts DefaultIndices that are missing.
func (s *Service) SeedIndices(ctx context.Context) error {
	for _, d := range DefaultIndices {
		_, err := s.store.IndexBySymbol(ctx, d.Symbol)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return err
		}
		idx := d
		idx.Timestamp = s.now()
		if err := s.store.UpsertIndex(ctx, &idx); err != nil {
			return err
		}
	}
	return nil
}

// Indices returns all indices, seeding the defaults first.
func (s *Service) Indices(ctx context.Context) ([]model.MarketIndex, error) {
	if err := s.SeedIndices(ctx); err != nil {
		return nil, fmt.Errorf("market: seed indices: %w", err)
	}
	return s.store.Indices(ctx)
}

// RefreshIndices updates every stored index level from the provider.
func (s *Service) RefreshIndices(ctx context.Context) (int, error) {
	if !s.upstream {
		return 0, nil
	}
	indices, err := s.Indices(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, idx := range indices {
		q, err := s.provider.Quote(ctx, idx.Symbol)
		if err != nil {
			slog.Warn("index refresh failed", "symbol", idx.Symbol, "err", err)
			continue
		}
		idx.CurrentValue, idx.Change, idx.ChangePercent = round2(q.Price), q.Change, q.ChangePercent
		idx.Timestamp = q.Timestamp
		if err := s.store.UpsertIndex(ctx, &idx); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CreateIndex adds an index. An existing symbol is a conflict.
func (s *Service) CreateIndex(ctx context.Context, in IndexInput) (*model.MarketIndex, error) {
	sym := normalizeSymbol(in.Symbol)
	var errs []string
	if sym == "" || len(sym) > 10 {
		errs = append(errs, "symbol must be 1-10 characters")
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" || len(*in.Name) > 50 {
		errs = append(errs, "name must be 1-50 characters")
	}
	if in.CurrentValue == nil {
		errs = append(errs, "current_value is required")
	}
	if len(errs) > 0 {
		return nil, model.Invalid(errs...)
	}
	if _, err := s.store.IndexBySymbol(ctx, sym); err == nil {
		return nil, model.E(model.ErrConflict, "Market index already exists")
	} else if !isNotFound(err) {
		return nil, err
	}
	idx := &model.MarketIndex{Symbol: sym, Name: strings.TrimSpace(*in.Name), CurrentValue: *in.CurrentValue, Timestamp: s.now()}
	if in.Change != nil {
		idx.Change = *in.Change
	}
	if in.ChangePercent != nil {
		idx.ChangePercent = *in.ChangePercent
	}
	if err := s.store.UpsertIndex(ctx, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// UpdateIndex applies the non-nil fields of in to the index.
func (s *Service) UpdateIndex(ctx context.Context, symbol string, in IndexInput) (*model.MarketIndex, error) {
	idx, err := s.store.IndexBySymbol(ctx, normalizeSymbol(symbol))
	if isNotFound(err) {
		return nil, model.E(model.ErrNotFound, "Market index not found")
	}
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if n := strings.TrimSpace(*in.Name); n == "" || len(n) > 50 {
			return nil, model.Invalid("name must be 1-50 characters")
		}
		idx.Name = strings.TrimSpace(*in.Name)
	}
	if in.CurrentValue != nil {
		idx.CurrentValue = *in.CurrentValue
	}
	if in.Change != nil {
		idx.Change = *in.Change
	}
	if in.ChangePercent != nil {
		idx.ChangePercent = *in.ChangePercent
	}
	idx.Timestamp = s.now()
	if err := s.store.UpsertIndex(ctx, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ── snapshot ──

// Snapshot summarises the market: indices and the top movers by intraday
// change (price vs. open) and by volume, ranked over the latest stored quote
// of every symbol.
func (s *Service) Snapshot(ctx context.Context) (*model.MarketSnapshot, error) {
	indices, err := s.Indices(ctx)
	if err != nil {
		return nil, err
	}
	quotes, err := s.store.LatestQuotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("market: snapshot quotes: %w", err)
	}

	var movers []model.Mover
	for _, q := range quotes {
		m := model.Mover{Symbol: q.Symbol, Open: q.Open, Price: q.Price, Volume: q.Volume}
		if q.Open > 0 {
			m.ChangePercent = round2((q.Price - q.Open) / q.Open * 100)
		}
		movers = append(movers, m)
	}

	now := s.now()
	snap := &model.MarketSnapshot{
		Indices:    indices,
		Gainers:    rankMovers(movers, func(m model.Mover) bool { return m.Open > 0 && m.Price > m.Open }, func(a, b model.Mover) bool { return a.ChangePercent > b.ChangePercent }),
		Losers:     rankMovers(movers, func(m model.Mover) bool { return m.Open > 0 && m.Price < m.Open }, func(a, b model.Mover) bool { return a.ChangePercent < b.ChangePercent }),
		MostActive: rankMovers(movers, func(m model.Mover) bool { return m.Volume > 0 }, func(a, b model.Mover) bool { return a.Volume > b.Volume }),
		MarketOpen: markethours.IsMarketOpen(now),
		Status:     markethours.StatusAt(now).Status,
		Timestamp:  now.UTC(),
	}
	return snap, nil
}

func rankMovers(all []model.Mover, keep func(model.Mover) bool, less func(a, b model.Mover) bool) []model.Mover {
	out := []model.Mover{}
	for _, m := range all {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	if len(out) > moversLimit {
		out = out[:moversLimit]
	}
	return out
}

// ── ingest ──

// IngestInput is a price observation pushed by an operator or feed.
type IngestInput struct {
	Price     float64    `json:"price"`
	Open      float64    `json:"open"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Volume    int64      `json:"volume"`
	Timestamp *time.Time `json:"timestamp"`
}

// Ingest records a price for symbol and folds it into the day's bar. Change
// is computed against the most recent stored price before this observation.
func (s *Service) Ingest(ctx context.Context, symbol string, in IngestInput) (*model.Quote, error) {
	sym := normalizeSymbol(symbol)
	if err := validSymbol(sym); err != nil {
		return nil, err
	}
	var errs []string
	if in.Price <= 0 {
		errs = append(errs, "price must be positive")
	}
	if in.Volume < 0 {
		errs = append(errs, "volume cannot be negative")
	}
	if len(errs) > 0 {
		return nil, model.Invalid(errs...)
	}

	ts := s.now().UTC()
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}
	q := model.Quote{
		Symbol: sym, Price: in.Price, Open: in.Open, High: in.High, Low: in.Low,
		Volume: in.Volume, Timestamp: ts, Source: "ingest",
	}
	prev, err := s.store.PreviousQuote(ctx, sym, ts)
	switch {
	case err == nil:
		q.PreviousClose = prev.Price
		applyChange(&q)
	case !isNotFound(err):
		return nil, fmt.Errorf("market: previous quote %s: %w", sym, err)
	}
	if q.Open == 0 {
		q.Open = q.Price
	}
	if q.High == 0 {
		q.High = math.Max(q.Price, q.Open)
	}
	if q.Low == 0 {
		q.Low = math.Min(q.Price, q.Open)
	}
	if err := s.record(ctx, q); err != nil {
		return nil, err
	}
	if err := s.foldDaily(ctx, q); err != nil {
		slog.Warn("daily bar update failed", append(logger.LogWithTrace(ctx), "symbol", sym, "err", err)...)
	}
	return &q, nil
}

// Status reports the US equity session state.
func (s *Service) Status() markethours.Status {
	return markethours.StatusAt(s.now())
}
