package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"tradedesk/internal/model"
)

// DefaultYahooBaseURL is the public Yahoo Finance API host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider implements Provider using the Yahoo Finance chart API.
type YahooProvider struct {
	Client    *http.Client
	BaseURL   string
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooProvider creates a Yahoo provider. baseURL may be empty.
func NewYahooProvider(baseURL, proxyURL string) *YahooProvider {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooProvider{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL: strings.TrimRight(baseURL, "/"),
		SymbolMap: map[string]string{
			"SPX":   "^GSPC",
			"SP500": "^GSPC",
			"NDX":   "^NDX",
			"DJI":   "^DJI",
		},
	}
}

func (p *YahooProvider) Name() string { return "yahoo" }

func (p *YahooProvider) yahooSymbol(symbol string) string {
	if mapped, ok := p.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

type chartMeta struct {
	Currency           string  `json:"currency"`
	Symbol             string  `json:"symbol"`
	ExchangeName       string  `json:"exchangeName"`
	LongName           string  `json:"longName"`
	ShortName          string  `json:"shortName"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
	ChartPreviousClose float64 `json:"chartPreviousClose"`
	PreviousClose      float64 `json:"previousClose"`
	DayHigh            float64 `json:"regularMarketDayHigh"`
	DayLow             float64 `json:"regularMarketDayLow"`
	Volume             float64 `json:"regularMarketVolume"`
}

// yahooChart is the response structure from the chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta       chartMeta `json:"meta"`
			Timestamp  []int64   `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func at(vs []interface{}, i int) float64 {
	if i < len(vs) {
		return toFloat(vs[i])
	}
	return 0
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, interval, rng string) (chartMeta, []model.Candle, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		p.BaseURL, url.PathEscape(p.yahooSymbol(symbol)), url.QueryEscape(interval), url.QueryEscape(rng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return chartMeta{}, nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		return chartMeta{}, nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chartMeta{}, nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return chartMeta{}, nil, model.E(model.ErrNotFound, "Stock not found")
	}
	if resp.StatusCode != http.StatusOK {
		return chartMeta{}, nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return chartMeta{}, nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return chartMeta{}, nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return chartMeta{}, nil, model.E(model.ErrNotFound, "Stock not found")
	}

	result := chart.Chart.Result[0]
	var bars []model.Candle
	if len(result.Indicators.Quote) > 0 {
		quote := result.Indicators.Quote[0]
		bars = make([]model.Candle, 0, len(result.Timestamp))
		for i, ts := range result.Timestamp {
			o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
			if o == 0 && h == 0 && l == 0 && c == 0 {
				continue // null bars (holidays, halts)
			}
			bars = append(bars, model.Candle{
				Symbol: symbol,
				TS:     time.Unix(ts, 0).UTC(),
				Open:   o,
				High:   h,
				Low:    l,
				Close:  c,
				Volume: int64(at(quote.Volume, i)),
			})
		}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return result.Meta, bars, nil
}

// Quote builds a quote from the daily chart: the latest bar plus the chart
// meta's regular-market fields.
func (p *YahooProvider) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	meta, bars, err := p.fetchChart(ctx, symbol, "1d", "5d")
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 && meta.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("yahoo: no price data for %s", symbol)
	}

	q := &model.Quote{Symbol: symbol, Source: p.Name(), Timestamp: time.Now().UTC()}
	if n := len(bars); n > 0 {
		last := bars[n-1]
		q.Price, q.Open, q.High, q.Low, q.Volume = last.Close, last.Open, last.High, last.Low, last.Volume
		q.Timestamp = last.TS
		if n > 1 {
			q.PreviousClose = bars[n-2].Close
		}
	}
	if meta.RegularMarketPrice > 0 {
		q.Price = meta.RegularMarketPrice
	}
	if meta.RegularMarketTime > 0 {
		q.Timestamp = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	if meta.DayHigh > 0 {
		q.High, q.Low = meta.DayHigh, meta.DayLow
	}
	if meta.Volume > 0 {
		q.Volume = int64(meta.Volume)
	}
	if q.PreviousClose == 0 {
		q.PreviousClose = meta.PreviousClose
	}
	applyChange(q)
	return q, nil
}

// History returns bars for rng at interval.
func (p *YahooProvider) History(ctx context.Context, symbol, rng, interval string) ([]model.Candle, error) {
	_, bars, err := p.fetchChart(ctx, symbol, interval, rng)
	return bars, err
}

// Search resolves an exact ticker through the chart meta, which carries the
// instrument's name and exchange. Unknown tickers return no results.
func (p *YahooProvider) Search(ctx context.Context, query string) ([]model.Stock, error) {
	symbol := normalizeSymbol(query)
	if symbol == "" {
		return nil, nil
	}
	meta, _, err := p.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}
	if name == "" {
		name = symbol
	}
	return []model.Stock{{
		Symbol:   symbol,
		Name:     name,
		Exchange: meta.ExchangeName,
		Currency: meta.Currency,
	}}, nil
}
