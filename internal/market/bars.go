package market

import (
	"context"
	"fmt"
	"math"
	"time"

	"tradedesk/internal/indicator"
	"tradedesk/internal/model"
)

// dayBucket aligns ts to the start of its UTC day.
func dayBucket(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// foldQuote updates the daily bar of q's day with q. The first quote of a
// day opens the bar; later ones extend the range and move the close.
// Quote volume is the session's running total, so the bar keeps the largest.
func foldQuote(bar *model.Candle, q model.Quote) model.Candle {
	day := dayBucket(q.Timestamp)
	hi, lo := math.Max(q.High, q.Price), q.Price
	if q.Low > 0 {
		lo = math.Min(q.Low, q.Price)
	}
	if bar == nil || !bar.TS.Equal(day) {
		open := q.Open
		if open == 0 {
			open = q.Price
		}
		return model.Candle{
			Symbol: q.Symbol, TS: day,
			Open: open, High: math.Max(hi, open), Low: math.Min(lo, open), Close: q.Price,
			Volume: q.Volume,
		}
	}
	c := *bar
	c.High = math.Max(c.High, hi)
	c.Low = math.Min(c.Low, lo)
	c.Close = q.Price
	if q.Volume > c.Volume {
		c.Volume = q.Volume
	}
	return c
}

// foldDaily merges an ingested quote into its stored daily bar so history,
// indicators and risk see prices that never came from a provider.
func (s *Service) foldDaily(ctx context.Context, q model.Quote) error {
	day := dayBucket(q.Timestamp)
	bars, err := s.store.Candles(ctx, q.Symbol, day, day)
	if err != nil {
		return fmt.Errorf("market: daily bar %s: %w", q.Symbol, err)
	}
	var bar *model.Candle
	if len(bars) > 0 {
		bar = &bars[0]
	}
	return s.store.UpsertCandles(ctx, []model.Candle{foldQuote(bar, q)})
}

// barWidth is the time one bar spans at an upstream interval.
func barWidth(interval string) time.Duration {
	switch interval {
	case "5m":
		return 5 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1wk":
		return 7 * 24 * time.Hour
	case "1mo":
		return 31 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// livePreview values each streaming indicator as if q's price closed the
// forming bar: the last bar when q falls inside it, else the next one.
// Indicators still warming up, and a quote older than the last bar, give
// no preview.
func livePreview(specs []indicator.Spec, bars []model.Candle, interval string, q model.Quote) map[string]*float64 {
	if len(bars) == 0 || q.Price <= 0 {
		return nil
	}
	last := bars[len(bars)-1]
	if q.Timestamp.Before(last.TS) {
		return nil
	}
	closes := model.Closes(bars)
	if q.Timestamp.Before(last.TS.Add(barWidth(interval))) {
		closes = closes[:len(closes)-1]
	}

	out := make(map[string]*float64)
	for _, spec := range specs {
		st := spec.Stream()
		if st == nil || len(closes) < spec.WarmUp() {
			continue
		}
		for _, c := range closes {
			st.Update(c)
		}
		v := st.Peek(q.Price)
		out[spec.Name()] = &v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
