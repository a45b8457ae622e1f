package indicator

// MACDResult holds the three MACD series, each aligned with the input prices.
type MACDResult struct {
	Line      []float64 `json:"macd"`
	Signal    []float64 `json:"signal"`
	Histogram []float64 `json:"histogram"`
}

// MACD computes EMA(fast) - EMA(slow) and its signal line.
//
// The line is defined from index max(fast,slow)-1. The signal line is the
// EMA(signal) of the defined part of the line, written back at the same
// indices, so it starts at max(fast,slow)+signal-2. The histogram is line
// minus signal wherever both exist.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	n := len(prices)
	res := MACDResult{
		Line:      nanSeries(n),
		Signal:    nanSeries(n),
		Histogram: nanSeries(n),
	}
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return res
	}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)
	offset := max(fast, slow) - 1
	if offset >= n {
		return res
	}
	for i := offset; i < n; i++ {
		res.Line[i] = fastEMA[i] - slowEMA[i]
	}

	sig := EMA(res.Line[offset:], signal)
	for j, v := range sig {
		if !Defined(v) {
			continue
		}
		i := offset + j
		res.Signal[i] = v
		res.Histogram[i] = res.Line[i] - v
	}
	return res
}
