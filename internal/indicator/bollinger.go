package indicator

import "math"

// BandsResult holds Bollinger Bands series aligned with the input prices.
type BandsResult struct {
	Upper  []float64 `json:"upper"`
	Middle []float64 `json:"middle"`
	Lower  []float64 `json:"lower"`
}

// Bollinger computes middle = SMA(period) and upper/lower = middle ± k times
// the population standard deviation of the same trailing window.
func Bollinger(prices []float64, period int, k float64) BandsResult {
	n := len(prices)
	res := BandsResult{
		Upper:  nanSeries(n),
		Middle: nanSeries(n),
		Lower:  nanSeries(n),
	}
	if period <= 0 || period > n {
		return res
	}

	sma := NewSMAStream(period)
	for i, p := range prices {
		sma.Update(p)
		if !sma.Ready() {
			continue
		}
		mean := sma.Value()
		var ss float64
		for _, v := range sma.window() {
			d := v - mean
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		res.Middle[i] = mean
		res.Upper[i] = mean + k*sd
		res.Lower[i] = mean - k*sd
	}
	return res
}
