package indicator

// EMAStream calculates Exponential Moving Average.
// O(1) per update; no window storage needed.
type EMAStream struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMAStream creates a new streaming EMA with the given period.
func NewEMAStream(period int) *EMAStream {
	return &EMAStream{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMAStream) Name() string { return "EMA" }

func (e *EMAStream) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = e.current + e.multiplier*(price-e.current)
}

func (e *EMAStream) Value() float64 { return e.current }
func (e *EMAStream) Ready() bool    { return e.count >= e.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (e *EMAStream) Peek(price float64) float64 {
	if e.count < e.period {
		return (e.sum + price) / float64(e.count+1)
	}
	return e.current + e.multiplier*(price-e.current)
}

// EMA returns the exponential moving average series of prices. The first
// value, at period-1, is the SMA of the first period prices; after that
// out[i] = out[i-1] + k*(prices[i]-out[i-1]) with k = 2/(period+1).
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || period > len(prices) {
		return nanSeries(len(prices))
	}
	return series(NewEMAStream(period), prices)
}
