package indicator

// SMMAStream calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMAStream struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMAStream creates a new streaming SMMA with the given period.
func NewSMMAStream(period int) *SMMAStream {
	return &SMMAStream{period: period}
}

func (s *SMMAStream) Name() string { return "SMMA" }

func (s *SMMAStream) Update(price float64) {
	s.count++

	if s.count <= s.period {
		// Accumulate for initial SMA seed
		s.sum += price
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + price) / float64(s.period)
}

func (s *SMMAStream) Value() float64 { return s.current }
func (s *SMMAStream) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (s *SMMAStream) Peek(price float64) float64 {
	if s.count < s.period {
		return (s.sum + price) / float64(s.count+1)
	}
	return (s.current*float64(s.period-1) + price) / float64(s.period)
}

// SMMA returns the smoothed moving average series of prices.
func SMMA(prices []float64, period int) []float64 {
	if period <= 0 || period > len(prices) {
		return nanSeries(len(prices))
	}
	return series(NewSMMAStream(period), prices)
}
