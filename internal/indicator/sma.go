package indicator

// SMAStream calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMAStream struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMAStream creates a new streaming SMA with the given period.
func NewSMAStream(period int) *SMAStream {
	return &SMAStream{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMAStream) Name() string { return "SMA" }

func (s *SMAStream) Update(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMAStream) Value() float64 { return s.current }
func (s *SMAStream) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (s *SMAStream) Peek(price float64) float64 {
	if s.count < s.period {
		// Not fully ready: return partial average including this price
		return (s.sum + price) / float64(s.count+1)
	}
	// Preview: replace the oldest value (at idx) with new price
	return (s.sum - s.buf[s.idx] + price) / float64(s.period)
}

// window returns the last period values in insertion order. Valid once Ready.
func (s *SMAStream) window() []float64 {
	out := make([]float64, 0, s.period)
	out = append(out, s.buf[s.idx:]...)
	return append(out, s.buf[:s.idx]...)
}

// SMA returns the simple moving average series of prices.
// out[i] is the mean of prices[i-period+1..i]; undefined for i < period-1.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || period > len(prices) {
		return nanSeries(len(prices))
	}
	return series(NewSMAStream(period), prices)
}
