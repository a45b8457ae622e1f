package indicator

// RSIStream calculates the Relative Strength Index from simple averages of
// the gains and losses over the trailing period price changes.
// The window sums are recomputed from circular buffers on every update so a
// window with no losses yields exactly zero average loss.
type RSIStream struct {
	period    int
	count     int // prices received
	prevClose float64
	gains     []float64
	losses    []float64
	idx       int
	current   float64
}

// NewRSIStream creates a new streaming RSI with the given period (typically 14).
func NewRSIStream(period int) *RSIStream {
	return &RSIStream{
		period: period,
		gains:  make([]float64, period),
		losses: make([]float64, period),
	}
}

func (r *RSIStream) Name() string { return "RSI" }

func (r *RSIStream) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First price: just record it, no delta yet
		r.prevClose = price
		return
	}

	gain, loss := splitDelta(price - r.prevClose)
	r.prevClose = price

	r.gains[r.idx] = gain
	r.losses[r.idx] = loss
	r.idx = (r.idx + 1) % r.period

	if r.Ready() {
		r.current = rsiFromSums(sum(r.gains), sum(r.losses), r.period)
	}
}

func (r *RSIStream) Value() float64 { return r.current }
func (r *RSIStream) Ready() bool    { return r.count > r.period }

// Peek computes what RSI would be with an additional price without mutating state.
func (r *RSIStream) Peek(price float64) float64 {
	if r.count < r.period {
		return r.current
	}
	gs, ls := splitDelta(price - r.prevClose)
	// The slot at idx is either empty or holds the delta that would drop out.
	for i := range r.gains {
		if i != r.idx {
			gs += r.gains[i]
			ls += r.losses[i]
		}
	}
	return rsiFromSums(gs, ls, r.period)
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func splitDelta(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// rsiFromSums converts window sums to RSI. RS is taken as 100 when there
// are no losses in the window.
func rsiFromSums(gainSum, lossSum float64, period int) float64 {
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	rs := 100.0
	if avgLoss > 0 {
		rs = avgGain / avgLoss
	}
	return 100.0 - 100.0/(1.0+rs)
}

// RSI returns the relative strength index series of prices. out[i] uses the
// period price changes ending at i, so the first defined value is at i = period.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || period > len(prices) {
		return nanSeries(len(prices))
	}
	return series(NewRSIStream(period), prices)
}
