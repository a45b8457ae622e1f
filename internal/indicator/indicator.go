// Package indicator provides technical indicator calculations over price
// series.
//
// Every series function takes prices in chronological order and returns a
// slice of the same length, index-aligned with the input. Positions before an
// indicator's warm-up are NaN. Empty input, input shorter than the warm-up,
// or a non-positive period produce an all-NaN result.
//
// The streaming types (SMA, EMA, RSI, SMMA) back the series functions and can
// also be fed one price at a time, with Peek previewing the next value for a
// forming bar without mutating state.
package indicator

import "math"

// Indicator is the interface for streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if price were added next,
	// WITHOUT mutating internal state.
	Peek(price float64) float64
}

// series feeds prices through ind and records Value() wherever Ready().
func series(ind Indicator, prices []float64) []float64 {
	out := nanSeries(len(prices))
	for i, p := range prices {
		ind.Update(p)
		if ind.Ready() {
			out[i] = ind.Value()
		}
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Defined reports whether v holds a value (is not NaN).
func Defined(v float64) bool { return !math.IsNaN(v) }

// Last returns the most recent defined value of s.
func Last(s []float64) (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if Defined(s[i]) {
			return s[i], true
		}
	}
	return 0, false
}

// FirstDefined returns the index of the first defined value, or -1.
func FirstDefined(s []float64) int {
	for i, v := range s {
		if Defined(v) {
			return i
		}
	}
	return -1
}

// Nullable converts a series for JSON encoding: NaN becomes nil.
func Nullable(s []float64) []*float64 {
	out := make([]*float64, len(s))
	for i := range s {
		if Defined(s[i]) {
			v := s[i]
			out[i] = &v
		}
	}
	return out
}
