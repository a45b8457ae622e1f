package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names an indicator family.
type Kind string

const (
	KindSMA  Kind = "SMA"
	KindEMA  Kind = "EMA"
	KindSMMA Kind = "SMMA"
	KindRSI  Kind = "RSI"
	KindMACD Kind = "MACD"
	KindBB   Kind = "BB"
)

// MaxPeriod bounds every period parameter a name can carry.
const MaxPeriod = 1000

// Spec specifies a single indicator to compute.
type Spec struct {
	Kind   Kind
	Period int     // SMA, EMA, SMMA, RSI, BB
	Fast   int     // MACD
	Slow   int     // MACD
	Signal int     // MACD
	K      float64 // BB standard deviations
}

// Name returns the canonical name, e.g. "SMA_20", "MACD_12_26_9", "BB_20_2".
func (s Spec) Name() string {
	switch s.Kind {
	case KindMACD:
		return fmt.Sprintf("MACD_%d_%d_%d", s.Fast, s.Slow, s.Signal)
	case KindBB:
		return fmt.Sprintf("BB_%d_%s", s.Period, strconv.FormatFloat(s.K, 'f', -1, 64))
	default:
		return fmt.Sprintf("%s_%d", s.Kind, s.Period)
	}
}

// WarmUp returns the index of the first defined output value.
// For MACD it is the first index where the signal line is defined.
func (s Spec) WarmUp() int {
	switch s.Kind {
	case KindRSI:
		return s.Period
	case KindMACD:
		return max(s.Fast, s.Slow) + s.Signal - 2
	default:
		return s.Period - 1
	}
}

// ParseSpec parses one indicator name. Fields may be separated by '_' or ':'
// ("SMA_20", "rsi:14", "MACD_12_26_9", "BB:20:2"). MACD defaults to 12/26/9
// and BB to k=2 when the trailing fields are omitted.
func ParseSpec(name string) (Spec, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(name), func(r rune) bool {
		return r == '_' || r == ':'
	})
	if len(fields) == 0 {
		return Spec{}, fmt.Errorf("indicator: empty name")
	}
	kind := Kind(strings.ToUpper(fields[0]))
	if kind == "BOLLINGER" {
		kind = KindBB
	}
	args := fields[1:]

	ints := func(defaults ...int) ([]int, error) {
		out := append([]int(nil), defaults...)
		if len(args) > len(defaults) {
			return nil, fmt.Errorf("indicator %q: too many parameters", name)
		}
		for i, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil || n <= 0 || n > MaxPeriod {
				return nil, fmt.Errorf("indicator %q: invalid parameter %q (1-%d)", name, a, MaxPeriod)
			}
			out[i] = n
		}
		return out, nil
	}

	switch kind {
	case KindSMA, KindEMA, KindSMMA:
		if len(args) != 1 {
			return Spec{}, fmt.Errorf("indicator %q: period required", name)
		}
		v, err := ints(0)
		if err != nil {
			return Spec{}, err
		}
		return Spec{Kind: kind, Period: v[0]}, nil
	case KindRSI:
		v, err := ints(14)
		if err != nil {
			return Spec{}, err
		}
		return Spec{Kind: kind, Period: v[0]}, nil
	case KindMACD:
		v, err := ints(12, 26, 9)
		if err != nil {
			return Spec{}, err
		}
		return Spec{Kind: kind, Fast: v[0], Slow: v[1], Signal: v[2]}, nil
	case KindBB:
		s := Spec{Kind: kind, Period: 20, K: 2}
		if len(args) > 2 {
			return Spec{}, fmt.Errorf("indicator %q: too many parameters", name)
		}
		if len(args) >= 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 || n > MaxPeriod {
				return Spec{}, fmt.Errorf("indicator %q: invalid period %q (1-%d)", name, args[0], MaxPeriod)
			}
			s.Period = n
		}
		if len(args) == 2 {
			k, err := strconv.ParseFloat(args[1], 64)
			if err != nil || k <= 0 {
				return Spec{}, fmt.Errorf("indicator %q: invalid multiplier %q", name, args[1])
			}
			s.K = k
		}
		return s, nil
	}
	return Spec{}, fmt.Errorf("indicator %q: unknown type %q", name, fields[0])
}

// ParseSpecs parses a comma-separated list such as "SMA:20,RSI:14,BB:20:2".
func ParseSpecs(list string) ([]Spec, error) {
	var specs []Spec
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s, err := ParseSpec(part)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// Compute evaluates spec over prices and returns its named output series.
// Single-output indicators return one entry under Name(); MACD adds
// "_signal" and "_hist" entries and BB returns "_upper", "_middle", "_lower".
func Compute(spec Spec, prices []float64) map[string][]float64 {
	name := spec.Name()
	switch spec.Kind {
	case KindSMA:
		return map[string][]float64{name: SMA(prices, spec.Period)}
	case KindEMA:
		return map[string][]float64{name: EMA(prices, spec.Period)}
	case KindSMMA:
		return map[string][]float64{name: SMMA(prices, spec.Period)}
	case KindRSI:
		return map[string][]float64{name: RSI(prices, spec.Period)}
	case KindMACD:
		m := MACD(prices, spec.Fast, spec.Slow, spec.Signal)
		return map[string][]float64{
			name:             m.Line,
			name + "_signal": m.Signal,
			name + "_hist":   m.Histogram,
		}
	case KindBB:
		b := Bollinger(prices, spec.Period, spec.K)
		return map[string][]float64{
			name + "_upper":  b.Upper,
			name + "_middle": b.Middle,
			name + "_lower":  b.Lower,
		}
	}
	return nil
}

// ComputeAll evaluates every spec over the same prices.
func ComputeAll(specs []Spec, prices []float64) map[string][]float64 {
	out := make(map[string][]float64)
	for _, s := range specs {
		for k, v := range Compute(s, prices) {
			out[k] = v
		}
	}
	return out
}

// Stream returns a streaming indicator for single-output kinds, or nil.
func (s Spec) Stream() Indicator {
	if s.Period <= 0 || s.Period > MaxPeriod {
		return nil
	}
	switch s.Kind {
	case KindSMA:
		return NewSMAStream(s.Period)
	case KindEMA:
		return NewEMAStream(s.Period)
	case KindSMMA:
		return NewSMMAStream(s.Period)
	case KindRSI:
		return NewRSIStream(s.Period)
	}
	return nil
}
