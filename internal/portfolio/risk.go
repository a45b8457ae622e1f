package portfolio

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"tradedesk/internal/model"
)

const tradingDaysPerYear = 252

// RiskMetrics summarizes portfolio risk.
type RiskMetrics struct {
	MaxWeight    float64            `json:"max_weight"`
	TopHolding   string             `json:"top_holding,omitempty"`
	HHI          float64            `json:"hhi"`
	Volatility   float64            `json:"annualized_volatility"`
	MaxDrawdown  float64            `json:"max_drawdown"`
	Sharpe       float64            `json:"sharpe_ratio"`
	Beta         map[string]float64 `json:"beta,omitempty"`
	Observations int                `json:"observations"`
}

// Concentration returns the largest weight, its symbol, and the
// Herfindahl-Hirschman index (sum of squared weights).
func Concentration(weights map[string]float64) (maxW float64, top string, hhi float64) {
	syms := make([]string, 0, len(weights))
	for s := range weights {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	for _, s := range syms {
		w := weights[s]
		hhi += w * w
		if w > maxW {
			maxW, top = w, s
		}
	}
	return maxW, top, hhi
}

// Returns converts a value series into simple period returns. Steps from a
// non-positive value are skipped.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

func meanStd(xs []float64) (mean, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// Volatility annualizes the sample standard deviation of daily returns.
func Volatility(returns []float64) float64 {
	_, sd := meanStd(returns)
	return sd * math.Sqrt(tradingDaysPerYear)
}

// Sharpe is the annualized mean/stdev ratio of daily returns with a zero
// risk-free rate. Zero when returns have no dispersion.
func Sharpe(returns []float64) float64 {
	mean, sd := meanStd(returns)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(tradingDaysPerYear)
}

// MaxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
func MaxDrawdown(values []float64) float64 {
	var peak, worst float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// Beta is cov(asset, bench)/var(bench) over the common tail of both return
// series. ok is false when there are fewer than two overlapping points or the
// benchmark is flat.
func Beta(asset, bench []float64) (float64, bool) {
	n := min(len(asset), len(bench))
	if n < 2 {
		return 0, false
	}
	a, b := asset[len(asset)-n:], bench[len(bench)-n:]
	ma, _ := meanStd(a)
	mb, _ := meanStd(b)
	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (a[i] - ma) * (b[i] - mb)
		varB += (b[i] - mb) * (b[i] - mb)
	}
	if varB == 0 {
		return 0, false
	}
	return cov / varB, true
}

// Analyze computes risk metrics. values is the portfolio value series
// (oldest first); assetReturns and benchReturns are optional daily returns
// keyed by symbol and for the benchmark.
func Analyze(s Summary, values []float64, assetReturns map[string][]float64, benchReturns []float64) RiskMetrics {
	m := RiskMetrics{}
	m.MaxWeight, m.TopHolding, m.HHI = Concentration(s.Weights())
	m.MaxWeight, m.HHI = round4(m.MaxWeight), round4(m.HHI)

	rets := Returns(values)
	m.Observations = len(rets)
	m.Volatility = round4(Volatility(rets))
	m.Sharpe = round4(Sharpe(rets))
	m.MaxDrawdown = round4(MaxDrawdown(values))

	if len(benchReturns) > 0 {
		for sym, r := range assetReturns {
			if b, ok := Beta(r, benchReturns); ok {
				if m.Beta == nil {
					m.Beta = make(map[string]float64)
				}
				m.Beta[sym] = round4(b)
			}
		}
	}
	return m
}

// ValueSeries sums quantity × close across holdings for each index of the
// aligned close series. Holdings with no history are carried at cost.
func ValueSeries(holdings []model.Holding, closes map[string][]float64) []float64 {
	n := 0
	for _, c := range closes {
		n = max(n, len(c))
	}
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for _, h := range holdings {
		c := closes[h.Symbol]
		for i := 0; i < n; i++ {
			// right-align shorter histories; before their start use the first close
			j := i - (n - len(c))
			switch {
			case len(c) == 0:
				out[i] += float64(h.Quantity) * h.PurchasePrice
			case j < 0:
				out[i] += float64(h.Quantity) * c[0]
			default:
				out[i] += float64(h.Quantity) * c[j]
			}
		}
	}
	return out
}

func round4(f float64) float64 { return math.Round(f*1e4) / 1e4 }

// ── pre-trade risk check ──

// RiskLimits are the thresholds for pre-trade checks.
type RiskLimits struct {
	MaxOrderPct    float64 `json:"max_order_percent"`
	MaxPositionPct float64 `json:"max_position_percent"`
	MaxDailyTrades int     `json:"max_daily_trades"`
}

// DefaultRiskLimits returns conservative defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{MaxOrderPct: 25, MaxPositionPct: 40, MaxDailyTrades: 25}
}

// OrderRisk is the input of a pre-trade check.
type OrderRisk struct {
	UserID    int64
	Symbol    string
	Side      model.OrderSide
	Quantity  int64
	Price     float64 // estimated execution price
	Portfolio *Summary
}

// RiskCheck is the pre-trade check result.
type RiskCheck struct {
	Passed   bool           `json:"passed"`
	Warnings []string       `json:"warnings"`
	Errors   []string       `json:"errors"`
	Details  map[string]any `json:"details"`
}

// TradeCounter reports how many orders a user placed since a time.
type TradeCounter func(userID int64, since time.Time) (int, error)

// RiskManager runs pre-trade checks and tracks today's trade count per user.
type RiskManager struct {
	mu     sync.Mutex
	limits RiskLimits
	count  TradeCounter
	now    func() time.Time
	daily  map[int64]int
	day    time.Time
}

// NewRiskManager creates a RiskManager. count seeds a user's daily count the
// first time the user is seen each day; it may be nil.
func NewRiskManager(limits RiskLimits, count TradeCounter) *RiskManager {
	return &RiskManager{
		limits: limits,
		count:  count,
		now:    time.Now,
		daily:  make(map[int64]int),
	}
}

// Limits returns the configured limits.
func (rm *RiskManager) Limits() RiskLimits { return rm.limits }

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyTrades returns the user's trades today.
func (rm *RiskManager) DailyTrades(userID int64) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.dailyLocked(userID)
}

func (rm *RiskManager) dailyLocked(userID int64) int {
	today := startOfDay(rm.now())
	if !rm.day.Equal(today) {
		rm.daily = make(map[int64]int)
		rm.day = today
	}
	n, ok := rm.daily[userID]
	if !ok && rm.count != nil {
		c, err := rm.count(userID, today)
		if err != nil {
			log.Printf("[risk] seed daily trades for user %d: %v", userID, err)
		} else {
			n = c
			rm.daily[userID] = n
		}
	}
	return n
}

// RecordTrade counts one order for the user today.
func (rm *RiskManager) RecordTrade(userID int64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.daily[userID] = rm.dailyLocked(userID) + 1
}

// ResetDaily clears all daily counters.
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.daily = make(map[int64]int)
	rm.day = startOfDay(rm.now())
	log.Printf("[risk] daily trade counters reset")
}

// Check evaluates o against the limits, with per-user overrides applied when
// positive.
func (rm *RiskManager) Check(o OrderRisk, override RiskLimits) RiskCheck {
	limits := rm.limits
	if override.MaxOrderPct > 0 {
		limits.MaxOrderPct = override.MaxOrderPct
	}
	if override.MaxDailyTrades > 0 {
		limits.MaxDailyTrades = override.MaxDailyTrades
	}
	if override.MaxPositionPct > 0 {
		limits.MaxPositionPct = override.MaxPositionPct
	}

	res := RiskCheck{Warnings: []string{}, Errors: []string{}, Details: map[string]any{}}
	orderValue := dec(o.Price).Mul(dec(float64(o.Quantity)))
	res.Details["order_value"] = money2(orderValue)
	res.Details["max_order_percent"] = limits.MaxOrderPct
	res.Details["max_position_percent"] = limits.MaxPositionPct

	daily := rm.DailyTrades(o.UserID)
	res.Details["daily_trades"] = daily
	res.Details["max_daily_trades"] = limits.MaxDailyTrades
	if limits.MaxDailyTrades > 0 && daily >= limits.MaxDailyTrades {
		res.Errors = append(res.Errors, fmt.Sprintf("daily trade limit of %d reached", limits.MaxDailyTrades))
	}

	if o.Price <= 0 {
		res.Warnings = append(res.Warnings, "no price available to size the order")
	}

	if o.Portfolio != nil && o.Price > 0 {
		total := dec(o.Portfolio.TotalValue)
		res.Details["portfolio_value"] = o.Portfolio.TotalValue

		orderPct := pct(orderValue, total)
		if total.IsZero() {
			orderPct = hundred
		}
		res.Details["order_percent_of_portfolio"] = money2(orderPct)
		if o.Side == model.SideBuy && orderPct.InexactFloat64() > limits.MaxOrderPct {
			res.Errors = append(res.Errors, fmt.Sprintf("order is %.2f%% of portfolio, limit %.2f%%",
				orderPct.InexactFloat64(), limits.MaxOrderPct))
		}

		var held int64
		for _, h := range o.Portfolio.Holdings {
			if h.Symbol == o.Symbol {
				held += h.Quantity
			}
		}
		after := held
		newTotal := total
		if o.Side == model.SideBuy {
			after += o.Quantity
			newTotal = total.Add(orderValue)
		} else {
			after -= min(o.Quantity, held)
			newTotal = total.Sub(dec(o.Price).Mul(dec(float64(min(o.Quantity, held)))))
			if o.Quantity > held {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("sell quantity %d exceeds held quantity %d", o.Quantity, held))
			}
		}
		concentration := pct(dec(o.Price).Mul(dec(float64(after))), newTotal)
		res.Details["position_concentration"] = money2(concentration)
		if concentration.InexactFloat64() > limits.MaxPositionPct {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s would be %.2f%% of portfolio, limit %.2f%%",
				o.Symbol, concentration.InexactFloat64(), limits.MaxPositionPct))
		}
	}

	res.Passed = len(res.Errors) == 0
	return res
}
