package gateway

import (
	"slices"
	"sync"
)

// LatencyTracker keeps the last N quote delivery lags (quote timestamp to
// fan-out, in milliseconds) and reports percentiles for the market channel.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewLatencyTracker creates a tracker that holds the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{samples: make([]float64, 0, capacity)}
}

// Record adds a lag sample in milliseconds.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if !lt.full {
		lt.samples = append(lt.samples, ms)
		lt.full = len(lt.samples) == cap(lt.samples)
		return
	}
	lt.samples[lt.next] = ms
	lt.next = (lt.next + 1) % len(lt.samples)
}

// Count returns the number of samples held.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.samples)
}

// Percentiles returns p50, p95 and p99, or zeros before any sample.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	sorted := slices.Clone(lt.samples)
	lt.mu.Unlock()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	slices.Sort(sorted)
	return percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

// percentile linearly interpolates the p-th quantile of sorted data.
func percentile(sorted []float64, p float64) float64 {
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}
