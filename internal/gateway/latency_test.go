package gateway

import (
	"math"
	"testing"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	p50, p95, p99 := lt.Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker: expected (0,0,0), got (%f,%f,%f)", p50, p95, p99)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(42.5)

	p50, p95, p99 := lt.Percentiles()
	if p50 != 42.5 || p95 != 42.5 || p99 != 42.5 {
		t.Errorf("got (%f,%f,%f), want all 42.5", p50, p95, p99)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)
	// 1..100 in reverse order
	for i := 100; i >= 1; i-- {
		lt.Record(float64(i))
	}

	p50, p95, p99 := lt.Percentiles()
	// rank = p*(n-1): 49.5 -> 50.5, 94.05 -> 95.05, 98.01 -> 99.01
	for _, c := range []struct {
		name      string
		got, want float64
	}{{"p50", p50, 50.5}, {"p95", p95, 95.05}, {"p99", p99, 99.01}} {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s: got %f, want %f", c.name, c.got, c.want)
		}
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 1; i <= 20; i++ {
		lt.Record(float64(i))
	}
	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10", lt.Count())
	}

	// buffer holds 11..20
	p50, _, _ := lt.Percentiles()
	if math.Abs(p50-15.5) > 1e-9 {
		t.Errorf("p50 after wraparound: got %f, want 15.5", p50)
	}
}
