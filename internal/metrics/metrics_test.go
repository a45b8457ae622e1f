package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.OrdersFilled.Inc()
	a.SetBreakerState(1)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"tradedesk_orders_filled_total 1",
		"tradedesk_redis_circuit_breaker_state 1",
		"tradedesk_redis_circuit_breaker_trips_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if strings.Contains(rec.Body.String(), "tradedesk_orders_filled_total 1") {
		t.Error("second registry shares counters with the first")
	}
}

func TestHealthStatus(t *testing.T) {
	cases := []struct {
		name       string
		redis      Pinger
		sqlite     Pinger
		wantStatus string
		wantCode   int
	}{
		{"healthy without redis", nil, fakePinger{}, "healthy", http.StatusOK},
		{"redis down", fakePinger{errors.New("down")}, fakePinger{}, "degraded", http.StatusOK},
		{"sqlite down", nil, fakePinger{errors.New("locked")}, "unhealthy", http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		h := NewHealthStatus("test")
		ctx, cancel := context.WithCancel(context.Background())
		h.StartLivenessChecker(ctx, c.redis, c.sqlite, 1<<40)
		cancel()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != c.wantCode {
			t.Errorf("%s: code = %d, want %d", c.name, rec.Code, c.wantCode)
		}
		var got struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("%s: decode: %v", c.name, err)
		}
		if got.Status != c.wantStatus {
			t.Errorf("%s: status = %q, want %q", c.name, got.Status, c.wantStatus)
		}
	}
}
