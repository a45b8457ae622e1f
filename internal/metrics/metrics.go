package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tradedesk server. Every
// collector is registered on its own registry so tests can build many.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route

	OrdersPlaced    *prometheus.CounterVec // labels: type, side
	OrdersFilled    prometheus.Counter
	OrdersRejected  prometheus.Counter
	AlertsTriggered *prometheus.CounterVec // labels: condition

	QuoteFetches     *prometheus.CounterVec // labels: source=cache|provider|store
	QuoteFetchErrors *prometheus.CounterVec // labels: provider

	WSClients   prometheus.Gauge
	WSDropped   prometheus.Counter
	Broadcasted prometheus.Counter

	// Circuit breaker (0=closed, 1=open, 2=half-open)
	RedisCircuitBreakerState prometheus.Gauge
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	JobRuns *prometheus.CounterVec // labels: job, result=ok|error
	JobDur  *prometheus.HistogramVec

	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics builds and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradedesk_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_orders_placed_total",
			Help: "Orders accepted (by type and side)",
		}, []string{"type", "side"}),
		OrdersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_orders_filled_total",
			Help: "Orders filled by the paper executor",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_orders_rejected_total",
			Help: "Orders rejected by validation or risk checks",
		}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_alerts_triggered_total",
			Help: "Price alerts triggered (by condition)",
		}, []string{"condition"}),

		QuoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_quote_fetches_total",
			Help: "Quotes served, by where they came from",
		}, []string{"source"}),
		QuoteFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_quote_fetch_errors_total",
			Help: "Quote provider failures",
		}, []string{"provider"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_ws_dropped_messages_total",
			Help: "Messages dropped because a client send buffer was full",
		}),
		Broadcasted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_ws_broadcast_total",
			Help: "Messages broadcast to WebSocket clients",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_redis_buffered_writes_total",
			Help: "Quote publishes held locally while the circuit breaker was open",
		}),

		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_job_runs_total",
			Help: "Scheduled job runs by job and result",
		}, []string{"job", "result"}),
		JobDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradedesk_job_duration_seconds",
			Help:    "Scheduled job duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_market_state",
			Help: "US equity session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.OrdersPlaced,
		m.OrdersFilled,
		m.OrdersRejected,
		m.AlertsTriggered,
		m.QuoteFetches,
		m.QuoteFetchErrors,
		m.WSClients,
		m.WSDropped,
		m.Broadcasted,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.JobRuns,
		m.JobDur,
		m.MarketState,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// SetBreakerState records a circuit breaker transition. to is 0, 1 or 2.
func (m *Metrics) SetBreakerState(to int) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// Pinger is anything with a liveness check (SQLite store, Redis client).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastQuoteTime  time.Time `json:"last_quote_time"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
	Version         string    `json:"version"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(version string) *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		Version:   version,
	}
}

func (h *HealthStatus) SetLastQuoteTime(t time.Time) {
	h.mu.Lock()
	h.LastQuoteTime = t
	h.mu.Unlock()
}

// ping runs p.Ping and reports success and latency in milliseconds.
func ping(ctx context.Context, p Pinger) (bool, float64) {
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, p Pinger) {
	ok, ms := ping(ctx, p)
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = ok
	h.RedisLatencyMs = ms
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, p Pinger) {
	ok, ms := ping(ctx, p)
	h.mu.Lock()
	h.SQLiteOK = ok
	h.SQLiteLatencyMs = ms
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs an immediate check and then repeats it every
// interval until ctx is done. rdb may be nil when Redis is not configured.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb, sqlDB Pinger, interval time.Duration) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(checkCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(checkCtx, sqlDB)
		}
	}
	check()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}

	quoteAge := ""
	if !h.LastQuoteTime.IsZero() {
		quoteAge = time.Since(h.LastQuoteTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Version         string  `json:"version"`
		Uptime          string  `json:"uptime"`
		QuoteAge        string  `json:"quote_age"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Version:         h.Version,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		QuoteAge:        quoteAge,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
