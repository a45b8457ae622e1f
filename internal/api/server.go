// Package api is the REST surface: a chi router mounted under the
// configured prefix, with trace IDs, access logging, Prometheus metrics,
// CORS and bearer/API-key authentication.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tradedesk/internal/alert"
	"tradedesk/internal/apikey"
	"tradedesk/internal/auth"
	"tradedesk/internal/gateway"
	"tradedesk/internal/market"
	"tradedesk/internal/metrics"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/report"
	"tradedesk/internal/settings"
	"tradedesk/internal/trading"
)

// Version is reported by / and /health.
const Version = "0.1.0"

// Deps are the services the router dispatches to. Hub, Metrics and Health
// may be nil.
type Deps struct {
	Auth      *auth.Service
	APIKeys   *apikey.Service
	Portfolio *portfolio.Service
	Market    *market.Service
	Trading   *trading.Service
	Alerts    *alert.Service
	Settings  *settings.Service
	Reports   *report.Service
	Support   *report.Support
	Hub       *gateway.Hub
	Metrics   *metrics.Metrics
	Health    http.Handler
}

// Config holds the router options.
type Config struct {
	Prefix      string
	CORSOrigins []string
}

// Server holds the handlers' dependencies.
type Server struct {
	auth       *auth.Service
	apiKeys    *apikey.Service
	portfolios *portfolio.Service
	market     *market.Service
	trading    *trading.Service
	alerts     *alert.Service
	settings   *settings.Service
	reports    *report.Service
	support    *report.Support
	hub        *gateway.Hub
	metrics    *metrics.Metrics
	health     http.Handler
}

// NewServer creates a Server from its dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		auth:       d.Auth,
		apiKeys:    d.APIKeys,
		portfolios: d.Portfolio,
		market:     d.Market,
		trading:    d.Trading,
		alerts:     d.Alerts,
		settings:   d.Settings,
		reports:    d.Reports,
		support:    d.Support,
		hub:        d.Hub,
		metrics:    d.Metrics,
		health:     d.Health,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors(cfg.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "TradeDesk API",
			"version": Version,
			"api":     cfg.Prefix,
		})
	})
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.hub != nil {
		ws := gateway.NewHandler(s.hub, s.WSAuthenticator, cfg.CORSOrigins)
		r.Method(http.MethodGet, "/ws", ws)
		r.With(s.requireUser).Get("/ws/missed", ws.Missed)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/"
	}
	r.Route(prefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		s.authRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			s.portfolioRoutes(r)
			s.marketRoutes(r)
			s.orderRoutes(r)
			s.alertRoutes(r)
			s.apiKeyRoutes(r)
			s.settingsRoutes(r)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		s.health.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": Version})
}
