package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tradedesk/internal/apikey"
	"tradedesk/internal/logger"
	"tradedesk/internal/model"
)

// API key scopes.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeTrade = "trade"
)

type ctxKey int

const (
	userKey ctxKey = iota
	apiKeyKey
)

// UserFrom returns the authenticated user of the request.
func UserFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

// requestID tags every request with a trace ID (the caller's X-Request-ID
// when present) and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = logger.NewTraceID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}

// observe writes the access log line and the HTTP metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http request", append(logger.LogWithTrace(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
		)...)
	})
}

// cors answers preflight requests and sets the allow headers for the
// configured origins. An empty list or "*" allows any origin, but only
// listed origins may send credentials.
func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				if allowed[origin] {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-Request-ID")
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// credential returns the API key or bearer token of the request.
func credential(r *http.Request) (value string, isKey bool) {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k, true
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		tok := strings.TrimSpace(h[7:])
		return tok, strings.HasPrefix(tok, "pk_")
	}
	return "", false
}

// authenticate resolves a bearer JWT or API key to an active user.
func (s *Server) authenticate(ctx context.Context, value string, isKey bool) (*model.User, *model.APIKey, error) {
	if isKey {
		if s.apiKeys == nil {
			return nil, nil, model.E(model.ErrUnauthorized, "Invalid API key")
		}
		return s.apiKeys.Authenticate(ctx, value)
	}
	u, _, err := s.auth.Authenticate(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	if !u.IsActive {
		return nil, nil, model.E(model.ErrForbidden, "Inactive user")
	}
	return u, nil, nil
}

// WSAuthenticator adapts the server's credential check for the WebSocket
// handler, which receives the token as a query parameter.
func (s *Server) WSAuthenticator(ctx context.Context, token string) (*model.User, error) {
	u, _, err := s.authenticate(ctx, token, strings.HasPrefix(token, "pk_"))
	return u, err
}

func requiredScope(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return ScopeRead
	}
	if strings.Contains(r.URL.Path, "/orders") {
		return ScopeTrade
	}
	return ScopeWrite
}

// requireUser rejects requests without valid credentials. API keys must
// carry the scope the request needs.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, isKey := credential(r)
		if value == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		u, k, err := s.authenticate(r.Context(), value, isKey)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if k != nil && !apikey.HasScope(k, requiredScope(r)) {
			writeDetail(w, http.StatusForbidden, "API key lacks the "+requiredScope(r)+" scope")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, u)
		if k != nil {
			ctx = context.WithValue(ctx, apiKeyKey, k)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireBearer runs after requireUser and turns away requests made with an
// API key. Managing keys and two-factor settings needs a signed-in session,
// so a key can never widen its own scopes.
func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Value(apiKeyKey).(*model.APIKey); ok {
			writeDetail(w, http.StatusForbidden, "This action requires a bearer token, not an API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
