package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/model"
	"tradedesk/internal/trading"
)

func (s *Server) orderRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.createOrder)
		r.Get("/", s.listOrders)
		r.Get("/pending", s.pendingOrders)
		r.Get("/short-positions", s.shortPositions)
		r.Get("/executions", s.recentExecutions)
		r.Get("/export.csv", s.exportOrders)
		r.Post("/validate", s.validateOrder)
		r.Post("/risk-check", s.riskCheck)

		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", s.getOrder)
			r.Put("/", s.modifyOrder)
			r.Delete("/", s.cancelOrder)
			r.Get("/executions", s.orderExecutions)
		})
	})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in trading.OrderInput
	if !decode(w, r, &in) {
		return
	}
	o, err := s.trading.Create(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 1)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size", 0)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := model.OrderFilter{
		Status:   model.OrderStatus(strings.ToLower(q.Get("status"))),
		Symbol:   strings.ToUpper(strings.TrimSpace(q.Get("symbol"))),
		Page:     page,
		PageSize: size,
	}
	res, err := s.trading.List(r.Context(), UserFrom(r.Context()).ID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) pendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.trading.Pending(r.Context(), UserFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// shortPositions always reports none: paper trading does not open shorts.
func (s *Server) shortPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"positions": []any{}, "total": 0})
}

func (s *Server) recentExecutions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	es, err := s.trading.RecentExecutions(r.Context(), UserFrom(r.Context()).ID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if es == nil {
		es = []model.Execution{}
	}
	writeJSON(w, http.StatusOK, es)
}

func (s *Server) exportOrders(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(strings.ToLower(r.URL.Query().Get("status")))
	var buf bytes.Buffer
	if err := s.reports.OrdersCSV(r.Context(), UserFrom(r.Context()).ID, status, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.csv"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) validateOrder(w http.ResponseWriter, r *http.Request) {
	var in trading.OrderInput
	if !decode(w, r, &in) {
		return
	}
	res, err := s.trading.Validate(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) riskCheck(w http.ResponseWriter, r *http.Request) {
	var in trading.OrderInput
	if !decode(w, r, &in) {
		return
	}
	res, err := s.trading.RiskCheck(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	o, err := s.trading.Get(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) modifyOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var in trading.OrderUpdate
	if !decode(w, r, &in) {
		return
	}
	o, err := s.trading.Modify(r.Context(), UserFrom(r.Context()), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	o, err := s.trading.Cancel(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) orderExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	es, err := s.trading.Executions(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if es == nil {
		es = []model.Execution{}
	}
	writeJSON(w, http.StatusOK, es)
}
