package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/alert"
)

func (s *Server) alertRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", s.listAlerts)
		r.Post("/", s.createAlert)
		r.Get("/{alertID}", s.getAlert)
		r.Put("/{alertID}", s.updateAlert)
		r.Delete("/{alertID}", s.deleteAlert)
	})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	as, err := s.alerts.List(r.Context(), UserFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (s *Server) createAlert(w http.ResponseWriter, r *http.Request) {
	var in alert.Input
	if !decode(w, r, &in) {
		return
	}
	a, err := s.alerts.Create(r.Context(), UserFrom(r.Context()).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "alertID")
	if !ok {
		return
	}
	a, err := s.alerts.Get(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) updateAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "alertID")
	if !ok {
		return
	}
	var in alert.Update
	if !decode(w, r, &in) {
		return
	}
	a, err := s.alerts.Update(r.Context(), UserFrom(r.Context()).ID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "alertID")
	if !ok {
		return
	}
	if err := s.alerts.Delete(r.Context(), UserFrom(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
