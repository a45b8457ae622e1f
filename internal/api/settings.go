package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/report"
	"tradedesk/internal/settings"
)

func (s *Server) settingsRoutes(r chi.Router) {
	r.Get("/settings", s.getSettings)
	r.Put("/settings", s.updateSettings)
	r.Get("/support/tickets", s.listTickets)
	r.Post("/support/tickets", s.submitTicket)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	v, err := s.settings.Get(r.Context(), UserFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var in settings.Input
	if !decode(w, r, &in) {
		return
	}
	v, err := s.settings.Update(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.support.List(r.Context(), UserFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) submitTicket(w http.ResponseWriter, r *http.Request) {
	var in report.TicketInput
	if !decode(w, r, &in) {
		return
	}
	t, err := s.support.Submit(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
