package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/apikey"
)

func (s *Server) apiKeyRoutes(r chi.Router) {
	r.Route("/api-keys", func(r chi.Router) {
		r.Get("/", s.listAPIKeys)
		r.Get("/{keyID}", s.getAPIKey)
		r.Group(func(r chi.Router) {
			r.Use(requireBearer)
			r.Post("/", s.createAPIKey)
			r.Put("/{keyID}", s.updateAPIKey)
			r.Post("/{keyID}/revoke", s.revokeAPIKey)
			r.Delete("/{keyID}", s.deleteAPIKey)
		})
	})
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	ks, err := s.apiKeys.List(r.Context(), UserFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ks)
}

func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var in apikey.CreateInput
	if !decode(w, r, &in) {
		return
	}
	k, err := s.apiKeys.Create(r.Context(), UserFrom(r.Context()).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

func (s *Server) getAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "keyID")
	if !ok {
		return
	}
	k, err := s.apiKeys.Get(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) updateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "keyID")
	if !ok {
		return
	}
	var in apikey.UpdateInput
	if !decode(w, r, &in) {
		return
	}
	k, err := s.apiKeys.Update(r.Context(), UserFrom(r.Context()).ID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "keyID")
	if !ok {
		return
	}
	k, err := s.apiKeys.Revoke(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "keyID")
	if !ok {
		return
	}
	if err := s.apiKeys.Delete(r.Context(), UserFrom(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
