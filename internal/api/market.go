package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/market"
)

func (s *Server) marketRoutes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Get("/status", s.marketStatus)
		r.Get("/snapshot", s.marketSnapshot)
		r.Get("/stocks/search", s.searchStocks)
		r.Get("/stock/{symbol}", s.getStock)
		r.Get("/stock/{symbol}/history", s.stockHistory)
		r.Get("/stock/{symbol}/indicators", s.stockIndicators)

		r.Get("/watchlist", s.listWatchlist)
		r.Post("/watchlist", s.addWatchlist)
		r.Delete("/watchlist/{symbol}", s.removeWatchlist)

		r.Get("/indices", s.listIndices)
		r.Post("/indices", s.createIndex)
		r.Put("/indices/{symbol}", s.updateIndex)
	})
	r.Post("/market-data/{symbol}", s.ingestQuote)
}

func (s *Server) marketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Status())
}

func (s *Server) marketSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.market.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) searchStocks(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 10)
	if !ok {
		return
	}
	hits, err := s.market.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) getStock(w http.ResponseWriter, r *http.Request) {
	info, err := s.market.Stock(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) stockHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	h, err := s.market.History(r.Context(), chi.URLParam(r, "symbol"), r.URL.Query().Get("timeframe"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) stockIndicators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ind, err := s.market.Indicators(r.Context(), chi.URLParam(r, "symbol"), q.Get("timeframe"), q.Get("indicators"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

func (s *Server) listWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := s.market.Watchlist(r.Context(), UserFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) addWatchlist(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if !decode(w, r, &in) {
		return
	}
	item, err := s.market.AddWatchlist(r.Context(), UserFrom(r.Context()).ID, in.Symbol)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) removeWatchlist(w http.ResponseWriter, r *http.Request) {
	if err := s.market.RemoveWatchlist(r.Context(), UserFrom(r.Context()).ID, chi.URLParam(r, "symbol")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listIndices(w http.ResponseWriter, r *http.Request) {
	idx, err := s.market.Indices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

func (s *Server) createIndex(w http.ResponseWriter, r *http.Request) {
	var in market.IndexInput
	if !decode(w, r, &in) {
		return
	}
	idx, err := s.market.CreateIndex(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idx)
}

func (s *Server) updateIndex(w http.ResponseWriter, r *http.Request) {
	var in market.IndexInput
	if !decode(w, r, &in) {
		return
	}
	idx, err := s.market.UpdateIndex(r.Context(), chi.URLParam(r, "symbol"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

func (s *Server) ingestQuote(w http.ResponseWriter, r *http.Request) {
	var in market.IngestInput
	if !decode(w, r, &in) {
		return
	}
	q, err := s.market.Ingest(r.Context(), chi.URLParam(r, "symbol"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}
