package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/portfolio"
)

func (s *Server) portfolioRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", s.listPortfolios)
		r.Post("/", s.createPortfolio)
		r.Put("/holdings/{holdingID}", s.updateHolding)
		r.Delete("/holdings/{holdingID}", s.deleteHolding)

		r.Route("/{portfolioID}", func(r chi.Router) {
			r.Get("/", s.getPortfolio)
			r.Put("/", s.updatePortfolio)
			r.Delete("/", s.deletePortfolio)
			r.Get("/holdings", s.listHoldings)
			r.Post("/holdings", s.addHolding)
			r.Put("/holdings/{holdingID}", s.updateHolding)
			r.Delete("/holdings/{holdingID}", s.deleteHolding)
			r.Get("/summary", s.portfolioSummary)
			r.Get("/risk", s.portfolioRisk)
			r.Get("/export.csv", s.exportHoldings)
			r.Get("/report.md", s.portfolioReport)
		})
	})
}

func (s *Server) listPortfolios(w http.ResponseWriter, r *http.Request) {
	ps, err := s.portfolios.List(r.Context(), UserFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) createPortfolio(w http.ResponseWriter, r *http.Request) {
	var in portfolio.PortfolioInput
	if !decode(w, r, &in) {
		return
	}
	p, err := s.portfolios.Create(r.Context(), UserFrom(r.Context()).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	p, err := s.portfolios.Get(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	var in portfolio.PortfolioInput
	if !decode(w, r, &in) {
		return
	}
	p, err := s.portfolios.Update(r.Context(), UserFrom(r.Context()).ID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	if err := s.portfolios.Delete(r.Context(), UserFrom(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Portfolio deleted successfully")
}

func (s *Server) listHoldings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	hs, err := s.portfolios.Holdings(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hs)
}

func (s *Server) addHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	var in portfolio.HoldingInput
	if !decode(w, r, &in) {
		return
	}
	h, err := s.portfolios.AddHolding(r.Context(), UserFrom(r.Context()).ID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

// holdingIDs reads the portfolio and holding ids from the path. When the
// route has no portfolio id it is resolved from the holding.
func (s *Server) holdingIDs(w http.ResponseWriter, r *http.Request) (pid, hid int64, ok bool) {
	if hid, ok = pathID(w, r, "holdingID"); !ok {
		return 0, 0, false
	}
	if chi.URLParam(r, "portfolioID") != "" {
		pid, ok = pathID(w, r, "portfolioID")
		return pid, hid, ok
	}
	pid, err := s.portfolios.HoldingPortfolio(r.Context(), UserFrom(r.Context()).ID, hid)
	if err != nil {
		writeError(w, r, err)
		return 0, 0, false
	}
	return pid, hid, true
}

func (s *Server) updateHolding(w http.ResponseWriter, r *http.Request) {
	pid, hid, ok := s.holdingIDs(w, r)
	if !ok {
		return
	}
	var in portfolio.HoldingInput
	if !decode(w, r, &in) {
		return
	}
	h, err := s.portfolios.UpdateHolding(r.Context(), UserFrom(r.Context()).ID, pid, hid, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) deleteHolding(w http.ResponseWriter, r *http.Request) {
	pid, hid, ok := s.holdingIDs(w, r)
	if !ok {
		return
	}
	if err := s.portfolios.DeleteHolding(r.Context(), UserFrom(r.Context()).ID, pid, hid); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Holding deleted successfully")
}

func (s *Server) portfolioSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	sum, err := s.portfolios.Summary(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) portfolioRisk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	days, ok := queryInt(w, r, "days", 90)
	if !ok {
		return
	}
	if days < 5 || days > 365 {
		writeDetail(w, http.StatusUnprocessableEntity, "days must be between 5 and 365")
		return
	}
	risk, err := s.portfolios.Risk(r.Context(), UserFrom(r.Context()).ID, id, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, risk)
}

func (s *Server) exportHoldings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.reports.HoldingsCSV(r.Context(), UserFrom(r.Context()).ID, id, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="portfolio-%d.csv"`, id))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) portfolioReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "portfolioID")
	if !ok {
		return
	}
	rep, err := s.reports.Portfolio(r.Context(), UserFrom(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rep.Markdown()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}
