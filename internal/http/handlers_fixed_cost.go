package http

import (
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

// fixedCostRoutes has no move route: fixed costs list oldest first.
func (s *Server) fixedCostRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/fixed-costs", listRefs[core.FixedCost](s.app.FixedCosts))
	mux.HandleFunc("POST /api/fixed-costs", s.handleCreateFixedCost)
	mux.HandleFunc("PATCH /api/fixed-costs/{id}", s.handleUpdateFixedCost)
	mux.HandleFunc("DELETE /api/fixed-costs/{id}", deleteRef[core.FixedCost](s.app.FixedCosts))
	mux.HandleFunc("POST /api/fixed-costs/post", s.handlePostFixedCosts)
	mux.HandleFunc("GET /api/fixed-costs/posted", s.handlePostedFixedCosts)
}

func (s *Server) handleCreateFixedCost(w http.ResponseWriter, r *http.Request) {
	var in services.FixedCostInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Name = sanitizeInput(in.Name)
	fc, err := s.app.FixedCosts.Add(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fc)
}

func (s *Server) handleUpdateFixedCost(w http.ResponseWriter, r *http.Request) {
	var p services.FixedCostPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	fc, err := s.app.FixedCosts.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// PostResponse reports a manual posting run.
type PostResponse struct {
	Month  core.YearMonth `json:"month"`
	Posted int            `json:"posted"`
}

// handlePostFixedCosts posts ?month= (default: the current month). Posting
// a month that already has auto-posted rows creates nothing.
func (s *Server) handlePostFixedCosts(w http.ResponseWriter, r *http.Request) {
	ym, err := parseMonth(r, s.app.Poster.CurrentMonth())
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.app.Poster.PostForMonth(r.Context(), ym)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PostResponse{Month: ym, Posted: n})
}

// PostedResponse tells whether a month already has auto-posted expenses.
type PostedResponse struct {
	Month  core.YearMonth `json:"month"`
	Posted bool           `json:"posted"`
}

func (s *Server) handlePostedFixedCosts(w http.ResponseWriter, r *http.Request) {
	ym, err := parseMonth(r, s.app.Poster.CurrentMonth())
	if err != nil {
		writeError(w, r, err)
		return
	}
	posted, err := s.app.Poster.HasPostedForMonth(r.Context(), ym)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PostedResponse{Month: ym, Posted: posted})
}
