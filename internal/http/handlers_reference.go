package http

import (
	"context"
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

// refResource is the part of a reference service the generic handlers need.
type refResource[T any] interface {
	List(ctx context.Context) ([]T, error)
	ListActive(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Delete(ctx context.Context, id string) (services.DeleteOutcome, error)
	Move(ctx context.Context, id string, dir services.Direction) error
}

func (s *Server) referenceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/categories", listRefs[core.Category](s.app.Categories))
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PATCH /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", deleteRef[core.Category](s.app.Categories))
	mux.HandleFunc("POST /api/categories/{id}/move", moveRef[core.Category](s.app.Categories))

	mux.HandleFunc("GET /api/payment-methods", listRefs[core.PaymentMethod](s.app.PaymentMethods))
	mux.HandleFunc("GET /api/payment-methods/default", s.handleDefaultPaymentMethod)
	mux.HandleFunc("POST /api/payment-methods", s.handleCreatePaymentMethod)
	mux.HandleFunc("PATCH /api/payment-methods/{id}", s.handleUpdatePaymentMethod)
	mux.HandleFunc("DELETE /api/payment-methods/{id}", deleteRef[core.PaymentMethod](s.app.PaymentMethods))
	mux.HandleFunc("POST /api/payment-methods/{id}/move", moveRef[core.PaymentMethod](s.app.PaymentMethods))

	mux.HandleFunc("GET /api/income-sources", listRefs[core.IncomeSource](s.app.IncomeSources))
	mux.HandleFunc("POST /api/income-sources", s.handleCreateIncomeSource)
	mux.HandleFunc("PATCH /api/income-sources/{id}", s.handleUpdateIncomeSource)
	mux.HandleFunc("DELETE /api/income-sources/{id}", deleteRef[core.IncomeSource](s.app.IncomeSources))
	mux.HandleFunc("POST /api/income-sources/{id}/move", moveRef[core.IncomeSource](s.app.IncomeSources))
}

// listRefs lists every row, or only the selectable ones with ?active=true.
func listRefs[T any](ref refResource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := parseOptionalBool(r, "active")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var list []T
		if active != nil && *active {
			list, err = ref.ListActive(r.Context())
		} else {
			list, err = ref.List(r.Context())
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
	}
}

// DeleteResponse tells the caller whether the row is gone or only hidden.
type DeleteResponse struct {
	ID      string                 `json:"id"`
	Outcome services.DeleteOutcome `json:"outcome"`
}

func deleteRef[T any](ref refResource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		outcome, err := ref.Delete(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, DeleteResponse{ID: id, Outcome: outcome})
	}
}

// moveRef swaps the row with its neighbour per ?dir=up|down and returns the
// row as stored afterwards.
func moveRef[T any](ref refResource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dir, err := services.ParseDirection(r.URL.Query().Get("dir"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id := r.PathValue("id")
		if err := ref.Move(r.Context(), id, dir); err != nil {
			writeError(w, r, err)
			return
		}
		row, err := ref.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

type categoryRequest struct {
	MajorName string `json:"major_name"`
	MinorName string `json:"minor_name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.app.Categories.Add(r.Context(), sanitizeInput(req.MajorName), sanitizeInput(req.MinorName))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var p services.CategoryPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.app.Categories.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pm, err := s.app.PaymentMethods.Add(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

func (s *Server) handleUpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var p services.NamedPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	pm, err := s.app.PaymentMethods.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pm)
}

func (s *Server) handleDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	pm, err := s.app.PaymentMethods.Default(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pm)
}

func (s *Server) handleCreateIncomeSource(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	src, err := s.app.IncomeSources.Add(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleUpdateIncomeSource(w http.ResponseWriter, r *http.Request) {
	var p services.NamedPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	src, err := s.app.IncomeSources.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}
