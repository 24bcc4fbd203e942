package http

import (
	"net/http"
	"strings"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

// handleListExpenses serves ?date= (one day, newest first) or ?start=&end=
// (a period, optionally filtered).
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if date := strings.TrimSpace(q.Get("date")); date != "" {
		list, err := s.app.Expenses.Daily(r.Context(), date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
		return
	}

	rng, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fixed, err := parseOptionalBool(r, "fixed")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := services.ExpenseFilter{
		CategoryID:      q.Get("category_id"),
		PaymentMethodID: q.Get("payment_method_id"),
		Rating:          core.Rating(q.Get("rating")),
		Fixed:           fixed,
	}
	if !filter.Rating.IsValid() {
		writeError(w, r, core.ErrInvalidRating)
		return
	}
	list, err := s.app.Expenses.Search(r.Context(), rng.Start, rng.End, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in services.ExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Description = sanitizeInput(in.Description)
	in.Memo = sanitizeInput(in.Memo)
	exp, err := s.app.Expenses.Add(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	exp, err := s.app.Expenses.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var p services.ExpensePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	exp, err := s.app.Expenses.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Expenses.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if date := strings.TrimSpace(q.Get("date")); date != "" {
		list, err := s.app.Incomes.Daily(r.Context(), date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
		return
	}

	rng, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.app.Incomes.Search(r.Context(), rng.Start, rng.End, q.Get("source_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var in services.IncomeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Memo = sanitizeInput(in.Memo)
	inc, err := s.app.Incomes.Add(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (s *Server) handleGetIncome(w http.ResponseWriter, r *http.Request) {
	inc, err := s.app.Incomes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var p services.IncomePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	inc, err := s.app.Incomes.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Incomes.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch runs the combined search: ?kind=expense|income plus the range
// and the filters of that kind.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	fixed, err := parseOptionalBool(r, "fixed")
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind := core.RecordKind(q.Get("kind"))
	if kind == "" {
		kind = core.KindExpense
	}
	if kind != core.KindExpense && kind != core.KindIncome {
		writeError(w, r, badRequest("kind must be %s or %s", core.KindExpense, core.KindIncome))
		return
	}
	res, err := services.Search(r.Context(), s.app.Expenses, s.app.Incomes, services.SearchQuery{
		Kind:  kind,
		Start: rng.Start,
		End:   rng.End,
		Expense: services.ExpenseFilter{
			CategoryID:      q.Get("category_id"),
			PaymentMethodID: q.Get("payment_method_id"),
			Rating:          core.Rating(q.Get("rating")),
			Fixed:           fixed,
		},
		SourceID: q.Get("source_id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
