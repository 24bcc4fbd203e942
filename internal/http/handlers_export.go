package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"kakeibo/internal/csvio"
)

// handleExport sends the period as a CSV attachment. ?kind=incomes exports
// incomes instead of expenses.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	var n int
	filename := csvio.ExportFilename(rng.Start, rng.End)
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "expenses":
		n, err = s.app.Exporter.ExportPeriod(r.Context(), &buf, rng.Start, rng.End)
	case "incomes":
		n, err = s.app.Exporter.ExportIncomes(r.Context(), &buf, rng.Start, rng.End)
		filename = csvio.IncomeExportFilename(rng.Start, rng.End)
	default:
		err = badRequest("kind must be expenses or incomes, got %q", kind)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("X-Row-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
