package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"kakeibo/internal/core"
)

// maxBodyBytes bounds JSON and CSV request bodies.
const maxBodyBytes = 8 << 20

// errBadRequest marks malformed input that never reached a service.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads one JSON object from the body into v. Unknown fields are
// rejected so that typos in patch bodies do not silently do nothing.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("read body: %w", err)
		}
		return badRequest("invalid JSON: %v", err)
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return nil
}

// DateRange is the start/end pair shared by period queries.
type DateRange struct {
	Start string
	End   string
}

// parseRange reads ?start=&end= as inclusive YYYY-MM-DD bounds.
func parseRange(r *http.Request) (DateRange, error) {
	q := r.URL.Query()
	rng := DateRange{Start: strings.TrimSpace(q.Get("start")), End: strings.TrimSpace(q.Get("end"))}
	if rng.Start == "" || rng.End == "" {
		return rng, badRequest("start and end are required")
	}
	return rng, nil
}

// parseMonth reads ?month=YYYY-MM, falling back to def when absent.
func parseMonth(r *http.Request, def core.YearMonth) (core.YearMonth, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return def, nil
	}
	return core.ParseYearMonth(v)
}

// parseOptionalBool reads a boolean query parameter; absent means nil.
func parseOptionalBool(r *http.Request, key string) (*bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, badRequest("%s must be true or false", key)
	}
	return &b, nil
}

// parseLimit reads ?limit=, returning def when absent.
func parseLimit(r *http.Request, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("limit must be a non-negative integer")
	}
	return n, nil
}
