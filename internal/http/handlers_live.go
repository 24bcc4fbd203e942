package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

// sseKeepAlive is how often an idle stream gets a comment line so proxies
// keep it open.
const sseKeepAlive = 30 * time.Second

// handleLiveExpenses streams the expenses of ?date= as server-sent events:
// one "expenses" event now and another after every committed change.
func (s *Server) handleLiveExpenses(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if err := core.ValidateDay(date); err != nil {
		writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}

	ctx := r.Context()
	results := s.app.Expenses.WatchDaily(ctx, date)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != nil {
				log.FromContext(ctx).WarnContext(ctx, "Live query failed", log.FieldDate, date, log.FieldError, res.Err)
				_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", mustJSON(ErrorBody{Error: "query failed"}))
				flusher.Flush()
				continue
			}
			_, _ = fmt.Fprintf(w, "event: expenses\ndata: %s\n\n", mustJSON(nonNil(res.Value)))
			flusher.Flush()
		}
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`null`)
	}
	return b
}
