// Package http serves the local JSON API that UI collaborators use to read
// and write the ledger.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kakeibo/internal/backend"
	"kakeibo/internal/log"
)

// writesPerMinute bounds mutating requests per client.
const writesPerMinute = 120

type Server struct {
	http.Server
	app         *backend.App
	logger      *log.Logger
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, app *backend.App, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		app:         app,
		logger:      logger,
		rateLimiter: newRateLimiter(writesPerMinute),
		metrics:     &securityMetrics{},
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.withSecurityHeaders(handler)
	handler = log.RequestLogger(logger)(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/incomes", s.handleListIncomes)
	mux.HandleFunc("POST /api/incomes", s.handleCreateIncome)
	mux.HandleFunc("GET /api/incomes/{id}", s.handleGetIncome)
	mux.HandleFunc("PATCH /api/incomes/{id}", s.handleUpdateIncome)
	mux.HandleFunc("DELETE /api/incomes/{id}", s.handleDeleteIncome)

	mux.HandleFunc("GET /api/search", s.handleSearch)

	s.referenceRoutes(mux)
	s.fixedCostRoutes(mux)

	mux.HandleFunc("POST /api/imports", s.handleCreateImport)
	mux.HandleFunc("GET /api/imports/{id}", s.handleGetImport)
	mux.HandleFunc("PUT /api/imports/{id}/mappings", s.handleImportMappings)
	mux.HandleFunc("POST /api/imports/{id}/confirm", s.handleConfirmImport)
	mux.HandleFunc("DELETE /api/imports/{id}", s.handleCancelImport)
	mux.HandleFunc("GET /api/category-suggestions", s.handleSuggestCategories)

	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/live/expenses", s.handleLiveExpenses)
}

// withSecurityHeaders stamps a request ID, rate-limits mutating requests and
// sets the usual hardening headers.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := generateRequestID()
		logger := log.FromContext(r.Context()).With(log.FieldRequestID, requestID)
		r = r.WithContext(context.WithValue(r.Context(), log.LoggerContextKey, logger))

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			clientIP := extractClientIP(r)
			if !s.rateLimiter.allow(clientIP, s.metrics) {
				logger.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: "rate limit exceeded"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the database answers and reports a few runtime facts.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Store.Ping(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Readiness check failed", log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"live_subscribers":  s.app.Store.Hub().Subscribers(),
		"scheduler_running": s.app.Scheduler.IsRunning(),
		"security":          s.metrics.snapshot(),
	})
}
