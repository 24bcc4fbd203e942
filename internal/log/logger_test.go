package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, ComponentLedger)

	logger.InfoContext(context.Background(), "Expense created", FieldID, "abc")
	logger.WithComponent(ComponentImport).Warn("Unmapped label", FieldLabel, "外食")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, ComponentLedger, got[0][FieldComponent])
	assert.Equal(t, "abc", got[0][FieldID])
	assert.Equal(t, ComponentImport, got[1][FieldComponent])
	assert.Equal(t, "WARN", got[1]["level"])
	assert.Equal(t, ComponentLedger, logger.Component())
}

func TestNewDefaultsComponent(t *testing.T) {
	assert.Equal(t, ComponentApp, New(Config{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)}).Component())
	assert.Equal(t, ComponentApp, DefaultConfig().Component)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithOperation(OpImport).
		WithError(assert.AnError).
		WithHTTPRequest(http.MethodGet, "/api/expenses", "").
		WithHTTPResponse(http.StatusOK, 3)

	assert.Equal(t, OpImport, f[FieldOperation])
	assert.Equal(t, assert.AnError.Error(), f[FieldError])
	assert.NotContains(t, f, FieldQuery)
	assert.Len(t, f.ToSlice(), len(f)*2)
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"ok", http.StatusOK, "INFO"},
		{"client error", http.StatusNotFound, "WARN"},
		{"server error", http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := jsonLogger(&buf, ComponentHTTP)
			h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary?start=2024-05-01", nil))

			got := lines(t, &buf)
			require.Len(t, got, 1)
			assert.Equal(t, tt.level, got[0]["level"])
			assert.Equal(t, ComponentHTTP, got[0][FieldComponent])
			assert.Equal(t, "/api/summary", got[0][FieldPath])
			assert.Equal(t, "start=2024-05-01", got[0][FieldQuery])
			assert.EqualValues(t, tt.status, got[0][FieldStatusCode])
		})
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	logger := Discard()
	var seen *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Same(t, logger, seen)
	assert.NotNil(t, FromContext(context.Background()))
}
