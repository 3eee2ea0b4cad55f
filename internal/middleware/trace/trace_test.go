package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wydatki/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(log.New(log.Config{Level: slog.LevelInfo, Output: &buf}), func(*http.Request) string { return "198.51.100.1" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/expenses", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if rr.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("response header %q, want %q", rr.Header().Get(HeaderRequestID), seen)
	}
	out := buf.String()
	if !strings.Contains(out, "status_code=201") || !strings.Contains(out, "component=http") || !strings.Contains(out, "request_id="+seen) {
		t.Fatalf("unexpected log %q", out)
	}
	if got := m.GetMetrics(); got.TotalRequests != 1 || got.InFlight != 0 {
		t.Fatalf("metrics = %+v", got)
	}
}

func TestMiddlewareKeepsUpstreamRequestID(t *testing.T) {
	m := NewMiddleware(nil, nil)
	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(HeaderRequestID, "edge-42")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "edge-42" {
		t.Fatalf("request id = %q, want edge-42", seen)
	}

	r = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(HeaderRequestID, "has space")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen == "has space" {
		t.Fatal("invalid upstream id should be replaced")
	}
}

func TestResponseWriterFlushes(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}
	var _ http.Flusher = rw
	rw.Flush()
	if !rr.Flushed {
		t.Fatal("expected flush to reach the recorder")
	}
}
