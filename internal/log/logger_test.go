package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewJSONLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentLedger, Output: &buf})

	logger.InfoContext(context.Background(), "Expense created", FieldOwnerID, "u1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["component"] != "ledger" || rec["owner_id"] != "u1" || rec["msg"] != "Expense created" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})
	logger.DebugContext(context.Background(), "hidden")
	logger.InfoContext(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	logger.WarnContext(context.Background(), "shown")
	if !strings.Contains(buf.String(), "component=app") {
		t.Fatalf("expected default component, got %q", buf.String())
	}
}

func TestContextLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf, Component: ComponentHTTP})

	r := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	ctx := NewContext(r.Context(), logger.With(FieldRequestID, "req-1"))
	FromContext(ctx).InfoContext(ctx, "inside")
	LogHTTP(ctx, FromContext(ctx), r, http.StatusNotFound, 3, "127.0.0.1")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-1") || !strings.Contains(out, "level=WARN") || !strings.Contains(out, "status_code=404") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background()).Component() != ComponentApp {
		t.Fatal("expected fallback logger with app component")
	}
}
