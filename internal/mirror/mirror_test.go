package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"wydatki/internal/core"
	"wydatki/internal/ledger"
	"wydatki/internal/storage/memory"
)

var at = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func TestRows(t *testing.T) {
	rows := Rows([]core.ExpenseRecord{{
		ID: "1", OwnerID: "u1", CategoryName: "Inne", CategoryIcon: "ellipsis-h",
		Amount: core.MustParseAmount("23.5"), OccurredAt: at,
	}})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	want := []any{"2024-05-15T12:00:00.000Z", "Inne", "23.50", "ellipsis-h"}
	for i := range want {
		if rows[0][i] != HeaderRow[i] || rows[1][i] != want[i] {
			t.Fatalf("rows = %v", rows)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("wydatki-o'neil"); got != "'wydatki-o''neil'" {
		t.Fatalf("quoteSheet = %q", got)
	}
}

func TestCredentialsLoad(t *testing.T) {
	if _, err := (Credentials{}).load(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if b, err := (Credentials{JSON: `{"type":"service_account"}`, File: "/nope"}).load(); err != nil || !strings.Contains(string(b), "service_account") {
		t.Fatalf("JSON should win over file: %v", err)
	}
	if _, err := (Credentials{File: "/definitely/missing.json"}).load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// fakeSheetsAPI records calls made by the Sheets client.
type fakeSheetsAPI struct {
	mu      sync.Mutex
	titles  []string
	added   []string
	cleared []string
	written [][]any
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/spreadsheets/sheet-id"):
		sheets := []map[string]any{}
		for _, title := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-id", "sheets": sheets})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.added = append(f.added, rq.AddSheet.Properties.Title)
				f.titles = append(f.titles, rq.AddSheet.Properties.Title)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-id"})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":clear"):
		f.cleared = append(f.cleared, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-id"})
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.written = vr.Values
		_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-id"})
	default:
		http.Error(w, `{"error":{"code":404,"message":"unexpected call"}}`, http.StatusNotFound)
	}
}

func TestSheetsWriterAgainstFakeAPI(t *testing.T) {
	api := &fakeSheetsAPI{titles: []string{"Sheet1"}}
	ts := httptest.NewServer(api)
	defer ts.Close()

	ctx := context.Background()
	svc, err := gsheet.NewService(ctx,
		goption.WithEndpoint(ts.URL+"/"),
		goption.WithHTTPClient(ts.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	w := NewSheetsWriterWithService(svc, "sheet-id", "wydatki-")

	records := []core.ExpenseRecord{
		{ID: "2", OwnerID: "u1", CategoryName: "Zdrowie", CategoryIcon: "medkit", Amount: core.MustParseAmount("10"), OccurredAt: at},
		{ID: "1", OwnerID: "u1", CategoryName: "Inne", CategoryIcon: "ellipsis-h", Amount: core.MustParseAmount("5.5"), OccurredAt: at.Add(-time.Hour)},
	}
	for i := 0; i < 2; i++ {
		if err := w.WriteSheet(ctx, "u1", records); err != nil {
			t.Fatalf("WriteSheet #%d: %v", i+1, err)
		}
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.added) != 1 || api.added[0] != "wydatki-u1" {
		t.Fatalf("added sheets = %v, want one wydatki-u1", api.added)
	}
	if len(api.cleared) != 2 {
		t.Fatalf("cleared %d times, want 2", len(api.cleared))
	}
	if len(api.written) != 3 || api.written[0][0] != "data" || api.written[1][1] != "Zdrowie" || api.written[2][2] != "5.50" {
		t.Fatalf("written = %v", api.written)
	}
}

// recordingWriter captures every mirrored delivery.
type recordingWriter struct {
	mu     sync.Mutex
	writes map[string][][]core.ExpenseRecord
	fail   bool
}

func (w *recordingWriter) WriteSheet(ctx context.Context, ownerID string, records []core.ExpenseRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = map[string][][]core.ExpenseRecord{}
	}
	w.writes[ownerID] = append(w.writes[ownerID], records)
	if w.fail {
		return errors.New("sheets down")
	}
	return nil
}

func (w *recordingWriter) last(ownerID string) ([]core.ExpenseRecord, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws := w.writes[ownerID]
	if len(ws) == 0 {
		return nil, 0
	}
	return ws[len(ws)-1], len(ws)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunnerMirrorsEachOwner(t *testing.T) {
	store := memory.New()
	svc := ledger.NewService(store, func() time.Time { return at })
	writer := &recordingWriter{}
	runner := NewRunner(ledger.NewRecordStore(store), writer, []string{"u1", "u2"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// both owners get their initial, empty sheet
	waitFor(t, func() bool {
		_, n1 := writer.last("u1")
		_, n2 := writer.last("u2")
		return n1 > 0 && n2 > 0
	})

	if _, err := svc.CreateFromCatalog(ctx, "u1", "Inne", "12"); err != nil {
		t.Fatalf("create: %v", err)
	}
	waitFor(t, func() bool {
		recs, _ := writer.last("u1")
		return len(recs) == 1
	})
	if recs, _ := writer.last("u2"); len(recs) != 0 {
		t.Fatalf("u2 sheet got %d records", len(recs))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	waitFor(t, func() bool { return store.Hub().Watchers("u1") == 0 })
}

func TestRunnerKeepsGoingWhenWritesFail(t *testing.T) {
	store := memory.New()
	svc := ledger.NewService(store, func() time.Time { return at })
	writer := &recordingWriter{fail: true}
	runner := NewRunner(ledger.NewRecordStore(store), writer, []string{"u1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	waitFor(t, func() bool { _, n := writer.last("u1"); return n == 1 })
	if _, err := svc.CreateFromCatalog(ctx, "u1", "Inne", "12"); err != nil {
		t.Fatalf("create: %v", err)
	}
	waitFor(t, func() bool { recs, _ := writer.last("u1"); return len(recs) == 1 })
}

func TestRunnerRequiresOwners(t *testing.T) {
	if err := NewRunner(nil, nil, nil, nil).Run(context.Background()); err == nil {
		t.Fatal("expected error without owners")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	r := NewRunner(nil, nil, []string{"u1"}, nil)
	if got := r.backoff(0); got != time.Second {
		t.Fatalf("backoff(0) = %v", got)
	}
	if got := r.backoff(10); got != 30*time.Second {
		t.Fatalf("backoff(10) = %v", got)
	}
}
