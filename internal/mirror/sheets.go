// Package mirror keeps a Google Sheets copy of selected owners' ledgers,
// rewritten from the live subscription on every delivery.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"wydatki/internal/core"
)

// HeaderRow is the first row of every mirrored sheet.
var HeaderRow = []any{"data", "nazwa", "cena", "icon"}

// Writer replaces the mirrored content for one owner.
type Writer interface {
	WriteSheet(ctx context.Context, ownerID string, records []core.ExpenseRecord) error
}

// Credentials selects the service account used by the Sheets client.
// JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// SheetsWriter writes each owner's records to the sheet "<prefix><ownerID>".
type SheetsWriter struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string

	mu    sync.Mutex
	known map[string]bool
}

// NewSheetsWriter creates a Sheets service authenticated with a service account.
func NewSheetsWriter(ctx context.Context, creds Credentials, spreadsheetID, prefix string) (*SheetsWriter, error) {
	credentialsJSON, err := creds.load()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewSheetsWriterWithService(svc, spreadsheetID, prefix), nil
}

// NewSheetsWriterWithService wraps an existing service.
func NewSheetsWriterWithService(svc *gsheet.Service, spreadsheetID, prefix string) *SheetsWriter {
	return &SheetsWriter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		prefix:        prefix,
		known:         make(map[string]bool),
	}
}

// SheetName returns the sheet mirroring ownerID.
func (w *SheetsWriter) SheetName(ownerID string) string {
	return w.prefix + ownerID
}

// WriteSheet clears the owner's sheet and writes the header plus one row per
// record, in delivery order.
func (w *SheetsWriter) WriteSheet(ctx context.Context, ownerID string, records []core.ExpenseRecord) error {
	sheet := w.SheetName(ownerID)
	if err := w.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	columns := quoteSheet(sheet) + "!A:D"
	if _, err := w.svc.Spreadsheets.Values.Clear(w.spreadsheetID, columns, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}

	rows := Rows(records)
	rng := fmt.Sprintf("%s!A1:D%d", quoteSheet(sheet), len(rows))
	vr := &gsheet.ValueRange{Range: rng, Values: rows}
	if _, err := w.svc.Spreadsheets.Values.Update(w.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", sheet, err)
	}

	slog.DebugContext(ctx, "Sheet mirrored",
		"component", "mirror",
		"sheet", sheet,
		"rows", len(records))
	return nil
}

// ensureSheet adds the sheet to the spreadsheet the first time it is needed.
func (w *SheetsWriter) ensureSheet(ctx context.Context, sheet string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.known[sheet] {
		return nil
	}

	ss, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", w.spreadsheetID, err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			w.known[s.Properties.Title] = true
		}
	}
	if w.known[sheet] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}},
	}
	if _, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Sheet created", "component", "mirror", "sheet", sheet)
	w.known[sheet] = true
	return nil
}

// Rows renders the header row followed by one row per record.
func Rows(records []core.ExpenseRecord) [][]any {
	rows := make([][]any, 0, len(records)+1)
	rows = append(rows, HeaderRow)
	for _, r := range records {
		rows = append(rows, []any{
			core.FormatTimestamp(r.OccurredAt),
			r.CategoryName,
			r.Amount.String(),
			r.CategoryIcon,
		})
	}
	return rows
}

// quoteSheet quotes a sheet title for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
