// Package sheets writes the invoice sink to a Google Sheets worksheet
// using a service-account credential.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/crimson-sun/tally/internal/config"
	"github.com/crimson-sun/tally/internal/export"
	"github.com/crimson-sun/tally/internal/model"
)

func init() {
	export.Register("sheets", func(ctx context.Context, cfg config.Config) (export.Writer, error) {
		return New(ctx, cfg.CredentialsFile, cfg.SpreadsheetID, cfg.Worksheet)
	})
}

// Writer merges rows into one worksheet of a spreadsheet. Each write is a
// full clear-then-rewrite of the worksheet, not a row-level patch.
type Writer struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	worksheet     string
}

// New builds a Writer from a service-account credentials file. A missing
// credential or spreadsheet id is a configuration error raised here, not
// at write time.
func New(ctx context.Context, credentialsFile, spreadsheetID, worksheet string) (*Writer, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("sheets: GOOGLE_CREDENTIALS_FILE is required for the sheets target")
	}
	if spreadsheetID == "" {
		return nil, fmt.Errorf("sheets: SHEETS_SPREADSHEET_ID is required for the sheets target")
	}

	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets: read credentials: %w", err)
	}
	jwt, err := google.JWTConfigFromJSON(creds, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: parse credentials: %w", err)
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets: build service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, worksheet), nil
}

// NewWithService wires an already-built Sheets service. Tests use this to
// point the writer at a stub server.
func NewWithService(svc *sheetsapi.Service, spreadsheetID, worksheet string) *Writer {
	return &Writer{svc: svc, spreadsheetID: spreadsheetID, worksheet: worksheet}
}

// Write merges rows into the worksheet, creating it (with a header row)
// when missing, then clears and rewrites it in full.
func (w *Writer) Write(ctx context.Context, rows []model.Row) (export.Result, error) {
	if err := w.ensureWorksheet(ctx); err != nil {
		return export.Result{}, err
	}

	existing, err := w.readExisting(ctx)
	if err != nil {
		return export.Result{}, err
	}
	merged := export.Merge(existing, rows)

	values := make([][]any, 0, len(merged)+1)
	values = append(values, export.Header())
	for _, row := range merged {
		values = append(values, cellStrings(row))
	}

	if _, err := w.svc.Spreadsheets.Values.Clear(w.spreadsheetID, w.worksheet, &sheetsapi.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return export.Result{}, fmt.Errorf("sheets: clear %s: %w", w.worksheet, err)
	}
	vr := &sheetsapi.ValueRange{Values: values}
	if _, err := w.svc.Spreadsheets.Values.Update(w.spreadsheetID, w.worksheet+"!A1", vr).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return export.Result{}, fmt.Errorf("sheets: update %s: %w", w.worksheet, err)
	}

	return export.Result{
		RowsIncoming: len(rows),
		RowsWritten:  len(merged),
		Destination:  w.spreadsheetID + "/" + w.worksheet,
	}, nil
}

// ensureWorksheet adds the target worksheet with a header row when the
// spreadsheet does not have it yet.
func (w *Writer) ensureWorksheet(ctx context.Context) error {
	ss, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: get spreadsheet %s: %w", w.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == w.worksheet {
			return nil
		}
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{Title: w.worksheet},
			},
		}},
	}
	if _, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: add worksheet %s: %w", w.worksheet, err)
	}

	vr := &sheetsapi.ValueRange{Values: [][]any{export.Header()}}
	if _, err := w.svc.Spreadsheets.Values.Update(w.spreadsheetID, w.worksheet+"!A1", vr).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: write header: %w", err)
	}
	return nil
}

// readExisting loads the current worksheet rows, skipping the header.
func (w *Writer) readExisting(ctx context.Context) ([]model.Row, error) {
	vr, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, w.worksheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", w.worksheet, err)
	}
	if len(vr.Values) <= 1 {
		return nil, nil
	}

	rows := make([]model.Row, 0, len(vr.Values)-1)
	for _, line := range vr.Values[1:] {
		rows = append(rows, rowFromValues(line))
	}
	return rows, nil
}

func rowFromValues(values []any) model.Row {
	get := func(i int) string {
		if i >= len(values) || values[i] == nil {
			return ""
		}
		switch t := values[i].(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		default:
			return fmt.Sprint(t)
		}
	}

	row := model.Row{
		InvoiceID:    get(0),
		InvoiceDate:  get(1),
		BusinessUnit: get(2),
		JobType:      get(3),
		UpdatedAt:    get(5),
	}
	if s := get(4); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			row.TotalAmount = &v
		}
	}
	return row
}

// cellStrings renders a row as strings — the remote sink transports every
// cell as JSON-safe text, with empty cells for nulls.
func cellStrings(row model.Row) []any {
	cells := export.Cells(row)
	for i, v := range cells {
		switch t := v.(type) {
		case nil:
			cells[i] = ""
		case float64:
			cells[i] = strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return cells
}
