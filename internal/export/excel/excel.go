// Package excel writes the invoice sink as a single-sheet .xlsx file.
package excel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/crimson-sun/tally/internal/config"
	"github.com/crimson-sun/tally/internal/export"
	"github.com/crimson-sun/tally/internal/model"
)

const sheetName = "invoices"

func init() {
	export.Register("excel", func(_ context.Context, cfg config.Config) (export.Writer, error) {
		return New(cfg.ExcelPath), nil
	})
}

// Writer merges rows into an .xlsx workbook at a fixed path. Each write
// reads the existing sheet, merges, and rewrites the whole file, so the
// sink never accumulates duplicate invoice ids even after a crashed run.
type Writer struct {
	path string
}

// New creates an Excel writer targeting path.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Write merges rows into the workbook and rewrites it in full.
func (w *Writer) Write(_ context.Context, rows []model.Row) (export.Result, error) {
	existing, err := w.readExisting()
	if err != nil {
		return export.Result{}, err
	}
	merged := export.Merge(existing, rows)

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return export.Result{}, fmt.Errorf("excel: create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheetName)

	header := export.Header()
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return export.Result{}, fmt.Errorf("excel: write header: %w", err)
	}
	for i, row := range merged {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return export.Result{}, fmt.Errorf("excel: cell name: %w", err)
		}
		cells := export.Cells(row)
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return export.Result{}, fmt.Errorf("excel: write row %d: %w", i, err)
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return export.Result{}, fmt.Errorf("excel: save %s: %w", w.path, err)
	}

	return export.Result{
		RowsIncoming: len(rows),
		RowsWritten:  len(merged),
		Destination:  w.path,
	}, nil
}

// readExisting loads the current sheet contents, or nothing when the file
// or sheet does not exist yet.
func (w *Writer) readExisting() ([]model.Row, error) {
	if _, err := os.Stat(w.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("excel: open %s: %w", w.path, err)
	}
	defer f.Close()

	cells, err := f.GetRows(sheetName)
	if err != nil {
		var serr excelize.ErrSheetNotExist
		if errors.As(err, &serr) {
			return nil, nil
		}
		return nil, fmt.Errorf("excel: read %s: %w", w.path, err)
	}
	if len(cells) <= 1 {
		return nil, nil
	}

	rows := make([]model.Row, 0, len(cells)-1)
	for _, line := range cells[1:] {
		rows = append(rows, rowFromCells(line))
	}
	return rows, nil
}

func rowFromCells(cells []string) model.Row {
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
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
