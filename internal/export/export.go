// Package export defines the sink contract shared by all destinations and
// the merge algorithm that keeps a sink idempotent across overlapping
// sync windows.
package export

import (
	"context"
	"fmt"
	"math"

	"github.com/crimson-sun/tally/internal/config"
	"github.com/crimson-sun/tally/internal/model"
)

// Result reports a completed sink write.
type Result struct {
	RowsIncoming int
	RowsWritten  int
	Destination  string
}

// Writer merges normalized rows into one destination sink.
type Writer interface {
	Write(ctx context.Context, rows []model.Row) (Result, error)
}

// Constructor builds a Writer for a named export target.
type Constructor func(ctx context.Context, cfg config.Config) (Writer, error)

var registry = map[string]Constructor{}

// Register adds a writer constructor under the given target name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the writer constructor for the given target name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown export target: %s", name)
	}
	return ctor, nil
}

// Targets returns the names of all registered export targets.
func Targets() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Cells renders a row in the fixed column order. Amounts that have no
// JSON-safe representation (NaN, ±Inf) become empty cells, as does nil.
func Cells(row model.Row) []any {
	var amount any
	if row.TotalAmount != nil && !math.IsNaN(*row.TotalAmount) && !math.IsInf(*row.TotalAmount, 0) {
		amount = *row.TotalAmount
	}
	return []any{
		row.InvoiceID,
		row.InvoiceDate,
		row.BusinessUnit,
		row.JobType,
		amount,
		row.UpdatedAt,
	}
}

// Header returns the column header cells.
func Header() []any {
	cells := make([]any, len(model.Columns))
	for i, c := range model.Columns {
		cells[i] = c
	}
	return cells
}
