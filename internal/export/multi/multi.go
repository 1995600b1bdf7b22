// Package multi fans one merge out to several sinks.
package multi

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/crimson-sun/tally/internal/export"
	"github.com/crimson-sun/tally/internal/model"
)

// Multi writes the same row batch to every wrapped sink sequentially. If
// one sink fails, the remaining sinks still receive the batch; the joined
// error is returned so the caller never advances the cursor on a partial
// export.
type Multi struct {
	writers []export.Writer
}

// New creates a Multi that fans out to the given writers.
func New(writers ...export.Writer) *Multi {
	return &Multi{writers: writers}
}

// Write delivers rows to every wrapped sink. The combined Result joins
// the destinations; RowsWritten comes from the last successful sink
// (sinks can disagree when their existing contents differ).
func (m *Multi) Write(ctx context.Context, rows []model.Row) (export.Result, error) {
	var errs []error
	var destinations []string
	combined := export.Result{RowsIncoming: len(rows)}

	for _, w := range m.writers {
		result, err := w.Write(ctx, rows)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Debug("export sink done",
			"destination", result.Destination,
			"rows_written", result.RowsWritten)
		destinations = append(destinations, result.Destination)
		combined.RowsWritten = result.RowsWritten
	}

	combined.Destination = strings.Join(destinations, ", ")
	return combined, errors.Join(errs...)
}
