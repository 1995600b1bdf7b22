// Package pipeline runs one full sync: cursor → fetch → transform →
// export → cursor advance, logging one line per stage boundary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimson-sun/tally/internal/export"
	"github.com/crimson-sun/tally/internal/revenue"
	"github.com/crimson-sun/tally/internal/titan"
	"github.com/crimson-sun/tally/internal/transform"
)

// Pipeline composes the orchestrator, the transformer and a sink into a
// single sequential run.
type Pipeline struct {
	service *revenue.Service
	writer  export.Writer
	tokens  titan.TokenSource
}

// New creates a Pipeline. tokens may be nil to skip the warm-up step.
func New(service *revenue.Service, writer export.Writer, tokens titan.TokenSource) *Pipeline {
	return &Pipeline{service: service, writer: writer, tokens: tokens}
}

// Run executes one sync. The cursor advances only after the sink write
// has fully succeeded: any earlier failure aborts the run and the next
// run re-fetches an overlapping window, which the merge dedup absorbs.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	slog.Info("start", "run_started", start.UTC().Format("2006-01-02T15:04:05Z"))

	lastSync, err := p.service.LastSync()
	if err != nil {
		return fmt.Errorf("pipeline state: %w", err)
	}
	slog.Info("state", "last_sync_utc", lastSync)

	if p.tokens != nil {
		slog.Info("token", "status", "retrieving access token")
		if _, err := p.tokens.Token(ctx); err != nil {
			return fmt.Errorf("pipeline token: %w", err)
		}
		slog.Info("token", "status", "ok")
	}

	invoices, err := p.service.FetchUpdated(ctx)
	if err != nil {
		return fmt.Errorf("pipeline fetch: %w", err)
	}
	slog.Info("fetch", "records_fetched", len(invoices))

	rows := transform.Transform(invoices)
	slog.Info("transform", "rows", len(rows))

	result, err := p.writer.Write(ctx, rows)
	if err != nil {
		return fmt.Errorf("pipeline export: %w", err)
	}
	slog.Info("export",
		"incoming_rows", result.RowsIncoming,
		"total_rows_after_write", result.RowsWritten,
		"destination", result.Destination)

	if err := p.service.AdvanceCursor(); err != nil {
		return fmt.Errorf("pipeline advance cursor: %w", err)
	}
	slog.Info("state", "status", "sync_state updated")

	slog.Info("completion", "duration_seconds", fmt.Sprintf("%.2f", time.Since(start).Seconds()))
	return nil
}
