// Package revenue orchestrates the incremental invoice fetch: it bounds
// the upstream query with the persisted cursor and advances the cursor
// once the downstream write has succeeded.
package revenue

import (
	"context"
	"iter"
	"net/url"
	"time"

	"github.com/crimson-sun/tally/internal/model"
	"github.com/crimson-sun/tally/internal/syncstate"
)

// timeLayout is the cursor timestamp format: UTC, second precision,
// Z-suffixed. Lexicographic order on these strings matches instant order.
const timeLayout = "2006-01-02T15:04:05Z"

// defaultLookback bounds the first fetch when no cursor exists yet.
const defaultLookback = 7 * 24 * time.Hour

// invoiceAPI is the slice of the titan client the service uses.
type invoiceAPI interface {
	Paginate(ctx context.Context, path string, query url.Values, pageSize int) iter.Seq2[model.RawInvoice, error]
}

// Service fetches invoices updated since the last sync.
type Service struct {
	api       invoiceAPI
	tenantID  string
	statePath string
	pageSize  int
	now       func() time.Time
}

// New creates a Service for one tenant backed by the cursor file at
// statePath.
func New(api invoiceAPI, tenantID, statePath string, pageSize int) *Service {
	return &Service{
		api:       api,
		tenantID:  tenantID,
		statePath: statePath,
		pageSize:  pageSize,
		now:       time.Now,
	}
}

// LastSync returns the persisted cursor timestamp. When no cursor exists
// it returns "now minus 7 days", computed fresh each call and never
// persisted as a guess.
func (s *Service) LastSync() (string, error) {
	state, err := syncstate.Load(s.statePath)
	if err != nil {
		return "", err
	}
	if state.LastSyncUTC == "" {
		return s.now().UTC().Add(-defaultLookback).Format(timeLayout), nil
	}
	return state.LastSyncUTC, nil
}

// FetchUpdated drains every invoice updated since the current cursor into
// a slice, paging through the tenant's invoices endpoint.
func (s *Service) FetchUpdated(ctx context.Context) ([]model.RawInvoice, error) {
	since, err := s.LastSync()
	if err != nil {
		return nil, err
	}

	path := "accounting/v2/tenant/" + s.tenantID + "/invoices"
	query := url.Values{}
	query.Set("updatedSince", since)

	var invoices []model.RawInvoice
	for inv, err := range s.api.Paginate(ctx, path, query, s.pageSize) {
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// AdvanceCursor persists "now" as the new cursor. Callers must only invoke
// this after the sink write has fully succeeded: a crash before this call
// makes the next run re-fetch an overlapping window, which the
// dedup-by-id merge absorbs.
func (s *Service) AdvanceCursor() error {
	return syncstate.Save(s.statePath, syncstate.State{
		LastSyncUTC: s.now().UTC().Format(timeLayout),
	})
}
