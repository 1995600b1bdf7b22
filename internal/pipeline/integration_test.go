package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/crimson-sun/tally/internal/export/excel"
	"github.com/crimson-sun/tally/internal/pipeline"
	"github.com/crimson-sun/tally/internal/revenue"
	"github.com/crimson-sun/tally/internal/syncstate"
	"github.com/crimson-sun/tally/internal/titan"
)

// TestEndToEndSync drives a full first run against a stubbed upstream:
// no cursor file, two pages of invoices (500 then 3), merge into a fresh
// Excel sink, cursor written afterwards.
func TestEndToEndSync(t *testing.T) {
	const tenant = "t123"
	var tokenCalls atomic.Int32

	invoice := func(n int) map[string]any {
		return map[string]any{
			"id":          fmt.Sprintf("INV-%04d", n),
			"invoiceDate": "2024-03-01T00:00:00Z",
			"modifiedOn":  fmt.Sprintf("2024-03-02T00:00:%02dZ", n%60),
			"businessUnit": map[string]any{
				"name": "HVAC",
			},
			"total": float64(n),
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Write([]byte(`{"access_token":"tok-e2e","expires_in":900}`))
	})
	mux.HandleFunc("/accounting/v2/tenant/"+tenant+"/invoices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-e2e" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("updatedSince") == "" {
			t.Error("missing updatedSince query param")
		}

		var data []map[string]any
		hasMore := false
		switch r.URL.Query().Get("Page") {
		case "1":
			for i := 1; i <= 500; i++ {
				data = append(data, invoice(i))
			}
			hasMore = true
		case "2":
			for i := 501; i <= 503; i++ {
				data = append(data, invoice(i))
			}
		default:
			t.Errorf("unexpected page: %q", r.URL.Query().Get("Page"))
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data, "hasMore": hasMore})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state", "sync_state.json")
	outputPath := filepath.Join(dir, "output", "invoices.xlsx")

	tokens := titan.NewTokenProvider(srv.URL+"/connect/token", "cid", "cs", 5*time.Second)
	client := titan.NewClient(srv.URL, "app-key", tokens)
	service := revenue.New(client, tenant, statePath, 500)
	writer := excel.New(outputPath)

	start := time.Now().UTC()
	p := pipeline.New(service, writer, tokens)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// The cached token serves the warm-up and both pages.
	if n := tokenCalls.Load(); n != 1 {
		t.Errorf("expected 1 token exchange, got %d", n)
	}

	f, err := excelize.OpenFile(outputPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("invoices")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(rows) != 504 {
		t.Fatalf("expected header + 503 rows, got %d", len(rows))
	}

	state, err := syncstate.Load(statePath)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	cursor, err := time.Parse("2006-01-02T15:04:05Z", state.LastSyncUTC)
	if err != nil {
		t.Fatalf("cursor %q does not parse: %v", state.LastSyncUTC, err)
	}
	if cursor.Before(start.Add(-time.Second)) || cursor.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("cursor %v not near run start %v", cursor, start)
	}
}

// TestEndToEndSync_SecondRunConverges re-runs against the same sink with
// an overlapping window and checks the row count does not grow.
func TestEndToEndSync_SecondRunConverges(t *testing.T) {
	const tenant = "t9"
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":900}`))
	})
	mux.HandleFunc("/accounting/v2/tenant/"+tenant+"/invoices", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"A","modifiedOn":"2024-03-02T00:00:00Z","total":10},
			{"id":"B","modifiedOn":"2024-03-02T00:00:01Z","total":20}
		],"hasMore":false}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	outputPath := filepath.Join(dir, "invoices.xlsx")

	tokens := titan.NewTokenProvider(srv.URL+"/connect/token", "cid", "cs", 5*time.Second)
	client := titan.NewClient(srv.URL, "app-key", tokens)
	service := revenue.New(client, tenant, filepath.Join(dir, "state.json"), 100)
	writer := excel.New(outputPath)
	p := pipeline.New(service, writer, tokens)

	for i := 0; i < 2; i++ {
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	f, err := excelize.OpenFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("invoices")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows after overlapping runs, got %d", len(rows))
	}
}
