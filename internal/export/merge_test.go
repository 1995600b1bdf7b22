package export

import (
	"testing"

	"github.com/crimson-sun/tally/internal/model"
)

func row(id, updatedAt string) model.Row {
	return model.Row{InvoiceID: id, UpdatedAt: updatedAt}
}

func ids(rows []model.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.InvoiceID
	}
	return out
}

func TestMerge_KeepsMostRecentUpdate(t *testing.T) {
	merged := Merge(nil, []model.Row{
		row("A", "2024-01-01T00:00:00Z"),
		row("A", "2024-02-01T00:00:00Z"),
	})
	if len(merged) != 1 {
		t.Fatalf("expected 1 row, got %d", len(merged))
	}
	if merged[0].UpdatedAt != "2024-02-01T00:00:00Z" {
		t.Fatalf("expected the February row to survive, got %q", merged[0].UpdatedAt)
	}
}

func TestMerge_IncomingNewerReplacesExisting(t *testing.T) {
	existing := []model.Row{row("A", "2024-01-01T00:00:00Z")}
	incoming := []model.Row{{
		InvoiceID:    "A",
		BusinessUnit: "Updated Unit",
		UpdatedAt:    "2024-03-01T00:00:00Z",
	}}

	merged := Merge(existing, incoming)
	if len(merged) != 1 {
		t.Fatalf("expected 1 row, got %d", len(merged))
	}
	if merged[0].BusinessUnit != "Updated Unit" {
		t.Fatalf("expected the incoming row to win, got %+v", merged[0])
	}
}

func TestMerge_ExistingNewerSurvives(t *testing.T) {
	existing := []model.Row{row("A", "2024-03-01T00:00:00Z")}
	incoming := []model.Row{row("A", "2024-01-01T00:00:00Z")}

	merged := Merge(existing, incoming)
	if len(merged) != 1 || merged[0].UpdatedAt != "2024-03-01T00:00:00Z" {
		t.Fatalf("expected existing newer row to survive, got %+v", merged)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	incoming := []model.Row{
		row("A", "2024-01-01T00:00:00Z"),
		row("B", "2024-01-02T00:00:00Z"),
		row("C", "2024-01-03T00:00:00Z"),
	}

	once := Merge(nil, incoming)
	twice := Merge(once, incoming)

	if len(once) != 3 || len(twice) != 3 {
		t.Fatalf("expected 3 rows after each merge, got %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("row %d changed on re-merge: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

// On an exact (invoice_id, updated_at) tie the existing row stays ahead of
// the incoming one in the stable sort and therefore survives. This pins
// down observed behavior; it is not a declared precedence rule.
func TestMerge_ExactTimestampTie(t *testing.T) {
	existing := []model.Row{{InvoiceID: "A", JobType: "existing", UpdatedAt: "2024-01-01T00:00:00Z"}}
	incoming := []model.Row{{InvoiceID: "A", JobType: "incoming", UpdatedAt: "2024-01-01T00:00:00Z"}}

	merged := Merge(existing, incoming)
	if len(merged) != 1 {
		t.Fatalf("expected 1 row, got %d", len(merged))
	}
	if merged[0].JobType != "existing" {
		t.Fatalf("tie-break changed: %+v", merged[0])
	}
}

func TestMerge_UnparseableTimestampLosesToValid(t *testing.T) {
	merged := Merge(
		[]model.Row{row("A", "garbage")},
		[]model.Row{row("A", "2020-01-01T00:00:00Z")},
	)
	if len(merged) != 1 || merged[0].UpdatedAt != "2020-01-01T00:00:00Z" {
		t.Fatalf("expected the valid timestamp to win, got %+v", merged)
	}
}

func TestMerge_NullIDRowsAreAllKept(t *testing.T) {
	merged := Merge(
		[]model.Row{row("", "2024-01-01T00:00:00Z")},
		[]model.Row{row("", "2024-01-01T00:00:00Z"), row("A", "2024-01-01T00:00:00Z")},
	)
	if len(merged) != 3 {
		t.Fatalf("expected 3 rows (null ids never dedup), got %d: %v", len(merged), ids(merged))
	}
}

func TestMerge_SortsByInvoiceID(t *testing.T) {
	merged := Merge(nil, []model.Row{
		row("C", "2024-01-01T00:00:00Z"),
		row("A", "2024-01-01T00:00:00Z"),
		row("B", "2024-01-01T00:00:00Z"),
	})
	got := ids(merged)
	want := []string{"A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestMerge_RereadTimestampShapesNormalized(t *testing.T) {
	// A hand-edited sink may hold "2024-02-01 00:00:00"; it must still
	// compare correctly against the transformer's Z-suffixed form.
	merged := Merge(
		[]model.Row{row("A", "2024-02-01 00:00:00")},
		[]model.Row{row("A", "2024-01-15T00:00:00Z")},
	)
	if len(merged) != 1 || merged[0].UpdatedAt != "2024-02-01 00:00:00" {
		t.Fatalf("expected the later (hand-edited) timestamp to win, got %+v", merged)
	}
}
