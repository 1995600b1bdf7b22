package export

import (
	"sort"

	"github.com/crimson-sun/tally/internal/model"
	"github.com/crimson-sun/tally/internal/transform"
)

// Merge reconciles incoming rows against the rows already in a sink. The
// concatenation (existing first, then incoming) is stable-sorted by
// (invoice_id ascending, updated_at descending) and the first row per
// non-empty invoice_id is kept, so the most recently updated row
// survives. On an exact timestamp tie the stable sort keeps the existing
// row ahead of the incoming one.
//
// Rows without an invoice id never participate in dedup: they are all
// kept rather than collapsed, since collapsing them would drop data on an
// upstream quirk. Unparseable updated_at values sort as older than any
// valid timestamp, so a row with a real timestamp always beats one
// without.
func Merge(existing, incoming []model.Row) []model.Row {
	combined := make([]model.Row, 0, len(existing)+len(incoming))
	combined = append(combined, existing...)
	combined = append(combined, incoming...)

	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.InvoiceID != b.InvoiceID {
			return a.InvoiceID < b.InvoiceID
		}
		return mergeKey(a.UpdatedAt) > mergeKey(b.UpdatedAt)
	})

	merged := make([]model.Row, 0, len(combined))
	seen := make(map[string]bool, len(combined))
	for _, row := range combined {
		if row.InvoiceID != "" {
			if seen[row.InvoiceID] {
				continue
			}
			seen[row.InvoiceID] = true
		}
		merged = append(merged, row)
	}
	return merged
}

// mergeKey normalizes an updated_at value into a sortable ISO string.
// Existing sink rows may carry timestamps in shapes the transformer never
// emits (hand-edited files, older runs), so the value is re-parsed rather
// than compared verbatim. Empty or unparseable values map to "", which
// sorts before every valid timestamp.
func mergeKey(updatedAt string) string {
	t, ok := transform.ParseTimestamp(updatedAt)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02T15:04:05Z")
}
