// Package transform normalizes raw upstream invoices into the fixed
// six-column output schema. The upstream API is inconsistent about field
// names and nesting across tenants and API versions, so each logical
// field is extracted through an ordered list of alias rules.
package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/tally/internal/model"
)

// extractor pulls one candidate value out of a raw invoice.
type extractor func(model.RawInvoice) any

// key reads a top-level field.
func key(name string) extractor {
	return func(inv model.RawInvoice) any { return inv[name] }
}

// nested reads a field one level down, e.g. businessUnit.name.
func nested(outer, inner string) extractor {
	return func(inv model.RawInvoice) any {
		obj, ok := inv[outer].(map[string]any)
		if !ok {
			return nil
		}
		return obj[inner]
	}
}

// Alias chains per logical field, evaluated in order; the first present
// value wins. A present value is non-nil and, for strings, non-blank.
var (
	invoiceIDAliases    = []extractor{key("id"), key("invoiceId"), key("invoice_id")}
	invoiceDateAliases  = []extractor{key("invoiceDate"), key("date"), key("createdOn")}
	updatedAtAliases    = []extractor{key("modifiedOn"), key("updatedOn"), key("updatedAt"), key("updated_at")}
	businessUnitAliases = []extractor{nested("businessUnit", "name"), key("businessUnitName"), key("businessUnit")}
	jobTypeAliases      = []extractor{nested("jobType", "name"), key("jobTypeName"), key("jobType")}
	totalAliases        = []extractor{key("total"), key("totalAmount"), nested("summary", "total")}
)

func first(inv model.RawInvoice, chain []extractor) any {
	for _, extract := range chain {
		v := extract(inv)
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// Transform maps raw invoices onto the output schema. It is a total
// function: missing or unparseable values degrade to empty fields, never
// an error. An empty input produces an empty (but schema-shaped) result.
func Transform(invoices []model.RawInvoice) []model.Row {
	rows := make([]model.Row, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, model.Row{
			InvoiceID:    asString(first(inv, invoiceIDAliases)),
			InvoiceDate:  asDate(first(inv, invoiceDateAliases)),
			BusinessUnit: asString(first(inv, businessUnitAliases)),
			JobType:      asString(first(inv, jobTypeAliases)),
			TotalAmount:  asNumber(first(inv, totalAliases)),
			UpdatedAt:    asTimestamp(first(inv, updatedAtAliases)),
		})
	}
	return rows
}

// timestampLayouts are tried in order. Zone-less layouts are read as UTC.
var timestampLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// ParseTimestamp parses a date or datetime string, defaulting to UTC when
// no zone is given. Sinks reuse it to normalize updated_at values read
// back from existing output.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timestampLayouts {
		var t time.Time
		var err error
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, time.UTC)
		}
		if err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// asString coerces scalar values to a string; anything else is null.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// asDate reformats a parseable date or datetime to YYYY-MM-DD.
func asDate(v any) string {
	t, ok := ParseTimestamp(asString(v))
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

// asTimestamp reformats a parseable timestamp to YYYY-MM-DDTHH:MM:SSZ.
func asTimestamp(v any) string {
	t, ok := ParseTimestamp(asString(v))
	if !ok {
		return ""
	}
	return t.Format("2006-01-02T15:04:05Z")
}

// asNumber coerces numeric values (including numeric strings) to float64.
func asNumber(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
