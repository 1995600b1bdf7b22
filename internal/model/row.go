package model

// Columns is the fixed output schema, in order. Every sink writes exactly
// these six columns.
var Columns = []string{
	"invoice_id",
	"invoice_date",
	"business_unit",
	"job_type",
	"total_amount",
	"updated_at",
}

// Row is a normalized invoice record. String fields use "" for null;
// TotalAmount uses nil. InvoiceDate is "YYYY-MM-DD", UpdatedAt is a
// "YYYY-MM-DDTHH:MM:SSZ" UTC timestamp — both already formatted by the
// transformer, so sinks treat them as opaque strings.
type Row struct {
	InvoiceID    string
	InvoiceDate  string
	BusinessUnit string
	JobType      string
	TotalAmount  *float64
	UpdatedAt    string
}
