package model

// RawInvoice is the intermediate type produced by the fetch client and
// consumed by the transformer: one upstream invoice object, untyped because
// the API is loose about field names and nesting.
type RawInvoice map[string]any
