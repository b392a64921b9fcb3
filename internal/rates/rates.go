// Package rates provides lookup of tax and shipping rate configuration by
// key and region. A lookup distinguishes three outcomes: a present value,
// an absent key (valid configuration state), and a failed lookup (transport
// or decode error), so callers can decide per field whether absence means
// zero or must escalate.
package rates

import (
	"context"

	"github.com/shopspring/decimal"
)

// Well-known field names inside rate values.
const (
	FieldRate     = "rate"
	FieldStandard = "standard"
	FieldExpress  = "express"
)

// TaxKey returns the configuration key holding tax rates for a region.
func TaxKey(region string) string {
	return "tax_rates_" + region
}

// ShippingKey returns the configuration key holding shipping rates for a region.
func ShippingKey(region string) string {
	return "shipping_rates_" + region
}

// Value is the outcome of a configuration lookup. The zero Value is missing.
type Value struct {
	fields map[string]decimal.Decimal
}

// NewValue builds a present Value from its fields.
func NewValue(fields map[string]decimal.Decimal) Value {
	if fields == nil {
		fields = map[string]decimal.Decimal{}
	}
	return Value{fields: fields}
}

// Missing reports whether the key was absent from configuration.
func (v Value) Missing() bool {
	return v.fields == nil
}

// Field returns a named decimal field and whether it is present.
func (v Value) Field(name string) (decimal.Decimal, bool) {
	d, ok := v.fields[name]
	return d, ok
}

// LookupError indicates the rate provider could not answer a lookup.
// It is distinct from a missing key: a failed lookup must be surfaced to
// avoid silently pricing with a zero rate.
type LookupError struct {
	Key string
	Err error
}

func (e *LookupError) Error() string {
	return "rate lookup " + e.Key + ": " + e.Err.Error()
}

func (e *LookupError) Unwrap() error { return e.Err }

// Provider supplies rate configuration values by key.
// Implementations return a missing Value for unknown keys and a
// *LookupError only when the lookup itself failed.
type Provider interface {
	Lookup(ctx context.Context, key string) (Value, error)
}

// Static is a Provider backed by a fixed in-memory table, used in tests and
// single-tenant deployments configured from a file.
type Static struct {
	values map[string]Value
}

// NewStatic builds a Static provider from key to field table.
func NewStatic(values map[string]map[string]decimal.Decimal) *Static {
	s := &Static{values: make(map[string]Value, len(values))}
	for k, fields := range values {
		s.values[k] = NewValue(fields)
	}
	return s
}

// Lookup returns the configured value for key, or a missing Value.
func (s *Static) Lookup(_ context.Context, key string) (Value, error) {
	v, ok := s.values[key]
	if !ok {
		return Value{}, nil
	}
	return v, nil
}
