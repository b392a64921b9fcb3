package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/borhen68/framatale-sub001/internal/domain/rule"
)

// AppliedDiscount is one discount line in a priced result.
type AppliedDiscount struct {
	Type   rule.DiscountType `json:"type"`
	Amount decimal.Decimal   `json:"amount"`
	// Percentage is set for percentage-based discount types.
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Reason     string           `json:"reason"`
}

// TaxLine is one tax line in a priced result.
type TaxLine struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
}

// ShippingLine is the shipping cost of a priced result.
type ShippingLine struct {
	Cost   decimal.Decimal `json:"cost"`
	Method string          `json:"method"`
}

// Breakdown sums the itemized lines of a priced result.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TotalDiscounts decimal.Decimal `json:"totalDiscounts"`
	TotalTaxes     decimal.Decimal `json:"totalTaxes"`
	TotalShipping  decimal.Decimal `json:"totalShipping"`
	GrandTotal     decimal.Decimal `json:"grandTotal"`
}

// Metadata describes how a result was computed. Confidence starts at 1.0
// and shrinks with every heuristic adjustment layered on the price.
type Metadata struct {
	CalculatedAt time.Time `json:"calculatedAt"`
	Version      string    `json:"version"`
	Confidence   float64   `json:"confidence"`
}

// Result is a fully itemized price. It is a computed value, cached
// transiently but never persisted as a source of truth.
type Result struct {
	BasePrice    decimal.Decimal   `json:"basePrice"`
	FinalPrice   decimal.Decimal   `json:"finalPrice"`
	Discounts    []AppliedDiscount `json:"discounts"`
	Taxes        []TaxLine         `json:"taxes"`
	Shipping     *ShippingLine     `json:"shipping,omitempty"`
	Currency     string            `json:"currency"`
	Breakdown    Breakdown         `json:"breakdown"`
	AppliedRules []string          `json:"appliedRules"`
	Metadata     Metadata          `json:"metadata"`
}

// Cache stores priced results under their request signature until an
// absolute expiry. Implementations are best-effort: they swallow and log
// their own failures, and must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, res *Result, expiresAt time.Time)
}

// NopCache disables result caching.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Result, bool) { return nil, false }

func (NopCache) Set(context.Context, string, *Result, time.Time) {}
