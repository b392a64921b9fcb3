package costplus

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CostNotFoundError indicates no active cost structure matches the request.
type CostNotFoundError struct {
	ProductType string
	Variant     string
}

func (e *CostNotFoundError) Error() string {
	if e.Variant != "" {
		return fmt.Sprintf("cost structure for %s (variant %s) not found", e.ProductType, e.Variant)
	}
	return fmt.Sprintf("cost structure for %s not found", e.ProductType)
}

// Costs is the per-unit cost component breakdown. TotalCost must equal the
// sum of the components; use Recompute after changing any of them.
type Costs struct {
	BaseCost           decimal.Decimal `json:"baseCost"`
	ShippingCost       decimal.Decimal `json:"shippingCost"`
	HandlingFee        decimal.Decimal `json:"handlingFee"`
	QualityControlCost decimal.Decimal `json:"qualityControlCost"`
	PackagingCost      decimal.Decimal `json:"packagingCost"`
	TotalCost          decimal.Decimal `json:"totalCost"`
}

// Recompute refreshes TotalCost from the components.
func (c *Costs) Recompute() {
	c.TotalCost = c.BaseCost.
		Add(c.ShippingCost).
		Add(c.HandlingFee).
		Add(c.QualityControlCost).
		Add(c.PackagingCost)
}

// VolumeTier overrides the unit cost for a quantity bracket.
type VolumeTier struct {
	MinQuantity int             `json:"minQuantity"`
	MaxQuantity *int            `json:"maxQuantity,omitempty"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	Discount    decimal.Decimal `json:"discount"`
}

// Contains reports whether qty falls inside the tier's bracket.
func (t VolumeTier) Contains(qty int) bool {
	if qty < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || qty <= *t.MaxQuantity
}

// Targets holds the pricing goals set against a cost structure.
type Targets struct {
	TargetSellingPrice decimal.Decimal  `json:"targetSellingPrice"`
	TargetMargin       decimal.Decimal  `json:"targetMargin"`
	MinimumMargin      decimal.Decimal  `json:"minimumMargin"`
	CompetitorPrice    *decimal.Decimal `json:"competitorPrice,omitempty"`
	RecommendedPrice   decimal.Decimal  `json:"recommendedPrice"`
}

// ProductCost is the cost structure of one product (optionally one variant
// from one supplier).
type ProductCost struct {
	ID          string       `json:"id"`
	ProductType string       `json:"productType"`
	Variant     string       `json:"variant,omitempty"`
	SupplierID  string       `json:"supplierId,omitempty"`
	Costs       Costs        `json:"costs"`
	VolumeTiers []VolumeTier `json:"volumeTiers,omitempty"`
	Targets     Targets      `json:"targets"`
	Active      bool         `json:"active"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// UnitCost resolves the per-unit cost for a quantity via volume tiers,
// falling back to the total component cost when no tier matches.
func (p *ProductCost) UnitCost(qty int) decimal.Decimal {
	for _, t := range p.VolumeTiers {
		if t.Contains(qty) {
			return t.UnitCost
		}
	}
	return p.Costs.TotalCost
}

// RecommendedPrice derives the target-margin price:
// totalCost / (1 - targetMargin/100).
func (p *ProductCost) RecommendedPrice() decimal.Decimal {
	margin := p.Targets.TargetMargin.Div(hundred)
	denom := decimal.NewFromInt(1).Sub(margin)
	if !denom.IsPositive() {
		return p.Costs.TotalCost
	}
	return p.Costs.TotalCost.Div(denom)
}

// Catalog supplies active cost structures. Variant and supplierID narrow the
// match when non-empty.
type Catalog interface {
	FindActiveCost(ctx context.Context, productType, variant, supplierID string) (*ProductCost, error)
}
