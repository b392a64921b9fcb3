package costplus

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// fixedCosts is the assumed fixed cost base for break-even analysis.
var fixedCosts = decimal.NewFromInt(1000)

// recommendedMultiplier is the heuristic cost-to-retail multiplier used for
// the quick price recommendation.
var recommendedMultiplier = decimal.NewFromFloat(4.5)

// Request asks for a cost-plus analysis of one product at a quantity.
type Request struct {
	ProductType string `json:"productType"`
	Variant     string `json:"variant,omitempty"`
	SupplierID  string `json:"supplierId,omitempty"`
	Quantity    int    `json:"quantity"`
}

// CostBreakdown relates unit cost to the target selling price.
type CostBreakdown struct {
	COGS             decimal.Decimal `json:"cogs"`
	SellingPrice     decimal.Decimal `json:"sellingPrice"`
	Markup           decimal.Decimal `json:"markup"`
	MarkupPercentage decimal.Decimal `json:"markupPercentage"`
	Margin           decimal.Decimal `json:"margin"`
	MarginPercentage decimal.Decimal `json:"marginPercentage"`
}

// ProfitAnalysis projects profitability at the requested quantity.
type ProfitAnalysis struct {
	UnitProfit        decimal.Decimal `json:"unitProfit"`
	TotalProfit       decimal.Decimal `json:"totalProfit"`
	ROI               decimal.Decimal `json:"roi"`
	BreakEvenQuantity int             `json:"breakEvenQuantity"`
	RecommendedPrice  decimal.Decimal `json:"recommendedPrice"`
}

// Analysis is the full output of a cost-plus computation.
type Analysis struct {
	CostBreakdown   CostBreakdown  `json:"costBreakdown"`
	ProfitAnalysis  ProfitAnalysis `json:"profitAnalysis"`
	Recommendations []string       `json:"recommendations"`
}

// Calculator derives cost-plus pricing analyses from the cost catalog.
// It is independent of the rule engine.
type Calculator struct {
	catalog Catalog
}

// NewCalculator creates a Calculator backed by the given catalog.
func NewCalculator(catalog Catalog) *Calculator {
	return &Calculator{catalog: catalog}
}

// Calculate resolves the product's cost structure and computes the cost,
// margin, and profit breakdown with deterministic recommendations.
// Returns *CostNotFoundError when no active cost structure matches.
func (c *Calculator) Calculate(ctx context.Context, req Request) (*Analysis, error) {
	if req.Quantity <= 0 {
		return nil, errors.New("quantity must be greater than 0")
	}

	cost, err := c.catalog.FindActiveCost(ctx, req.ProductType, req.Variant, req.SupplierID)
	if err != nil {
		return nil, err
	}
	if cost == nil {
		return nil, &CostNotFoundError{ProductType: req.ProductType, Variant: req.Variant}
	}

	cogs := cost.UnitCost(req.Quantity)
	selling := cost.Targets.TargetSellingPrice
	markup := selling.Sub(cogs)

	breakdown := CostBreakdown{
		COGS:         cogs,
		SellingPrice: selling,
		Markup:       markup,
		Margin:       markup,
	}
	if cogs.IsPositive() {
		breakdown.MarkupPercentage = markup.Div(cogs).Mul(hundred).Round(2)
	}
	if selling.IsPositive() {
		breakdown.MarginPercentage = markup.Div(selling).Mul(hundred).Round(2)
	}

	profit := ProfitAnalysis{
		UnitProfit:       markup,
		TotalProfit:      markup.Mul(decimal.NewFromInt(int64(req.Quantity))),
		RecommendedPrice: cogs.Mul(recommendedMultiplier).Round(2),
	}
	if cogs.IsPositive() {
		profit.ROI = markup.Div(cogs).Mul(hundred).Round(2)
	}
	if markup.IsPositive() {
		profit.BreakEvenQuantity = int(fixedCosts.Div(markup).Ceil().IntPart())
	}

	return &Analysis{
		CostBreakdown:   breakdown,
		ProfitAnalysis:  profit,
		Recommendations: recommendations(cost, breakdown, profit),
	}, nil
}

// recommendations is a deterministic advisory list driven by margin bands,
// volume tier presence, competitor price comparison, and ROI bands.
func recommendations(cost *ProductCost, b CostBreakdown, p ProfitAnalysis) []string {
	var recs []string

	marginPct := b.MarginPercentage
	switch {
	case marginPct.GreaterThan(decimal.NewFromInt(80)):
		recs = append(recs, "Margin is exceptionally high; consider lowering price to grow volume")
	case marginPct.GreaterThan(decimal.NewFromInt(60)):
		recs = append(recs, "Healthy premium margin; maintain current pricing")
	case marginPct.GreaterThan(decimal.NewFromInt(40)):
		recs = append(recs, "Margin is moderate; review cost structure for savings")
	default:
		recs = append(recs, "Margin is thin; raise price or reduce costs")
	}

	if len(cost.VolumeTiers) == 0 {
		recs = append(recs, "No volume tiers configured; add tiers to incentivize larger orders")
	}

	if cp := cost.Targets.CompetitorPrice; cp != nil && cp.IsPositive() {
		ratio := b.SellingPrice.Div(*cp)
		switch {
		case ratio.GreaterThan(decimal.NewFromFloat(1.1)):
			recs = append(recs, "Price is more than 10% above competitor; justify with differentiation")
		case ratio.LessThan(decimal.NewFromFloat(0.9)):
			recs = append(recs, "Price is more than 10% below competitor; room to raise price")
		default:
			recs = append(recs, "Price is competitive with the market")
		}
	}

	switch {
	case p.ROI.GreaterThan(decimal.NewFromInt(300)):
		recs = append(recs, "ROI is outstanding; scale marketing spend on this product")
	case p.ROI.LessThan(decimal.NewFromInt(100)):
		recs = append(recs, "ROI is below 100%; re-evaluate product viability")
	}

	return recs
}
