package costplus

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	cost *ProductCost
	err  error
}

func (m *mockCatalog) FindActiveCost(_ context.Context, _, _, _ string) (*ProductCost, error) {
	return m.cost, m.err
}

func intPtr(v int) *int { return &v }

func newPhotoBookCost() *ProductCost {
	c := &ProductCost{
		ID:          "cost-1",
		ProductType: "photo_book",
		Active:      true,
		Costs: Costs{
			BaseCost:           decimal.RequireFromString("4.00"),
			ShippingCost:       decimal.RequireFromString("0.50"),
			HandlingFee:        decimal.RequireFromString("0.25"),
			QualityControlCost: decimal.RequireFromString("0.15"),
			PackagingCost:      decimal.RequireFromString("0.10"),
		},
		Targets: Targets{
			TargetSellingPrice: decimal.RequireFromString("22.00"),
			TargetMargin:       decimal.RequireFromString("77.27"),
			MinimumMargin:      decimal.NewFromInt(50),
		},
	}
	c.Costs.Recompute()
	return c
}

func TestCosts_Recompute(t *testing.T) {
	c := newPhotoBookCost()
	assert.True(t, c.Costs.TotalCost.Equal(decimal.RequireFromString("5.00")),
		"expected 5.00, got %s", c.Costs.TotalCost)
}

func TestProductCost_RecommendedPrice(t *testing.T) {
	c := newPhotoBookCost()

	// 5.00 / (1 - 0.7727) ≈ 22.0
	got := c.RecommendedPrice()
	diff := got.Sub(decimal.NewFromInt(22)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.05)),
		"expected ~22, got %s", got)
}

func TestProductCost_UnitCost(t *testing.T) {
	c := newPhotoBookCost()
	c.VolumeTiers = []VolumeTier{
		{MinQuantity: 10, MaxQuantity: intPtr(49), UnitCost: decimal.RequireFromString("4.50")},
		{MinQuantity: 50, UnitCost: decimal.RequireFromString("4.00")},
	}

	assert.True(t, c.UnitCost(1).Equal(decimal.RequireFromString("5.00")), "no tier match falls back to total cost")
	assert.True(t, c.UnitCost(10).Equal(decimal.RequireFromString("4.50")))
	assert.True(t, c.UnitCost(49).Equal(decimal.RequireFromString("4.50")))
	assert.True(t, c.UnitCost(200).Equal(decimal.RequireFromString("4.00")))
}

func TestCalculate_Breakdown(t *testing.T) {
	calc := NewCalculator(&mockCatalog{cost: newPhotoBookCost()})

	got, err := calc.Calculate(context.Background(), Request{ProductType: "photo_book", Quantity: 10})
	require.NoError(t, err)

	b := got.CostBreakdown
	assert.True(t, b.COGS.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, b.Markup.Equal(decimal.RequireFromString("17.00")))
	assert.True(t, b.MarkupPercentage.Equal(decimal.NewFromInt(340)),
		"expected 340, got %s", b.MarkupPercentage)
	assert.True(t, b.Margin.Equal(decimal.RequireFromString("17.00")))
	assert.True(t, b.MarginPercentage.Equal(decimal.RequireFromString("77.27")),
		"expected 77.27, got %s", b.MarginPercentage)

	p := got.ProfitAnalysis
	assert.True(t, p.UnitProfit.Equal(decimal.RequireFromString("17.00")))
	assert.True(t, p.TotalProfit.Equal(decimal.RequireFromString("170.00")))
	assert.True(t, p.ROI.Equal(decimal.NewFromInt(340)))
	// ceil(1000 / 17) = 59
	assert.Equal(t, 59, p.BreakEvenQuantity)
	// 5.00 * 4.5 = 22.50
	assert.True(t, p.RecommendedPrice.Equal(decimal.RequireFromString("22.50")))
}

func TestCalculate_CostNotFound(t *testing.T) {
	calc := NewCalculator(&mockCatalog{})

	_, err := calc.Calculate(context.Background(), Request{ProductType: "mug", Variant: "xl", Quantity: 1})

	var nfErr *CostNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "mug", nfErr.ProductType)
	assert.Contains(t, nfErr.Error(), "variant xl")
}

func TestCalculate_InvalidQuantity(t *testing.T) {
	calc := NewCalculator(&mockCatalog{cost: newPhotoBookCost()})

	_, err := calc.Calculate(context.Background(), Request{ProductType: "photo_book", Quantity: 0})
	require.Error(t, err)
}

func TestRecommendations(t *testing.T) {
	competitor := decimal.NewFromInt(20)

	tests := []struct {
		name    string
		mutate  func(c *ProductCost)
		wantSub []string
	}{
		{
			name:   "high margin without tiers",
			mutate: func(c *ProductCost) {},
			wantSub: []string{
				"Healthy premium margin",
				"No volume tiers configured",
				"ROI is outstanding",
			},
		},
		{
			name: "thin margin and weak roi",
			mutate: func(c *ProductCost) {
				c.Targets.TargetSellingPrice = decimal.RequireFromString("6.00")
			},
			wantSub: []string{
				"Margin is thin",
				"ROI is below 100%",
			},
		},
		{
			name: "above competitor price",
			mutate: func(c *ProductCost) {
				c.Targets.CompetitorPrice = &competitor
				c.Targets.TargetSellingPrice = decimal.RequireFromString("25.00")
			},
			wantSub: []string{
				"above competitor",
			},
		},
		{
			name: "competitive price",
			mutate: func(c *ProductCost) {
				c.Targets.CompetitorPrice = &competitor
				c.Targets.TargetSellingPrice = decimal.RequireFromString("21.00")
			},
			wantSub: []string{
				"competitive with the market",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := newPhotoBookCost()
			tt.mutate(cost)
			calc := NewCalculator(&mockCatalog{cost: cost})

			got, err := calc.Calculate(context.Background(), Request{ProductType: "photo_book", Quantity: 1})
			require.NoError(t, err)

			joined := ""
			for _, r := range got.Recommendations {
				joined += r + "\n"
			}
			for _, want := range tt.wantSub {
				assert.Contains(t, joined, want)
			}
		})
	}
}
