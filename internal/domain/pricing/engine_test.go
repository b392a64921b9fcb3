package pricing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borhen68/framatale-sub001/internal/analytics"
	"github.com/borhen68/framatale-sub001/internal/domain/rule"
	"github.com/borhen68/framatale-sub001/internal/rates"
)

// --- Mock implementations ---

type mockRuleStore struct {
	rules   []rule.Rule
	findErr error
}

func (m *mockRuleStore) FindActive(_ context.Context, f rule.Filter) ([]rule.Rule, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	out := make([]rule.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if r.Active && r.ValidAt(f.At) {
			out = append(out, r)
		}
	}
	rule.SortByPrecedence(out)
	return out, nil
}

func (m *mockRuleStore) List(_ context.Context) ([]rule.Rule, error) {
	return m.rules, nil
}

func (m *mockRuleStore) Get(_ context.Context, id string) (*rule.Rule, error) {
	for i := range m.rules {
		if m.rules[i].ID == id {
			r := m.rules[i]
			return &r, nil
		}
	}
	return nil, &rule.NotFoundError{ID: id}
}

func (m *mockRuleStore) Create(_ context.Context, r *rule.Rule) error { return nil }
func (m *mockRuleStore) Update(_ context.Context, r *rule.Rule) error { return nil }
func (m *mockRuleStore) Delete(_ context.Context, id string) error    { return nil }

type failingProvider struct{}

func (failingProvider) Lookup(_ context.Context, key string) (rates.Value, error) {
	return rates.Value{}, &rates.LookupError{Key: key, Err: errors.New("connection refused")}
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*Result
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*Result)}
}

func (c *memCache) Get(_ context.Context, key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *memCache) Set(_ context.Context, key string, res *Result, _ time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = res
}

type captureSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *captureSink) Record(_ context.Context, ev analytics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// --- Helpers ---

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedRule(id string, priority int, price int64) rule.Rule {
	return rule.Rule{
		ID: id, Name: id, Kind: rule.KindFixed, Active: true, Priority: priority,
		Pricing: rule.FixedSpec{BasePrice: decimal.NewFromInt(price)},
	}
}

func discountRule(id string, priority int, spec rule.DiscountSpec) rule.Rule {
	return rule.Rule{
		ID: id, Name: id, Kind: rule.KindPercentage, Active: true, Priority: priority,
		Discount: &spec,
	}
}

func newTestEngine(store rule.Store, provider rates.Provider, opts ...Option) *Engine {
	if provider == nil {
		provider = rates.NewStatic(nil)
	}
	base := []Option{WithClock(func() time.Time { return testNow })}
	return NewEngine(store, provider, nil, nil, nil, append(base, opts...)...)
}

func calculate(t *testing.T, e *Engine, req Request) *Result {
	t.Helper()
	res, err := e.CalculatePrice(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// --- Tests ---

func TestCalculatePrice_Validation(t *testing.T) {
	e := newTestEngine(&mockRuleStore{}, nil)

	_, err := e.CalculatePrice(context.Background(), Request{Quantity: 1})
	require.ErrorIs(t, err, ErrProductTypeRequired)

	_, err = e.CalculatePrice(context.Background(), Request{ProductType: "photo_book"})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCalculatePrice_NoRulesYieldsZero(t *testing.T) {
	e := newTestEngine(&mockRuleStore{}, nil)

	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1})

	assert.True(t, res.BasePrice.IsZero())
	assert.True(t, res.Breakdown.GrandTotal.IsZero())
	assert.Empty(t, res.AppliedRules)
}

func TestCalculatePrice_PriorityWins(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("cheap", 5, 25),
		fixedRule("premium", 10, 40),
	}}
	e := newTestEngine(store, nil)

	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1})

	assert.True(t, res.BasePrice.Equal(decimal.NewFromInt(40)),
		"expected 40, got %s", res.BasePrice)
	assert.Equal(t, []string{"premium"}, res.AppliedRules)
}

func TestCalculatePrice_TieredOverridesFixed(t *testing.T) {
	ten := 10
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("flat", 10, 40),
		{
			ID: "tiers", Name: "tiers", Kind: rule.KindTiered, Active: true, Priority: 5,
			Pricing: rule.TieredSpec{
				Tiers: []rule.Tier{
					{MinQuantity: 1, MaxQuantity: &ten, Price: decimal.NewFromInt(35)},
					{MinQuantity: 11, Price: decimal.NewFromInt(30)},
				},
				BasePrice: decimal.NewFromInt(40),
			},
		},
	}}
	e := newTestEngine(store, nil)

	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 5})
	assert.True(t, res.BasePrice.Equal(decimal.NewFromInt(35)))

	res = calculate(t, e, Request{ProductType: "photo_book", Quantity: 20})
	assert.True(t, res.BasePrice.Equal(decimal.NewFromInt(30)))
}

func TestCalculatePrice_VolumeLadder(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("flat", 10, 100),
		{ID: "vol", Name: "vol", Kind: rule.KindVolume, Active: true, Priority: 5,
			Pricing: rule.VolumeSpec{}},
	}}
	e := newTestEngine(store, nil)

	tests := []struct {
		qty  int
		want string
	}{
		{qty: 19, want: "100"},
		{qty: 20, want: "95"},
		{qty: 49, want: "95"},
		{qty: 50, want: "90"},
		{qty: 100, want: "85"},
	}
	for _, tt := range tests {
		res := calculate(t, e, Request{ProductType: "photo_book", Quantity: tt.qty})
		assert.True(t, res.BasePrice.Equal(decimal.RequireFromString(tt.want)),
			"qty %d: expected %s, got %s", tt.qty, tt.want, res.BasePrice)
	}
}

func TestCalculatePrice_DiscountStackingCompounds(t *testing.T) {
	// 10% then 20% on a $100 base: 100 * 0.9 * 0.8 = 72, not 70.
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("base", 100, 100),
		discountRule("ten-off", 20, rule.DiscountSpec{
			Type: rule.DiscountPercentage, Value: decimal.NewFromInt(10),
		}),
		discountRule("twenty-off", 10, rule.DiscountSpec{
			Type: rule.DiscountPercentage, Value: decimal.NewFromInt(20),
		}),
	}}
	e := newTestEngine(store, nil)

	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1})

	require.Len(t, res.Discounts, 2)
	assert.True(t, res.Discounts[0].Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, res.Discounts[1].Amount.Equal(decimal.NewFromInt(18)))
	assert.True(t, res.FinalPrice.Equal(decimal.NewFromInt(72)),
		"expected 72, got %s", res.FinalPrice)
	assert.Equal(t, "ten-off", res.Discounts[0].Reason)
}

func TestCalculatePrice_DiscountTypes(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		spec      rule.DiscountSpec
		wantFinal string
	}{
		{
			name:      "fixed amount",
			req:       Request{ProductType: "photo_book", Quantity: 1},
			spec:      rule.DiscountSpec{Type: rule.DiscountFixedAmount, Value: decimal.NewFromInt(15)},
			wantFinal: "85",
		},
		{
			name: "buy 2 get 1: 2 free units of 6 at 100/6 each",
			req:  Request{ProductType: "photo_book", Quantity: 6},
			spec: rule.DiscountSpec{
				Type: rule.DiscountBuyXGetY, BuyQuantity: 2, GetQuantity: 1,
			},
			// 6/2*1 = 3 free units at 100/6 = 50 off.
			wantFinal: "50",
		},
		{
			name:      "bulk below quantity threshold is ignored",
			req:       Request{ProductType: "photo_book", Quantity: 9},
			spec:      rule.DiscountSpec{Type: rule.DiscountBulk, Value: decimal.NewFromInt(20)},
			wantFinal: "100",
		},
		{
			name:      "bulk capped at 50 percent",
			req:       Request{ProductType: "photo_book", Quantity: 10},
			spec:      rule.DiscountSpec{Type: rule.DiscountBulk, Value: decimal.NewFromInt(80)},
			wantFinal: "50",
		},
		{
			name: "bulk honors rule cap",
			req:  Request{ProductType: "photo_book", Quantity: 10},
			spec: rule.DiscountSpec{
				Type: rule.DiscountBulk, Value: decimal.NewFromInt(30),
				MaxDiscount: decimal.NewFromInt(25),
			},
			wantFinal: "75",
		},
		{
			name: "loyalty for premium tier",
			req:  Request{ProductType: "photo_book", Quantity: 1, CustomerTier: "premium"},
			spec: rule.DiscountSpec{
				Type: rule.DiscountLoyalty, Value: decimal.NewFromInt(10),
				LoyaltyMultiplier: decimal.NewFromFloat(1.5),
			},
			wantFinal: "85",
		},
		{
			name: "loyalty ignored for standard tier",
			req:  Request{ProductType: "photo_book", Quantity: 1, CustomerTier: "standard"},
			spec: rule.DiscountSpec{
				Type: rule.DiscountLoyalty, Value: decimal.NewFromInt(10),
				LoyaltyMultiplier: decimal.NewFromFloat(1.5),
			},
			wantFinal: "100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockRuleStore{rules: []rule.Rule{
				fixedRule("base", 100, 100),
				discountRule("promo", 10, tt.spec),
			}}
			e := newTestEngine(store, nil)

			res := calculate(t, e, tt.req)
			assert.True(t, res.FinalPrice.Equal(decimal.RequireFromString(tt.wantFinal)),
				"expected %s, got %s", tt.wantFinal, res.FinalPrice)
		})
	}
}

func TestCalculatePrice_TaxesAndShipping(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{fixedRule("base", 10, 100)}}
	provider := rates.NewStatic(map[string]map[string]decimal.Decimal{
		"tax_rates_US":      {rates.FieldRate: decimal.NewFromFloat(8.25)},
		"shipping_rates_US": {rates.FieldStandard: decimal.NewFromFloat(5.99)},
	})
	e := newTestEngine(store, provider)

	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1, Region: "US"})

	require.Len(t, res.Taxes, 1)
	assert.Equal(t, "sales_tax", res.Taxes[0].Type)
	assert.True(t, res.Taxes[0].Amount.Equal(decimal.NewFromFloat(8.25)))
	require.NotNil(t, res.Shipping)
	assert.Equal(t, "standard", res.Shipping.Method)
	assert.True(t, res.Shipping.Cost.Equal(decimal.NewFromFloat(5.99)))

	// grandTotal == finalPrice + taxes + shipping.
	want := res.FinalPrice.Add(res.Breakdown.TotalTaxes).Add(res.Breakdown.TotalShipping)
	assert.True(t, res.Breakdown.GrandTotal.Equal(want))
}

func TestCalculatePrice_MissingRatesMeanZero(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{fixedRule("base", 10, 100)}}
	e := newTestEngine(store, rates.NewStatic(nil))

	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1, Region: "MARS"})

	assert.Empty(t, res.Taxes)
	assert.Nil(t, res.Shipping)
	assert.True(t, res.Breakdown.GrandTotal.Equal(res.FinalPrice))
}

func TestCalculatePrice_RateLookupFailureSurfaces(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{fixedRule("base", 10, 100)}}
	e := newTestEngine(store, failingProvider{})

	_, err := e.CalculatePrice(context.Background(), Request{
		ProductType: "photo_book", Quantity: 1, Region: "US",
	})

	var lookupErr *rates.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "tax_rates_US", lookupErr.Key)
}

func TestCalculatePrice_DynamicAdjustment(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("base", 10, 100),
		{ID: "dyn", Name: "dyn", Kind: rule.KindDynamic, Active: true, Priority: 5,
			Pricing: rule.DynamicSpec{DemandMultiplier: 1.0}},
	}}
	e := newTestEngine(store, nil, WithDemandFunc(func(string) float64 { return 0.1 }))

	// March: seasonal multiplier 1.0, inventory 1.0, so adjustment = 1.1.
	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1})

	assert.True(t, res.FinalPrice.Equal(decimal.NewFromInt(110)),
		"expected 110, got %s", res.FinalPrice)
	assert.InDelta(t, 0.9, res.Metadata.Confidence, 1e-9)
	assert.Contains(t, res.AppliedRules, "dyn")
}

func TestCalculatePrice_SeasonalMultiplier(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("base", 10, 100),
		{ID: "dyn", Name: "dyn", Kind: rule.KindDynamic, Active: true, Priority: 5,
			Pricing: rule.DynamicSpec{DemandMultiplier: 0}},
	}}
	e := newTestEngine(store, nil, WithDemandFunc(func(string) float64 { return 0 }))

	december := time.Date(2025, time.December, 5, 0, 0, 0, 0, time.UTC)
	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1, At: december})
	assert.True(t, res.FinalPrice.Equal(decimal.NewFromInt(110)),
		"holiday season: expected 110, got %s", res.FinalPrice)

	july := time.Date(2025, time.July, 5, 0, 0, 0, 0, time.UTC)
	res = calculate(t, e, Request{ProductType: "photo_book", Quantity: 1, At: july})
	assert.True(t, res.FinalPrice.Equal(decimal.NewFromInt(105)),
		"summer season: expected 105, got %s", res.FinalPrice)
}

func TestCalculatePrice_ABVariantAppliesToGrandTotalOnly(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("base", 10, 100),
		{ID: "exp", Name: "exp", Kind: rule.KindPercentage, Active: true, Priority: 5,
			ABTest: &rule.ABTestSpec{Variants: []rule.Variant{
				{Name: "higher", Percentage: 50, PriceModifier: decimal.NewFromFloat(0.05)},
				{Name: "control", Percentage: 50, PriceModifier: decimal.Zero},
			}},
		},
	}}
	provider := rates.NewStatic(map[string]map[string]decimal.Decimal{
		"tax_rates_US": {rates.FieldRate: decimal.NewFromInt(10)},
	})
	e := newTestEngine(store, provider)

	res := calculate(t, e, Request{ProductType: "photo_book", Quantity: 1, Region: "US"})

	// Pre-variant total: 100 + 10 tax = 110; variant raises it to 115.50.
	assert.True(t, res.FinalPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, res.Breakdown.GrandTotal.Equal(decimal.RequireFromString("115.5")),
		"expected 115.5, got %s", res.Breakdown.GrandTotal)
	assert.Contains(t, res.AppliedRules, "ab_test_higher")
}

func TestCalculatePrice_CacheIdempotence(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{fixedRule("base", 10, 100)}}
	cache := newMemCache()
	sink := &captureSink{}
	e := NewEngine(store, rates.NewStatic(nil), cache, sink, nil,
		WithClock(func() time.Time { return testNow }))

	req := Request{ProductType: "photo_book", Quantity: 2, UserSegment: "consumer", Region: "US"}

	first, err := e.CalculatePrice(context.Background(), req)
	require.NoError(t, err)
	second, err := e.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	// The cached result is returned verbatim, including CalculatedAt.
	assert.Same(t, first, second)
	// Cache hits do not emit tracking events.
	assert.Equal(t, 1, sink.count())
}

func TestCalculatePrice_OverriddenCallsSkipCache(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("base", 10, 100),
		{ID: "inactive", Name: "inactive", Kind: rule.KindPercentage, Active: false, Priority: 99,
			Discount: &rule.DiscountSpec{Type: rule.DiscountPercentage, Value: decimal.NewFromInt(50)}},
	}}
	cache := newMemCache()
	e := NewEngine(store, rates.NewStatic(nil), cache, nil, nil,
		WithClock(func() time.Time { return testNow }))

	req := Request{ProductType: "photo_book", Quantity: 1}

	plain, err := e.CalculatePrice(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, plain.FinalPrice.Equal(decimal.NewFromInt(100)))

	forced, err := e.CalculatePrice(context.Background(), req, WithRuleOverride("inactive", true))
	require.NoError(t, err)
	assert.True(t, forced.FinalPrice.Equal(decimal.NewFromInt(50)),
		"expected 50 with forced rule, got %s", forced.FinalPrice)

	// The overridden result must not poison the cache.
	again, err := e.CalculatePrice(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.FinalPrice.Equal(decimal.NewFromInt(100)))
}

func TestCalculatePrice_OverrideDeactivates(t *testing.T) {
	store := &mockRuleStore{rules: []rule.Rule{
		fixedRule("base", 10, 100),
		discountRule("promo", 5, rule.DiscountSpec{
			Type: rule.DiscountPercentage, Value: decimal.NewFromInt(10),
		}),
	}}
	e := newTestEngine(store, nil)

	res, err := e.CalculatePrice(context.Background(),
		Request{ProductType: "photo_book", Quantity: 1},
		WithRuleOverride("promo", false))
	require.NoError(t, err)
	assert.True(t, res.FinalPrice.Equal(decimal.NewFromInt(100)))
}

func TestCalculatePrice_StoreErrorPropagates(t *testing.T) {
	e := newTestEngine(&mockRuleStore{findErr: errors.New("db down")}, nil)

	_, err := e.CalculatePrice(context.Background(), Request{ProductType: "photo_book", Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find pricing rules")
}
