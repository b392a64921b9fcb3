package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/borhen68/framatale-sub001/internal/analytics"
	"github.com/borhen68/framatale-sub001/internal/domain/rule"
	"github.com/borhen68/framatale-sub001/internal/rates"
)

const (
	// cacheTTL is the absolute lifetime of a cached result.
	cacheTTL = 5 * time.Minute
	// resultVersion tags results with the pipeline revision that produced them.
	resultVersion = "1.0"
	// confidenceDecay is applied to confidence per dynamic adjustment.
	confidenceDecay = 0.9

	defaultCurrency = "USD"

	eventPricingCalculated = "pricing_calculated"
)

var hundred = decimal.NewFromInt(100)

// Engine runs the pricing pipeline: rule selection, base price, discounts,
// taxes, shipping, dynamic adjustment, and finalization. It owns the result
// cache and emits one tracking event per computed price.
type Engine struct {
	rules    rule.Store
	rates    rates.Provider
	cache    Cache
	sink     analytics.Sink
	lg       *zap.Logger
	now      func() time.Time
	demand   DemandFunc
	currency string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDemandFunc overrides the demand signal.
func WithDemandFunc(fn DemandFunc) Option {
	return func(e *Engine) { e.demand = fn }
}

// WithCurrency sets the currency tag on results.
func WithCurrency(c string) Option {
	return func(e *Engine) { e.currency = c }
}

// NewEngine creates a pricing Engine. A nil cache disables caching and a
// nil sink disables tracking.
func NewEngine(rules rule.Store, provider rates.Provider, cache Cache, sink analytics.Sink, lg *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		rules:    rules,
		rates:    provider,
		cache:    cache,
		sink:     sink,
		lg:       lg,
		now:      time.Now,
		demand:   defaultDemand,
		currency: defaultCurrency,
	}
	if e.cache == nil {
		e.cache = NopCache{}
	}
	if e.sink == nil {
		e.sink = analytics.Nop{}
	}
	if e.lg == nil {
		e.lg = zap.NewNop()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// calcOptions are per-call modifiers, used by rule experimentation.
type calcOptions struct {
	skipCache bool
	overrides map[string]bool
}

// CalcOption modifies a single CalculatePrice call.
type CalcOption func(*calcOptions)

// WithoutCache bypasses cache lookup and store for this call.
func WithoutCache() CalcOption {
	return func(o *calcOptions) { o.skipCache = true }
}

// WithRuleOverride forces the given rule's active flag for this call only,
// without touching the store. Overridden calls are never cached.
func WithRuleOverride(ruleID string, active bool) CalcOption {
	return func(o *calcOptions) {
		if o.overrides == nil {
			o.overrides = make(map[string]bool)
		}
		o.overrides[ruleID] = active
	}
}

// CalculatePrice computes an itemized price for the request. A missing base
// rule degrades to a zero price rather than failing; callers should treat an
// empty AppliedRules as a data-quality warning. Rate provider failures are
// surfaced as *rates.LookupError.
func (e *Engine) CalculatePrice(ctx context.Context, req Request, opts ...CalcOption) (*Result, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.At.IsZero() {
		req.At = e.now()
	}

	var co calcOptions
	for _, o := range opts {
		o(&co)
	}
	cacheable := !co.skipCache && len(co.overrides) == 0

	key := req.CacheKey()
	if cacheable {
		if cached, ok := e.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	selected, err := e.selectRules(ctx, req, co.overrides)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Currency: e.currency,
		Metadata: Metadata{
			CalculatedAt: e.now(),
			Version:      resultVersion,
			Confidence:   1.0,
		},
	}

	e.applyBasePrice(req, selected, res)
	e.applyDiscounts(req, selected, res)
	if err := e.applyTaxes(ctx, req, res); err != nil {
		return nil, err
	}
	if err := e.applyShipping(ctx, req, res); err != nil {
		return nil, err
	}
	e.applyDynamic(req, selected, res)
	e.finalize(req, selected, res)

	if len(res.AppliedRules) == 0 {
		e.lg.Warn("no pricing rules applied",
			zap.String("product_type", req.ProductType),
			zap.String("region", req.Region),
		)
	}

	if cacheable {
		e.cache.Set(ctx, key, res, e.now().Add(cacheTTL))
	}
	e.emit(ctx, req, res, time.Since(start))

	return res, nil
}

// selectRules queries the store and returns matching rules in precedence
// order, with per-call overrides applied before matching.
func (e *Engine) selectRules(ctx context.Context, req Request, overrides map[string]bool) ([]rule.Rule, error) {
	found, err := e.rules.FindActive(ctx, rule.Filter{
		ProductType: req.ProductType,
		Region:      req.Region,
		Channel:     req.Channel,
		UserSegment: req.UserSegment,
		At:          req.At,
	})
	if err != nil {
		return nil, errors.Wrap(err, "find pricing rules")
	}

	for id, active := range overrides {
		if !active {
			found = removeRule(found, id)
			continue
		}
		if containsRule(found, id) {
			continue
		}
		r, err := e.rules.Get(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "load overridden rule %s", id)
		}
		forced := *r
		forced.Active = true
		found = append(found, forced)
	}

	return rule.Select(found, req.subject()), nil
}

func containsRule(rules []rule.Rule, id string) bool {
	for _, r := range rules {
		if r.ID == id {
			return true
		}
	}
	return false
}

func removeRule(rules []rule.Rule, id string) []rule.Rule {
	out := rules[:0]
	for _, r := range rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// applyBasePrice resolves the base price from fixed, tiered, and volume
// rules in precedence order.
func (e *Engine) applyBasePrice(req Request, selected []rule.Rule, res *Result) {
	base := decimal.Zero

	for _, r := range selected {
		if spec, ok := r.Pricing.(rule.FixedSpec); ok {
			base = spec.BasePrice
			res.AppliedRules = append(res.AppliedRules, r.Name)
			break
		}
	}

	for _, r := range selected {
		if spec, ok := r.Pricing.(rule.TieredSpec); ok {
			base = spec.PriceFor(req.Quantity)
			res.AppliedRules = append(res.AppliedRules, r.Name)
			break
		}
	}

	if req.Quantity > 1 {
		for _, r := range selected {
			if _, ok := r.Pricing.(rule.VolumeSpec); ok {
				if d := volumeDiscount(req.Quantity); d.IsPositive() {
					base = base.Mul(decimal.NewFromInt(1).Sub(d))
					res.AppliedRules = append(res.AppliedRules, r.Name)
				}
				break
			}
		}
	}

	res.BasePrice = base.Round(2)
	res.FinalPrice = res.BasePrice
}

// volumeDiscount is the standard quantity ladder: 15% at 100+, 10% at 50+,
// 5% at 20+ units.
func volumeDiscount(qty int) decimal.Decimal {
	switch {
	case qty >= 100:
		return decimal.NewFromFloat(0.15)
	case qty >= 50:
		return decimal.NewFromFloat(0.10)
	case qty >= 20:
		return decimal.NewFromFloat(0.05)
	default:
		return decimal.Zero
	}
}

// applyDiscounts subtracts each matching rule's discount sequentially:
// later discounts compound on the already-discounted price.
func (e *Engine) applyDiscounts(req Request, selected []rule.Rule, res *Result) {
	for _, r := range selected {
		if r.Discount == nil {
			continue
		}
		amount, pct := e.discountAmount(req, r.Discount, res)
		if !amount.IsPositive() {
			continue
		}
		amount = decimal.Min(amount, res.FinalPrice).Round(2)

		res.FinalPrice = res.FinalPrice.Sub(amount)
		res.Discounts = append(res.Discounts, AppliedDiscount{
			Type:       r.Discount.Type,
			Amount:     amount,
			Percentage: pct,
			Reason:     r.Name,
		})
		res.AppliedRules = append(res.AppliedRules, r.Name)
	}
}

// discountAmount computes a single discount against the running final price.
// The second return is the effective percentage for percentage-based types.
func (e *Engine) discountAmount(req Request, d *rule.DiscountSpec, res *Result) (decimal.Decimal, *decimal.Decimal) {
	current := res.FinalPrice

	switch d.Type {
	case rule.DiscountFixedAmount:
		return d.Value, nil

	case rule.DiscountPercentage:
		pct := d.Value
		return current.Mul(pct).Div(hundred), &pct

	case rule.DiscountBuyXGetY:
		if d.BuyQuantity <= 0 || d.GetQuantity <= 0 {
			return decimal.Zero, nil
		}
		free := (req.Quantity / d.BuyQuantity) * d.GetQuantity
		if free <= 0 {
			return decimal.Zero, nil
		}
		unit := res.BasePrice.Div(decimal.NewFromInt(int64(req.Quantity)))
		return unit.Mul(decimal.NewFromInt(int64(free))), nil

	case rule.DiscountBulk:
		if req.Quantity < 10 {
			return decimal.Zero, nil
		}
		limit := d.MaxDiscount
		if limit.IsZero() {
			limit = decimal.NewFromInt(50)
		}
		pct := decimal.Min(d.Value, limit)
		return current.Mul(pct).Div(hundred), &pct

	case rule.DiscountLoyalty:
		if req.CustomerTier != "premium" && req.CustomerTier != "vip" {
			return decimal.Zero, nil
		}
		pct := d.Value.Mul(d.LoyaltyMultiplier)
		return current.Mul(pct).Div(hundred), &pct

	default:
		e.lg.Warn("unsupported discount type", zap.String("type", string(d.Type)))
		return decimal.Zero, nil
	}
}

// applyTaxes looks up the region's tax rate. A missing rate means zero tax;
// a failed lookup is surfaced.
func (e *Engine) applyTaxes(ctx context.Context, req Request, res *Result) error {
	if req.Region == "" {
		return nil
	}
	v, err := e.rates.Lookup(ctx, rates.TaxKey(req.Region))
	if err != nil {
		return errors.Wrap(err, "tax rate")
	}
	if v.Missing() {
		e.lg.Warn("no tax rate configured", zap.String("region", req.Region))
		return nil
	}
	rate, ok := v.Field(rates.FieldRate)
	if !ok {
		e.lg.Warn("tax rate value has no rate field", zap.String("region", req.Region))
		return nil
	}
	res.Taxes = append(res.Taxes, TaxLine{
		Type:   "sales_tax",
		Amount: res.FinalPrice.Mul(rate).Div(hundred).Round(2),
		Rate:   rate,
	})
	return nil
}

// applyShipping looks up the region's standard shipping rate. A missing rate
// means no shipping line; a failed lookup is surfaced.
func (e *Engine) applyShipping(ctx context.Context, req Request, res *Result) error {
	if req.Region == "" {
		return nil
	}
	v, err := e.rates.Lookup(ctx, rates.ShippingKey(req.Region))
	if err != nil {
		return errors.Wrap(err, "shipping rate")
	}
	if v.Missing() {
		return nil
	}
	cost, ok := v.Field(rates.FieldStandard)
	if !ok {
		return nil
	}
	res.Shipping = &ShippingLine{Cost: cost.Round(2), Method: "standard"}
	return nil
}

// applyDynamic applies at most one dynamic rule's demand adjustment as an
// additive delta on the final price, decaying confidence per application.
func (e *Engine) applyDynamic(req Request, selected []rule.Rule, res *Result) {
	for _, r := range selected {
		spec, ok := r.Pricing.(rule.DynamicSpec)
		if !ok {
			continue
		}
		demand := e.demand(req.ProductType)
		mult := (1 + demand*spec.DemandMultiplier) * seasonalMultiplier(req.At) * inventoryMultiplier()

		delta := res.FinalPrice.Mul(decimal.NewFromFloat(mult - 1))
		res.FinalPrice = res.FinalPrice.Add(delta)
		res.Metadata.Confidence *= confidenceDecay
		res.AppliedRules = append(res.AppliedRules, r.Name)
		break
	}
}

// seasonalMultiplier raises prices in peak seasons.
func seasonalMultiplier(at time.Time) float64 {
	switch rule.SeasonOf(at) {
	case rule.SeasonHoliday:
		return 1.10
	case rule.SeasonSummer:
		return 1.05
	default:
		return 1.0
	}
}

// inventoryMultiplier is a fixed 1.0 until stock signals are wired in.
func inventoryMultiplier() float64 { return 1.0 }

// finalize computes the breakdown and applies an A/B variant modifier to the
// grand total only.
func (e *Engine) finalize(req Request, selected []rule.Rule, res *Result) {
	res.FinalPrice = res.FinalPrice.Round(2)

	totalDiscounts := decimal.Zero
	for _, d := range res.Discounts {
		totalDiscounts = totalDiscounts.Add(d.Amount)
	}
	totalTaxes := decimal.Zero
	for _, t := range res.Taxes {
		totalTaxes = totalTaxes.Add(t.Amount)
	}
	totalShipping := decimal.Zero
	if res.Shipping != nil {
		totalShipping = res.Shipping.Cost
	}

	res.Breakdown = Breakdown{
		Subtotal:       res.FinalPrice,
		TotalDiscounts: totalDiscounts,
		TotalTaxes:     totalTaxes,
		TotalShipping:  totalShipping,
		GrandTotal:     res.FinalPrice.Add(totalTaxes).Add(totalShipping),
	}

	for _, r := range selected {
		if r.ABTest == nil || len(r.ABTest.Variants) == 0 {
			continue
		}
		v := r.ABTest.Variants[0]
		modifier := decimal.NewFromInt(1).Add(v.PriceModifier)
		res.Breakdown.GrandTotal = res.Breakdown.GrandTotal.Mul(modifier).Round(2)
		res.AppliedRules = append(res.AppliedRules, "ab_test_"+v.Name)
		break
	}
}

// emit hands one tracking event to the analytics sink. Failures are logged
// and never fail the calculation.
func (e *Engine) emit(ctx context.Context, req Request, res *Result, took time.Duration) {
	ev := analytics.Event{
		Name: eventPricingCalculated,
		At:   res.Metadata.CalculatedAt,
		Properties: map[string]any{
			"product_type":  req.ProductType,
			"quantity":      req.Quantity,
			"grand_total":   res.Breakdown.GrandTotal,
			"discounts":     len(res.Discounts),
			"duration":      took,
			"applied_rules": res.AppliedRules,
		},
	}
	if err := e.sink.Record(ctx, ev); err != nil {
		e.lg.Warn("record pricing event failed", zap.Error(err))
	}
}
