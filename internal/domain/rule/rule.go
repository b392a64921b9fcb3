package rule

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Scope describes how broadly a pricing rule applies.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProduct Scope = "product"
	ScopeUser    Scope = "user"
	ScopeRegion  Scope = "region"
	ScopeChannel Scope = "channel"
)

// Kind enumerates the supported pricing rule kinds.
type Kind string

const (
	KindFixed        Kind = "fixed"
	KindPercentage   Kind = "percentage"
	KindTiered       Kind = "tiered"
	KindVolume       Kind = "volume"
	KindDynamic      Kind = "dynamic"
	KindSubscription Kind = "subscription"
)

// ErrInvalidRule is returned when a rule fails structural validation.
var ErrInvalidRule = errors.New("invalid pricing rule")

// NotFoundError indicates a rule id that does not exist in the store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "pricing rule " + e.ID + " not found"
}

// Rule is a pricing rule: identity and ordering metadata, eligibility
// conditions, a kind-specific pricing payload, and optional orthogonal
// payloads for discounts, A/B testing, and geographic rate overrides.
type Rule struct {
	ID         string
	Name       string
	Kind       Kind
	Scope      Scope
	Priority   int
	Active     bool
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Conditions Conditions

	// Pricing is nil for rules that only carry a discount payload
	// (typically KindPercentage).
	Pricing  Spec
	Discount *DiscountSpec
	ABTest   *ABTestSpec
	Geo      *GeoSpec

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidAt reports whether the rule's validity window contains t.
// A missing bound is unbounded on that side.
func (r *Rule) ValidAt(t time.Time) bool {
	if r.ValidFrom != nil && t.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && t.After(*r.ValidUntil) {
		return false
	}
	return true
}

// Validate checks structural consistency of the rule.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return errors.Wrap(ErrInvalidRule, "name required")
	}
	switch r.Kind {
	case KindFixed, KindPercentage, KindTiered, KindVolume, KindDynamic, KindSubscription:
	default:
		return errors.Wrapf(ErrInvalidRule, "unknown kind %q", r.Kind)
	}
	if r.Pricing != nil && r.Pricing.Kind() != r.Kind {
		return errors.Wrapf(ErrInvalidRule, "pricing payload kind %q does not match rule kind %q",
			r.Pricing.Kind(), r.Kind)
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return errors.Wrap(ErrInvalidRule, "validity window ends before it starts")
	}
	return nil
}

// Spec is the kind-specific pricing payload of a rule.
type Spec interface {
	Kind() Kind
}

// FixedSpec prices the whole requested quantity at a flat base price.
type FixedSpec struct {
	BasePrice decimal.Decimal `json:"basePrice"`
}

func (FixedSpec) Kind() Kind { return KindFixed }

// Tier is a quantity bracket with its price.
type Tier struct {
	MinQuantity int `json:"minQuantity"`
	// MaxQuantity is nil for an open-ended top bracket.
	MaxQuantity *int            `json:"maxQuantity,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// Contains reports whether qty falls inside the tier's bracket.
func (t Tier) Contains(qty int) bool {
	if qty < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || qty <= *t.MaxQuantity
}

// TieredSpec prices by which quantity bracket the request falls into.
type TieredSpec struct {
	Tiers []Tier `json:"tiers"`
	// BasePrice is the fallback when no tier contains the quantity.
	BasePrice decimal.Decimal `json:"basePrice"`
}

func (TieredSpec) Kind() Kind { return KindTiered }

// PriceFor returns the price of the tier containing qty, or the fallback
// base price when no tier matches.
func (s TieredSpec) PriceFor(qty int) decimal.Decimal {
	for _, t := range s.Tiers {
		if t.Contains(qty) {
			return t.Price
		}
	}
	return s.BasePrice
}

// VolumeSpec marks a rule that applies the standard volume discount ladder
// to the base price.
type VolumeSpec struct{}

func (VolumeSpec) Kind() Kind { return KindVolume }

// DynamicSpec configures demand-driven price adjustment.
type DynamicSpec struct {
	DemandMultiplier  float64       `json:"demandMultiplier"`
	SeasonalityFactor float64       `json:"seasonalityFactor"`
	InventoryLevel    int           `json:"inventoryLevel"`
	UpdateFrequency   time.Duration `json:"updateFrequency"`
}

func (DynamicSpec) Kind() Kind { return KindDynamic }

// SubscriptionSpec is the recurring-billing payload. The quote pipeline does
// not price subscriptions; the payload is carried for the billing subsystem.
type SubscriptionSpec struct {
	BasePrice    decimal.Decimal `json:"basePrice"`
	BillingCycle string          `json:"billingCycle"`
}

func (SubscriptionSpec) Kind() Kind { return KindSubscription }

// PercentageSpec carries a markup percentage over an externally supplied
// base, for rules whose effect is expressed in their discount payload.
type PercentageSpec struct {
	Markup decimal.Decimal `json:"markup"`
}

func (PercentageSpec) Kind() Kind { return KindPercentage }

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	DiscountFixedAmount DiscountType = "fixed_amount"
	DiscountPercentage  DiscountType = "percentage"
	DiscountBuyXGetY    DiscountType = "buy_x_get_y"
	DiscountBulk        DiscountType = "bulk"
	DiscountLoyalty     DiscountType = "loyalty"
)

// DiscountSpec is a rule's optional discount payload.
type DiscountSpec struct {
	Type DiscountType `json:"type"`
	// Value is a monetary amount for fixed_amount, a percentage otherwise.
	Value decimal.Decimal `json:"value"`
	// MaxDiscount caps the percentage for bulk discounts. Zero means the
	// built-in 50% cap.
	MaxDiscount       decimal.Decimal `json:"maxDiscount,omitempty"`
	BuyQuantity       int             `json:"buyQuantity,omitempty"`
	GetQuantity       int             `json:"getQuantity,omitempty"`
	LoyaltyMultiplier decimal.Decimal `json:"loyaltyMultiplier,omitempty"`
}

// Variant is one arm of an A/B price experiment.
type Variant struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	// PriceModifier is applied as grandTotal * (1 + PriceModifier).
	PriceModifier decimal.Decimal `json:"priceModifier"`
}

// ABTestSpec is a rule's optional experimentation payload.
type ABTestSpec struct {
	Variants []Variant `json:"variants"`
}

// GeoSpec carries per-region rate overrides. The quote pipeline sources tax
// and shipping from the rate provider; these maps are kept for regional
// rollout tooling.
type GeoSpec struct {
	ExchangeRates map[string]decimal.Decimal `json:"exchangeRates,omitempty"`
	TaxRates      map[string]decimal.Decimal `json:"taxRates,omitempty"`
	ShippingRates map[string]decimal.Decimal `json:"shippingRates,omitempty"`
}

// Filter narrows a rule store query. Zero-valued fields are ignored.
// At bounds the validity window check; stores must only return rules that
// are active and valid at that instant.
type Filter struct {
	ProductType string
	Region      string
	Channel     string
	UserSegment string
	At          time.Time
}

// Store provides retrieval and mutation of pricing rules.
// FindActive returns rules ordered by priority descending, then most
// recently updated first. List returns every rule regardless of state.
type Store interface {
	FindActive(ctx context.Context, f Filter) ([]Rule, error)
	List(ctx context.Context) ([]Rule, error)
	Get(ctx context.Context, id string) (*Rule, error)
	Create(ctx context.Context, r *Rule) error
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id string) error
}
