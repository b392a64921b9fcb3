package rule

import (
	"encoding/json"

	"github.com/go-faster/errors"
)

// Payload is the JSON document holding a rule's kind-specific pricing
// payload and its optional discount, A/B, and geographic payloads. It is
// the storage and transport form of everything on a Rule beyond its
// scalar columns.
type Payload struct {
	Fixed        *FixedSpec        `json:"fixed,omitempty"`
	Percentage   *PercentageSpec   `json:"percentage,omitempty"`
	Tiered       *TieredSpec       `json:"tiered,omitempty"`
	Volume       *VolumeSpec       `json:"volume,omitempty"`
	Dynamic      *DynamicSpec      `json:"dynamic,omitempty"`
	Subscription *SubscriptionSpec `json:"subscription,omitempty"`
	Discount     *DiscountSpec     `json:"discount,omitempty"`
	ABTest       *ABTestSpec       `json:"abTest,omitempty"`
	Geo          *GeoSpec          `json:"geo,omitempty"`
}

// EncodePayload serializes the rule's payloads to their JSON document.
func EncodePayload(r *Rule) ([]byte, error) {
	doc := Payload{
		Discount: r.Discount,
		ABTest:   r.ABTest,
		Geo:      r.Geo,
	}
	switch spec := r.Pricing.(type) {
	case nil:
	case FixedSpec:
		doc.Fixed = &spec
	case PercentageSpec:
		doc.Percentage = &spec
	case TieredSpec:
		doc.Tiered = &spec
	case VolumeSpec:
		doc.Volume = &spec
	case DynamicSpec:
		doc.Dynamic = &spec
	case SubscriptionSpec:
		doc.Subscription = &spec
	default:
		return nil, errors.Errorf("unsupported pricing spec %T", r.Pricing)
	}
	return json.Marshal(doc)
}

// DecodePayload deserializes the JSON payload document into the rule.
func DecodePayload(r *Rule, data []byte) error {
	var doc Payload
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "unmarshal rule payload")
	}
	return doc.Apply(r)
}

// Apply copies the document's payloads onto the rule.
func (doc Payload) Apply(r *Rule) error {
	r.Discount = doc.Discount
	r.ABTest = doc.ABTest
	r.Geo = doc.Geo
	r.Pricing = nil

	set := func(s Spec) error {
		if r.Pricing != nil {
			return errors.New("rule payload has multiple pricing specs")
		}
		r.Pricing = s
		return nil
	}
	if doc.Fixed != nil {
		if err := set(*doc.Fixed); err != nil {
			return err
		}
	}
	if doc.Percentage != nil {
		if err := set(*doc.Percentage); err != nil {
			return err
		}
	}
	if doc.Tiered != nil {
		if err := set(*doc.Tiered); err != nil {
			return err
		}
	}
	if doc.Volume != nil {
		if err := set(*doc.Volume); err != nil {
			return err
		}
	}
	if doc.Dynamic != nil {
		if err := set(*doc.Dynamic); err != nil {
			return err
		}
	}
	if doc.Subscription != nil {
		if err := set(*doc.Subscription); err != nil {
			return err
		}
	}
	return nil
}
