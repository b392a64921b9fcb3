package pricing

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/borhen68/framatale-sub001/internal/domain/rule"
)

// Sentinel errors for request validation.
var (
	ErrProductTypeRequired = errors.New("product type required")
	ErrInvalidQuantity     = errors.New("quantity must be greater than 0")
)

// Request describes a single price computation. It is immutable for the
// duration of the computation.
type Request struct {
	ProductType   string          `json:"productType"`
	Quantity      int             `json:"quantity"`
	UserID        string          `json:"userId,omitempty"`
	UserSegment   string          `json:"userSegment,omitempty"`
	Region        string          `json:"region,omitempty"`
	Channel       string          `json:"channel,omitempty"`
	CustomerTier  string          `json:"customerTier,omitempty"`
	OrderValue    decimal.Decimal `json:"orderValue,omitempty"`
	ABTestVariant string          `json:"abTestVariant,omitempty"`
	// At defaults to the engine clock when zero.
	At time.Time `json:"at,omitempty"`
}

// Validate checks the request is computable.
func (r Request) Validate() error {
	if r.ProductType == "" {
		return ErrProductTypeRequired
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// subject converts the request into the rule-matching view.
func (r Request) subject() rule.Subject {
	return rule.Subject{
		ProductType:  r.ProductType,
		Quantity:     r.Quantity,
		UserSegment:  r.UserSegment,
		Region:       r.Region,
		Channel:      r.Channel,
		CustomerTier: r.CustomerTier,
		OrderValue:   r.OrderValue,
		At:           r.At,
	}
}

// CacheKey returns the normalized signature under which results for this
// request are cached. Only fields that affect rule selection and rate
// lookups participate.
func (r Request) CacheKey() string {
	return fmt.Sprintf("price:%s:%d:%s:%s", r.ProductType, r.Quantity, r.UserSegment, r.Region)
}
