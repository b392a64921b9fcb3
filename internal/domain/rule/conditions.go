package rule

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Season tags derived from a request timestamp.
const (
	SeasonHoliday = "holiday"
	SeasonSummer  = "summer"
	SeasonRegular = "regular"
)

// SeasonOf maps a timestamp to its season tag: November–December is holiday,
// June–August is summer, everything else is regular.
func SeasonOf(t time.Time) string {
	switch t.Month() {
	case time.November, time.December:
		return SeasonHoliday
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonRegular
	}
}

// Subject is the request-side view a rule's conditions are evaluated
// against. The pricing engine builds one from each pricing request.
type Subject struct {
	ProductType  string
	Quantity     int
	UserSegment  string
	Region       string
	Channel      string
	CustomerTier string
	OrderValue   decimal.Decimal
	At           time.Time
}

// Conditions is the optional predicate set of a rule. Every field is
// matched only when set; an empty Conditions matches any subject.
type Conditions struct {
	ProductTypes  []string         `json:"productTypes,omitempty"`
	UserSegments  []string         `json:"userSegments,omitempty"`
	Regions       []string         `json:"regions,omitempty"`
	Channels      []string         `json:"channels,omitempty"`
	MinQuantity   *int             `json:"minQuantity,omitempty"`
	MaxQuantity   *int             `json:"maxQuantity,omitempty"`
	MinOrderValue *decimal.Decimal `json:"minOrderValue,omitempty"`
	MaxOrderValue *decimal.Decimal `json:"maxOrderValue,omitempty"`
	CustomerTiers []string         `json:"customerTiers,omitempty"`
	TimeFrom      *time.Time       `json:"timeFrom,omitempty"`
	TimeUntil     *time.Time       `json:"timeUntil,omitempty"`
	DaysOfWeek    []time.Weekday   `json:"daysOfWeek,omitempty"`
	Seasonality   string           `json:"seasonality,omitempty"`
}

// Match reports whether every present condition holds for the subject.
func (c Conditions) Match(s Subject) bool {
	if !memberOf(c.ProductTypes, s.ProductType) {
		return false
	}
	if !memberOf(c.UserSegments, s.UserSegment) {
		return false
	}
	if !memberOf(c.Regions, s.Region) {
		return false
	}
	if !memberOf(c.Channels, s.Channel) {
		return false
	}
	if !memberOf(c.CustomerTiers, s.CustomerTier) {
		return false
	}
	if c.MinQuantity != nil && s.Quantity < *c.MinQuantity {
		return false
	}
	if c.MaxQuantity != nil && s.Quantity > *c.MaxQuantity {
		return false
	}
	if c.MinOrderValue != nil && s.OrderValue.LessThan(*c.MinOrderValue) {
		return false
	}
	if c.MaxOrderValue != nil && s.OrderValue.GreaterThan(*c.MaxOrderValue) {
		return false
	}
	if c.TimeFrom != nil && s.At.Before(*c.TimeFrom) {
		return false
	}
	if c.TimeUntil != nil && s.At.After(*c.TimeUntil) {
		return false
	}
	if len(c.DaysOfWeek) > 0 && !weekdayIn(c.DaysOfWeek, s.At.Weekday()) {
		return false
	}
	if c.Seasonality != "" && c.Seasonality != SeasonOf(s.At) {
		return false
	}
	return true
}

// memberOf reports set membership, treating an empty set as "any".
func memberOf(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, m := range set {
		if m == v {
			return true
		}
	}
	return false
}

func weekdayIn(days []time.Weekday, d time.Weekday) bool {
	for _, w := range days {
		if w == d {
			return true
		}
	}
	return false
}

// SortByPrecedence orders rules by priority descending, breaking ties by
// most recent update first. This is the canonical rule application order.
func SortByPrecedence(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].UpdatedAt.After(rules[j].UpdatedAt)
	})
}

// Select filters rules down to those that are active, valid at s.At, and
// whose conditions match the subject, returned in precedence order.
func Select(rules []Rule, s Subject) []Rule {
	matched := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !r.Active || !r.ValidAt(s.At) {
			continue
		}
		if !r.Conditions.Match(s) {
			continue
		}
		matched = append(matched, r)
	}
	SortByPrecedence(matched)
	return matched
}
