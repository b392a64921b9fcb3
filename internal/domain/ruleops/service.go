// Package ruleops manages the pricing rule lifecycle and ad-hoc rule
// experimentation on top of the pricing engine.
package ruleops

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
	"github.com/borhen68/framatale-sub001/internal/domain/rule"
)

// PriceCalculator is the slice of the pricing engine the service uses.
type PriceCalculator interface {
	CalculatePrice(ctx context.Context, req pricing.Request, opts ...pricing.CalcOption) (*pricing.Result, error)
}

// Service provides rule CRUD and non-persistent rule experiments.
type Service struct {
	rules rule.Store
	calc  PriceCalculator
	lg    *zap.Logger
	now   func() time.Time
}

// NewService creates a rule management Service.
func NewService(rules rule.Store, calc PriceCalculator, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{rules: rules, calc: calc, lg: lg, now: time.Now}
}

// CreateRule validates and persists a new rule, assigning an id and
// timestamps.
func (s *Service) CreateRule(ctx context.Context, r *rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.rules.Create(ctx, r); err != nil {
		return errors.Wrap(err, "create rule")
	}
	s.lg.Info("pricing rule created",
		zap.String("rule_id", r.ID),
		zap.String("name", r.Name),
	)
	return nil
}

// UpdateRule validates and persists changes to an existing rule.
// Returns *rule.NotFoundError when the rule does not exist.
func (s *Service) UpdateRule(ctx context.Context, r *rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	existing, err := s.rules.Get(ctx, r.ID)
	if err != nil {
		return err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = s.now()

	if err := s.rules.Update(ctx, r); err != nil {
		return errors.Wrap(err, "update rule")
	}
	return nil
}

// GetRule returns a single rule by id.
// Returns *rule.NotFoundError when the rule does not exist.
func (s *Service) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	return s.rules.Get(ctx, id)
}

// ListRules returns every rule, active or not, in precedence order.
func (s *Service) ListRules(ctx context.Context) ([]rule.Rule, error) {
	return s.rules.List(ctx)
}

// DeactivateRule soft-deletes a rule by clearing its active flag, keeping
// it referenceable from historical results.
func (s *Service) DeactivateRule(ctx context.Context, id string) error {
	r, err := s.rules.Get(ctx, id)
	if err != nil {
		return err
	}
	if !r.Active {
		return nil
	}
	r.Active = false
	r.UpdatedAt = s.now()
	return s.rules.Update(ctx, r)
}

// DeleteRule removes a rule permanently.
// Returns *rule.NotFoundError when the rule does not exist.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	return s.rules.Delete(ctx, id)
}

// Difference is the price delta between the two arms of a rule test.
type Difference struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// TestReport compares the price as-is against the price with the target
// rule forced active.
type TestReport struct {
	RuleID        string          `json:"ruleId"`
	OriginalPrice *pricing.Result `json:"originalPrice"`
	TestPrice     *pricing.Result `json:"testPrice"`
	Difference    Difference      `json:"difference"`
}

// TestRule prices the request twice: once against the current rule state and
// once with the target rule forced active. Both computations are pure
// simulations through per-call overrides; the store is never mutated and the
// cache is bypassed, so concurrent real calculations are unaffected.
func (s *Service) TestRule(ctx context.Context, ruleID string, req pricing.Request) (*TestReport, error) {
	if _, err := s.rules.Get(ctx, ruleID); err != nil {
		return nil, err
	}

	original, err := s.calc.CalculatePrice(ctx, req, pricing.WithoutCache())
	if err != nil {
		return nil, errors.Wrap(err, "price original")
	}

	test, err := s.calc.CalculatePrice(ctx, req,
		pricing.WithoutCache(),
		pricing.WithRuleOverride(ruleID, true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "price with rule forced")
	}

	amount := test.Breakdown.GrandTotal.Sub(original.Breakdown.GrandTotal)
	percentage := decimal.Zero
	if original.Breakdown.GrandTotal.IsPositive() {
		percentage = amount.Div(original.Breakdown.GrandTotal).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return &TestReport{
		RuleID:        ruleID,
		OriginalPrice: original,
		TestPrice:     test,
		Difference:    Difference{Amount: amount.Round(2), Percentage: percentage},
	}, nil
}
