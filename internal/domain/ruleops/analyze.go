package ruleops

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/borhen68/framatale-sub001/internal/domain/rule"
)

// Finding severities.
const (
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Finding codes.
const (
	CodeExpiredActive     = "expired_active"
	CodeAmbiguousBase     = "ambiguous_base_price"
	CodeDeepStacking      = "deep_discount_stacking"
	CodeInactiveLingering = "inactive_lingering"
)

// maxStackedDiscounts is the advisory limit on discount rules that can
// stack on one product type.
const maxStackedDiscounts = 3

// Finding is one observation from a rule set audit.
type Finding struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	RuleID   string `json:"ruleId,omitempty"`
	RuleName string `json:"ruleName,omitempty"`
	Message  string `json:"message"`
}

// Analyze audits the full rule set and returns deterministic optimization
// findings: expired rules still flagged active, base-price ambiguity between
// same-priority rules, discount stacking depth, and lingering inactive rules.
func (s *Service) Analyze(ctx context.Context) ([]Finding, error) {
	all, err := s.rules.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	now := s.now()

	var findings []Finding

	for _, r := range all {
		if r.Active && r.ValidUntil != nil && r.ValidUntil.Before(now) {
			findings = append(findings, Finding{
				Code:     CodeExpiredActive,
				Severity: SeverityWarning,
				RuleID:   r.ID,
				RuleName: r.Name,
				Message:  fmt.Sprintf("rule %q expired %s but is still active", r.Name, r.ValidUntil.Format("2006-01-02")),
			})
		}
		if !r.Active {
			findings = append(findings, Finding{
				Code:     CodeInactiveLingering,
				Severity: SeverityInfo,
				RuleID:   r.ID,
				RuleName: r.Name,
				Message:  fmt.Sprintf("rule %q is inactive; archive it if no longer referenced", r.Name),
			})
		}
	}

	findings = append(findings, basePriceAmbiguities(all)...)
	findings = append(findings, stackingDepth(all)...)

	return findings, nil
}

// basePriceAmbiguities flags pairs of live base-price rules with equal
// priority: the tie falls to update recency, which is rarely intended.
func basePriceAmbiguities(all []rule.Rule) []Finding {
	type slot struct {
		id, name string
		priority int
	}
	byPriority := make(map[int][]slot)
	for _, r := range all {
		if !r.Active {
			continue
		}
		if r.Kind != rule.KindFixed && r.Kind != rule.KindTiered {
			continue
		}
		byPriority[r.Priority] = append(byPriority[r.Priority], slot{id: r.ID, name: r.Name, priority: r.Priority})
	}

	var findings []Finding
	for priority, slots := range byPriority {
		if len(slots) < 2 {
			continue
		}
		for _, sl := range slots {
			findings = append(findings, Finding{
				Code:     CodeAmbiguousBase,
				Severity: SeverityWarning,
				RuleID:   sl.id,
				RuleName: sl.name,
				Message: fmt.Sprintf("rule %q shares base-price priority %d with %d other rule(s); ties fall to update recency",
					sl.name, priority, len(slots)-1),
			})
		}
	}
	return findings
}

// stackingDepth warns when too many discount rules can stack.
func stackingDepth(all []rule.Rule) []Finding {
	count := 0
	for _, r := range all {
		if r.Active && r.Discount != nil {
			count++
		}
	}
	if count <= maxStackedDiscounts {
		return nil
	}
	return []Finding{{
		Code:     CodeDeepStacking,
		Severity: SeverityWarning,
		Message: fmt.Sprintf("%d active discount rules can stack sequentially; verify the compounded discount is intended",
			count),
	}}
}
