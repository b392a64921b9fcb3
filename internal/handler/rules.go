package handler

import (
	"net/http"
	"time"

	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
	"github.com/borhen68/framatale-sub001/internal/domain/rule"
	"github.com/borhen68/framatale-sub001/internal/domain/ruleops"
)

// ruleDocument is the wire form of a rule: scalar metadata, matching
// conditions, and the kind-specific payloads flattened into one object.
type ruleDocument struct {
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name"`
	Kind       rule.Kind       `json:"kind"`
	Scope      rule.Scope      `json:"scope,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	Active     *bool           `json:"active,omitempty"`
	ValidFrom  *time.Time      `json:"validFrom,omitempty"`
	ValidUntil *time.Time      `json:"validUntil,omitempty"`
	Conditions rule.Conditions `json:"conditions,omitempty"`
	CreatedAt  *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time      `json:"updatedAt,omitempty"`

	rule.Payload
}

func (d *ruleDocument) toRule() (*rule.Rule, error) {
	r := &rule.Rule{
		ID:         d.ID,
		Name:       d.Name,
		Kind:       d.Kind,
		Scope:      d.Scope,
		Priority:   d.Priority,
		Active:     true,
		ValidFrom:  d.ValidFrom,
		ValidUntil: d.ValidUntil,
		Conditions: d.Conditions,
	}
	if d.Active != nil {
		r.Active = *d.Active
	}
	if r.Scope == "" {
		r.Scope = rule.ScopeGlobal
	}
	if err := d.Payload.Apply(r); err != nil {
		return nil, err
	}
	return r, nil
}

func documentFrom(r *rule.Rule) ruleDocument {
	d := ruleDocument{
		ID:         r.ID,
		Name:       r.Name,
		Kind:       r.Kind,
		Scope:      r.Scope,
		Priority:   r.Priority,
		Active:     &r.Active,
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
		Conditions: r.Conditions,
		CreatedAt:  &r.CreatedAt,
		UpdatedAt:  &r.UpdatedAt,
	}
	d.Payload.Discount = r.Discount
	d.Payload.ABTest = r.ABTest
	d.Payload.Geo = r.Geo
	switch spec := r.Pricing.(type) {
	case rule.FixedSpec:
		d.Payload.Fixed = &spec
	case rule.PercentageSpec:
		d.Payload.Percentage = &spec
	case rule.TieredSpec:
		d.Payload.Tiered = &spec
	case rule.VolumeSpec:
		d.Payload.Volume = &spec
	case rule.DynamicSpec:
		d.Payload.Dynamic = &spec
	case rule.SubscriptionSpec:
		d.Payload.Subscription = &spec
	}
	return d
}

// CreateRule persists a new rule and returns it with id and timestamps set.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var doc ruleDocument
	if err := decode(r, &doc); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ru, err := doc.toRule()
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.rules.CreateRule(r.Context(), ru); err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, documentFrom(ru))
}

// UpdateRule rewrites an existing rule from its wire form.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var doc ruleDocument
	if err := decode(r, &doc); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doc.ID = r.PathValue("id")

	ru, err := doc.toRule()
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.rules.UpdateRule(r.Context(), ru); err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, documentFrom(ru))
}

// GetRule returns one rule by id.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ru, err := h.rules.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, documentFrom(ru))
}

// ListRules returns every rule in precedence order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListRules(r.Context())
	if err != nil {
		mapDomainError(w, r, err)
		return
	}
	docs := make([]ruleDocument, len(rules))
	for i := range rules {
		docs[i] = documentFrom(&rules[i])
	}
	respond(w, r, http.StatusOK, docs)
}

// DeactivateRule soft-deletes a rule.
func (h *Handler) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeactivateRule(r.Context(), r.PathValue("id")); err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusNoContent, nil)
}

// DeleteRule removes a rule permanently.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusNoContent, nil)
}

// TestRule prices a request with and without the target rule forced active
// and returns the comparison.
func (h *Handler) TestRule(w http.ResponseWriter, r *http.Request) {
	var req pricing.Request
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.rules.TestRule(r.Context(), r.PathValue("id"), req)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, report)
}

// AnalyzeRules reports rule set health findings.
func (h *Handler) AnalyzeRules(w http.ResponseWriter, r *http.Request) {
	findings, err := h.rules.Analyze(r.Context())
	if err != nil {
		mapDomainError(w, r, err)
		return
	}
	if findings == nil {
		findings = []ruleops.Finding{}
	}
	respond(w, r, http.StatusOK, struct {
		Findings []ruleops.Finding `json:"findings"`
	}{Findings: findings})
}
