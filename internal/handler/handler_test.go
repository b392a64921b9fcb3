package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/borhen68/framatale-sub001/internal/domain/auth"
	"github.com/borhen68/framatale-sub001/internal/domain/costplus"
	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
	"github.com/borhen68/framatale-sub001/internal/domain/rule"
	"github.com/borhen68/framatale-sub001/internal/domain/ruleops"
	"github.com/borhen68/framatale-sub001/internal/rates"
)

// --- Mock implementations ---

type memRuleStore struct {
	rules map[string]*rule.Rule
}

func newMemRuleStore(rules ...*rule.Rule) *memRuleStore {
	m := &memRuleStore{rules: make(map[string]*rule.Rule)}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRuleStore) FindActive(_ context.Context, f rule.Filter) ([]rule.Rule, error) {
	var out []rule.Rule
	for _, r := range m.rules {
		if r.Active && r.ValidAt(f.At) {
			out = append(out, *r)
		}
	}
	rule.SortByPrecedence(out)
	return out, nil
}

func (m *memRuleStore) List(_ context.Context) ([]rule.Rule, error) {
	out := make([]rule.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, *r)
	}
	rule.SortByPrecedence(out)
	return out, nil
}

func (m *memRuleStore) Get(_ context.Context, id string) (*rule.Rule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, &rule.NotFoundError{ID: id}
	}
	cp := *r
	return &cp, nil
}

func (m *memRuleStore) Create(_ context.Context, r *rule.Rule) error {
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memRuleStore) Update(_ context.Context, r *rule.Rule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return &rule.NotFoundError{ID: r.ID}
	}
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memRuleStore) Delete(_ context.Context, id string) error {
	if _, ok := m.rules[id]; !ok {
		return &rule.NotFoundError{ID: id}
	}
	delete(m.rules, id)
	return nil
}

type mockCatalog struct {
	cost *costplus.ProductCost
	err  error
}

func (m *mockCatalog) FindActiveCost(_ context.Context, productType, variant, _ string) (*costplus.ProductCost, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.cost == nil {
		return nil, &costplus.CostNotFoundError{ProductType: productType, Variant: variant}
	}
	return m.cost, nil
}

type mockAPIKeyRepo struct {
	info *auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, _ string) (*auth.APIKeyInfo, error) {
	return m.info, m.err
}

// --- Helpers ---

func baseRule(id string, price int64) *rule.Rule {
	return &rule.Rule{
		ID:       id,
		Name:     id,
		Kind:     rule.KindFixed,
		Scope:    rule.ScopeGlobal,
		Priority: 10,
		Active:   true,
		Pricing:  rule.FixedSpec{BasePrice: decimal.NewFromInt(price)},
	}
}

func newTestMux(t *testing.T, store rule.Store, catalog costplus.Catalog, authn *Authenticator) *http.ServeMux {
	t.Helper()

	engine := pricing.NewEngine(store, rates.NewStatic(nil), pricing.NopCache{}, nil, zap.NewNop())
	svc := ruleops.NewService(store, engine, zap.NewNop())
	calc := costplus.NewCalculator(catalog)

	mux := http.NewServeMux()
	NewHandler(engine, calc, svc, authn).Register(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestCalculatePrice(t *testing.T) {
	store := newMemRuleStore(baseRule("base", 100))
	mux := newTestMux(t, store, &mockCatalog{}, nil)

	w := doJSON(t, mux, http.MethodPost, "/api/v1/price", map[string]any{
		"productType": "photo_book",
		"quantity":    1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res pricing.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.FinalPrice.Equal(decimal.NewFromInt(100)), "got %s", res.FinalPrice)
	assert.Equal(t, []string{"base"}, res.AppliedRules)
}

func TestCalculatePrice_Invalid(t *testing.T) {
	mux := newTestMux(t, newMemRuleStore(), &mockCatalog{}, nil)

	w := doJSON(t, mux, http.MethodPost, "/api/v1/price", map[string]any{
		"productType": "photo_book",
		"quantity":    0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCalculatePrice_MalformedBody(t *testing.T) {
	mux := newTestMux(t, newMemRuleStore(), &mockCatalog{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/price", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalculateCostPlus(t *testing.T) {
	cost := &costplus.ProductCost{
		ID:          "c1",
		ProductType: "photo_book",
		Costs: costplus.Costs{
			BaseCost:  decimal.NewFromInt(5),
			TotalCost: decimal.NewFromInt(5),
		},
		Targets: costplus.Targets{
			TargetSellingPrice: decimal.NewFromInt(22),
			TargetMargin:       decimal.NewFromInt(70),
		},
		Active: true,
	}
	mux := newTestMux(t, newMemRuleStore(), &mockCatalog{cost: cost}, nil)

	w := doJSON(t, mux, http.MethodPost, "/api/v1/cost-plus", costplus.Request{
		ProductType: "photo_book",
		Quantity:    10,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var analysis costplus.Analysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.True(t, analysis.CostBreakdown.COGS.Equal(decimal.NewFromInt(5)))
	assert.NotEmpty(t, analysis.Recommendations)
}

func TestCalculateCostPlus_NotFound(t *testing.T) {
	mux := newTestMux(t, newMemRuleStore(), &mockCatalog{}, nil)

	w := doJSON(t, mux, http.MethodPost, "/api/v1/cost-plus", costplus.Request{
		ProductType: "unknown",
		Quantity:    1,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleCRUD(t *testing.T) {
	store := newMemRuleStore()
	mux := newTestMux(t, store, &mockCatalog{}, nil)

	// Create.
	w := doJSON(t, mux, http.MethodPost, "/api/v1/rules", map[string]any{
		"name":  "standard price",
		"kind":  "fixed",
		"fixed": map[string]any{"basePrice": "49.99"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created ruleDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.NotNil(t, created.Fixed)
	assert.True(t, created.Fixed.BasePrice.Equal(decimal.RequireFromString("49.99")))

	// Get.
	w = doJSON(t, mux, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Update.
	w = doJSON(t, mux, http.MethodPut, "/api/v1/rules/"+created.ID, map[string]any{
		"name":     "standard price",
		"kind":     "fixed",
		"priority": 5,
		"fixed":    map[string]any{"basePrice": "59.99"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Priority)

	// List.
	w = doJSON(t, mux, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []ruleDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	// Deactivate keeps the row.
	w = doJSON(t, mux, http.MethodPost, "/api/v1/rules/"+created.ID+"/deactivate", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	stored, err = store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	// Delete removes it.
	w = doJSON(t, mux, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, mux, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRule_Invalid(t *testing.T) {
	mux := newTestMux(t, newMemRuleStore(), &mockCatalog{}, nil)

	// Missing name.
	w := doJSON(t, mux, http.MethodPost, "/api/v1/rules", map[string]any{
		"kind":  "fixed",
		"fixed": map[string]any{"basePrice": "10"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTestRule(t *testing.T) {
	promo := baseRule("promo", 0)
	promo.Kind = rule.KindPercentage
	promo.Priority = 20
	promo.Active = false
	promo.Pricing = nil
	promo.Discount = &rule.DiscountSpec{
		Type:  rule.DiscountPercentage,
		Value: decimal.NewFromInt(20),
	}

	store := newMemRuleStore(baseRule("base", 100), promo)
	mux := newTestMux(t, store, &mockCatalog{}, nil)

	w := doJSON(t, mux, http.MethodPost, "/api/v1/rules/promo/test", map[string]any{
		"productType": "photo_book",
		"quantity":    1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var report ruleops.TestReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Difference.Amount.Equal(decimal.NewFromInt(-20)), "got %s", report.Difference.Amount)
}

func TestTestRule_Unknown(t *testing.T) {
	mux := newTestMux(t, newMemRuleStore(baseRule("base", 100)), &mockCatalog{}, nil)

	w := doJSON(t, mux, http.MethodPost, "/api/v1/rules/nope/test", map[string]any{
		"productType": "photo_book",
		"quantity":    1,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeRules(t *testing.T) {
	mux := newTestMux(t, newMemRuleStore(baseRule("base", 100)), &mockCatalog{}, nil)

	w := doJSON(t, mux, http.MethodGet, "/api/v1/rules/analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Findings []ruleops.Finding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Findings)
}

func TestAuthenticator(t *testing.T) {
	pepper := []byte("test-pepper")
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte("valid-key"))
	hash := hex.EncodeToString(mac.Sum(nil))

	repo := &mockAPIKeyRepo{info: &auth.APIKeyInfo{ID: "k1", KeyHash: hash, Name: "ops"}}
	authn := NewAuthenticator(repo, pepper)
	mux := newTestMux(t, newMemRuleStore(), &mockCatalog{}, authn)

	body := map[string]any{
		"name":  "priced",
		"kind":  "fixed",
		"fixed": map[string]any{"basePrice": "10"},
	}

	// No key.
	w := doJSON(t, mux, http.MethodPost, "/api/v1/rules", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid bearer key.
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", &buf)
	req.Header.Set("Authorization", "Bearer valid-key")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Repository miss.
	repo.info = nil
	repo.err = errors.New("not found")
	buf.Reset()
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/rules", &buf)
	req.Header.Set("Authorization", "Bearer valid-key")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Reads stay open.
	w = doJSON(t, mux, http.MethodGet, "/api/v1/rules", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
