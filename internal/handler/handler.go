// Package handler exposes the pricing engine, cost-plus calculator, and rule
// management service over a JSON HTTP API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/borhen68/framatale-sub001/internal/domain/costplus"
	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
	"github.com/borhen68/framatale-sub001/internal/domain/rule"
	"github.com/borhen68/framatale-sub001/internal/domain/ruleops"
	"github.com/borhen68/framatale-sub001/internal/rates"
)

// Handler serves the pricing API, delegating business logic to the engine,
// the cost-plus calculator, and the rule service.
type Handler struct {
	engine   *pricing.Engine
	costPlus *costplus.Calculator
	rules    *ruleops.Service
	auth     *Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
// auth may be nil, in which case rule mutation endpoints are open.
func NewHandler(
	engine *pricing.Engine,
	costPlus *costplus.Calculator,
	rules *ruleops.Service,
	auth *Authenticator,
) *Handler {
	return &Handler{
		engine:   engine,
		costPlus: costPlus,
		rules:    rules,
		auth:     auth,
	}
}

// Register attaches all API routes to the mux. Rule mutation routes are
// guarded by the authenticator when one is configured; read and compute
// routes are open.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/price", h.CalculatePrice)
	mux.HandleFunc("POST /api/v1/cost-plus", h.CalculateCostPlus)

	mux.HandleFunc("GET /api/v1/rules", h.ListRules)
	mux.HandleFunc("GET /api/v1/rules/{id}", h.GetRule)
	mux.HandleFunc("GET /api/v1/rules/analysis", h.AnalyzeRules)
	mux.HandleFunc("POST /api/v1/rules/{id}/test", h.TestRule)

	mux.HandleFunc("POST /api/v1/rules", h.guarded(h.CreateRule))
	mux.HandleFunc("PUT /api/v1/rules/{id}", h.guarded(h.UpdateRule))
	mux.HandleFunc("POST /api/v1/rules/{id}/deactivate", h.guarded(h.DeactivateRule))
	mux.HandleFunc("DELETE /api/v1/rules/{id}", h.guarded(h.DeleteRule))
}

func (h *Handler) guarded(next http.HandlerFunc) http.HandlerFunc {
	if h.auth == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.auth.Authenticate(r); err != nil {
			respondError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Error("Write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respond(w, r, status, errorResponse{Code: status, Message: msg})
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

// mapDomainError converts known domain errors to HTTP statuses, falling back
// to 500 for everything else. Unexpected errors are logged, never echoed.
func mapDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var nfErr *rule.NotFoundError
	if errors.As(err, &nfErr) {
		respondError(w, r, http.StatusNotFound, nfErr.Error())
		return
	}

	var cnfErr *costplus.CostNotFoundError
	if errors.As(err, &cnfErr) {
		respondError(w, r, http.StatusNotFound, cnfErr.Error())
		return
	}

	var lkErr *rates.LookupError
	if errors.As(err, &lkErr) {
		respondError(w, r, http.StatusBadGateway, lkErr.Error())
		return
	}

	if errors.Is(err, pricing.ErrProductTypeRequired) ||
		errors.Is(err, pricing.ErrInvalidQuantity) ||
		errors.Is(err, rule.ErrInvalidRule) {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	respondError(w, r, http.StatusInternalServerError, "internal error")
}
