package handler

import (
	"net/http"

	"github.com/borhen68/framatale-sub001/internal/domain/costplus"
	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
)

// CalculatePrice runs the full pricing pipeline for one request.
func (h *Handler) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	var req pricing.Request
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.CalculatePrice(r.Context(), req)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, res)
}

// CalculateCostPlus runs the cost-plus analysis for one product.
func (h *Handler) CalculateCostPlus(w http.ResponseWriter, r *http.Request) {
	var req costplus.Request
	if err := decode(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Quantity <= 0 {
		respondError(w, r, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	analysis, err := h.costPlus.Calculate(r.Context(), req)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, analysis)
}
