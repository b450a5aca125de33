package handler

import (
	"fmt"
	"net/http"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/policy"
)

func (h *HTTPHandler) ListCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.cart.ListLines(r.Context(), domain.PrincipalFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(lines, toCartLine))
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	p := domain.PrincipalFrom(r.Context())
	if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsCustomer); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req cartLineRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.MenuItem == 0 {
		h.writeError(w, r, fmt.Errorf("%w: menuitem is required", domain.ErrValidation))
		return
	}

	line, err := h.cart.AddLine(r.Context(), p, req.MenuItem, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartLine(line))
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.ClearCart(r.Context(), domain.PrincipalFrom(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
