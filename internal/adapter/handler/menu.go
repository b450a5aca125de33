package handler

import (
	"fmt"
	"net/http"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/policy"
)

func (h *HTTPHandler) ListMenuItems(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := domain.MenuQuery{
		Search:   r.URL.Query().Get("search"),
		Ordering: domain.ParseMenuOrdering(r.URL.Query().Get("ordering")),
		Page:     page,
	}
	items, err := h.menu.List(r.Context(), domain.PrincipalFrom(r.Context()), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(items, toMenuItem))
}

func (h *HTTPHandler) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.menu.Get(r.Context(), domain.PrincipalFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItem(item))
}

// fullMenuItem requires the fields a create or replace must carry.
func fullMenuItem(req menuItemRequest) (domain.MenuItem, error) {
	if req.Title == nil {
		return domain.MenuItem{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if req.Price == nil {
		return domain.MenuItem{}, fmt.Errorf("%w: price is required", domain.ErrValidation)
	}
	item := domain.MenuItem{Title: *req.Title, Price: *req.Price}
	if req.Inventory != nil {
		item.Inventory = *req.Inventory
	}
	return item, nil
}

// Writes check permission before decoding, so callers without rights get
// 401/403 rather than field errors.
func (h *HTTPHandler) CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	p := domain.PrincipalFrom(r.Context())
	if err := policy.Require(p, policy.Write, policy.IsManagerOrReadOnly); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req menuItemRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := fullMenuItem(req)
	if err == nil {
		item, err = h.menu.Create(r.Context(), p, item)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMenuItem(item))
}

func (h *HTTPHandler) UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p := domain.PrincipalFrom(r.Context())
	if err := policy.Require(p, policy.Write, policy.IsManagerOrReadOnly); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req menuItemRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := fullMenuItem(req)
	if err == nil {
		item.ID = id
		item, err = h.menu.Update(r.Context(), p, item)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItem(item))
}

func (h *HTTPHandler) PatchMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p := domain.PrincipalFrom(r.Context())
	if err := policy.Require(p, policy.Write, policy.IsManagerOrReadOnly); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req menuItemRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	patch := domain.MenuItemPatch{Title: req.Title, Price: req.Price, Inventory: req.Inventory}
	item, err := h.menu.Patch(r.Context(), p, id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItem(item))
}

func (h *HTTPHandler) DeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.menu.Delete(r.Context(), domain.PrincipalFrom(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
