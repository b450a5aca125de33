package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/policy"
)

func (h *HTTPHandler) groupRoutes(group string) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", h.listMembers(group))
		r.Post("/", h.addMember(group))
		r.Delete("/{id}", h.removeMember(group))
	}
}

func (h *HTTPHandler) listMembers(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := h.groups.ListMembers(r.Context(), domain.PrincipalFrom(r.Context()), group)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(users, toUser))
	}
}

func (h *HTTPHandler) addMember(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := domain.PrincipalFrom(r.Context())
		if err := policy.Require(p, policy.Write, policy.IsAuthenticated, policy.IsManager); err != nil {
			h.writeError(w, r, err)
			return
		}

		var req groupMemberRequest
		if err := decodeBody(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		user, err := h.groups.AddMember(r.Context(), p, group, req.Username)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toUser(user))
	}
}

func (h *HTTPHandler) removeMember(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := h.groups.RemoveMember(r.Context(), domain.PrincipalFrom(r.Context()), group, id); err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("user %d removed from %s", id, group),
		})
	}
}
