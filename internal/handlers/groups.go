package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// CreateQueryGroup handles POST /api/v1/query-groups
func (h *Handler) CreateQueryGroup(w http.ResponseWriter, r *http.Request) {
	var group db.QueryGroup
	if !decodeBody(w, r, &group) {
		return
	}
	if group.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.queries.CreateQueryGroup(r.Context(), &group); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusCreated, group)
}

// ListQueryGroups handles GET /api/v1/query-groups
func (h *Handler) ListQueryGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.queries.ListQueryGroups(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, groups)
}

// GetQueryGroup handles GET /api/v1/query-groups/{id}
func (h *Handler) GetQueryGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	group, err := h.queries.GetQueryGroup(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "query group")
		return
	}
	WriteSuccess(w, http.StatusOK, group)
}

// UpdateQueryGroup handles PUT /api/v1/query-groups/{id}
func (h *Handler) UpdateQueryGroup(w http.ResponseWriter, r *http.Request) {
	var group db.QueryGroup
	if !decodeBody(w, r, &group) {
		return
	}
	group.ID = mux.Vars(r)["id"]
	if group.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.queries.UpdateQueryGroup(r.Context(), &group); err != nil {
		writeLookupError(w, err, "query group")
		return
	}
	WriteSuccess(w, http.StatusOK, group)
}

// DeleteQueryGroup handles DELETE /api/v1/query-groups/{id}. Groups that
// still hold queries are rejected with 409.
func (h *Handler) DeleteQueryGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.queries.DeleteQueryGroup(r.Context(), id)
	if errors.Is(err, db.ErrGroupNotEmpty) {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeLookupError(w, err, "query group")
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]string{"id": id})
}
