package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// CreateQuery handles POST /api/v1/queries
func (h *Handler) CreateQuery(w http.ResponseWriter, r *http.Request) {
	var query db.Query
	if !decodeBody(w, r, &query) {
		return
	}
	if query.Text == "" {
		WriteError(w, http.StatusBadRequest, "text is required")
		return
	}
	if query.GroupID == "" {
		WriteError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if _, err := h.queries.GetQueryGroup(r.Context(), query.GroupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteError(w, http.StatusBadRequest, "group_id references no query group")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.queries.CreateQuery(r.Context(), &query); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusCreated, query)
}

// ListQueries handles GET /api/v1/queries?group_id=
func (h *Handler) ListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := h.queries.ListQueries(r.Context(), r.URL.Query().Get("group_id"))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, queries)
}

// GetQuery handles GET /api/v1/queries/{id}
func (h *Handler) GetQuery(w http.ResponseWriter, r *http.Request) {
	query, err := h.queries.GetQuery(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeLookupError(w, err, "query")
		return
	}
	WriteSuccess(w, http.StatusOK, query)
}

// UpdateQuery handles PUT /api/v1/queries/{id}. The group link is fixed at
// creation; updates change content only.
func (h *Handler) UpdateQuery(w http.ResponseWriter, r *http.Request) {
	var query db.Query
	if !decodeBody(w, r, &query) {
		return
	}
	query.ID = mux.Vars(r)["id"]
	if query.Text == "" {
		WriteError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := h.queries.UpdateQuery(r.Context(), &query); err != nil {
		writeLookupError(w, err, "query")
		return
	}
	WriteSuccess(w, http.StatusOK, query)
}

// DeleteQuery handles DELETE /api/v1/queries/{id}. Past run items keep
// their snapshot of the deleted query.
func (h *Handler) DeleteQuery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.queries.DeleteQuery(r.Context(), id); err != nil {
		writeLookupError(w, err, "query")
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]string{"id": id})
}
