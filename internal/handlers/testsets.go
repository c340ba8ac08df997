package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/runner"
)

// CreateTestSet handles POST /api/v1/test-sets
func (h *Handler) CreateTestSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		QueryIDs    []string `json:"query_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	set := db.TestSet{Name: req.Name, Description: req.Description}
	if err := h.queries.CreateTestSet(r.Context(), &set); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, queryID := range req.QueryIDs {
		if err := h.queries.AddTestSetItem(r.Context(), set.ID, queryID); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	WriteSuccess(w, http.StatusCreated, set)
}

// ListTestSets handles GET /api/v1/test-sets
func (h *Handler) ListTestSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.queries.ListTestSets(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, sets)
}

// GetTestSet handles GET /api/v1/test-sets/{id}, returning the set with its
// queries in position order.
func (h *Handler) GetTestSet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	set, err := h.queries.GetTestSet(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "test set")
		return
	}

	queries, err := h.queries.ListTestSetQueries(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"test_set": set,
		"queries":  queries,
	})
}

// DeleteTestSet handles DELETE /api/v1/test-sets/{id}
func (h *Handler) DeleteTestSet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.queries.DeleteTestSet(r.Context(), id); err != nil {
		writeLookupError(w, err, "test set")
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]string{"id": id})
}

// AddTestSetItem handles POST /api/v1/test-sets/{id}/items. Adding a query
// twice is a no-op.
func (h *Handler) AddTestSetItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		QueryID string `json:"query_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.QueryID == "" {
		WriteError(w, http.StatusBadRequest, "query_id is required")
		return
	}

	if _, err := h.queries.GetTestSet(r.Context(), id); err != nil {
		writeLookupError(w, err, "test set")
		return
	}
	if _, err := h.queries.GetQuery(r.Context(), req.QueryID); err != nil {
		writeLookupError(w, err, "query")
		return
	}

	if err := h.queries.AddTestSetItem(r.Context(), id, req.QueryID); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusCreated, map[string]string{"test_set_id": id, "query_id": req.QueryID})
}

// RemoveTestSetItem handles DELETE /api/v1/test-sets/{id}/items/{queryId}
func (h *Handler) RemoveTestSetItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.queries.RemoveTestSetItem(r.Context(), vars["id"], vars["queryId"]); err != nil {
		writeLookupError(w, err, "test set item")
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]string{"test_set_id": vars["id"], "query_id": vars["queryId"]})
}

// TestSetDashboard handles GET /api/v1/test-sets/{id}/dashboard?environment=,
// aggregating the test set's most recent finished run.
func (h *Handler) TestSetDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.queries.GetTestSet(r.Context(), id); err != nil {
		writeLookupError(w, err, "test set")
		return
	}

	run, err := h.queries.LatestDoneRunForTestSet(r.Context(), id, r.URL.Query().Get("environment"))
	if err != nil {
		writeLookupError(w, err, "finished run for test set")
		return
	}

	details, err := h.queries.ListRunItemDetails(r.Context(), run.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"run":       run,
		"dashboard": runner.Aggregate(details),
	})
}

// ListTestSetSnapshots handles GET /api/v1/test-sets/{id}/snapshots,
// returning the score trend oldest first.
func (h *Handler) ListTestSetSnapshots(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.queries.GetTestSet(r.Context(), id); err != nil {
		writeLookupError(w, err, "test set")
		return
	}

	snapshots, err := h.queries.ListScoreSnapshots(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, snapshots)
}
