package handlers

import (
	"net/http"

	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/importer"
)

const maxImportBytes = 10 << 20

// ImportQueries handles POST /api/v1/import/queries?group_id=. The body is
// CSV; parsed rows become queries in the target group. Rows without a query
// text are dropped silently.
func (h *Handler) ImportQueries(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		WriteError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	if _, err := h.queries.GetQueryGroup(r.Context(), groupID); err != nil {
		writeLookupError(w, err, "query group")
		return
	}

	parsed, err := importer.Parse(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(parsed) == 0 {
		WriteError(w, http.StatusBadRequest, "no importable rows found")
		return
	}

	created := make([]db.Query, 0, len(parsed))
	for _, row := range parsed {
		query := db.Query{
			GroupID:        groupID,
			Text:           row.Text,
			ExpectedResult: row.ExpectedResult,
			Category:       row.Category,
			LogicField:     row.LogicField,
			LogicValue:     row.LogicValue,
			Criteria:       row.Criteria,
		}
		if err := h.queries.CreateQuery(r.Context(), &query); err != nil {
			WriteError(w, http.StatusInternalServerError, row.RowID+": "+err.Error())
			return
		}
		created = append(created, query)
	}

	h.logger.Info("queries imported", map[string]interface{}{
		"group_id": groupID,
		"count":    len(created),
	})
	WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"imported": len(created),
		"queries":  created,
	})
}

// ExportQueries handles GET /api/v1/export/queries?group_id=, streaming the
// group's queries back out in the import CSV layout.
func (h *Handler) ExportQueries(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		WriteError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	queries, err := h.queries.ListQueries(r.Context(), groupID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="queries.csv"`)
	if err := importer.Export(w, queries); err != nil {
		h.logger.Error("export queries failed", err, map[string]interface{}{"group_id": groupID})
	}
}
