package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/metrics"
)

// RegisterRoutes wires every endpoint onto the router. Health and metrics
// sit outside /api/v1 and outside token auth.
func (h *Handler) RegisterRoutes(router *mux.Router, authMiddleware mux.MiddlewareFunc) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}

	api.HandleFunc("/query-groups", h.CreateQueryGroup).Methods(http.MethodPost)
	api.HandleFunc("/query-groups", h.ListQueryGroups).Methods(http.MethodGet)
	api.HandleFunc("/query-groups/{id}", h.GetQueryGroup).Methods(http.MethodGet)
	api.HandleFunc("/query-groups/{id}", h.UpdateQueryGroup).Methods(http.MethodPut)
	api.HandleFunc("/query-groups/{id}", h.DeleteQueryGroup).Methods(http.MethodDelete)

	api.HandleFunc("/queries", h.CreateQuery).Methods(http.MethodPost)
	api.HandleFunc("/queries", h.ListQueries).Methods(http.MethodGet)
	api.HandleFunc("/queries/{id}", h.GetQuery).Methods(http.MethodGet)
	api.HandleFunc("/queries/{id}", h.UpdateQuery).Methods(http.MethodPut)
	api.HandleFunc("/queries/{id}", h.DeleteQuery).Methods(http.MethodDelete)

	api.HandleFunc("/test-sets", h.CreateTestSet).Methods(http.MethodPost)
	api.HandleFunc("/test-sets", h.ListTestSets).Methods(http.MethodGet)
	api.HandleFunc("/test-sets/{id}", h.GetTestSet).Methods(http.MethodGet)
	api.HandleFunc("/test-sets/{id}", h.DeleteTestSet).Methods(http.MethodDelete)
	api.HandleFunc("/test-sets/{id}/items", h.AddTestSetItem).Methods(http.MethodPost)
	api.HandleFunc("/test-sets/{id}/items/{queryId}", h.RemoveTestSetItem).Methods(http.MethodDelete)
	api.HandleFunc("/test-sets/{id}/snapshots", h.ListTestSetSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/test-sets/{id}/dashboard", h.TestSetDashboard).Methods(http.MethodGet)

	api.HandleFunc("/runs", h.CreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", h.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/items", h.ListRunItems).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/retry", h.RetryRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/evaluate", h.EvaluateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/cancel", h.CancelRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/compare", h.CompareRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/dashboard", h.RunDashboard).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/snapshot", h.SnapshotRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}/ws", h.RunProgressWS).Methods(http.MethodGet)

	api.HandleFunc("/settings/{environment}", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/{environment}", h.UpdateSettings).Methods(http.MethodPut)

	api.HandleFunc("/import/queries", h.ImportQueries).Methods(http.MethodPost)
	api.HandleFunc("/export/queries", h.ExportQueries).Methods(http.MethodGet)

	api.HandleFunc("/environments", h.Environments).Methods(http.MethodGet)
	api.HandleFunc("/system-metrics", h.SystemMetrics).Methods(http.MethodGet)
}
