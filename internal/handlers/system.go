package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/hirewise/qa-backoffice/api/internal/metrics"
)

// Health handles GET /health, checking database connectivity
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.queries.GetDB().PingContext(r.Context()); err != nil {
		status = "degraded: " + err.Error()
		code = http.StatusServiceUnavailable
	}

	WriteSuccess(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// SystemMetrics handles GET /api/v1/system-metrics
func (h *Handler) SystemMetrics(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, http.StatusOK, metrics.CollectSystemMetrics())
}

// Environments handles GET /api/v1/environments, listing the configured
// target environments by name.
func (h *Handler) Environments(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.environments))
	for name := range h.environments {
		names = append(names, name)
	}
	sort.Strings(names)
	WriteSuccess(w, http.StatusOK, names)
}
