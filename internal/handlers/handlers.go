// Package handlers implements the backoffice REST surface.
package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/jobs"
	"github.com/hirewise/qa-backoffice/api/internal/logging"
	"github.com/hirewise/qa-backoffice/api/internal/runner"
)

// Handler holds the shared dependencies of all HTTP handlers
type Handler struct {
	queries      *db.Queries
	registry     *jobs.Registry
	executor     *runner.Executor
	orchestrator *runner.Orchestrator
	environments map[string]bool
	logger       *logging.Logger
	upgrader     websocket.Upgrader
}

// NewHandler creates the handler set. environments names the configured
// target environments; run creation rejects anything else.
func NewHandler(
	queries *db.Queries,
	registry *jobs.Registry,
	executor *runner.Executor,
	orchestrator *runner.Orchestrator,
	environments []string,
	logger *logging.Logger,
) *Handler {
	known := make(map[string]bool, len(environments))
	for _, name := range environments {
		known[name] = true
	}

	return &Handler{
		queries:      queries,
		registry:     registry,
		executor:     executor,
		orchestrator: orchestrator,
		environments: known,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Internal tool behind token auth; origins are not restricted
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}
