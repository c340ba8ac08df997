package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// runProgress is one WebSocket progress frame
type runProgress struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	EvalStatus string `json:"eval_status"`
	Executed   int    `json:"executed"`
	Total      int    `json:"total"`
}

// RunProgressWS handles GET /api/v1/runs/{id}/ws, streaming execution
// progress until the run reaches a terminal state or the client leaves.
func (h *Handler) RunProgressWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.queries.GetRun(r.Context(), id); err != nil {
		writeLookupError(w, err, "run")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", err, map[string]interface{}{"run_id": id})
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are noticed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		run, err := h.queries.GetRun(r.Context(), id)
		if err != nil {
			return
		}
		executed, total, err := h.queries.CountExecutedRunItems(r.Context(), id)
		if err != nil {
			return
		}

		frame := runProgress{
			RunID:      id,
			Status:     run.Status,
			EvalStatus: run.EvalStatus,
			Executed:   executed,
			Total:      total,
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}

		executionDone := run.Status == db.RunStatusDone || run.Status == db.RunStatusFailed
		if executionDone && run.EvalStatus != db.EvalStatusRunning {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
