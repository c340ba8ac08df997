package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// GetSettings handles GET /api/v1/settings/{environment}. First read of an
// environment materializes its defaults.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	environment := mux.Vars(r)["environment"]
	if !h.environments[environment] {
		WriteError(w, http.StatusNotFound, "unknown environment: "+environment)
		return
	}

	setting, err := h.queries.GetValidationSetting(r.Context(), environment)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, setting)
}

// UpdateSettings handles PUT /api/v1/settings/{environment}
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	environment := mux.Vars(r)["environment"]
	if !h.environments[environment] {
		WriteError(w, http.StatusNotFound, "unknown environment: "+environment)
		return
	}

	var setting db.ValidationSetting
	if !decodeBody(w, r, &setting) {
		return
	}
	setting.Environment = environment

	if setting.RepeatCount < 1 || setting.RoomCount < 1 {
		WriteError(w, http.StatusBadRequest, "repeat_count and room_count must be at least 1")
		return
	}
	if setting.AgentParallelCalls < 1 || setting.EvalParallelCalls < 1 {
		WriteError(w, http.StatusBadRequest, "parallelism must be at least 1")
		return
	}
	if setting.TimeoutMS < 1000 {
		WriteError(w, http.StatusBadRequest, "timeout_ms must be at least 1000")
		return
	}
	if setting.PageSize < 1 {
		setting.PageSize = 50
	}

	if err := h.queries.UpdateValidationSetting(r.Context(), &setting); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, setting)
}
