package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/runner"
)

// CreateRunRequest is the body of POST /api/v1/runs. Exactly one query
// source (test set, group or explicit ids) must be given; unset knobs fall
// back to the environment's validation settings.
type CreateRunRequest struct {
	Environment string   `json:"environment"`
	TestSetID   string   `json:"test_set_id,omitempty"`
	GroupID     string   `json:"group_id,omitempty"`
	QueryIDs    []string `json:"query_ids,omitempty"`
	BaseRunID   string   `json:"base_run_id,omitempty"`

	RepeatCount  *int   `json:"repeat_count,omitempty"`
	RoomCount    *int   `json:"room_count,omitempty"`
	MaxParallel  *int   `json:"max_parallel,omitempty"`
	EvalParallel *int   `json:"eval_parallel,omitempty"`
	TimeoutMS    *int   `json:"timeout_ms,omitempty"`
	TestModel    string `json:"test_model,omitempty"`
	EvalModel    string `json:"eval_model,omitempty"`
}

// CreateRun handles POST /api/v1/runs: materializes the run item snapshots
// and starts execution in the background.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Environment == "" {
		WriteError(w, http.StatusBadRequest, "environment is required")
		return
	}
	if !h.environments[req.Environment] {
		WriteError(w, http.StatusBadRequest, "unknown environment: "+req.Environment)
		return
	}

	sources := 0
	for _, set := range []bool{req.TestSetID != "", req.GroupID != "", len(req.QueryIDs) > 0} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		WriteError(w, http.StatusBadRequest, "exactly one of test_set_id, group_id or query_ids is required")
		return
	}

	queries, err := h.resolveQueries(r.Context(), &req)
	if err != nil {
		writeLookupError(w, err, "query source")
		return
	}
	if len(queries) == 0 {
		WriteError(w, http.StatusBadRequest, "query source resolved to no queries")
		return
	}

	setting, err := h.queries.GetValidationSetting(r.Context(), req.Environment)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	run := buildRun(&req, setting)
	items, err := h.materializeItems(r.Context(), run, queries)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.queries.CreateRun(r.Context(), run, items); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.startExecution(run.ID)
	WriteSuccess(w, http.StatusCreated, run)
}

func (h *Handler) resolveQueries(ctx context.Context, req *CreateRunRequest) ([]db.Query, error) {
	switch {
	case req.TestSetID != "":
		if _, err := h.queries.GetTestSet(ctx, req.TestSetID); err != nil {
			return nil, err
		}
		return h.queries.ListTestSetQueries(ctx, req.TestSetID)
	case req.GroupID != "":
		if _, err := h.queries.GetQueryGroup(ctx, req.GroupID); err != nil {
			return nil, err
		}
		return h.queries.ListQueries(ctx, req.GroupID)
	default:
		return h.queries.GetQueriesByIDs(ctx, req.QueryIDs)
	}
}

func buildRun(req *CreateRunRequest, setting *db.ValidationSetting) *db.Run {
	pick := func(override *int, fallback int) int {
		if override != nil && *override > 0 {
			return *override
		}
		return fallback
	}

	run := &db.Run{
		Environment:  req.Environment,
		MaxParallel:  pick(req.MaxParallel, setting.AgentParallelCalls),
		EvalParallel: pick(req.EvalParallel, setting.EvalParallelCalls),
		TimeoutMS:    pick(req.TimeoutMS, setting.TimeoutMS),
		RepeatCount:  pick(req.RepeatCount, setting.RepeatCount),
		RoomCount:    pick(req.RoomCount, setting.RoomCount),
		TestModel:    req.TestModel,
		EvalModel:    req.EvalModel,
	}
	if run.TestModel == "" {
		run.TestModel = setting.TestModel
	}
	if run.EvalModel == "" {
		run.EvalModel = setting.EvalModel
	}
	if req.TestSetID != "" {
		run.TestSetID = &req.TestSetID
	}
	if req.GroupID != "" {
		run.GroupID = &req.GroupID
	}
	if req.BaseRunID != "" {
		run.BaseRunID = &req.BaseRunID
	}
	return run
}

// materializeItems snapshots each query room x repeat times, applying group
// defaults for assistant and criteria where the query leaves them unset.
func (h *Handler) materializeItems(ctx context.Context, run *db.Run, queries []db.Query) ([]db.RunItem, error) {
	groups := make(map[string]*db.QueryGroup)
	groupFor := func(groupID string) (*db.QueryGroup, error) {
		if groupID == "" {
			return nil, nil
		}
		if group, ok := groups[groupID]; ok {
			return group, nil
		}
		group, err := h.queries.GetQueryGroup(ctx, groupID)
		if errors.Is(err, sql.ErrNoRows) {
			groups[groupID] = nil
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		groups[groupID] = group
		return group, nil
	}

	items := make([]db.RunItem, 0, run.RoomCount*run.RepeatCount*len(queries))
	ordinal := 0
	for room := 0; room < run.RoomCount; room++ {
		for repeat := 0; repeat < run.RepeatCount; repeat++ {
			for _, query := range queries {
				group, err := groupFor(query.GroupID)
				if err != nil {
					return nil, err
				}

				assistant := query.Assistant
				criteria := query.Criteria
				if group != nil {
					if assistant == "" {
						assistant = group.DefaultAssistant
					}
					if len(criteria) == 0 {
						criteria = group.DefaultCriteria
					}
				}

				queryID := query.ID
				items = append(items, db.RunItem{
					QueryID:        &queryID,
					Ordinal:        ordinal,
					RoomIndex:      room,
					RepeatIndex:    repeat,
					QueryText:      query.Text,
					ExpectedResult: query.ExpectedResult,
					Category:       query.Category,
					LogicField:     query.LogicField,
					LogicValue:     query.LogicValue,
					Criteria:       criteria,
					Context:        query.Context,
					Assistant:      assistant,
				})
				ordinal++
			}
		}
	}

	return items, nil
}

func executeKey(runID string) string { return fmt.Sprintf("run:%s:execute", runID) }
func evalKey(runID string) string    { return fmt.Sprintf("run:%s:evaluate", runID) }

func (h *Handler) startExecution(runID string) {
	h.registry.Run(uuid.New().String(), executeKey(runID), func(ctx context.Context) error {
		return h.executor.Execute(ctx, runID)
	})
}

// ListRuns handles GET /api/v1/runs?environment=&limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.queries.ListRuns(r.Context(), r.URL.Query().Get("environment"), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.queries.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeLookupError(w, err, "run")
		return
	}
	WriteSuccess(w, http.StatusOK, run)
}

// ListRunItems handles GET /api/v1/runs/{id}/items, returning items with
// their evaluations in ordinal order. A page query parameter (1-based)
// switches to paged output with the environment's configured page size.
func (h *Handler) ListRunItems(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.queries.GetRun(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "run")
		return
	}

	details, err := h.queries.ListRunItemDetails(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		WriteSuccess(w, http.StatusOK, details)
		return
	}

	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		setting, err := h.queries.GetValidationSetting(r.Context(), run.Environment)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		pageSize = setting.PageSize
	}

	start := (page - 1) * pageSize
	if start > len(details) {
		start = len(details)
	}
	end := start + pageSize
	if end > len(details) {
		end = len(details)
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"page":      page,
		"page_size": pageSize,
		"total":     len(details),
		"items":     details[start:end],
	})
}

// RetryRun handles POST /api/v1/runs/{id}/retry: re-executes a finished or
// failed run's items in place. Items that already hold a response are
// re-asked; evaluations are refreshed on the next evaluate call.
func (h *Handler) RetryRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.queries.GetRun(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "run")
		return
	}
	if run.Status == db.RunStatusRunning || h.registry.HasActiveJob(executeKey(id)) {
		WriteError(w, http.StatusConflict, "run is already executing")
		return
	}

	h.startExecution(id)
	WriteSuccess(w, http.StatusAccepted, map[string]string{"run_id": id})
}

// EvaluateRun handles POST /api/v1/runs/{id}/evaluate. Evaluation only
// makes sense over captured responses, so the run must have finished
// executing.
func (h *Handler) EvaluateRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.queries.GetRun(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "run")
		return
	}
	if run.Status != db.RunStatusDone {
		WriteError(w, http.StatusConflict, "run has not finished executing")
		return
	}
	if h.registry.HasActiveJob(evalKey(id)) {
		WriteError(w, http.StatusConflict, "evaluation is already running")
		return
	}

	h.registry.Run(uuid.New().String(), evalKey(id), func(ctx context.Context) error {
		return h.orchestrator.Evaluate(ctx, id)
	})
	WriteSuccess(w, http.StatusAccepted, map[string]string{"run_id": id})
}

// CancelRun handles POST /api/v1/runs/{id}/cancel, cooperatively stopping
// the run's execution or evaluation job.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.queries.GetRun(r.Context(), id); err != nil {
		writeLookupError(w, err, "run")
		return
	}

	canceled := h.registry.CancelByKey(executeKey(id))
	if h.registry.CancelByKey(evalKey(id)) {
		canceled = true
	}
	if !canceled {
		WriteError(w, http.StatusConflict, "run has no active job")
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]interface{}{"run_id": id, "canceled": true})
}

// CompareRun handles GET /api/v1/runs/{id}/compare?base_run_id=. Without an
// explicit base the latest finished run of the same environment is used.
// Cross-environment comparisons are forbidden.
func (h *Handler) CompareRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.queries.GetRun(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "run")
		return
	}

	// Base priority: explicit query param, then the run's pinned base, then
	// the latest finished run of the same environment.
	baseID := r.URL.Query().Get("base_run_id")
	if baseID == "" && run.BaseRunID != nil {
		baseID = *run.BaseRunID
	}

	var base *db.Run
	if baseID != "" {
		base, err = h.queries.GetRun(r.Context(), baseID)
		if err != nil {
			writeLookupError(w, err, "base run")
			return
		}
	} else {
		base, err = h.queries.LatestDoneRun(r.Context(), run.Environment, id)
		if errors.Is(err, sql.ErrNoRows) {
			WriteError(w, http.StatusNotFound, "no finished run to compare against")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	current, err := h.queries.ListRunItemDetails(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	baseItems, err := h.queries.ListRunItemDetails(r.Context(), base.ID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	comparison, err := runner.Compare(run, base, current, baseItems)
	if errors.Is(err, runner.ErrEnvironmentMismatch) {
		WriteError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, comparison)
}

// RunDashboard handles GET /api/v1/runs/{id}/dashboard
func (h *Handler) RunDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.queries.GetRun(r.Context(), id); err != nil {
		writeLookupError(w, err, "run")
		return
	}

	details, err := h.queries.ListRunItemDetails(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusOK, runner.Aggregate(details))
}

// SnapshotRun handles POST /api/v1/runs/{id}/snapshot, appending the run's
// aggregate scores to the permanent trend record.
func (h *Handler) SnapshotRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := h.queries.GetRun(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "run")
		return
	}
	if run.Status != db.RunStatusDone {
		WriteError(w, http.StatusConflict, "run has not finished executing")
		return
	}

	details, err := h.queries.ListRunItemDetails(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snapshot := runner.Snapshot(run, runner.Aggregate(details))
	if err := h.queries.CreateScoreSnapshot(r.Context(), snapshot); err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteSuccess(w, http.StatusCreated, snapshot)
}
