package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/jobs"
	"github.com/hirewise/qa-backoffice/api/internal/logging"
	"github.com/hirewise/qa-backoffice/api/internal/middleware"
	"github.com/hirewise/qa-backoffice/api/internal/runner"
	testutil "github.com/hirewise/qa-backoffice/api/internal/testing"

	"github.com/hirewise/qa-backoffice/api/internal/agent"
)

// newTestServer wires the full handler stack against the test database and
// a stub agent service for the "staging" environment.
func newTestServer(t *testing.T, queries *db.Queries) *httptest.Server {
	t.Helper()

	agentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agent.AskRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"conversation_id": "conv-1", "message": "answer to %s", "status": "COMPLETED"}`, req.Query)
	}))
	t.Cleanup(agentServer.Close)

	logger := logging.NewLogger("error", "text", "stderr")
	agents := map[string]runner.AgentCaller{"staging": agent.NewClient(agentServer.URL, "test-key")}
	executor := runner.NewExecutor(queries, agents, logger)
	orchestrator := runner.NewOrchestrator(queries, nil, logger)
	handler := NewHandler(queries, jobs.NewRegistry(), executor, orchestrator, []string{"staging"}, logger)

	router := mux.NewRouter()
	handler.RegisterRoutes(router, middleware.TokenMiddleware(""))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&envelope)
	return resp, envelope
}

func dataMap(t *testing.T, envelope map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := envelope["data"].(map[string]interface{})
	require.True(t, ok, "envelope: %v", envelope)
	return data
}

func TestQueryGroupCRUD(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)
	server := newTestServer(t, tdb.Queries)

	resp, envelope := doJSON(t, "POST", server.URL+"/api/v1/query-groups", map[string]interface{}{
		"name":        "candidate search",
		"description": "search scenarios",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	groupID := dataMap(t, envelope)["id"].(string)

	resp, envelope = doJSON(t, "GET", server.URL+"/api/v1/query-groups/"+groupID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "candidate search", dataMap(t, envelope)["name"])

	resp, _ = doJSON(t, "GET", server.URL+"/api/v1/query-groups/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A group with queries cannot be deleted
	resp, envelope = doJSON(t, "POST", server.URL+"/api/v1/queries", map[string]interface{}{
		"group_id": groupID,
		"text":     "find java developers",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	queryID := dataMap(t, envelope)["id"].(string)

	resp, _ = doJSON(t, "DELETE", server.URL+"/api/v1/query-groups/"+groupID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, "DELETE", server.URL+"/api/v1/queries/"+queryID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, "DELETE", server.URL+"/api/v1/query-groups/"+groupID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunLifecycle(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)
	server := newTestServer(t, tdb.Queries)

	_, envelope := doJSON(t, "POST", server.URL+"/api/v1/query-groups", map[string]interface{}{"name": "g"})
	groupID := dataMap(t, envelope)["id"].(string)

	for _, text := range []string{"find java developers", "schedule an interview"} {
		resp, _ := doJSON(t, "POST", server.URL+"/api/v1/queries", map[string]interface{}{
			"group_id":    groupID,
			"text":        text,
			"logic_field": "status",
			"logic_value": "COMPLETED",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, envelope := doJSON(t, "POST", server.URL+"/api/v1/runs", map[string]interface{}{
		"environment":  "staging",
		"group_id":     groupID,
		"repeat_count": 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	runID := dataMap(t, envelope)["id"].(string)

	deadline := time.Now().Add(10 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		_, envelope = doJSON(t, "GET", server.URL+"/api/v1/runs/"+runID, nil)
		status = dataMap(t, envelope)["status"].(string)
		if status == db.RunStatusDone || status == db.RunStatusFailed {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.Equal(t, db.RunStatusDone, status)

	// 2 queries x 2 repeats
	resp, envelope = doJSON(t, "GET", server.URL+"/api/v1/runs/"+runID+"/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items, ok := envelope["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 4)

	// Evaluate; without a judge key LLM evaluation degrades to a skip
	resp, _ = doJSON(t, "POST", server.URL+"/api/v1/runs/"+runID+"/evaluate", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	deadline = time.Now().Add(10 * time.Second)
	var evalStatus string
	for time.Now().Before(deadline) {
		_, envelope = doJSON(t, "GET", server.URL+"/api/v1/runs/"+runID, nil)
		evalStatus = dataMap(t, envelope)["eval_status"].(string)
		if evalStatus == db.EvalStatusDone {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.Equal(t, db.EvalStatusDone, evalStatus)

	resp, envelope = doJSON(t, "GET", server.URL+"/api/v1/runs/"+runID+"/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := dataMap(t, envelope)
	assert.Equal(t, float64(4), dash["total_items"])
	assert.Equal(t, 100.0, dash["logic_pass_rate"])

	resp, _ = doJSON(t, "POST", server.URL+"/api/v1/runs/"+runID+"/snapshot", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateRunValidation(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)
	server := newTestServer(t, tdb.Queries)

	resp, _ := doJSON(t, "POST", server.URL+"/api/v1/runs", map[string]interface{}{
		"environment": "production",
		"query_ids":   []string{"x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, "POST", server.URL+"/api/v1/runs", map[string]interface{}{
		"environment": "staging",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, "POST", server.URL+"/api/v1/runs", map[string]interface{}{
		"environment": "staging",
		"test_set_id": "ts",
		"group_id":    "g",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)
	server := newTestServer(t, tdb.Queries)

	// First read materializes defaults
	resp, envelope := doJSON(t, "GET", server.URL+"/api/v1/settings/staging", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	setting := dataMap(t, envelope)
	assert.Equal(t, float64(1), setting["repeat_count"])
	assert.Equal(t, float64(60000), setting["timeout_ms"])

	resp, _ = doJSON(t, "PUT", server.URL+"/api/v1/settings/staging", map[string]interface{}{
		"repeat_count":         3,
		"room_count":           2,
		"agent_parallel_calls": 8,
		"eval_parallel_calls":  4,
		"timeout_ms":           30000,
		"eval_model":           "gpt-4o",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, envelope = doJSON(t, "GET", server.URL+"/api/v1/settings/staging", nil)
	setting = dataMap(t, envelope)
	assert.Equal(t, float64(3), setting["repeat_count"])
	assert.Equal(t, "gpt-4o", setting["eval_model"])

	resp, _ = doJSON(t, "GET", server.URL+"/api/v1/settings/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImportQueries(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)
	server := newTestServer(t, tdb.Queries)

	_, envelope := doJSON(t, "POST", server.URL+"/api/v1/query-groups", map[string]interface{}{"name": "imported"})
	groupID := dataMap(t, envelope)["id"].(string)

	csv := strings.Join([]string{
		"query,expected_result,category,logic_field,logic_value,criteria",
		"find java developers,candidates,search,status,COMPLETED,relevance: Is the answer relevant?",
		",,,,,",
		"schedule an interview,,scheduling,,,",
	}, "\n")

	resp, err := http.Post(server.URL+"/api/v1/import/queries?group_id="+groupID, "text/csv", strings.NewReader(csv))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var importEnvelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&importEnvelope))
	assert.Equal(t, float64(2), dataMap(t, importEnvelope)["imported"])

	_, envelope = doJSON(t, "GET", server.URL+"/api/v1/queries?group_id="+groupID, nil)
	queries, ok := envelope["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, queries, 2)
}

func TestTokenAuth(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	defer tdb.CleanupTestDB(t)

	logger := logging.NewLogger("error", "text", "stderr")
	handler := NewHandler(tdb.Queries, jobs.NewRegistry(),
		runner.NewExecutor(tdb.Queries, nil, logger),
		runner.NewOrchestrator(tdb.Queries, nil, logger),
		[]string{"staging"}, logger)

	router := mux.NewRouter()
	handler.RegisterRoutes(router, middleware.TokenMiddleware("secret"))
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/query-groups")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest("GET", server.URL+"/api/v1/query-groups", nil)
	req.Header.Set("X-Backoffice-Token", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open
	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
