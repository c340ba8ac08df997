package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/judge"
)

func executedItem(id, runID string, ordinal int, queryText, responseJSON string) db.RunItem {
	item := makeItem(id, runID, ordinal, queryText)
	item.ResponseJSON = responseJSON
	item.ResponseText = responseJSON
	now := time.Now()
	item.ExecutedAt = &now
	return item
}

func TestEvaluateLogicPhase(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")

	pass := executedItem("i1", "r1", 0, "q1", `{"status": "COMPLETED"}`)
	pass.LogicField = "status"
	pass.LogicValue = "COMPLETED"

	fail := executedItem("i2", "r1", 1, "q2", `{"status": "ERROR"}`)
	fail.LogicField = "status"
	fail.LogicValue = "COMPLETED"

	noCheck := executedItem("i3", "r1", 2, "q3", `{"status": "COMPLETED"}`)

	errored := makeItem("i4", "r1", 3, "q4")
	errored.Error = "timeout"
	errored.LogicField = "status"
	errored.LogicValue = "COMPLETED"

	store.addRun(run, []db.RunItem{pass, fail, noCheck, errored})

	orch := NewOrchestrator(store, &fakeJudge{verdict: judge.Verdict{Score: 8, Passed: true}}, testLogger())
	require.NoError(t, orch.Evaluate(context.Background(), "r1"))

	assert.Equal(t, db.LogicResultPass, store.logic["i1"].Result)
	assert.Contains(t, store.logic["i2"].Result, "FAIL")
	assert.Equal(t, db.LogicResultSkipped, store.logic["i3"].Result)
	assert.Equal(t, db.LogicResultSkipped, store.logic["i4"].Result)

	got, _ := store.GetRun(context.Background(), "r1")
	assert.Equal(t, db.EvalStatusDone, got.EvalStatus)
}

func TestEvaluateLLMPhase(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")

	judged := executedItem("i1", "r1", 0, "q1", `{"message": "hi"}`)
	judged.Criteria = []db.Criterion{
		{Name: "relevance", Prompt: "Is the answer relevant?"},
		{Name: "tone", Prompt: "Is the tone professional?"},
	}

	noCriteria := executedItem("i2", "r1", 1, "q2", `{"message": "hi"}`)

	errored := makeItem("i3", "r1", 2, "q3")
	errored.Error = "timeout"
	errored.Criteria = []db.Criterion{{Name: "relevance", Prompt: "p"}}

	store.addRun(run, []db.RunItem{judged, noCriteria, errored})

	j := &fakeJudge{verdict: judge.Verdict{Score: 8, Passed: true, Reason: "fine"}}
	orch := NewOrchestrator(store, j, testLogger())
	require.NoError(t, orch.Evaluate(context.Background(), "r1"))

	eval := store.llm["i1"]
	require.NotNil(t, eval)
	assert.Equal(t, db.LLMStatusDone, eval.Status)
	assert.Equal(t, map[string]float64{"relevance": 8, "tone": 8}, eval.Scores)
	require.NotNil(t, eval.TotalScore)
	assert.Equal(t, 8.0, *eval.TotalScore)
	assert.Equal(t, 2, j.callCount())

	assert.Equal(t, db.LLMStatusSkippedNoCriteria, store.llm["i2"].Status)
	assert.Contains(t, store.llm["i3"].Status, db.LLMStatusFailedPrefix)
}

func TestEvaluateJudgeFailureMarksItem(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")

	item := executedItem("i1", "r1", 0, "q1", `{"message": "hi"}`)
	item.Criteria = []db.Criterion{{Name: "relevance", Prompt: "p"}}
	store.addRun(run, []db.RunItem{item})

	j := &fakeJudge{failOn: map[string]error{"q1": errors.New("rate limited")}}
	orch := NewOrchestrator(store, j, testLogger())
	require.NoError(t, orch.Evaluate(context.Background(), "r1"))

	eval := store.llm["i1"]
	require.NotNil(t, eval)
	assert.Contains(t, eval.Status, db.LLMStatusFailedPrefix)
	assert.Contains(t, eval.Status, "rate limited")
	assert.Nil(t, eval.TotalScore)

	got, _ := store.GetRun(context.Background(), "r1")
	assert.Equal(t, db.EvalStatusDone, got.EvalStatus)
}

func TestEvaluateNoJudgeSkips(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")

	item := executedItem("i1", "r1", 0, "q1", `{"message": "hi"}`)
	item.Criteria = []db.Criterion{{Name: "relevance", Prompt: "p"}}
	store.addRun(run, []db.RunItem{item})

	orch := NewOrchestrator(store, nil, testLogger())
	require.NoError(t, orch.Evaluate(context.Background(), "r1"))

	assert.Equal(t, db.LLMStatusSkippedNoKey, store.llm["i1"].Status)
}

func TestEvaluateIdempotent(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")

	item := executedItem("i1", "r1", 0, "q1", `{"message": "hi"}`)
	item.Criteria = []db.Criterion{{Name: "relevance", Prompt: "p"}}
	store.addRun(run, []db.RunItem{item})

	score := 9.5
	store.llm["i1"] = &db.LLMEvaluation{
		RunItemID:  "i1",
		Status:     db.LLMStatusDone,
		Scores:     map[string]float64{"relevance": 9.5},
		TotalScore: &score,
	}
	store.logic["i1"] = &db.LogicEvaluation{RunItemID: "i1", Result: db.LogicResultSkipped}

	j := &fakeJudge{verdict: judge.Verdict{Score: 1}}
	orch := NewOrchestrator(store, j, testLogger())
	require.NoError(t, orch.Evaluate(context.Background(), "r1"))

	assert.Equal(t, 0, j.callCount())
	assert.Equal(t, 9.5, *store.llm["i1"].TotalScore)
}

func TestEvaluateRetriesFailedVerdicts(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")

	item := executedItem("i1", "r1", 0, "q1", `{"message": "hi"}`)
	item.Criteria = []db.Criterion{{Name: "relevance", Prompt: "p"}}
	store.addRun(run, []db.RunItem{item})

	store.llm["i1"] = &db.LLMEvaluation{RunItemID: "i1", Status: db.LLMStatusFailedPrefix + "rate limited"}

	j := &fakeJudge{verdict: judge.Verdict{Score: 7, Passed: true}}
	orch := NewOrchestrator(store, j, testLogger())
	require.NoError(t, orch.Evaluate(context.Background(), "r1"))

	assert.Equal(t, db.LLMStatusDone, store.llm["i1"].Status)
	assert.Equal(t, 1, j.callCount())
}
