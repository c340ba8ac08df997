package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewise/qa-backoffice/api/internal/agent"
	"github.com/hirewise/qa-backoffice/api/internal/db"
)

func TestExecuteHappyPath(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")
	store.addRun(run, []db.RunItem{
		makeItem("i1", "r1", 0, "find java developers"),
		makeItem("i2", "r1", 1, "schedule an interview"),
		makeItem("i3", "r1", 2, "show open positions"),
	})

	agentClient := &fakeAgent{}
	exec := NewExecutor(store, map[string]AgentCaller{"staging": agentClient}, testLogger())

	err := exec.Execute(context.Background(), "r1")
	require.NoError(t, err)

	got, _ := store.GetRun(context.Background(), "r1")
	assert.Equal(t, db.RunStatusDone, got.Status)
	assert.Equal(t, 3, agentClient.callCount())

	items, _ := store.ListRunItems(context.Background(), "r1")
	for _, item := range items {
		assert.NotNil(t, item.ExecutedAt)
		assert.Empty(t, item.Error)
		assert.Contains(t, item.ResponseText, item.QueryText)
		assert.NotEmpty(t, item.ResponseJSON)
		require.NotNil(t, item.LatencyMS)
	}
}

func TestExecuteItemFailureDoesNotFailRun(t *testing.T) {
	store := newFakeStore()
	store.addRun(makeRun("r1", "staging"), []db.RunItem{
		makeItem("i1", "r1", 0, "good query"),
		makeItem("i2", "r1", 1, "bad query"),
	})

	agentClient := &fakeAgent{reply: func(req agent.AskRequest) (*agent.AskResponse, error) {
		if req.Query == "bad query" {
			return nil, errors.New("agent API error: boom (status: 500)")
		}
		return &agent.AskResponse{Message: "ok", Raw: `{"message":"ok"}`}, nil
	}}
	exec := NewExecutor(store, map[string]AgentCaller{"staging": agentClient}, testLogger())

	err := exec.Execute(context.Background(), "r1")
	require.NoError(t, err)

	got, _ := store.GetRun(context.Background(), "r1")
	assert.Equal(t, db.RunStatusDone, got.Status)

	items, _ := store.ListRunItems(context.Background(), "r1")
	assert.Empty(t, items[0].Error)
	assert.Contains(t, items[1].Error, "boom")
	assert.NotNil(t, items[1].ExecutedAt)
}

func TestExecuteRetryClearsStaleState(t *testing.T) {
	store := newFakeStore()
	run := makeRun("r1", "staging")
	run.Status = db.RunStatusFailed

	failed := makeItem("i1", "r1", 0, "previously failed query")
	failed.Error = "agent API error: boom (status: 500)"

	stale := makeItem("i2", "r1", 1, "now failing query")
	stale.ConversationID = "old-conv"
	stale.ResponseText = "old answer"
	stale.ResponseJSON = `{"message":"old answer"}`

	store.addRun(run, []db.RunItem{failed, stale})

	agentClient := &fakeAgent{reply: func(req agent.AskRequest) (*agent.AskResponse, error) {
		if req.Query == "now failing query" {
			return nil, errors.New("agent API error: down (status: 503)")
		}
		return &agent.AskResponse{ConversationID: "conv-2", Message: "fresh answer", Raw: `{"message":"fresh answer"}`}, nil
	}}
	exec := NewExecutor(store, map[string]AgentCaller{"staging": agentClient}, testLogger())

	require.NoError(t, exec.Execute(context.Background(), "r1"))

	items, _ := store.ListRunItems(context.Background(), "r1")
	assert.Empty(t, items[0].Error)
	assert.Equal(t, "fresh answer", items[0].ResponseText)

	assert.Contains(t, items[1].Error, "down")
	assert.Empty(t, items[1].ConversationID)
	assert.Empty(t, items[1].ResponseText)
	assert.Empty(t, items[1].ResponseJSON)
}

func TestExecuteUnknownEnvironmentFailsRun(t *testing.T) {
	store := newFakeStore()
	store.addRun(makeRun("r1", "nowhere"), []db.RunItem{makeItem("i1", "r1", 0, "q")})

	exec := NewExecutor(store, map[string]AgentCaller{"staging": &fakeAgent{}}, testLogger())

	err := exec.Execute(context.Background(), "r1")
	require.Error(t, err)

	got, _ := store.GetRun(context.Background(), "r1")
	assert.Equal(t, db.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "unknown environment")
}

func TestExecuteCanceled(t *testing.T) {
	store := newFakeStore()
	store.addRun(makeRun("r1", "staging"), []db.RunItem{
		makeItem("i1", "r1", 0, "q1"),
		makeItem("i2", "r1", 1, "q2"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(store, map[string]AgentCaller{"staging": &fakeAgent{}}, testLogger())
	err := exec.Execute(ctx, "r1")
	require.ErrorIs(t, err, context.Canceled)

	got, _ := store.GetRun(context.Background(), "r1")
	assert.Equal(t, db.RunStatusFailed, got.Status)
	assert.Equal(t, "canceled by operator", got.Error)
}
