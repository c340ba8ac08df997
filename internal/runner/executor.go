package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hirewise/qa-backoffice/api/internal/agent"
	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/logging"
	"github.com/hirewise/qa-backoffice/api/internal/metrics"
)

// AgentCaller is the agent client surface the executor needs
type AgentCaller interface {
	Ask(ctx context.Context, req agent.AskRequest) (*agent.AskResponse, error)
}

// Executor runs the items of a run against the agent service of the run's
// environment, persisting each item's output as soon as it completes.
type Executor struct {
	store  Store
	agents map[string]AgentCaller
	logger *logging.Logger
}

// NewExecutor creates an executor with one agent client per environment
func NewExecutor(store Store, agents map[string]AgentCaller, logger *logging.Logger) *Executor {
	return &Executor{store: store, agents: agents, logger: logger}
}

// Execute runs every item of the run with bounded parallelism. Item failures
// (timeouts, agent errors) are recorded on the item and never fail the run;
// the run only fails on pre-flight faults or cancellation.
func (e *Executor) Execute(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	agentClient, ok := e.agents[run.Environment]
	if !ok {
		msg := fmt.Sprintf("unknown environment: %s", run.Environment)
		e.store.UpdateRunStatus(ctx, runID, db.RunStatusFailed, msg)
		return fmt.Errorf("%s", msg)
	}

	items, err := e.store.ListRunItems(ctx, runID)
	if err != nil {
		e.store.UpdateRunStatus(ctx, runID, db.RunStatusFailed, err.Error())
		return fmt.Errorf("load run items: %w", err)
	}

	if err := e.store.UpdateRunStatus(ctx, runID, db.RunStatusRunning, ""); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	metrics.RecordRunStarted(run.Environment)

	e.logger.Info("run execution started", map[string]interface{}{
		"run_id":       runID,
		"environment":  run.Environment,
		"items":        len(items),
		"max_parallel": run.MaxParallel,
	})

	parallel := run.MaxParallel
	if parallel < 1 {
		parallel = 1
	}
	timeout := time.Duration(run.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	pool, err := ants.NewPool(parallel)
	if err != nil {
		e.store.UpdateRunStatus(ctx, runID, db.RunStatusFailed, err.Error())
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range items {
		if ctx.Err() != nil {
			break
		}

		item := &items[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			e.executeItem(ctx, run, agentClient, item, timeout)
		}
		if err := pool.Submit(task); err != nil {
			// Pool is released only after the run, so this is cancellation
			task()
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		e.store.UpdateRunStatus(context.Background(), runID, db.RunStatusFailed, "canceled by operator")
		return ctx.Err()
	}

	if err := e.store.UpdateRunStatus(ctx, runID, db.RunStatusDone, ""); err != nil {
		return fmt.Errorf("mark run done: %w", err)
	}

	e.logger.Info("run execution finished", map[string]interface{}{"run_id": runID})
	return nil
}

func (e *Executor) executeItem(ctx context.Context, run *db.Run, agentClient AgentCaller, item *db.RunItem, timeout time.Duration) {
	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := agentClient.Ask(itemCtx, agent.AskRequest{
		Query:     item.QueryText,
		Context:   item.Context,
		Assistant: item.Assistant,
		Model:     run.TestModel,
	})
	elapsed := time.Since(start)

	latency := int(elapsed.Milliseconds())
	item.LatencyMS = &latency

	// Re-executed items must not keep state from an earlier attempt
	item.ConversationID = ""
	item.ResponseText = ""
	item.ResponseJSON = ""
	item.Error = ""

	outcome := "ok"
	if err != nil {
		item.Error = err.Error()
		outcome = "error"
	} else {
		item.ConversationID = resp.ConversationID
		item.ResponseText = resp.Message
		item.ResponseJSON = resp.Raw
	}
	metrics.RecordRunItem(run.Environment, outcome, elapsed.Seconds())

	// Persist even when the run context was canceled mid-flight, so the
	// item's output survives.
	if err := e.store.UpdateRunItemExecution(context.Background(), item); err != nil {
		e.logger.Error("persist run item failed", err, map[string]interface{}{
			"run_id":  run.ID,
			"item_id": item.ID,
		})
	}

	if item.Error != "" {
		e.logger.Warn("run item failed", map[string]interface{}{
			"run_id":  run.ID,
			"item_id": item.ID,
			"ordinal": item.Ordinal,
			"error":   item.Error,
		})
	}
}
