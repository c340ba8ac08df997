package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"

	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/judge"
	"github.com/hirewise/qa-backoffice/api/internal/logging"
	"github.com/hirewise/qa-backoffice/api/internal/logic"
	"github.com/hirewise/qa-backoffice/api/internal/metrics"
)

// JudgeCaller is the judge client surface the orchestrator needs
type JudgeCaller interface {
	Judge(ctx context.Context, req judge.Request) (*judge.Verdict, judge.Usage, error)
}

// Orchestrator evaluates a run's captured responses: the deterministic logic
// check first, then the LLM judge. Evaluation is idempotent; re-running it
// fills gaps without touching verdicts that are already DONE.
type Orchestrator struct {
	store  Store
	judge  JudgeCaller // nil when no API key is configured
	logger *logging.Logger
}

// NewOrchestrator creates an orchestrator. A nil judge degrades LLM
// evaluation to SKIPPED_NO_KEY instead of failing.
func NewOrchestrator(store Store, judgeClient JudgeCaller, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{store: store, judge: judgeClient, logger: logger}
}

// Evaluate runs both evaluation phases over every item of a run. Per-item
// judge failures are recorded on the item and collected; they never abort
// the remaining items.
func (o *Orchestrator) Evaluate(ctx context.Context, runID string) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	details, err := o.store.ListRunItemDetails(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run items: %w", err)
	}

	if err := o.store.UpdateRunEvalStatus(ctx, runID, db.EvalStatusRunning); err != nil {
		return fmt.Errorf("mark evaluation running: %w", err)
	}

	o.logger.Info("evaluation started", map[string]interface{}{
		"run_id": runID,
		"items":  len(details),
	})

	var result *multierror.Error
	if err := o.evaluateLogic(ctx, details); err != nil {
		result = multierror.Append(result, err)
	}
	if err := o.evaluateLLM(ctx, run, details); err != nil {
		result = multierror.Append(result, err)
	}

	if ctx.Err() != nil {
		// Leave eval status RUNNING-free on cancellation so a later
		// evaluate call picks up the remainder.
		o.store.UpdateRunEvalStatus(context.Background(), runID, db.EvalStatusPending)
		return ctx.Err()
	}

	if err := o.store.UpdateRunEvalStatus(ctx, runID, db.EvalStatusDone); err != nil {
		result = multierror.Append(result, fmt.Errorf("mark evaluation done: %w", err))
	}

	o.logger.Info("evaluation finished", map[string]interface{}{"run_id": runID})
	return result.ErrorOrNil()
}

// evaluateLogic runs the deterministic field check for every item that does
// not already have a logic row.
func (o *Orchestrator) evaluateLogic(ctx context.Context, details []db.RunItemDetail) error {
	var result *multierror.Error

	for i := range details {
		if ctx.Err() != nil {
			break
		}
		detail := &details[i]
		if detail.Logic != nil {
			continue
		}

		item := detail.Item
		eval := &db.LogicEvaluation{
			RunItemID:     item.ID,
			FieldPath:     item.LogicField,
			ExpectedValue: item.LogicValue,
		}

		switch {
		case item.LogicField == "" || item.LogicValue == "":
			eval.Result = db.LogicResultSkipped
		case item.Error != "" || item.ExecutedAt == nil:
			eval.Result = db.LogicResultSkipped
		default:
			outcome := logic.Evaluate(item.ResponseJSON, item.LogicField, item.LogicValue)
			eval.Result = outcome.Result
			eval.ActualPreview = outcome.ActualPreview
		}

		if err := o.store.UpsertLogicEvaluation(ctx, eval); err != nil {
			result = multierror.Append(result, fmt.Errorf("item %s: %w", item.ID, err))
			continue
		}
		detail.Logic = eval
	}

	return result.ErrorOrNil()
}

// evaluateLLM judges every item that has criteria, captured a response and
// is not already judged, with its own parallelism cap.
func (o *Orchestrator) evaluateLLM(ctx context.Context, run *db.Run, details []db.RunItemDetail) error {
	var pending []*db.RunItemDetail
	var result *multierror.Error
	var mu sync.Mutex

	record := func(eval *db.LLMEvaluation) {
		if err := o.store.UpsertLLMEvaluation(ctx, eval); err != nil {
			mu.Lock()
			result = multierror.Append(result, fmt.Errorf("item %s: %w", eval.RunItemID, err))
			mu.Unlock()
		}
	}

	for i := range details {
		detail := &details[i]
		item := detail.Item

		if detail.LLM != nil && detail.LLM.Status != db.LLMStatusPending &&
			!strings.HasPrefix(detail.LLM.Status, db.LLMStatusFailedPrefix) &&
			detail.LLM.Status != db.LLMStatusSkippedNoKey {
			continue
		}

		if len(item.Criteria) == 0 {
			record(&db.LLMEvaluation{RunItemID: item.ID, Status: db.LLMStatusSkippedNoCriteria})
			continue
		}
		if item.Error != "" || item.ExecutedAt == nil {
			record(&db.LLMEvaluation{
				RunItemID: item.ID,
				Status:    db.LLMStatusFailedPrefix + "no response captured",
			})
			continue
		}

		pending = append(pending, detail)
	}

	if len(pending) == 0 {
		return result.ErrorOrNil()
	}

	if o.judge == nil {
		for _, detail := range pending {
			record(&db.LLMEvaluation{RunItemID: detail.Item.ID, Status: db.LLMStatusSkippedNoKey})
		}
		o.logger.Warn("no judge API key configured, skipping LLM evaluation", map[string]interface{}{
			"run_id": run.ID,
			"items":  len(pending),
		})
		return result.ErrorOrNil()
	}

	parallel := run.EvalParallel
	if parallel < 1 {
		parallel = 1
	}

	pool, err := ants.NewPool(parallel)
	if err != nil {
		return multierror.Append(result, fmt.Errorf("create eval pool: %w", err)).ErrorOrNil()
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, detail := range pending {
		if ctx.Err() != nil {
			break
		}

		d := detail
		wg.Add(1)
		task := func() {
			defer wg.Done()
			record(o.judgeItem(ctx, d.Item))
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	return result.ErrorOrNil()
}

// judgeItem calls the judge once per criterion and folds the verdicts into
// one evaluation row. Any criterion failure fails the whole item so partial
// score maps never masquerade as complete verdicts.
func (o *Orchestrator) judgeItem(ctx context.Context, item db.RunItem) *db.LLMEvaluation {
	eval := &db.LLMEvaluation{
		RunItemID: item.ID,
		Scores:    make(map[string]float64, len(item.Criteria)),
	}

	var comments []string
	for _, criterion := range item.Criteria {
		start := time.Now()
		verdict, _, err := o.judge.Judge(ctx, judge.Request{
			Query:          item.QueryText,
			ExpectedResult: item.ExpectedResult,
			Response:       item.ResponseJSON,
			CriterionName:  criterion.Name,
			Criterion:      criterion.Prompt,
		})
		if err != nil {
			metrics.RecordJudgeCall("error", time.Since(start).Seconds())
			eval.Scores = nil
			eval.Status = db.LLMStatusFailedPrefix + truncateReason(err.Error())
			return eval
		}
		metrics.RecordJudgeCall("ok", time.Since(start).Seconds())

		eval.Scores[criterion.Name] = verdict.Score
		if verdict.Reason != "" {
			comments = append(comments, fmt.Sprintf("%s: %s", criterion.Name, verdict.Reason))
		}
	}

	total := 0.0
	for _, score := range eval.Scores {
		total += score
	}
	mean := total / float64(len(eval.Scores))

	eval.TotalScore = &mean
	eval.Comment = strings.Join(comments, "\n")
	eval.Status = db.LLMStatusDone
	return eval
}

func truncateReason(reason string) string {
	const limit = 300
	reason = strings.ReplaceAll(reason, "\n", " ")
	if len(reason) > limit {
		return reason[:limit]
	}
	return reason
}
