package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run operations

// CreateRun inserts a run and its materialized items in one transaction, so a
// run never exists without its item set.
func (q *Queries) CreateRun(ctx context.Context, run *Run, items []RunItem) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunStatusPending
	}
	if run.EvalStatus == "" {
		run.EvalStatus = EvalStatusPending
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, environment, status, eval_status, test_model, eval_model, max_parallel, eval_parallel, timeout_ms, repeat_count, room_count, base_run_id, test_set_id, group_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, run.ID, run.Environment, run.Status, run.EvalStatus, run.TestModel, run.EvalModel,
		run.MaxParallel, run.EvalParallel, run.TimeoutMS, run.RepeatCount, run.RoomCount,
		run.BaseRunID, run.TestSetID, run.GroupID, run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.RunID = run.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = run.CreatedAt
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_items (id, run_id, query_id, ordinal, room_index, repeat_index, query_text, expected_result, category, logic_field, logic_value, criteria, context, assistant, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, item.ID, item.RunID, item.QueryID, item.Ordinal, item.RoomIndex, item.RepeatIndex,
			item.QueryText, item.ExpectedResult, item.Category, item.LogicField, item.LogicValue,
			marshalJSON(item.Criteria), marshalJSON(item.Context), item.Assistant, item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert run item %d: %w", item.Ordinal, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, environment, status, eval_status, test_model, eval_model, max_parallel, eval_parallel, timeout_ms, repeat_count, room_count, base_run_id, test_set_id, group_id, error, created_at, started_at, finished_at`

func scanRun(scan func(dest ...interface{}) error) (*Run, error) {
	var run Run
	var baseRunID, testSetID, groupID sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := scan(
		&run.ID, &run.Environment, &run.Status, &run.EvalStatus, &run.TestModel,
		&run.EvalModel, &run.MaxParallel, &run.EvalParallel, &run.TimeoutMS,
		&run.RepeatCount, &run.RoomCount, &baseRunID, &testSetID, &groupID,
		&run.Error, &run.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if baseRunID.Valid {
		run.BaseRunID = &baseRunID.String
	}
	if testSetID.Valid {
		run.TestSetID = &testSetID.String
	}
	if groupID.Valid {
		run.GroupID = &groupID.String
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}

// GetRun gets a run by ID
func (q *Queries) GetRun(ctx context.Context, id string) (*Run, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	return scanRun(row.Scan)
}

// ListRuns lists runs, newest first, optionally filtered by environment
func (q *Queries) ListRuns(ctx context.Context, environment string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if environment != "" {
		rows, err = q.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM runs WHERE environment = $1 ORDER BY created_at DESC LIMIT $2`,
			environment, limit)
	} else {
		rows, err = q.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			continue
		}
		runs = append(runs, *run)
	}

	return runs, nil
}

// LatestDoneRun returns the most recently finished DONE run in an environment,
// excluding the given run. Returns sql.ErrNoRows when none exists.
func (q *Queries) LatestDoneRun(ctx context.Context, environment, excludeRunID string) (*Run, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE environment = $1 AND status = $2 AND id <> $3
		ORDER BY created_at DESC
		LIMIT 1
	`, environment, RunStatusDone, excludeRunID)
	return scanRun(row.Scan)
}

// LatestDoneRunForTestSet returns the most recent DONE run of a test set,
// optionally restricted to one environment. Returns sql.ErrNoRows when none
// exists.
func (q *Queries) LatestDoneRunForTestSet(ctx context.Context, testSetID, environment string) (*Run, error) {
	var row *sql.Row
	if environment != "" {
		row = q.db.QueryRowContext(ctx, `
			SELECT `+runColumns+`
			FROM runs
			WHERE test_set_id = $1 AND environment = $2 AND status = $3
			ORDER BY created_at DESC
			LIMIT 1
		`, testSetID, environment, RunStatusDone)
	} else {
		row = q.db.QueryRowContext(ctx, `
			SELECT `+runColumns+`
			FROM runs
			WHERE test_set_id = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT 1
		`, testSetID, RunStatusDone)
	}
	return scanRun(row.Scan)
}

// UpdateRunStatus transitions a run's execution status
func (q *Queries) UpdateRunStatus(ctx context.Context, runID, status, errText string) error {
	now := time.Now()
	var startedAt, finishedAt interface{}
	if status == RunStatusRunning {
		startedAt = now
	}
	if status == RunStatusDone || status == RunStatusFailed {
		finishedAt = now
	}

	_, err := q.db.ExecContext(ctx, `
		UPDATE runs
		SET status = $2, error = $3,
			started_at = COALESCE($4, started_at),
			finished_at = COALESCE($5, finished_at)
		WHERE id = $1
	`, runID, status, errText, startedAt, finishedAt)
	return err
}

// UpdateRunEvalStatus transitions a run's evaluation status
func (q *Queries) UpdateRunEvalStatus(ctx context.Context, runID, evalStatus string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE runs SET eval_status = $2 WHERE id = $1`, runID, evalStatus)
	return err
}

// Run item operations

const runItemColumns = `id, run_id, query_id, ordinal, room_index, repeat_index, query_text, expected_result, category, logic_field, logic_value, criteria, context, assistant, conversation_id, response_text, response_json, latency_ms, error, created_at, executed_at`

func scanRunItem(scan func(dest ...interface{}) error) (*RunItem, error) {
	var item RunItem
	var queryID sql.NullString
	var criteriaJSON, contextJSON []byte
	var latencyMS sql.NullInt64
	var executedAt sql.NullTime

	err := scan(
		&item.ID, &item.RunID, &queryID, &item.Ordinal, &item.RoomIndex, &item.RepeatIndex,
		&item.QueryText, &item.ExpectedResult, &item.Category, &item.LogicField, &item.LogicValue,
		&criteriaJSON, &contextJSON, &item.Assistant, &item.ConversationID, &item.ResponseText,
		&item.ResponseJSON, &latencyMS, &item.Error, &item.CreatedAt, &executedAt)
	if err != nil {
		return nil, err
	}

	if queryID.Valid {
		item.QueryID = &queryID.String
	}
	if latencyMS.Valid {
		v := int(latencyMS.Int64)
		item.LatencyMS = &v
	}
	if executedAt.Valid {
		item.ExecutedAt = &executedAt.Time
	}
	if len(criteriaJSON) > 0 {
		json.Unmarshal(criteriaJSON, &item.Criteria)
	}
	if len(contextJSON) > 0 {
		json.Unmarshal(contextJSON, &item.Context)
	}

	return &item, nil
}

// ListRunItems lists a run's items in ordinal order
func (q *Queries) ListRunItems(ctx context.Context, runID string) ([]RunItem, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+runItemColumns+` FROM run_items WHERE run_id = $1 ORDER BY ordinal`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RunItem
	for rows.Next() {
		item, err := scanRunItem(rows.Scan)
		if err != nil {
			continue
		}
		items = append(items, *item)
	}

	return items, nil
}

// UpdateRunItemExecution persists one item's execution output as soon as the
// item completes, keeping partial progress across crashes.
func (q *Queries) UpdateRunItemExecution(ctx context.Context, item *RunItem) error {
	now := time.Now()
	item.ExecutedAt = &now

	_, err := q.db.ExecContext(ctx, `
		UPDATE run_items
		SET conversation_id = $2, response_text = $3, response_json = $4, latency_ms = $5, error = $6, executed_at = $7
		WHERE id = $1
	`, item.ID, item.ConversationID, item.ResponseText, item.ResponseJSON,
		item.LatencyMS, item.Error, item.ExecutedAt)
	return err
}

// CountExecutedRunItems counts a run's items that have completed execution
func (q *Queries) CountExecutedRunItems(ctx context.Context, runID string) (executed, total int, err error) {
	err = q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE executed_at IS NOT NULL), COUNT(*)
		FROM run_items
		WHERE run_id = $1
	`, runID).Scan(&executed, &total)
	return executed, total, err
}

// Evaluation operations

// UpsertLogicEvaluation writes the logic check result for a run item. The
// run_item_id unique constraint keeps at most one row per item.
func (q *Queries) UpsertLogicEvaluation(ctx context.Context, eval *LogicEvaluation) error {
	if eval.ID == "" {
		eval.ID = uuid.New().String()
	}
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO logic_evaluations (id, run_item_id, result, field_path, expected_value, actual_preview, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_item_id) DO UPDATE SET
			result = EXCLUDED.result,
			field_path = EXCLUDED.field_path,
			expected_value = EXCLUDED.expected_value,
			actual_preview = EXCLUDED.actual_preview
	`, eval.ID, eval.RunItemID, eval.Result, eval.FieldPath, eval.ExpectedValue,
		eval.ActualPreview, eval.CreatedAt)
	return err
}

// UpsertLLMEvaluation writes the judge verdict for a run item
func (q *Queries) UpsertLLMEvaluation(ctx context.Context, eval *LLMEvaluation) error {
	if eval.ID == "" {
		eval.ID = uuid.New().String()
	}
	now := time.Now()
	if eval.CreatedAt.IsZero() {
		eval.CreatedAt = now
	}
	eval.UpdatedAt = now

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO llm_evaluations (id, run_item_id, scores, total_score, comment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_item_id) DO UPDATE SET
			scores = EXCLUDED.scores,
			total_score = EXCLUDED.total_score,
			comment = EXCLUDED.comment,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, eval.ID, eval.RunItemID, marshalJSON(eval.Scores), eval.TotalScore,
		eval.Comment, eval.Status, eval.CreatedAt, eval.UpdatedAt)
	return err
}

// ListRunItemDetails lists a run's items joined with their evaluations, in
// ordinal order. This is the read surface for evaluation, comparison and
// dashboards.
func (q *Queries) ListRunItemDetails(ctx context.Context, runID string) ([]RunItemDetail, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT
			ri.id, ri.run_id, ri.query_id, ri.ordinal, ri.room_index, ri.repeat_index,
			ri.query_text, ri.expected_result, ri.category, ri.logic_field, ri.logic_value,
			ri.criteria, ri.context, ri.assistant, ri.conversation_id, ri.response_text,
			ri.response_json, ri.latency_ms, ri.error, ri.created_at, ri.executed_at,
			le.id, le.result, le.field_path, le.expected_value, le.actual_preview, le.created_at,
			lle.id, lle.scores, lle.total_score, lle.comment, lle.status, lle.created_at, lle.updated_at
		FROM run_items ri
		LEFT JOIN logic_evaluations le ON le.run_item_id = ri.id
		LEFT JOIN llm_evaluations lle ON lle.run_item_id = ri.id
		WHERE ri.run_id = $1
		ORDER BY ri.ordinal
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []RunItemDetail
	for rows.Next() {
		var item RunItem
		var queryID sql.NullString
		var criteriaJSON, contextJSON []byte
		var latencyMS sql.NullInt64
		var executedAt sql.NullTime

		var logicID, logicResult, logicField, logicExpected, logicPreview sql.NullString
		var logicCreatedAt sql.NullTime

		var llmID, llmComment, llmStatus sql.NullString
		var llmScoresJSON []byte
		var llmTotalScore sql.NullFloat64
		var llmCreatedAt, llmUpdatedAt sql.NullTime

		err := rows.Scan(
			&item.ID, &item.RunID, &queryID, &item.Ordinal, &item.RoomIndex, &item.RepeatIndex,
			&item.QueryText, &item.ExpectedResult, &item.Category, &item.LogicField, &item.LogicValue,
			&criteriaJSON, &contextJSON, &item.Assistant, &item.ConversationID, &item.ResponseText,
			&item.ResponseJSON, &latencyMS, &item.Error, &item.CreatedAt, &executedAt,
			&logicID, &logicResult, &logicField, &logicExpected, &logicPreview, &logicCreatedAt,
			&llmID, &llmScoresJSON, &llmTotalScore, &llmComment, &llmStatus, &llmCreatedAt, &llmUpdatedAt)
		if err != nil {
			continue
		}

		if queryID.Valid {
			item.QueryID = &queryID.String
		}
		if latencyMS.Valid {
			v := int(latencyMS.Int64)
			item.LatencyMS = &v
		}
		if executedAt.Valid {
			item.ExecutedAt = &executedAt.Time
		}
		if len(criteriaJSON) > 0 {
			json.Unmarshal(criteriaJSON, &item.Criteria)
		}
		if len(contextJSON) > 0 {
			json.Unmarshal(contextJSON, &item.Context)
		}

		detail := RunItemDetail{Item: item}

		if logicID.Valid {
			detail.Logic = &LogicEvaluation{
				ID:            logicID.String,
				RunItemID:     item.ID,
				Result:        logicResult.String,
				FieldPath:     logicField.String,
				ExpectedValue: logicExpected.String,
				ActualPreview: logicPreview.String,
				CreatedAt:     logicCreatedAt.Time,
			}
		}

		if llmID.Valid {
			llm := &LLMEvaluation{
				ID:        llmID.String,
				RunItemID: item.ID,
				Comment:   llmComment.String,
				Status:    llmStatus.String,
				CreatedAt: llmCreatedAt.Time,
				UpdatedAt: llmUpdatedAt.Time,
			}
			if llmTotalScore.Valid {
				llm.TotalScore = &llmTotalScore.Float64
			}
			if len(llmScoresJSON) > 0 {
				json.Unmarshal(llmScoresJSON, &llm.Scores)
			}
			detail.LLM = llm
		}

		details = append(details, detail)
	}

	return details, nil
}

// Score snapshots

// CreateScoreSnapshot appends a write-once aggregate record
func (q *Queries) CreateScoreSnapshot(ctx context.Context, snapshot *ScoreSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO score_snapshots (id, run_id, test_set_id, environment, total_items, executed_items, error_items, logic_pass_rate, metric_averages, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, snapshot.ID, snapshot.RunID, snapshot.TestSetID, snapshot.Environment,
		snapshot.TotalItems, snapshot.ExecutedItems, snapshot.ErrorItems,
		snapshot.LogicPassRate, marshalJSON(snapshot.MetricAverages), snapshot.CreatedAt)
	return err
}

// ListScoreSnapshots lists snapshots for a test set, oldest first, for trend views
func (q *Queries) ListScoreSnapshots(ctx context.Context, testSetID string) ([]ScoreSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, run_id, test_set_id, environment, total_items, executed_items, error_items, logic_pass_rate, metric_averages, created_at
		FROM score_snapshots
		WHERE test_set_id = $1
		ORDER BY created_at
	`, testSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []ScoreSnapshot
	for rows.Next() {
		var snapshot ScoreSnapshot
		var runID, setID sql.NullString
		var averagesJSON []byte

		if err := rows.Scan(
			&snapshot.ID, &runID, &setID, &snapshot.Environment, &snapshot.TotalItems,
			&snapshot.ExecutedItems, &snapshot.ErrorItems, &snapshot.LogicPassRate,
			&averagesJSON, &snapshot.CreatedAt); err != nil {
			continue
		}

		if runID.Valid {
			snapshot.RunID = &runID.String
		}
		if setID.Valid {
			snapshot.TestSetID = &setID.String
		}
		if len(averagesJSON) > 0 {
			json.Unmarshal(averagesJSON, &snapshot.MetricAverages)
		}

		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}
