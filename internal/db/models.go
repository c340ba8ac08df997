package db

import (
	"time"
)

/* Run lifecycle statuses */
const (
	RunStatusPending = "PENDING"
	RunStatusRunning = "RUNNING"
	RunStatusDone    = "DONE"
	RunStatusFailed  = "FAILED"
)

/* Evaluation lifecycle statuses, tracked independently from execution */
const (
	EvalStatusPending = "PENDING"
	EvalStatusRunning = "RUNNING"
	EvalStatusDone    = "DONE"
)

/* Logic evaluation results */
const (
	LogicResultPass    = "PASS"
	LogicResultFail    = "FAIL"
	LogicResultSkipped = "SKIPPED"
)

/* LLM evaluation statuses. Failures carry a reason: "FAILED:<reason>" */
const (
	LLMStatusPending           = "PENDING"
	LLMStatusDone              = "DONE"
	LLMStatusSkippedNoKey      = "SKIPPED_NO_KEY"
	LLMStatusSkippedNoCriteria = "SKIPPED_NO_CRITERIA"
	LLMStatusFailedPrefix      = "FAILED:"
)

/* Criterion is one named LLM judging criterion */
type Criterion struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

/* QueryGroup is a named collection of queries sharing defaults */
type QueryGroup struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	DefaultAssistant string      `json:"default_assistant,omitempty"`
	DefaultCriteria  []Criterion `json:"default_criteria,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

/* Query is a single test case */
type Query struct {
	ID             string                 `json:"id"`
	GroupID        string                 `json:"group_id"`
	Text           string                 `json:"text"`
	ExpectedResult string                 `json:"expected_result,omitempty"`
	Category       string                 `json:"category,omitempty"`
	LogicField     string                 `json:"logic_field,omitempty"`
	LogicValue     string                 `json:"logic_value,omitempty"`
	Criteria       []Criterion            `json:"criteria,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Assistant      string                 `json:"assistant,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

/* TestSet is a saved, ordered collection of query references */
type TestSet struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

/* TestSetItem links one query into a test set; (test_set_id, query_id) is unique */
type TestSetItem struct {
	ID        string    `json:"id"`
	TestSetID string    `json:"test_set_id"`
	QueryID   string    `json:"query_id"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

/* Run is one batch execution attempt against an environment */
type Run struct {
	ID           string     `json:"id"`
	Environment  string     `json:"environment"`
	Status       string     `json:"status"`
	EvalStatus   string     `json:"eval_status"`
	TestModel    string     `json:"test_model,omitempty"`
	EvalModel    string     `json:"eval_model,omitempty"`
	MaxParallel  int        `json:"max_parallel"`
	EvalParallel int        `json:"eval_parallel"`
	TimeoutMS    int        `json:"timeout_ms"`
	RepeatCount  int        `json:"repeat_count"`
	RoomCount    int        `json:"room_count"`
	BaseRunID    *string    `json:"base_run_id,omitempty"`
	TestSetID    *string    `json:"test_set_id,omitempty"`
	GroupID      *string    `json:"group_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

/*
 * RunItem is one (query x room x repeat) instance within a run. Snapshot
 * fields are immutable after creation; execution outputs are written once
 * the item's agent call completes.
 */
type RunItem struct {
	ID          string  `json:"id"`
	RunID       string  `json:"run_id"`
	QueryID     *string `json:"query_id,omitempty"` // soft reference, may dangle
	Ordinal     int     `json:"ordinal"`
	RoomIndex   int     `json:"room_index"`
	RepeatIndex int     `json:"repeat_index"`

	/* Snapshot of the query at run time */
	QueryText      string                 `json:"query_text"`
	ExpectedResult string                 `json:"expected_result,omitempty"`
	Category       string                 `json:"category,omitempty"`
	LogicField     string                 `json:"logic_field,omitempty"`
	LogicValue     string                 `json:"logic_value,omitempty"`
	Criteria       []Criterion            `json:"criteria,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Assistant      string                 `json:"assistant,omitempty"`

	/* Execution output */
	ConversationID string     `json:"conversation_id,omitempty"`
	ResponseText   string     `json:"response_text,omitempty"`
	ResponseJSON   string     `json:"response_json,omitempty"`
	LatencyMS      *int       `json:"latency_ms,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
}

/* LogicEvaluation is the deterministic field check result, one per run item */
type LogicEvaluation struct {
	ID            string    `json:"id"`
	RunItemID     string    `json:"run_item_id"`
	Result        string    `json:"result"`
	FieldPath     string    `json:"field_path,omitempty"`
	ExpectedValue string    `json:"expected_value,omitempty"`
	ActualPreview string    `json:"actual_preview,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

/* LLMEvaluation is the judge verdict, one per run item */
type LLMEvaluation struct {
	ID         string             `json:"id"`
	RunItemID  string             `json:"run_item_id"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	TotalScore *float64           `json:"total_score,omitempty"`
	Comment    string             `json:"comment,omitempty"`
	Status     string             `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

/* RunItemDetail joins a run item with its evaluations */
type RunItemDetail struct {
	Item  RunItem          `json:"item"`
	Logic *LogicEvaluation `json:"logic,omitempty"`
	LLM   *LLMEvaluation   `json:"llm,omitempty"`
}

/* ScoreSnapshot is a write-once aggregate quality record */
type ScoreSnapshot struct {
	ID             string             `json:"id"`
	RunID          *string            `json:"run_id,omitempty"`
	TestSetID      *string            `json:"test_set_id,omitempty"`
	Environment    string             `json:"environment"`
	TotalItems     int                `json:"total_items"`
	ExecutedItems  int                `json:"executed_items"`
	ErrorItems     int                `json:"error_items"`
	LogicPassRate  float64            `json:"logic_pass_rate"`
	MetricAverages map[string]float64 `json:"metric_averages,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

/* ValidationSetting holds per-environment run defaults, one row per environment */
type ValidationSetting struct {
	Environment        string    `json:"environment"`
	RepeatCount        int       `json:"repeat_count"`
	RoomCount          int       `json:"room_count"`
	AgentParallelCalls int       `json:"agent_parallel_calls"`
	EvalParallelCalls  int       `json:"eval_parallel_calls"`
	TimeoutMS          int       `json:"timeout_ms"`
	TestModel          string    `json:"test_model"`
	EvalModel          string    `json:"eval_model"`
	PageSize           int       `json:"page_size"`
	UpdatedAt          time.Time `json:"updated_at"`
}
