package db

import (
	"context"
	"database/sql"
	"fmt"
)

/* Schema statements are applied in order; every statement is idempotent */
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS query_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		default_assistant TEXT NOT NULL DEFAULT '',
		default_criteria JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES query_groups(id),
		text TEXT NOT NULL,
		expected_result TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		logic_field TEXT NOT NULL DEFAULT '',
		logic_value TEXT NOT NULL DEFAULT '',
		criteria JSONB,
		context JSONB,
		assistant TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queries_group ON queries(group_id)`,
	`CREATE TABLE IF NOT EXISTS test_sets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS test_set_items (
		id TEXT PRIMARY KEY,
		test_set_id TEXT NOT NULL REFERENCES test_sets(id) ON DELETE CASCADE,
		query_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (test_set_id, query_id)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		environment TEXT NOT NULL,
		status TEXT NOT NULL,
		eval_status TEXT NOT NULL,
		test_model TEXT NOT NULL DEFAULT '',
		eval_model TEXT NOT NULL DEFAULT '',
		max_parallel INTEGER NOT NULL,
		eval_parallel INTEGER NOT NULL,
		timeout_ms INTEGER NOT NULL,
		repeat_count INTEGER NOT NULL,
		room_count INTEGER NOT NULL,
		base_run_id TEXT,
		test_set_id TEXT,
		group_id TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_env_status ON runs(environment, status)`,
	`CREATE TABLE IF NOT EXISTS run_items (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		query_id TEXT,
		ordinal INTEGER NOT NULL,
		room_index INTEGER NOT NULL,
		repeat_index INTEGER NOT NULL,
		query_text TEXT NOT NULL,
		expected_result TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		logic_field TEXT NOT NULL DEFAULT '',
		logic_value TEXT NOT NULL DEFAULT '',
		criteria JSONB,
		context JSONB,
		assistant TEXT NOT NULL DEFAULT '',
		conversation_id TEXT NOT NULL DEFAULT '',
		response_text TEXT NOT NULL DEFAULT '',
		response_json TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		executed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_items_run ON run_items(run_id, ordinal)`,
	`CREATE TABLE IF NOT EXISTS logic_evaluations (
		id TEXT PRIMARY KEY,
		run_item_id TEXT NOT NULL UNIQUE REFERENCES run_items(id) ON DELETE CASCADE,
		result TEXT NOT NULL,
		field_path TEXT NOT NULL DEFAULT '',
		expected_value TEXT NOT NULL DEFAULT '',
		actual_preview TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS llm_evaluations (
		id TEXT PRIMARY KEY,
		run_item_id TEXT NOT NULL UNIQUE REFERENCES run_items(id) ON DELETE CASCADE,
		scores JSONB,
		total_score DOUBLE PRECISION,
		comment TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_snapshots (
		id TEXT PRIMARY KEY,
		run_id TEXT,
		test_set_id TEXT,
		environment TEXT NOT NULL,
		total_items INTEGER NOT NULL,
		executed_items INTEGER NOT NULL,
		error_items INTEGER NOT NULL,
		logic_pass_rate DOUBLE PRECISION NOT NULL,
		metric_averages JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_snapshots_test_set ON score_snapshots(test_set_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS validation_settings (
		environment TEXT PRIMARY KEY,
		repeat_count INTEGER NOT NULL,
		room_count INTEGER NOT NULL,
		agent_parallel_calls INTEGER NOT NULL,
		eval_parallel_calls INTEGER NOT NULL,
		timeout_ms INTEGER NOT NULL,
		test_model TEXT NOT NULL DEFAULT '',
		eval_model TEXT NOT NULL DEFAULT '',
		page_size INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates all tables and indexes if they do not exist yet
func EnsureSchema(ctx context.Context, database *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
