package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrGroupNotEmpty is returned when deleting a query group that still has queries
var ErrGroupNotEmpty = errors.New("query group still has linked queries")

// Queries provides database operations
type Queries struct {
	db *sql.DB
}

// NewQueries creates a new Queries instance
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// GetDB returns the underlying database connection
func (q *Queries) GetDB() *sql.DB {
	return q.db
}

func marshalJSON(v interface{}) []byte {
	if v == nil {
		return nil
	}
	data, _ := json.Marshal(v)
	return data
}

// Query group operations

// CreateQueryGroup creates a new query group
func (q *Queries) CreateQueryGroup(ctx context.Context, group *QueryGroup) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	group.UpdatedAt = time.Now()

	query := `
		INSERT INTO query_groups (id, name, description, default_assistant, default_criteria, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.db.ExecContext(ctx, query,
		group.ID, group.Name, group.Description, group.DefaultAssistant,
		marshalJSON(group.DefaultCriteria), group.CreatedAt, group.UpdatedAt)
	return err
}

// GetQueryGroup gets a query group by ID
func (q *Queries) GetQueryGroup(ctx context.Context, id string) (*QueryGroup, error) {
	var group QueryGroup
	var criteriaJSON []byte

	query := `
		SELECT id, name, description, default_assistant, default_criteria, created_at, updated_at
		FROM query_groups
		WHERE id = $1
	`
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&group.ID, &group.Name, &group.Description, &group.DefaultAssistant,
		&criteriaJSON, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(criteriaJSON) > 0 {
		json.Unmarshal(criteriaJSON, &group.DefaultCriteria)
	}

	return &group, nil
}

// ListQueryGroups lists all query groups
func (q *Queries) ListQueryGroups(ctx context.Context) ([]QueryGroup, error) {
	query := `
		SELECT id, name, description, default_assistant, default_criteria, created_at, updated_at
		FROM query_groups
		ORDER BY created_at DESC
	`
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []QueryGroup
	for rows.Next() {
		var group QueryGroup
		var criteriaJSON []byte

		if err := rows.Scan(
			&group.ID, &group.Name, &group.Description, &group.DefaultAssistant,
			&criteriaJSON, &group.CreatedAt, &group.UpdatedAt); err != nil {
			continue
		}

		if len(criteriaJSON) > 0 {
			json.Unmarshal(criteriaJSON, &group.DefaultCriteria)
		}

		groups = append(groups, group)
	}

	return groups, nil
}

// UpdateQueryGroup updates a query group
func (q *Queries) UpdateQueryGroup(ctx context.Context, group *QueryGroup) error {
	group.UpdatedAt = time.Now()

	query := `
		UPDATE query_groups
		SET name = $2, description = $3, default_assistant = $4, default_criteria = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := q.db.ExecContext(ctx, query,
		group.ID, group.Name, group.Description, group.DefaultAssistant,
		marshalJSON(group.DefaultCriteria), group.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteQueryGroup deletes a query group. Groups with linked queries cannot
// be deleted; callers get ErrGroupNotEmpty.
func (q *Queries) DeleteQueryGroup(ctx context.Context, id string) error {
	count, err := q.CountQueriesInGroup(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrGroupNotEmpty
	}

	result, err := q.db.ExecContext(ctx, `DELETE FROM query_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountQueriesInGroup counts queries linked to a group
func (q *Queries) CountQueriesInGroup(ctx context.Context, groupID string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queries WHERE group_id = $1`, groupID).Scan(&count)
	return count, err
}

// Query operations

// CreateQuery creates a new test query
func (q *Queries) CreateQuery(ctx context.Context, item *Query) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.UpdatedAt = time.Now()

	query := `
		INSERT INTO queries (id, group_id, text, expected_result, category, logic_field, logic_value, criteria, context, assistant, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := q.db.ExecContext(ctx, query,
		item.ID, item.GroupID, item.Text, item.ExpectedResult, item.Category,
		item.LogicField, item.LogicValue, marshalJSON(item.Criteria),
		marshalJSON(item.Context), item.Assistant, item.CreatedAt, item.UpdatedAt)
	return err
}

func scanQuery(scan func(dest ...interface{}) error) (*Query, error) {
	var item Query
	var criteriaJSON, contextJSON []byte

	err := scan(
		&item.ID, &item.GroupID, &item.Text, &item.ExpectedResult, &item.Category,
		&item.LogicField, &item.LogicValue, &criteriaJSON, &contextJSON,
		&item.Assistant, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(criteriaJSON) > 0 {
		json.Unmarshal(criteriaJSON, &item.Criteria)
	}
	if len(contextJSON) > 0 {
		json.Unmarshal(contextJSON, &item.Context)
	}

	return &item, nil
}

const queryColumns = `id, group_id, text, expected_result, category, logic_field, logic_value, criteria, context, assistant, created_at, updated_at`

// GetQuery gets a query by ID
func (q *Queries) GetQuery(ctx context.Context, id string) (*Query, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+queryColumns+` FROM queries WHERE id = $1`, id)
	return scanQuery(row.Scan)
}

// ListQueries lists queries, optionally filtered by group
func (q *Queries) ListQueries(ctx context.Context, groupID string) ([]Query, error) {
	var rows *sql.Rows
	var err error
	if groupID != "" {
		rows, err = q.db.QueryContext(ctx,
			`SELECT `+queryColumns+` FROM queries WHERE group_id = $1 ORDER BY created_at`, groupID)
	} else {
		rows, err = q.db.QueryContext(ctx,
			`SELECT `+queryColumns+` FROM queries ORDER BY created_at`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Query
	for rows.Next() {
		item, err := scanQuery(rows.Scan)
		if err != nil {
			continue
		}
		items = append(items, *item)
	}

	return items, nil
}

// GetQueriesByIDs fetches queries by id, preserving the requested order.
// Unknown ids are skipped.
func (q *Queries) GetQueriesByIDs(ctx context.Context, ids []string) ([]Query, error) {
	byID := make(map[string]Query, len(ids))
	for _, id := range ids {
		item, err := q.GetQuery(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		byID[id] = *item
	}

	items := make([]Query, 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// UpdateQuery updates a query
func (q *Queries) UpdateQuery(ctx context.Context, item *Query) error {
	item.UpdatedAt = time.Now()

	query := `
		UPDATE queries
		SET text = $2, expected_result = $3, category = $4, logic_field = $5, logic_value = $6,
			criteria = $7, context = $8, assistant = $9, updated_at = $10
		WHERE id = $1
	`
	result, err := q.db.ExecContext(ctx, query,
		item.ID, item.Text, item.ExpectedResult, item.Category, item.LogicField,
		item.LogicValue, marshalJSON(item.Criteria), marshalJSON(item.Context),
		item.Assistant, item.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteQuery deletes a query. Run items keep their snapshot; their query_id
// reference is allowed to dangle.
func (q *Queries) DeleteQuery(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM queries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Test set operations

// CreateTestSet creates a new test set
func (q *Queries) CreateTestSet(ctx context.Context, set *TestSet) error {
	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO test_sets (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		set.ID, set.Name, set.Description, set.CreatedAt)
	return err
}

// GetTestSet gets a test set by ID
func (q *Queries) GetTestSet(ctx context.Context, id string) (*TestSet, error) {
	var set TestSet
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM test_sets WHERE id = $1`, id).
		Scan(&set.ID, &set.Name, &set.Description, &set.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// ListTestSets lists all test sets
func (q *Queries) ListTestSets(ctx context.Context) ([]TestSet, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM test_sets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []TestSet
	for rows.Next() {
		var set TestSet
		if err := rows.Scan(&set.ID, &set.Name, &set.Description, &set.CreatedAt); err != nil {
			continue
		}
		sets = append(sets, set)
	}

	return sets, nil
}

// DeleteTestSet deletes a test set and its items
func (q *Queries) DeleteTestSet(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM test_sets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddTestSetItem links a query into a test set. Duplicate links are ignored
// by the (test_set_id, query_id) unique constraint.
func (q *Queries) AddTestSetItem(ctx context.Context, testSetID, queryID string) error {
	var position int
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM test_set_items WHERE test_set_id = $1`, testSetID).
		Scan(&position)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO test_set_items (id, test_set_id, query_id, position, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (test_set_id, query_id) DO NOTHING
	`, uuid.New().String(), testSetID, queryID, position, time.Now())
	return err
}

// RemoveTestSetItem removes a query from a test set
func (q *Queries) RemoveTestSetItem(ctx context.Context, testSetID, queryID string) error {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM test_set_items WHERE test_set_id = $1 AND query_id = $2`, testSetID, queryID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListTestSetQueries lists the queries of a test set in position order.
// Queries deleted since being added are skipped.
func (q *Queries) ListTestSetQueries(ctx context.Context, testSetID string) ([]Query, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT q.id, q.group_id, q.text, q.expected_result, q.category, q.logic_field, q.logic_value,
			q.criteria, q.context, q.assistant, q.created_at, q.updated_at
		FROM test_set_items tsi
		JOIN queries q ON q.id = tsi.query_id
		WHERE tsi.test_set_id = $1
		ORDER BY tsi.position
	`, testSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Query
	for rows.Next() {
		item, err := scanQuery(rows.Scan)
		if err != nil {
			continue
		}
		items = append(items, *item)
	}

	return items, nil
}

// Validation settings

// GetValidationSetting returns the settings row for an environment, inserting
// defaults on first read.
func (q *Queries) GetValidationSetting(ctx context.Context, environment string) (*ValidationSetting, error) {
	defaults := ValidationSetting{
		Environment:        environment,
		RepeatCount:        1,
		RoomCount:          1,
		AgentParallelCalls: 4,
		EvalParallelCalls:  4,
		TimeoutMS:          60000,
		TestModel:          "",
		EvalModel:          "gpt-4o-mini",
		PageSize:           50,
		UpdatedAt:          time.Now(),
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO validation_settings (environment, repeat_count, room_count, agent_parallel_calls, eval_parallel_calls, timeout_ms, test_model, eval_model, page_size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (environment) DO NOTHING
	`, defaults.Environment, defaults.RepeatCount, defaults.RoomCount,
		defaults.AgentParallelCalls, defaults.EvalParallelCalls, defaults.TimeoutMS,
		defaults.TestModel, defaults.EvalModel, defaults.PageSize, defaults.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var setting ValidationSetting
	err = q.db.QueryRowContext(ctx, `
		SELECT environment, repeat_count, room_count, agent_parallel_calls, eval_parallel_calls, timeout_ms, test_model, eval_model, page_size, updated_at
		FROM validation_settings
		WHERE environment = $1
	`, environment).Scan(
		&setting.Environment, &setting.RepeatCount, &setting.RoomCount,
		&setting.AgentParallelCalls, &setting.EvalParallelCalls, &setting.TimeoutMS,
		&setting.TestModel, &setting.EvalModel, &setting.PageSize, &setting.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &setting, nil
}

// UpdateValidationSetting upserts the settings row for an environment
func (q *Queries) UpdateValidationSetting(ctx context.Context, setting *ValidationSetting) error {
	setting.UpdatedAt = time.Now()

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO validation_settings (environment, repeat_count, room_count, agent_parallel_calls, eval_parallel_calls, timeout_ms, test_model, eval_model, page_size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (environment) DO UPDATE SET
			repeat_count = EXCLUDED.repeat_count,
			room_count = EXCLUDED.room_count,
			agent_parallel_calls = EXCLUDED.agent_parallel_calls,
			eval_parallel_calls = EXCLUDED.eval_parallel_calls,
			timeout_ms = EXCLUDED.timeout_ms,
			test_model = EXCLUDED.test_model,
			eval_model = EXCLUDED.eval_model,
			page_size = EXCLUDED.page_size,
			updated_at = EXCLUDED.updated_at
	`, setting.Environment, setting.RepeatCount, setting.RoomCount,
		setting.AgentParallelCalls, setting.EvalParallelCalls, setting.TimeoutMS,
		setting.TestModel, setting.EvalModel, setting.PageSize, setting.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert validation settings: %w", err)
	}
	return nil
}
