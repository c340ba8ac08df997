// Package runner drives validation runs end to end: executing run items
// against the agent service, evaluating the captured responses, comparing
// runs and aggregating dashboards.
package runner

import (
	"context"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// Store is the persistence surface the runner needs. *db.Queries satisfies
// it; tests substitute in-memory fakes.
type Store interface {
	GetRun(ctx context.Context, id string) (*db.Run, error)
	UpdateRunStatus(ctx context.Context, runID, status, errText string) error
	UpdateRunEvalStatus(ctx context.Context, runID, evalStatus string) error
	ListRunItems(ctx context.Context, runID string) ([]db.RunItem, error)
	UpdateRunItemExecution(ctx context.Context, item *db.RunItem) error
	UpsertLogicEvaluation(ctx context.Context, eval *db.LogicEvaluation) error
	UpsertLLMEvaluation(ctx context.Context, eval *db.LLMEvaluation) error
	ListRunItemDetails(ctx context.Context, runID string) ([]db.RunItemDetail, error)
}
