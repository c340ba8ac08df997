package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hirewise/qa-backoffice/api/internal/agent"
	"github.com/hirewise/qa-backoffice/api/internal/db"
	"github.com/hirewise/qa-backoffice/api/internal/judge"
	"github.com/hirewise/qa-backoffice/api/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger("error", "text", "stderr")
}

// fakeStore is an in-memory Store for runner tests
type fakeStore struct {
	mu    sync.Mutex
	runs  map[string]*db.Run
	items map[string][]db.RunItem
	logic map[string]*db.LogicEvaluation
	llm   map[string]*db.LLMEvaluation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:  make(map[string]*db.Run),
		items: make(map[string][]db.RunItem),
		logic: make(map[string]*db.LogicEvaluation),
		llm:   make(map[string]*db.LLMEvaluation),
	}
}

func (s *fakeStore) addRun(run *db.Run, items []db.RunItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	s.items[run.ID] = items
}

func (s *fakeStore) GetRun(ctx context.Context, id string) (*db.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.New("run not found")
	}
	copied := *run
	return &copied, nil
}

func (s *fakeStore) UpdateRunStatus(ctx context.Context, runID, status, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = status
	run.Error = errText
	return nil
}

func (s *fakeStore) UpdateRunEvalStatus(ctx context.Context, runID, evalStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.EvalStatus = evalStatus
	return nil
}

func (s *fakeStore) ListRunItems(ctx context.Context, runID string) ([]db.RunItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.RunItem(nil), s.items[runID]...), nil
}

func (s *fakeStore) UpdateRunItemExecution(ctx context.Context, item *db.RunItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	item.ExecutedAt = &now
	items := s.items[item.RunID]
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = *item
			return nil
		}
	}
	return errors.New("item not found")
}

func (s *fakeStore) UpsertLogicEvaluation(ctx context.Context, eval *db.LogicEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logic[eval.RunItemID] = eval
	return nil
}

func (s *fakeStore) UpsertLLMEvaluation(ctx context.Context, eval *db.LLMEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llm[eval.RunItemID] = eval
	return nil
}

func (s *fakeStore) ListRunItemDetails(ctx context.Context, runID string) ([]db.RunItemDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var details []db.RunItemDetail
	for _, item := range s.items[runID] {
		details = append(details, db.RunItemDetail{
			Item:  item,
			Logic: s.logic[item.ID],
			LLM:   s.llm[item.ID],
		})
	}
	return details, nil
}

// fakeAgent answers every query with a canned JSON response
type fakeAgent struct {
	mu    sync.Mutex
	calls int
	reply func(req agent.AskRequest) (*agent.AskResponse, error)
}

func (a *fakeAgent) Ask(ctx context.Context, req agent.AskRequest) (*agent.AskResponse, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if a.reply != nil {
		return a.reply(req)
	}
	raw := fmt.Sprintf(`{"message": "answer to %s", "status": "COMPLETED"}`, req.Query)
	return &agent.AskResponse{ConversationID: "conv-1", Message: "answer to " + req.Query, Raw: raw}, nil
}

func (a *fakeAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeJudge returns a fixed verdict, or an error for queries it is primed
// to fail on
type fakeJudge struct {
	mu      sync.Mutex
	calls   int
	verdict judge.Verdict
	failOn  map[string]error
}

func (j *fakeJudge) Judge(ctx context.Context, req judge.Request) (*judge.Verdict, judge.Usage, error) {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()

	if err, ok := j.failOn[req.Query]; ok {
		return nil, judge.Usage{}, err
	}
	v := j.verdict
	return &v, judge.Usage{TotalTokens: 100}, nil
}

func (j *fakeJudge) callCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

func makeRun(id, environment string) *db.Run {
	return &db.Run{
		ID:           id,
		Environment:  environment,
		Status:       db.RunStatusPending,
		EvalStatus:   db.EvalStatusPending,
		MaxParallel:  4,
		EvalParallel: 4,
		TimeoutMS:    5000,
		RepeatCount:  1,
		RoomCount:    1,
	}
}

func makeItem(id, runID string, ordinal int, queryText string) db.RunItem {
	return db.RunItem{
		ID:        id,
		RunID:     runID,
		Ordinal:   ordinal,
		QueryText: queryText,
	}
}
