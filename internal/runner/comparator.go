package runner

import (
	"errors"
	"fmt"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// ErrEnvironmentMismatch rejects comparisons across environments
var ErrEnvironmentMismatch = errors.New("runs target different environments")

// ItemDiff is one matched (or unmatched) item pair in a run comparison
type ItemDiff struct {
	QueryText   string `json:"query_text"`
	RoomIndex   int    `json:"room_index"`
	RepeatIndex int    `json:"repeat_index"`
	New         bool   `json:"new"`
	Changed     bool   `json:"changed"`

	CurrentLogic     string   `json:"current_logic,omitempty"`
	BaseLogic        string   `json:"base_logic,omitempty"`
	CurrentLLMStatus string   `json:"current_llm_status,omitempty"`
	BaseLLMStatus    string   `json:"base_llm_status,omitempty"`
	CurrentScore     *float64 `json:"current_score,omitempty"`
	BaseScore        *float64 `json:"base_score,omitempty"`
	ScoreDelta       *float64 `json:"score_delta,omitempty"`
	CurrentError     string   `json:"current_error,omitempty"`
	BaseError        string   `json:"base_error,omitempty"`
}

// Comparison is the diff of one run against a base run
type Comparison struct {
	RunID       string `json:"run_id"`
	BaseRunID   string `json:"base_run_id"`
	Environment string `json:"environment"`

	ItemCountDelta  int `json:"item_count_delta"`
	ErrorCountDelta int `json:"error_count_delta"`
	ChangedCount    int `json:"changed_count"`
	NewCount        int `json:"new_count"`

	Items []ItemDiff `json:"items"`
}

// Compare diffs two runs item by item. Items match on room index, repeat
// index and query text; equal keys within one run match by occurrence order.
// Both runs must target the same environment.
func Compare(run, base *db.Run, current, baseItems []db.RunItemDetail) (*Comparison, error) {
	if run.Environment != base.Environment {
		return nil, ErrEnvironmentMismatch
	}

	baseByKey := make(map[string][]*db.RunItemDetail)
	for i := range baseItems {
		d := &baseItems[i]
		key := itemKey(d.Item)
		baseByKey[key] = append(baseByKey[key], d)
	}

	cmp := &Comparison{
		RunID:           run.ID,
		BaseRunID:       base.ID,
		Environment:     run.Environment,
		ItemCountDelta:  len(current) - len(baseItems),
		ErrorCountDelta: countErrors(current) - countErrors(baseItems),
	}

	occurrence := make(map[string]int)
	for i := range current {
		d := &current[i]
		key := itemKey(d.Item)
		idx := occurrence[key]
		occurrence[key]++

		diff := ItemDiff{
			QueryText:   d.Item.QueryText,
			RoomIndex:   d.Item.RoomIndex,
			RepeatIndex: d.Item.RepeatIndex,
		}
		fillSide(&diff.CurrentLogic, &diff.CurrentLLMStatus, &diff.CurrentScore, &diff.CurrentError, d)

		matches := baseByKey[key]
		if idx >= len(matches) {
			diff.New = true
			cmp.NewCount++
			cmp.Items = append(cmp.Items, diff)
			continue
		}

		b := matches[idx]
		fillSide(&diff.BaseLogic, &diff.BaseLLMStatus, &diff.BaseScore, &diff.BaseError, b)

		if diff.CurrentScore != nil && diff.BaseScore != nil {
			delta := *diff.CurrentScore - *diff.BaseScore
			diff.ScoreDelta = &delta
		}

		diff.Changed = diff.CurrentLogic != diff.BaseLogic ||
			diff.CurrentLLMStatus != diff.BaseLLMStatus ||
			diff.CurrentError != diff.BaseError ||
			scoreDiffers(diff.CurrentScore, diff.BaseScore)
		if diff.Changed {
			cmp.ChangedCount++
		}

		cmp.Items = append(cmp.Items, diff)
	}

	return cmp, nil
}

func itemKey(item db.RunItem) string {
	return fmt.Sprintf("%d|%d|%s", item.RoomIndex, item.RepeatIndex, item.QueryText)
}

func fillSide(logicResult, llmStatus *string, score **float64, errText *string, d *db.RunItemDetail) {
	if d.Logic != nil {
		*logicResult = d.Logic.Result
	}
	if d.LLM != nil {
		*llmStatus = d.LLM.Status
		*score = d.LLM.TotalScore
	}
	*errText = d.Item.Error
}

func scoreDiffers(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	return a != nil && *a != *b
}

func countErrors(details []db.RunItemDetail) int {
	n := 0
	for i := range details {
		if details[i].Item.Error != "" {
			n++
		}
	}
	return n
}
